package markdown

import "strings"

// Block is a generated region of a note delimited by marker comments.
// Everything outside the markers belongs to the user and is preserved.
type Block struct {
	Start   string
	End     string
	Content string
}

func (b Block) render() string {
	return b.Start + "\n" + b.Content + "\n" + b.End
}

// UpsertBlock replaces the block in body, or appends it when body has none.
func UpsertBlock(body string, block Block) string {
	rendered := block.render()
	start := strings.Index(body, block.Start)
	end := strings.Index(body, block.End)
	if start >= 0 && end > start {
		return body[:start] + rendered + body[end+len(block.End):]
	}

	switch {
	case strings.TrimSpace(body) == "":
		return rendered + "\n"
	case strings.HasSuffix(body, "\n"):
		return body + "\n" + rendered + "\n"
	default:
		return body + "\n\n" + rendered + "\n"
	}
}
