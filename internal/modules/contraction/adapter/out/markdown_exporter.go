package out

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"laborwatch/internal/modules/contraction/domain"
	"laborwatch/internal/platform/clock"
	"laborwatch/internal/platform/markdown"
)

const exportSchemaVersion = 1

var historyBlock = markdown.Block{
	Start: "<!-- laborwatch:history:start -->",
	End:   "<!-- laborwatch:history:end -->",
}

type MarkdownExporter struct {
	dir   string
	clock clock.Clock
}

func NewMarkdownExporter(dir string, clk clock.Clock) *MarkdownExporter {
	return &MarkdownExporter{dir: dir, clock: clk}
}

func (e *MarkdownExporter) Render(events []domain.Event, stats domain.Stats) (string, error) {
	body := "# Contraction history\n\n" + summaryLines(stats) + "\n" + markdown.UpsertBlock("", e.block(events))
	return markdown.Render(e.meta(stats), body)
}

// Export writes the note to path, or to a dated file under the exports dir
// when path is empty. Text outside the generated table and unknown
// frontmatter keys in an existing note are kept.
func (e *MarkdownExporter) Export(_ context.Context, path string, events []domain.Event, stats domain.Stats) (string, error) {
	if strings.TrimSpace(path) == "" {
		path = filepath.Join(e.dir, "exports", "contractions-"+e.clock.Now().UTC().Format("2006-01-02")+".md")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}

	meta := map[string]any{}
	body := "# Contraction history\n\n"
	existing, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return "", fmt.Errorf("read existing export: %w", err)
	default:
		meta, body, err = markdown.Split(string(existing))
		if err != nil {
			return "", err
		}
	}
	for k, v := range e.meta(stats) {
		meta[k] = v
	}

	rendered, err := markdown.Render(meta, markdown.UpsertBlock(body, e.block(events)))
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(rendered), 0o644); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	return path, nil
}

func (e *MarkdownExporter) meta(stats domain.Stats) map[string]any {
	return map[string]any{
		"schema_version":      exportSchemaVersion,
		"exported_at":         e.clock.Now().UTC().Format(time.RFC3339),
		"count":               stats.Count,
		"window":              stats.Window,
		"window_mean_seconds": round1(stats.WindowMean),
		"mean_seconds":        round1(stats.Mean),
		"level":               stats.Level.String(),
	}
}

func (e *MarkdownExporter) block(events []domain.Event) markdown.Block {
	var sb strings.Builder
	sb.WriteString("| # | Started (UTC) | Duration | Status |\n")
	sb.WriteString("|---:|---|---:|---|\n")
	for _, ev := range events {
		ref := "unsaved"
		if ev.Persisted() {
			ref = fmt.Sprintf("%d", ev.ID)
		}
		fmt.Fprintf(&sb, "| %s | %s | %s | %s |\n",
			ref,
			ev.StartedAt.UTC().Format("2006-01-02 15:04:05"),
			ev.Duration.Round(time.Second),
			ev.Status,
		)
	}
	block := historyBlock
	block.Content = strings.TrimSuffix(sb.String(), "\n")
	return block
}

func summaryLines(stats domain.Stats) string {
	if stats.Count == 0 {
		return "No contractions recorded.\n"
	}
	return fmt.Sprintf("- Recorded: %d\n- Level: **%s**\n- Mean of last %d: %s\n- Overall mean: %s (min %s, max %s)\n",
		stats.Count,
		stats.Level,
		stats.Window,
		seconds(stats.WindowMean),
		seconds(stats.Mean),
		seconds(stats.Min),
		seconds(stats.Max),
	)
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second)).Round(time.Second)
}

func round1(v float64) float64 {
	return float64(int64(v*10+0.5)) / 10
}
