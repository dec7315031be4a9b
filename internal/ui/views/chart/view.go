package chart

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"laborwatch/internal/modules/contraction/dto"
	"laborwatch/internal/ui/theme"
)

type SeriesPort interface {
	LiveSeries(ctx context.Context) (dto.SeriesOutput, error)
}

type LoadedMsg struct {
	Series dto.SeriesOutput
	Err    error
}

// Model draws the live series as horizontal bars, one row per event, scaled
// to the largest y value.
type Model struct {
	port   SeriesPort
	series dto.SeriesOutput
	err    error
	vp     viewport.Model
	width  int
	height int
}

func New(port SeriesPort) Model {
	vp := viewport.New(0, 0)
	vp.Style = lipgloss.NewStyle().Background(theme.Mantle).Foreground(theme.Text).Padding(0, 1)
	return Model{port: port, vp: vp}
}

func (m Model) Init() tea.Cmd {
	return m.Reload()
}

func (m Model) Reload() tea.Cmd {
	return func() tea.Msg {
		series, err := m.port.LiveSeries(context.Background())
		return LoadedMsg{Series: series, Err: err}
	}
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.vp.Width = max(msg.Width-2, 20)
		m.vp.Height = max(msg.Height-4, 5)
		m.vp.SetContent(Render(m.series, m.vp.Width-4))
	case LoadedMsg:
		m.err = msg.Err
		if msg.Err == nil {
			m.series = msg.Series
			m.vp.SetContent(Render(m.series, m.vp.Width-4))
			m.vp.GotoBottom()
		}
	}
	var cmd tea.Cmd
	m.vp, cmd = m.vp.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	title := theme.Title.Render("Live series") + theme.Muted.Render("  "+m.series.Mode+", since start")
	if m.err != nil {
		title += "  " + theme.Hot.Render(m.err.Error())
	}
	return title + "\n" + m.vp.View()
}

// Render lays out one bar per point. Width is the space available for a row
// including its labels.
func Render(series dto.SeriesOutput, width int) string {
	if len(series.Y) == 0 {
		return "No contractions since start."
	}
	const labelW = 5
	valueW := 9
	barW := width - labelW - valueW - 2
	if barW < 4 {
		barW = 4
	}
	var peak float64
	for _, y := range series.Y {
		if y > peak {
			peak = y
		}
	}

	bar := lipgloss.NewStyle().Foreground(theme.Sapphire)
	var sb strings.Builder
	for i, y := range series.Y {
		n := barW
		if peak > 0 {
			n = int(y/peak*float64(barW) + 0.5)
		}
		if n < 1 {
			n = 1
		}
		x := float64(i + 1)
		if i < len(series.X) {
			x = series.X[i]
		}
		fmt.Fprintf(&sb, "%*.0f %s %*s\n", labelW-1, x, bar.Render(strings.Repeat("▇", n)), valueW, time.Duration(y*float64(time.Second)).Round(time.Second))
	}
	return strings.TrimSuffix(sb.String(), "\n")
}
