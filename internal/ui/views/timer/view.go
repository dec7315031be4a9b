package timer

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/harmonica"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"laborwatch/internal/modules/contraction/dto"
	"laborwatch/internal/ui/theme"
)

// FrameRate is how often the root model refreshes status; the meter spring
// is stepped once per refresh.
const FrameRate = 10

const meterWidth = 36

// StatusMsg carries a fresh timer status and rolling summary.
type StatusMsg struct {
	Status  dto.StatusOutput
	Summary dto.SummaryOutput
	Err     error
}

// Model shows the running clock and an urgency meter that eases toward the
// current level.
type Model struct {
	status  dto.StatusOutput
	summary dto.SummaryOutput
	err     error

	spring   harmonica.Spring
	meter    float64
	velocity float64

	width  int
	height int
}

func New() Model {
	return Model{spring: harmonica.NewSpring(harmonica.FPS(FrameRate), 6.0, 0.5)}
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.err = msg.Err
		if msg.Err == nil {
			m.status = msg.Status
			m.summary = msg.Summary
		}
		m.meter, m.velocity = m.spring.Update(m.meter, m.velocity, MeterTarget(m.summary.LevelRank))
	}
	return m, nil
}

// MeterTarget is the meter fill for a level rank: a third per level.
func MeterTarget(rank int) float64 {
	if rank < 0 {
		rank = 0
	}
	if rank > 3 {
		rank = 3
	}
	return float64(rank) / 3
}

func (m Model) Timing() bool { return m.status.State == "timing" }

func (m Model) Level() string { return m.summary.Level }

func (m Model) View() string {
	var sb strings.Builder
	if m.summary.Level == "Urgent" {
		sb.WriteString(theme.Banner.Render("URGENT: contractions are coming fast. Contact your care provider."))
		sb.WriteString("\n\n")
	}

	clock := formatClock(time.Duration(m.status.ElapsedSec * float64(time.Second)))
	state := theme.Muted.Render("idle  press space to start")
	if m.Timing() {
		clock = theme.Hot.Render(clock)
		state = theme.Hot.Render("timing  press space to stop")
	}
	sb.WriteString(theme.Title.Render("Contraction") + "\n\n")
	sb.WriteString("  " + lipgloss.NewStyle().Bold(true).Render(clock) + "   " + state + "\n\n")

	level := m.summary.Level
	if level == "" {
		level = "Calm"
	}
	sb.WriteString("  Urgency  " + theme.Level(level) + "\n")
	sb.WriteString("  " + m.renderMeter(level) + "\n\n")

	sb.WriteString(theme.Muted.Render(m.renderStats()))
	if m.err != nil {
		sb.WriteString("\n" + theme.Hot.Render("status: "+m.err.Error()))
	}
	return theme.Pane.Width(max(m.width-4, 40)).Render(sb.String())
}

func (m Model) renderMeter(level string) string {
	filled := int(m.meter*meterWidth + 0.5)
	if filled < 0 {
		filled = 0
	}
	if filled > meterWidth {
		filled = meterWidth
	}
	bar := lipgloss.NewStyle().Foreground(theme.LevelColor(level)).Render(strings.Repeat("█", filled))
	rest := lipgloss.NewStyle().Foreground(theme.Surface1).Render(strings.Repeat("░", meterWidth-filled))
	return bar + rest
}

func (m Model) renderStats() string {
	s := m.summary
	if s.Count == 0 {
		return fmt.Sprintf("  no contractions yet  (level needs %d)", s.Window)
	}
	lines := []string{fmt.Sprintf("  recorded %d this labor, %d this session", s.Count, m.status.Completed)}
	if s.Count >= s.Window {
		lines = append(lines, fmt.Sprintf("  mean of last %d: %s", s.Window, seconds(s.WindowMeanSec)))
	} else {
		lines = append(lines, fmt.Sprintf("  %d more until the level is computed", s.Window-s.Count))
	}
	lines = append(lines, fmt.Sprintf("  shortest %s  longest %s", seconds(s.MinSec), seconds(s.MaxSec)))
	return strings.Join(lines, "\n")
}

func formatClock(d time.Duration) string {
	d = d.Truncate(time.Second)
	return fmt.Sprintf("%02d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

func seconds(v float64) string {
	return time.Duration(v * float64(time.Second)).Round(time.Second).String()
}
