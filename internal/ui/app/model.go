package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"laborwatch/internal/modules/contraction/dto"
	"laborwatch/internal/ui/components"
	"laborwatch/internal/ui/theme"
	chartview "laborwatch/internal/ui/views/chart"
	historyview "laborwatch/internal/ui/views/history"
	timerview "laborwatch/internal/ui/views/timer"
)

// ─── port ────────────────────────────────────────────────────────────────────

// TrackerPort is the slice of the contraction usecase the UI drives.
type TrackerPort interface {
	Start(ctx context.Context) (dto.StartOutput, error)
	Stop(ctx context.Context) (dto.StopOutput, error)
	Reset(ctx context.Context) error
	Status(ctx context.Context) (dto.StatusOutput, error)
	Summary(ctx context.Context) (dto.SummaryOutput, error)
	History(ctx context.Context, input dto.HistoryInput) ([]dto.EventOutput, error)
	LiveSeries(ctx context.Context) (dto.SeriesOutput, error)
	SubscribeSeries(buffer int) (<-chan dto.SeriesUpdate, func())
	Export(ctx context.Context, input dto.ExportInput) (dto.ExportOutput, error)
}

// ─── tab index ───────────────────────────────────────────────────────────────

type tabID int

const (
	tabTimer tabID = iota
	tabHistory
	tabChart
	tabCount
)

var tabLabels = [tabCount]string{"Timer", "History", "Chart"}

// ─── async messages ───────────────────────────────────────────────────────────

type tickMsg struct{}

type startedMsg struct {
	out dto.StartOutput
	err error
}

type stoppedMsg struct {
	out dto.StopOutput
	err error
}

type resetMsg struct{ err error }

type exportedMsg struct {
	out dto.ExportOutput
	err error
}

type seriesUpdateMsg struct {
	update dto.SeriesUpdate
	ok     bool
}

// ─── key bindings ─────────────────────────────────────────────────────────────

type keyMap struct {
	Toggle  key.Binding
	Reset   key.Binding
	Tab     key.Binding
	Order   key.Binding
	Help    key.Binding
	Palette key.Binding
	Quit    key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Toggle:  key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "start/stop")),
		Reset:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "discard timing")),
		Tab:     key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next tab")),
		Order:   key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "history order")),
		Help:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Palette: key.NewBinding(key.WithKeys(":"), key.WithHelp(":", "palette")),
		Quit:    key.NewBinding(key.WithKeys("ctrl+c", "q"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Tab, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Toggle, k.Reset},
		{k.Tab, k.Order},
		{k.Help, k.Palette, k.Quit},
	}
}

// ─── model ───────────────────────────────────────────────────────────────────

// Model is the root Bubble Tea model. It drives the timer through the
// tracker port, refreshes status on a fixed tick, and reloads history and the
// chart whenever the live series changes.
type Model struct {
	tracker TrackerPort
	updates <-chan dto.SeriesUpdate
	cancel  func()

	timerView   timerview.Model
	historyView historyview.Model
	chartView   chartview.Model

	activeTab tabID
	keys      keyMap
	help      help.Model
	showHelp  bool
	palette   components.Palette
	status    string
	pending   bool
	width     int
	height    int
}

func NewModel(tracker TrackerPort) Model {
	updates, cancel := tracker.SubscribeSeries(8)
	return Model{
		tracker:     tracker,
		updates:     updates,
		cancel:      cancel,
		timerView:   timerview.New(),
		historyView: historyview.New(historyPortBridge{p: tracker}),
		chartView:   chartview.New(tracker),
		activeTab:   tabTimer,
		keys:        defaultKeys(),
		help:        help.New(),
		palette:     components.NewPalette(),
		status:      "ready",
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.refreshCmd(),
		m.historyView.Init(),
		m.chartView.Init(),
		m.waitForSeriesCmd(),
	)
}

// ─── update ───────────────────────────────────────────────────────────────────

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	// The palette takes all keys while open; timer refreshes keep flowing.
	if m.palette.Visible() {
		var cmd tea.Cmd
		m.palette, cmd = m.palette.Update(msg)
		if _, isKey := msg.(tea.KeyMsg); isKey {
			return m, cmd
		}
		cmds = append(cmds, cmd)
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.palette.SetWidth(min(m.width-4, 80))
		m.help.Width = m.width
		m.propagateSize()

	case tickMsg:
		return m, tea.Batch(append(cmds, m.refreshCmd())...)

	case timerview.StatusMsg:
		m.timerView, _ = m.timerView.Update(msg)
		return m, tea.Batch(append(cmds, m.tickCmd())...)

	case startedMsg:
		m.pending = false
		switch {
		case msg.err != nil:
			m.status = "start failed: " + msg.err.Error()
		case !msg.out.Started:
			m.status = "already timing"
		default:
			m.status = "timing started " + msg.out.StartedAt.Local().Format(time.TimeOnly)
		}

	case stoppedMsg:
		m.pending = false
		switch {
		case msg.err != nil:
			m.status = "stop failed: " + msg.err.Error()
		case !msg.out.Completed:
			m.status = "nothing to stop"
		case msg.out.StorageError != "":
			// shown once; the next action replaces it
			m.status = theme.Hot.Render("not saved to history: " + msg.out.StorageError)
		case msg.out.Warning != "":
			m.status = theme.Hot.Render(fmt.Sprintf("recorded %s, %s; %s", seconds(msg.out.Event.DurationSec), msg.out.Level, msg.out.Warning))
		default:
			m.status = fmt.Sprintf("recorded %s, %s", seconds(msg.out.Event.DurationSec), msg.out.Level)
		}

	case resetMsg:
		if msg.err != nil {
			m.status = "reset failed: " + msg.err.Error()
		} else {
			m.status = "timing discarded"
		}

	case exportedMsg:
		if msg.err != nil {
			m.status = "export failed: " + msg.err.Error()
		} else {
			m.status = fmt.Sprintf("exported %d to %s", msg.out.Records, msg.out.Path)
		}

	case seriesUpdateMsg:
		if !msg.ok {
			return m, tea.Batch(cmds...)
		}
		return m, tea.Batch(append(cmds, m.historyView.Reload(), m.chartView.Reload(), m.waitForSeriesCmd())...)

	case components.PaletteSubmitMsg:
		return m.executePalette(msg.Input)

	case components.PaletteCancelMsg:
		m.status = "ready"

	case tea.KeyMsg:
		if m.showHelp {
			if msg.String() == "?" || msg.String() == "esc" {
				m.showHelp = false
			}
			return m, nil
		}
		if m.activeTab == tabHistory && m.historyView.Filtering() {
			break
		}

		switch msg.String() {
		case "ctrl+c", "q":
			m.cancel()
			return m, tea.Quit
		case "tab":
			m.activeTab = (m.activeTab + 1) % tabCount
		case "shift+tab":
			m.activeTab = (m.activeTab + tabCount - 1) % tabCount
		case "?":
			m.showHelp = !m.showHelp
		case ":":
			return m, m.palette.Open()
		case " ":
			if m.pending {
				return m, nil
			}
			m.pending = true
			if m.timerView.Timing() {
				return m, m.stopCmd()
			}
			return m, m.startCmd()
		case "r":
			return m, m.resetCmd()
		}
	}

	var tabCmd tea.Cmd
	switch m.activeTab {
	case tabTimer:
		m.timerView, tabCmd = m.timerView.Update(msg)
	case tabHistory:
		m.historyView, tabCmd = m.historyView.Update(msg)
	case tabChart:
		m.chartView, tabCmd = m.chartView.Update(msg)
	}
	cmds = append(cmds, tabCmd)
	return m, tea.Batch(cmds...)
}

// ─── view ────────────────────────────────────────────────────────────────────

func (m Model) View() string {
	tabBar := m.renderTabBar()
	statusBar := m.renderStatusBar()
	contentH := m.height - lipgloss.Height(tabBar) - lipgloss.Height(statusBar)
	if contentH < 1 {
		contentH = 1
	}

	var content string
	switch {
	case m.showHelp:
		content = lipgloss.NewStyle().Width(m.width).Height(contentH).Render(m.help.View(m.keys))
	case m.palette.Visible():
		content = lipgloss.Place(m.width, contentH, lipgloss.Center, lipgloss.Center, m.palette.View())
	default:
		content = m.activeView()
	}
	return lipgloss.JoinVertical(lipgloss.Left, tabBar, content, statusBar)
}

func (m Model) activeView() string {
	switch m.activeTab {
	case tabHistory:
		return m.historyView.View()
	case tabChart:
		return m.chartView.View()
	default:
		return m.timerView.View()
	}
}

func (m Model) renderTabBar() string {
	parts := make([]string, tabCount)
	for i := tabID(0); i < tabCount; i++ {
		if i == m.activeTab {
			parts[i] = theme.Hot.Render(" " + tabLabels[i] + " ")
		} else {
			parts[i] = theme.Muted.Render(" " + tabLabels[i] + " ")
		}
	}
	bar := "laborwatch  " + strings.Join(parts, theme.Muted.Render(" │ "))
	if level := m.timerView.Level(); level != "" {
		bar += "   " + theme.Level(level)
	}
	return lipgloss.NewStyle().Background(theme.Mantle).Width(m.width).Render(bar) + "\n"
}

func (m Model) renderStatusBar() string {
	left := m.status
	if m.timerView.Timing() {
		left = theme.Hot.Render("● timing") + "  " + left
	}
	right := theme.Muted.Render("space:start/stop  ?:help  tab:switch  q:quit")
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return "\n" + lipgloss.NewStyle().Background(theme.Mantle).Width(m.width).Render(left+strings.Repeat(" ", gap)+right)
}

// ─── palette execution ────────────────────────────────────────────────────────

func (m Model) executePalette(input string) (tea.Model, tea.Cmd) {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return m, nil
	}
	switch parts[0] {
	case "timer:start":
		return m, m.startCmd()
	case "timer:stop":
		return m, m.stopCmd()
	case "timer:reset":
		return m, m.resetCmd()
	case "history:newest", "history:oldest":
		m.activeTab = tabHistory
		return m, m.historyView.SetOrder(strings.TrimPrefix(parts[0], "history:"))
	case "export":
		path := ""
		if len(parts) > 1 {
			path = strings.TrimSpace(strings.TrimPrefix(input, parts[0]))
		}
		return m, m.exportCmd(path)
	default:
		m.status = "unknown command: " + parts[0]
	}
	return m, nil
}

// ─── helpers ─────────────────────────────────────────────────────────────────

func (m *Model) propagateSize() {
	sz := tea.WindowSizeMsg{Width: m.width, Height: m.height - 3}
	m.timerView, _ = m.timerView.Update(sz)
	m.historyView, _ = m.historyView.Update(sz)
	m.chartView, _ = m.chartView.Update(sz)
}

func seconds(v float64) string {
	return time.Duration(v * float64(time.Second)).Round(time.Second).String()
}

// ─── async commands ───────────────────────────────────────────────────────────

func (m Model) tickCmd() tea.Cmd {
	return tea.Tick(time.Second/timerview.FrameRate, func(time.Time) tea.Msg { return tickMsg{} })
}

func (m Model) refreshCmd() tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		status, err := m.tracker.Status(ctx)
		if err != nil {
			return timerview.StatusMsg{Err: err}
		}
		summary, err := m.tracker.Summary(ctx)
		return timerview.StatusMsg{Status: status, Summary: summary, Err: err}
	}
}

func (m Model) waitForSeriesCmd() tea.Cmd {
	updates := m.updates
	return func() tea.Msg {
		update, ok := <-updates
		return seriesUpdateMsg{update: update, ok: ok}
	}
}

func (m Model) startCmd() tea.Cmd {
	return func() tea.Msg {
		out, err := m.tracker.Start(context.Background())
		return startedMsg{out: out, err: err}
	}
}

// stopCmd runs the stop pipeline off the UI loop; persistence may block.
func (m Model) stopCmd() tea.Cmd {
	return func() tea.Msg {
		out, err := m.tracker.Stop(context.Background())
		return stoppedMsg{out: out, err: err}
	}
}

func (m Model) resetCmd() tea.Cmd {
	return func() tea.Msg {
		return resetMsg{err: m.tracker.Reset(context.Background())}
	}
}

func (m Model) exportCmd(path string) tea.Cmd {
	return func() tea.Msg {
		out, err := m.tracker.Export(context.Background(), dto.ExportInput{Path: path})
		return exportedMsg{out: out, err: err}
	}
}

// ─── port bridges ─────────────────────────────────────────────────────────────

type historyPortBridge struct{ p TrackerPort }

func (b historyPortBridge) History(ctx context.Context, order string) ([]dto.EventOutput, error) {
	return b.p.History(ctx, dto.HistoryInput{Order: order})
}
