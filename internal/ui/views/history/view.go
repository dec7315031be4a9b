package history

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"laborwatch/internal/modules/contraction/dto"
	"laborwatch/internal/ui/theme"
)

type HistoryPort interface {
	History(ctx context.Context, order string) ([]dto.EventOutput, error)
}

// LoadedMsg carries history. Warning is set when only part of it could be
// read.
type LoadedMsg struct {
	Order   string
	Events  []dto.EventOutput
	Warning string
	Err     error
}

type eventItem struct {
	event dto.EventOutput
}

func (i eventItem) Title() string {
	return fmt.Sprintf("%s  %s", i.event.StartedAt.Local().Format(time.TimeOnly), time.Duration(i.event.DurationSec*float64(time.Second)).Round(time.Second))
}

func (i eventItem) Description() string {
	if !i.event.Persisted {
		return i.event.Status + "  not saved"
	}
	return fmt.Sprintf("%s  #%d", i.event.Status, i.event.ID)
}

func (i eventItem) FilterValue() string { return i.event.Status }

type Model struct {
	port    HistoryPort
	list    list.Model
	spinner spinner.Model
	order   string
	loading bool
	width   int
	height  int
}

func New(port HistoryPort) Model {
	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.Foreground(theme.Lavender).BorderForeground(theme.Lavender)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.Foreground(theme.Sapphire).BorderForeground(theme.Lavender)

	l := list.New(nil, delegate, 0, 0)
	l.Title = "History (newest first)"
	l.Styles.Title = theme.Title
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.SetShowHelp(false)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.Lavender)

	return Model{port: port, list: l, spinner: sp, order: "newest", loading: true}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.Reload(), m.spinner.Tick)
}

// Reload fetches history in the current order.
func (m Model) Reload() tea.Cmd {
	order := m.order
	return func() tea.Msg {
		events, err := m.port.History(context.Background(), order)
		if err != nil && len(events) > 0 {
			return LoadedMsg{Order: order, Events: events, Warning: err.Error()}
		}
		return LoadedMsg{Order: order, Events: events, Err: err}
	}
}

// SetOrder switches between "newest" and "oldest" and reloads.
func (m *Model) SetOrder(order string) tea.Cmd {
	m.order = order
	m.loading = true
	return m.Reload()
}

func (m Model) Order() string { return m.order }

func (m Model) Filtering() bool {
	return m.list.FilterState() == list.Filtering
}

func (m Model) Len() int { return len(m.list.Items()) }

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(max(msg.Width-2, 10), max(msg.Height-2, 5))

	case LoadedMsg:
		if msg.Order != m.order {
			return m, nil
		}
		m.loading = false
		title := "History (" + m.order + " first)"
		switch {
		case msg.Err != nil:
			m.list.Title = title + "  " + msg.Err.Error()
			return m, nil
		case msg.Warning != "":
			title += "  partial: " + msg.Warning
		}
		m.list.Title = title
		items := make([]list.Item, len(msg.Events))
		for i, e := range msg.Events {
			items[i] = eventItem{event: e}
		}
		cmds = append(cmds, m.list.SetItems(items))

	case spinner.TickMsg:
		if m.loading {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}

	case tea.KeyMsg:
		if !m.Filtering() && msg.String() == "o" {
			next := "oldest"
			if m.order == "oldest" {
				next = "newest"
			}
			return m, m.SetOrder(next)
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m Model) View() string {
	if m.loading && len(m.list.Items()) == 0 {
		return m.spinner.View() + " loading history…"
	}
	if len(m.list.Items()) == 0 {
		return theme.Muted.Render("No contractions recorded yet.  o: toggle order")
	}
	return m.list.View()
}
