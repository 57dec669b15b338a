// Package tui implements the read-only live dashboard behind
// cmd/orchestrator --watch. It only ever reads: it subscribes to
// internal/events.Bus and rereads the TaskFile through internal/store.Store,
// but never calls Store.Mutate, so running it alongside the scheduling loop
// is always safe.
package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/orchestrator/internal/events"
	"github.com/aristath/orchestrator/internal/store"
	"github.com/aristath/orchestrator/internal/taskfile"
)

// PaneID identifies which pane currently has focus.
type PaneID int

const (
	PaneProgress PaneID = iota
	PaneLog
)

// Model is the root Bubble Tea model for the dashboard.
type Model struct {
	store        *store.Store
	progressPane ProgressPaneModel
	logPane      LogPaneModel
	focusedPane  PaneID
	eventSub     <-chan events.Event
	width        int
	height       int
	quitting     bool
}

// New creates a dashboard model that reads tf's store and subscribes to
// every topic on bus.
func New(bus *events.Bus, s *store.Store) Model {
	return Model{
		store:        s,
		progressPane: NewProgressPaneModel(),
		logPane:      NewLogPaneModel(),
		focusedPane:  PaneProgress,
		eventSub:     bus.SubscribeAll(256),
	}
}

// Init kicks off the first read and the event-wait loop.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.refreshCounts(), waitForEvent(m.eventSub))
}

func waitForEvent(sub <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-sub
		if !ok {
			return nil
		}
		return event
	}
}

// refreshCounts rereads the TaskFile and emits the new tally as a countsMsg.
// A read error (e.g. a mid-write rename) is swallowed: the next event will
// trigger another refresh shortly after.
func (m Model) refreshCounts() tea.Cmd {
	return func() tea.Msg {
		tf, err := m.store.Read()
		if err != nil {
			return nil
		}
		return tallyStatuses(tf)
	}
}

func tallyStatuses(tf *taskfile.TaskFile) countsMsg {
	counts := countsMsg{}
	for _, t := range tf.Tasks {
		counts[t.Status]++
	}
	return counts
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case KeyQuit, KeyCtrlC:
			m.quitting = true
			return m, tea.Quit

		case KeyTab:
			m.focusedPane = (m.focusedPane + 1) % 2
			m.updateFocusStates()

		default:
			switch m.focusedPane {
			case PaneProgress:
				var cmd tea.Cmd
				m.progressPane, cmd = m.progressPane.Update(msg)
				cmds = append(cmds, cmd)
			case PaneLog:
				var cmd tea.Cmd
				m.logPane, cmd = m.logPane.Update(msg)
				cmds = append(cmds, cmd)
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.computeLayout()

	case countsMsg:
		var cmd tea.Cmd
		m.progressPane, cmd = m.progressPane.Update(msg)
		cmds = append(cmds, cmd)

	case events.Event:
		var cmd tea.Cmd
		m.logPane, cmd = m.logPane.Update(msg)
		cmds = append(cmds, cmd)
		cmds = append(cmds, m.refreshCounts(), waitForEvent(m.eventSub))
	}

	return m, tea.Batch(cmds...)
}

// View renders the dashboard.
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}

	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	topHeight := (m.height - 1) * 40 / 100
	bottomHeight := (m.height - 1) - topHeight

	_ = topHeight
	_ = bottomHeight

	top := m.progressPane.View()
	bottom := m.logPane.View()

	main := lipgloss.JoinVertical(lipgloss.Left, top, bottom)
	return lipgloss.JoinVertical(lipgloss.Left, main, HelpView())
}

func (m *Model) computeLayout() {
	availableHeight := m.height - 1
	topHeight := availableHeight * 40 / 100
	bottomHeight := availableHeight - topHeight

	m.progressPane.SetSize(m.width, topHeight)
	m.logPane.SetSize(m.width, bottomHeight)
	m.updateFocusStates()
}

func (m *Model) updateFocusStates() {
	m.progressPane.SetFocused(m.focusedPane == PaneProgress)
	m.logPane.SetFocused(m.focusedPane == PaneLog)
}
