package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/aristath/orchestrator/internal/events"
)

// LogPaneModel tails bus events as a scrollable, read-only log. Unlike the
// teacher's per-agent output panes, there is exactly one stream here: the
// Supervisor is a single scheduling loop, not a DAG of concurrently running
// agent processes.
type LogPaneModel struct {
	lines    []string
	viewport viewport.Model
	width    int
	height   int
	focused  bool
}

// NewLogPaneModel creates an empty log pane.
func NewLogPaneModel() LogPaneModel {
	return LogPaneModel{viewport: viewport.New(0, 0)}
}

// Update handles messages for the log pane.
func (m LogPaneModel) Update(msg tea.Msg) (LogPaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeViewport()

	case tea.KeyMsg:
		if !m.focused {
			break
		}
		m.viewport, cmd = m.viewport.Update(msg)

	case events.Event:
		m.lines = append(m.lines, formatEvent(msg))
		m.viewport.SetContent(strings.Join(m.lines, "\n"))
		m.viewport.GotoBottom()
	}

	return m, cmd
}

// View renders the log pane.
func (m LogPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder
	title := StyleTitle.Render("Activity")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(m.viewport.View())

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}

	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(b.String())
}

// SetSize updates the pane dimensions.
func (m *LogPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.resizeViewport()
}

// SetFocused updates the focus state.
func (m *LogPaneModel) SetFocused(focused bool) {
	m.focused = focused
}

func (m *LogPaneModel) resizeViewport() {
	h := m.height - 3
	if h < 3 {
		h = 3
	}
	w := m.width - 4
	if w < 10 {
		w = 10
	}
	m.viewport.Width = w
	m.viewport.Height = h
}

// formatEvent renders a single bus event as one log line.
func formatEvent(e events.Event) string {
	ts := ""
	switch ev := e.(type) {
	case events.ClaimedEvent:
		ts = ev.Timestamp.Format("15:04:05")
		return fmt.Sprintf("%s %s %s claimed (run %s, attempt %d)", ts, StyleStatusRunning.Render("●"), ev.ID, ev.RunID, ev.Attempt)
	case events.CompletedEvent:
		ts = ev.Timestamp.Format("15:04:05")
		return fmt.Sprintf("%s %s %s completed in %s", ts, StyleStatusComplete.Render("✓"), ev.ID, ev.Duration.Round(1e9))
	case events.FailedEvent:
		ts = ev.Timestamp.Format("15:04:05")
		return fmt.Sprintf("%s %s %s failed: %s", ts, StyleStatusFailed.Render("✗"), ev.ID, ev.Error)
	case events.BlockedEvent:
		ts = ev.Timestamp.Format("15:04:05")
		return fmt.Sprintf("%s %s %s blocked: %s", ts, StyleStatusBlocked.Render("■"), ev.ID, ev.Reason)
	case events.AbandonedEvent:
		ts = ev.Timestamp.Format("15:04:05")
		return fmt.Sprintf("%s %s %s abandoned (run %s)", ts, StyleStatusAbandoned.Render("○"), ev.ID, ev.RunID)
	case events.ReclaimedEvent:
		ts = ev.Timestamp.Format("15:04:05")
		return fmt.Sprintf("%s %s %s reclaimed (was run %s)", ts, StyleStatusPending.Render("↺"), ev.ID, ev.OldRunID)
	case events.ScheduleEvent:
		ts = ev.Timestamp.Format("15:04:05")
		return fmt.Sprintf("%s %s %s", ts, StyleTitle.Render("schedule"), ev.Kind)
	case events.IntakeEvent:
		ts = ev.Timestamp.Format("15:04:05")
		return fmt.Sprintf("%s intake %s: %s (%d tasks)", ts, ev.ReqID, ev.Status, len(ev.TasksAdded))
	case events.RetentionEvent:
		ts = ev.Timestamp.Format("15:04:05")
		return fmt.Sprintf("%s retention swept %d archives, %d bytes freed", ts, len(ev.Deleted), ev.BytesFreed)
	default:
		return fmt.Sprintf("%T", e)
	}
}
