package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/orchestrator/internal/taskfile"
)

// countsMsg carries a freshly computed status tally from the root model,
// which rereads the TaskFile after every bus event.
type countsMsg map[taskfile.Status]int

// ProgressPaneModel renders the task-status tally and a stacked progress
// bar over taskfile.Status counts.
type ProgressPaneModel struct {
	counts  countsMsg
	width   int
	height  int
	focused bool
}

// NewProgressPaneModel creates an empty progress pane.
func NewProgressPaneModel() ProgressPaneModel {
	return ProgressPaneModel{counts: countsMsg{}}
}

// Update handles messages for the progress pane.
func (m ProgressPaneModel) Update(msg tea.Msg) (ProgressPaneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case countsMsg:
		m.counts = msg
	}

	return m, nil
}

// View renders the progress pane.
func (m ProgressPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder

	title := StyleTitle.Render("Task Status")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n\n")

	total := 0
	for _, n := range m.counts {
		total += n
	}

	b.WriteString(fmt.Sprintf("Total:      %d\n", total))
	b.WriteString(fmt.Sprintf("Pending:    %s\n", StyleStatusPending.Render(fmt.Sprintf("%d", m.counts[taskfile.StatusPending]))))
	b.WriteString(fmt.Sprintf("In progress: %s\n", StyleStatusRunning.Render(fmt.Sprintf("%d", m.counts[taskfile.StatusInProgress]))))
	b.WriteString(fmt.Sprintf("Completed:  %s\n", StyleStatusComplete.Render(fmt.Sprintf("%d", m.counts[taskfile.StatusCompleted]))))
	b.WriteString(fmt.Sprintf("Failed:     %s\n", StyleStatusFailed.Render(fmt.Sprintf("%d", m.counts[taskfile.StatusFailed]))))
	b.WriteString(fmt.Sprintf("Blocked:    %s\n", StyleStatusBlocked.Render(fmt.Sprintf("%d", m.counts[taskfile.StatusBlocked]))))
	b.WriteString(fmt.Sprintf("Abandoned:  %s\n", StyleStatusAbandoned.Render(fmt.Sprintf("%d", m.counts[taskfile.StatusAbandoned]))))

	b.WriteString("\n")

	if total > 0 {
		barWidth := min(m.width-4, 40)
		completed := m.counts[taskfile.StatusCompleted]
		failed := m.counts[taskfile.StatusFailed] + m.counts[taskfile.StatusBlocked] + m.counts[taskfile.StatusAbandoned]
		running := m.counts[taskfile.StatusInProgress]

		completedWidth := (completed * barWidth) / total
		failedWidth := (failed * barWidth) / total
		runningWidth := (running * barWidth) / total
		pendingWidth := barWidth - completedWidth - failedWidth - runningWidth

		bar := StyleStatusComplete.Render(strings.Repeat("=", max(0, completedWidth)))
		bar += StyleStatusFailed.Render(strings.Repeat("!", max(0, failedWidth)))
		bar += StyleStatusRunning.Render(strings.Repeat("-", max(0, runningWidth)))
		bar += StyleStatusPending.Render(strings.Repeat(".", max(0, pendingWidth)))

		b.WriteString(fmt.Sprintf("[%s]  %d/%d\n", bar, completed, total))
	}

	content := b.String()

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}

	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

// SetSize updates the pane dimensions.
func (m *ProgressPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused updates the focus state.
func (m *ProgressPaneModel) SetFocused(focused bool) {
	m.focused = focused
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
