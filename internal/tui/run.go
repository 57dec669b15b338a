package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/aristath/orchestrator/internal/events"
	"github.com/aristath/orchestrator/internal/store"
)

// Run starts the dashboard in the current terminal and blocks until the
// user quits. bus should be the same Bus the running Supervisor publishes
// on; s should point at the same Task.json the Supervisor is driving.
func Run(bus *events.Bus, s *store.Store) error {
	p := tea.NewProgram(New(bus, s))
	_, err := p.Run()
	return err
}
