// Package control implements the Signal Handler of SPEC_FULL.md §4.H:
// STOP/PAUSE sentinel-file polling plus OS signal translation, grounded on
// the teacher's cmd/orchestrator/main.go shutdown path and
// original_source/agent_loop.py's signal_handler/check_stop_file.
package control

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aristath/orchestrator/internal/report"
)

// DefaultPauseInterval matches spec.md §4.H's 5-second PAUSE poll.
const DefaultPauseInterval = 5 * time.Second

const (
	stopFileName  = "STOP"
	pauseFileName = "PAUSE"
	alertFileName = "ALERT.txt"
)

// Controller checks the STOP/PAUSE sentinel files that live alongside
// Task.json and raises ALERT.txt when the supervisor needs a human.
type Controller struct {
	Dir           string
	PauseInterval time.Duration
}

// New returns a Controller watching dir for STOP, PAUSE, and ALERT.txt.
func New(dir string) *Controller {
	return &Controller{Dir: dir, PauseInterval: DefaultPauseInterval}
}

// NotifyContext wraps signal.NotifyContext for SIGINT/SIGTERM, giving the
// supervisor loop the same cancellable context shape the teacher's main.go
// threads through bubbletea — here threaded through the blocking loop
// instead.
func NotifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// StopRequested reports whether the STOP sentinel file is present. Per
// spec.md §4.H, a STOP request finishes the current task and then exits —
// callers check this at iteration boundaries, not mid-task.
func (c *Controller) StopRequested() bool {
	return fileExists(filepath.Join(c.Dir, stopFileName))
}

// PauseRequested reports whether the PAUSE sentinel file is present.
func (c *Controller) PauseRequested() bool {
	return fileExists(filepath.Join(c.Dir, pauseFileName))
}

// AwaitResume blocks in PauseInterval increments while PauseRequested
// returns true, returning nil once the PAUSE file disappears. It returns
// ctx.Err() immediately if ctx is canceled while waiting — a signal during
// PAUSE still takes priority over resuming.
func (c *Controller) AwaitResume(ctx context.Context) error {
	for c.PauseRequested() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.PauseInterval):
		}
	}
	return nil
}

// RaiseAlert writes ALERT.txt describing cause and a suggested remediation.
// Shared by §4.H (signal handler), §4.D (lease exhaustion), and §4.C
// (blocked transitions) callers, per DESIGN.md.
func (c *Controller) RaiseAlert(cause, suggestion string, now time.Time) error {
	return report.Alert(filepath.Join(c.Dir, alertFileName), cause, suggestion, now)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
