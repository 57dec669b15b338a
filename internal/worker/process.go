package worker

import (
	"context"
	"fmt"
	"os/exec"
	"syscall"
)

// newCommand creates an exec.Cmd with process-group isolation, exactly as
// the teacher's backend/process.go does: Setpgid puts the subprocess (and
// anything it forks) in its own process group so a timeout or shutdown
// kill can take the whole tree down in one signal. Cancel is neutralized:
// exec.CommandContext's default only kills the leader process on ctx
// cancellation, which would leave the rest of the group behind. Driver
// handles ctx.Done() itself via terminateProcessGroup instead.
func newCommand(ctx context.Context, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error { return nil }
	return cmd
}

// terminateProcessGroup sends sig to the whole process group. Used for the
// SIGTERM-then-SIGKILL timeout sequence and for ctx-cancellation shutdown,
// both in §4.E.
func terminateProcessGroup(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd.Process == nil {
		return fmt.Errorf("worker: process not started")
	}
	return syscall.Kill(-cmd.Process.Pid, sig)
}
