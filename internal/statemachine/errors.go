package statemachine

import "fmt"

// IllegalTransition is returned for any (status, event) pair not in the
// table of SPEC_FULL.md §4.C.
type IllegalTransition struct {
	TaskID string
	From   string
	Event  string
}

func (e *IllegalTransition) Error() string {
	return fmt.Sprintf("statemachine: illegal transition for task %q: no %s transition from %s", e.TaskID, e.Event, e.From)
}

// RunIDMismatch is the hard-rejection path: a terminal event names a run id
// that does not match the task's current claim. The task's status and claim
// are left unchanged; Apply returns it with one appended rejected history
// entry alongside this error. The caller is responsible for raising a Human Help Packet and archiving
// the rogue worker's output.
type RunIDMismatch struct {
	TaskID   string
	Expected string
	Got      string
}

func (e *RunIDMismatch) Error() string {
	return fmt.Sprintf("statemachine: run id mismatch on task %q: claim has %q, event carries %q", e.TaskID, e.Expected, e.Got)
}
