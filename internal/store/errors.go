package store

import "fmt"

// LockContended is returned when the exclusive advisory lock could not be
// acquired within the configured timeout. Callers should retry with bounded
// backoff and, on sustained contention, exit (§7).
type LockContended struct {
	LockPath string
	Timeout  string
}

func (e *LockContended) Error() string {
	return fmt.Sprintf("store: could not acquire lock %s within %s", e.LockPath, e.Timeout)
}
