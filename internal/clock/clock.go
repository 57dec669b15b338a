// Package clock supplies the supervisor's sole notion of time and identity:
// monotonic wall-clock timestamps and the run/supervisor id formats of
// SPEC_FULL.md §4.B. Every timestamp committed to the TaskFile is produced
// here, at commit time, never at the start of a mutation (§4.A).
package clock

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
)

// Clock is the seam tests substitute to control "now".
type Clock interface {
	Now() time.Time
	NewRunID() string
}

// System is the real clock, backed by time.Now and a random UUID per run id.
type System struct{}

// Now returns the current instant in UTC.
func (System) Now() time.Time {
	return time.Now().UTC()
}

// NewRunID returns run-<YYYYMMDD-HHMMSS>-<6 hex>, the hex taken from a fresh
// UUIDv4 so collisions within the same second are negligible.
func (s System) NewRunID() string {
	return NewRunID(s.Now())
}

// NewRunID formats a run id for a given instant; split out so callers that
// already have "now" (e.g. the Lease Manager claiming a task) don't need a
// second clock read.
func NewRunID(now time.Time) string {
	id := uuid.New()
	hex := fmt.Sprintf("%x", id[:3])
	return fmt.Sprintf("run-%s-%s", now.Format("20060102-150405"), hex)
}

// ISO8601 renders t the way every timestamp field in the TaskFile and
// progress log is written.
func ISO8601(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

var processStart = time.Now().UTC()

// SupervisorID returns pid-<pid>-<unix-start-epoch>, unique enough to tell
// two concurrently-running supervisor processes apart in a claim or log
// entry (§4.B).
func SupervisorID() string {
	return fmt.Sprintf("pid-%d-%d", os.Getpid(), processStart.Unix())
}
