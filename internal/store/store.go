// Package store implements the Atomic Store of SPEC_FULL.md §4.A: the only
// component allowed to touch Task.json. Every other package reaches the
// TaskFile exclusively through Store.Read / Store.Mutate.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aristath/orchestrator/internal/clock"
	"github.com/aristath/orchestrator/internal/taskfile"
)

// Store guards one TaskFile on disk.
type Store struct {
	path        string
	lockPath    string
	lockTimeout time.Duration
	clock       clock.Clock
}

// Option configures a Store at construction.
type Option func(*Store)

// WithLockTimeout overrides the default 5 second lock-acquisition timeout.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

// WithClock substitutes the clock used to stamp last_modified, for tests.
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// New returns a Store guarding path, with path+".lock" as the sibling lock
// file, matching original_source/lib/file_lock.py's naming convention.
func New(path string, opts ...Option) *Store {
	s := &Store{
		path:        path,
		lockPath:    path + ".lock",
		lockTimeout: 5 * time.Second,
		clock:       clock.System{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Read returns the current committed TaskFile, without acquiring the lock:
// a reader observes either the pre- or post-state of any concurrent Mutate,
// never a torn file, because rename is atomic. A missing file is reported
// verbatim as an *os.PathError; callers that want a fresh empty file should
// check os.IsNotExist.
func (s *Store) Read() (*taskfile.TaskFile, error) {
	return s.readLocked()
}

func (s *Store) readLocked() (*taskfile.TaskFile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	tf, err := taskfile.Decode(data)
	if err != nil {
		return nil, &taskfile.ParseError{Path: s.path, Err: err}
	}
	return tf, nil
}

// MutateFunc transforms the current TaskFile into a new one, plus an opaque
// intent value handed back to Mutate's caller. fn must be pure: it may be
// invoked against the on-disk state exactly once per Mutate call.
type MutateFunc func(tf *taskfile.TaskFile) (*taskfile.TaskFile, any, error)

// Mutate acquires the exclusive lock, reads the current document (or starts
// from taskfile.New() if the file does not yet exist), applies fn, validates
// invariants, and commits via temp-file + fsync + rename. The lock is
// released on every exit path, including a failure.
func (s *Store) Mutate(fn MutateFunc) (any, error) {
	lock := newFileLock(s.lockPath)
	if err := lock.acquire(s.lockTimeout); err != nil {
		return nil, err
	}
	defer lock.release()

	current, err := s.readLocked()
	if err != nil {
		if os.IsNotExist(err) {
			current = taskfile.New()
		} else {
			return nil, err
		}
	}

	next, intent, err := fn(current)
	if err != nil {
		return nil, err
	}

	if err := taskfile.Validate(next); err != nil {
		return nil, err
	}

	next.LastModified = clock.ISO8601(s.clock.Now())
	if err := s.commit(next); err != nil {
		return nil, err
	}

	return intent, nil
}

func (s *Store) commit(tf *taskfile.TaskFile) error {
	data, err := taskfile.Encode(tf)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if dirFh, err := os.Open(dir); err == nil {
		dirFh.Sync()
		dirFh.Close()
	}

	return nil
}

// Path exposes the guarded file's path, for components (Reporter,
// Retention Manager) that need to locate sibling files like runs/.
func (s *Store) Path() string { return s.path }

func (s *Store) String() string {
	return fmt.Sprintf("store(%s)", s.path)
}
