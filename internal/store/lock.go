package store

import (
	"math/rand"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// fileLock is the Go analog of original_source/lib/file_lock.py's
// TaskFileLock: an exclusive, non-blocking advisory lock on a sibling
// ".lock" file, retried with jittered backoff up to a timeout. Unix's
// fcntl/flock split across platforms is stood in for here by
// golang.org/x/sys/unix, the same way the teacher's process.go wraps
// syscall.SysProcAttr for process groups.
type fileLock struct {
	path string
	fh   *os.File
}

func newFileLock(path string) *fileLock {
	return &fileLock{path: path}
}

// acquire blocks (via a sleep-retry loop, never via a blocking flock call)
// until the lock is held or timeout elapses.
func (l *fileLock) acquire(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	retryInterval := 50 * time.Millisecond

	for {
		fh, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
		if err != nil {
			return err
		}

		err = unix.Flock(int(fh.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			l.fh = fh
			return nil
		}
		fh.Close()

		if time.Now().After(deadline) {
			return &LockContended{LockPath: l.path, Timeout: timeout.String()}
		}

		jitter := time.Duration(rand.Int63n(int64(retryInterval)))
		time.Sleep(retryInterval/2 + jitter)
	}
}

// release unlocks and closes the lock file handle. It is always safe to
// call, including on a lock that failed to acquire.
func (l *fileLock) release() {
	if l.fh == nil {
		return
	}
	unix.Flock(int(l.fh.Fd()), unix.LOCK_UN)
	l.fh.Close()
	l.fh = nil
}
