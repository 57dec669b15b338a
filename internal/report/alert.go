// Package report renders the supervisor's human-facing artifacts: the
// ALERT.txt escalation file (SPEC_FULL.md §4.H, §4.D, §4.C) and the
// status.md dashboard (§4.K).
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Alert atomically (re)writes path (conventionally ALERT.txt) describing why
// the supervisor needs a human. Removal of the file is the operator's
// responsibility — the supervisor only ever overwrites it, never deletes it.
func Alert(path, cause, suggestion string, now time.Time) error {
	body := fmt.Sprintf(
		"ALERT\ntime: %s\ncause: %s\nsuggested action: %s\n\nRemove this file once the condition above has been addressed.\n",
		now.UTC().Format("2006-01-02 15:04:05 UTC"), cause, suggestion,
	)

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".alert-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.WriteString(body); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
