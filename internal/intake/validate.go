package intake

import (
	"fmt"

	"github.com/aristath/orchestrator/internal/taskfile"
)

var validPriorities = map[string]bool{"P0": true, "P1": true, "P2": true}

// ValidateDocument mirrors IntakeHandler.validate_req, extended with
// spec.md §4.I step 2's extra checks: priority membership and id
// uniqueness within the document. A dependency resolving against the
// existing TaskFile (rather than the document) is validated separately, in
// ValidateDependencies, because it needs the current tasks to check against.
func ValidateDocument(doc *Document) []string {
	var errs []string

	if doc.ReqID == "" {
		errs = append(errs, "missing req_id")
	}

	if len(doc.TaskSeeds) == 0 {
		errs = append(errs, "missing task_seeds")
		return errs
	}

	seenIDs := map[string]bool{}
	for i, seed := range doc.TaskSeeds {
		if seed.ID == "" {
			errs = append(errs, fmt.Sprintf("task_seeds[%d] missing id", i))
		} else if seenIDs[seed.ID] {
			errs = append(errs, fmt.Sprintf("task_seeds[%d]: duplicate id %q within document", i, seed.ID))
		}
		seenIDs[seed.ID] = true

		if seed.Goal == "" {
			errs = append(errs, fmt.Sprintf("task_seeds[%d] missing goal", i))
		}
		if seed.Acceptance == "" {
			errs = append(errs, fmt.Sprintf("task_seeds[%d] missing acceptance", i))
		}
		if seed.Priority != "" && !validPriorities[seed.Priority] {
			errs = append(errs, fmt.Sprintf("task_seeds[%d]: invalid priority %q", i, seed.Priority))
		}
	}

	return errs
}

// ValidateDependencies checks that every seeded depends_on id resolves to
// either another seed in this document or a task already in tf — before id
// collisions are resolved, since depends_on references the author's
// original ids.
func ValidateDependencies(doc *Document, tf *taskfile.TaskFile) []string {
	known := map[string]bool{}
	for _, seed := range doc.TaskSeeds {
		known[seed.ID] = true
	}
	for _, t := range tf.Tasks {
		known[t.ID] = true
	}

	var errs []string
	for _, seed := range doc.TaskSeeds {
		for _, dep := range seed.DependsOn {
			if !known[dep] {
				errs = append(errs, fmt.Sprintf("task %q depends on unresolved id %q", seed.ID, dep))
			}
		}
	}
	return errs
}
