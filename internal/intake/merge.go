package intake

import (
	"fmt"

	"github.com/aristath/orchestrator/internal/taskfile"
)

// uniqueTaskID resolves a collision against existing by appending a
// numeric suffix, mirroring generate_unique_task_id.
func uniqueTaskID(base string, existing map[string]bool) (id, note string) {
	if !existing[base] {
		return base, ""
	}
	for suffix := 1; ; suffix++ {
		candidate := fmt.Sprintf("%s-%d", base, suffix)
		if !existing[candidate] {
			return candidate, fmt.Sprintf("id %q collided, renamed to %q", base, candidate)
		}
	}
}

// remapDependsOn rewrites a seed's depends_on list through idMap, so a
// dependency on a collided (and renamed) sibling seed still resolves.
func remapDependsOn(deps []string, idMap map[string]string) []string {
	if deps == nil {
		return nil
	}
	out := make([]string, len(deps))
	for i, d := range deps {
		if mapped, ok := idMap[d]; ok {
			out[i] = mapped
		} else {
			out[i] = d
		}
	}
	return out
}

// convertSeedsToTasks mirrors IntakeHandler.convert_seeds_to_tasks,
// appending the id-collision note and verification/scope/priority metadata
// into Notes the way the original folds them into its free-text notes
// field.
func convertSeedsToTasks(seeds []TaskSeed, existing map[string]bool, now string) ([]taskfile.TaskRecord, []string) {
	idMap := make(map[string]string, len(seeds))
	for _, seed := range seeds {
		newID, _ := uniqueTaskID(seed.ID, existing)
		idMap[seed.ID] = newID
		existing[newID] = true
	}

	tasks := make([]taskfile.TaskRecord, 0, len(seeds))
	added := make([]string, 0, len(seeds))

	for _, seed := range seeds {
		newID := idMap[seed.ID]
		note := ""
		if newID != seed.ID {
			note = fmt.Sprintf("id %q collided, renamed to %q", seed.ID, newID)
		}

		notes := ""
		if seed.Verification != "" {
			notes += fmt.Sprintf("verification command: %s\n", seed.Verification)
		}
		if seed.Scope != "" {
			notes += fmt.Sprintf("scope: %s\n", seed.Scope)
		}
		if seed.Priority != "" {
			notes += fmt.Sprintf("priority: %s\n", seed.Priority)
		}
		if note != "" {
			notes += note + "\n"
		}

		priority := taskfile.Priority(seed.Priority)
		if priority == "" {
			priority = taskfile.PriorityP1
		}

		tasks = append(tasks, taskfile.TaskRecord{
			ID:          newID,
			Description: descriptionFor(seed),
			Status:      taskfile.StatusPending,
			Priority:    priority,
			DependsOn:   remapDependsOn(seed.DependsOn, idMap),
			History:     []taskfile.HistoryEntry{},
			Notes:       notes,
			LastUpdate:  now,
		})
		added = append(added, newID)
	}

	return tasks, added
}

// mergeConfig overlays updates onto base, field by field, only touching
// keys present in updates — mirroring merge_config's "only update fields
// that appear in the REQ" contract.
func mergeConfig(base taskfile.Config, updates map[string]any) taskfile.Config {
	merged := base
	for key, value := range updates {
		switch key {
		case "lease_ttl_seconds":
			if n, ok := asInt(value); ok {
				merged.LeaseTTLSeconds = n
			}
		case "max_attempts":
			if n, ok := asInt(value); ok {
				merged.MaxAttempts = n
			}
		case "verify_required":
			if b, ok := value.(bool); ok {
				merged.VerifyRequired = b
			}
		case "retention_days":
			if n, ok := asInt(value); ok {
				merged.RetentionDays = n
			}
		case "max_runs_mb":
			if n, ok := asInt(value); ok {
				merged.MaxRunsMB = n
			}
		case "max_failures":
			if n, ok := asInt(value); ok {
				merged.MaxFailures = n
			}
		case "verify_command":
			if s, ok := value.(string); ok {
				merged.VerifyCommand = s
			}
		case "worker_backend":
			if s, ok := value.(string); ok {
				merged.Worker.Backend = s
			}
		case "worker_command":
			if s, ok := value.(string); ok {
				merged.Worker.Command = s
			}
		case "worker_model":
			if s, ok := value.(string); ok {
				merged.Worker.Model = s
			}
		}
	}
	return merged
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
