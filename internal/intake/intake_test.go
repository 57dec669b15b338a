package intake

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aristath/orchestrator/internal/store"
	"github.com/aristath/orchestrator/internal/taskfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDoc = `# REQ_100: Add widgets

## Status
pending

## 项目要求
Ship the widget feature end to end.

## 运行参数
` + "```yaml" + `
max_attempts: 5
verify_command: "exit 0"
` + "```" + `

## Task Seeds
### TASK-A: Build widget model
- goal: implement the Widget type
- acceptance: unit tests pass
- priority: P0
- depends_on: []

### TASK-B: Wire widget API
- goal: expose Widget over the API
- acceptance: integration test passes
- depends_on: [TASK-A]
`

func writeDoc(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestScanInboxSkipsProcessedAndNonMatching(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "REQ_001.md", "# REQ_001: x\n\n## Status\npending\n")
	writeDoc(t, dir, "REQ_002.md", "# REQ_002: y\n\n## Status\nprocessed\n")
	writeDoc(t, dir, "notes.md", "irrelevant")

	got, err := ScanInbox(dir)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Contains(t, got[0], "REQ_001.md")
}

func TestParseDocumentExtractsAllSections(t *testing.T) {
	dir := t.TempDir()
	path := writeDoc(t, dir, "REQ_100.md", sampleDoc)

	doc, err := ParseDocument(path)
	require.NoError(t, err)

	assert.Equal(t, "REQ_100", doc.ReqID)
	assert.Equal(t, "Add widgets", doc.Title)
	assert.Contains(t, doc.ProjectRequirements, "Ship the widget feature")
	assert.Equal(t, 5, doc.ConfigUpdates["max_attempts"])
	require.Len(t, doc.TaskSeeds, 2)
	assert.Equal(t, "TASK-A", doc.TaskSeeds[0].ID)
	assert.Equal(t, "P0", doc.TaskSeeds[0].Priority)
	assert.Equal(t, []string{"TASK-A"}, doc.TaskSeeds[1].DependsOn)
}

func TestValidateDocumentRequiresGoalAndAcceptance(t *testing.T) {
	doc := &Document{
		ReqID: "REQ_1",
		TaskSeeds: []TaskSeed{
			{ID: "T1"},
		},
	}
	errs := ValidateDocument(doc)
	assert.Contains(t, errs, "task_seeds[0] missing goal")
	assert.Contains(t, errs, "task_seeds[0] missing acceptance")
}

func TestValidateDocumentRejectsUnknownPriority(t *testing.T) {
	doc := &Document{
		ReqID: "REQ_1",
		TaskSeeds: []TaskSeed{
			{ID: "T1", Goal: "g", Acceptance: "a", Priority: "P9"},
		},
	}
	errs := ValidateDocument(doc)
	assert.Contains(t, errs, `task_seeds[0]: invalid priority "P9"`)
}

func TestValidateDependenciesCatchesUnresolvedID(t *testing.T) {
	doc := &Document{
		TaskSeeds: []TaskSeed{
			{ID: "T1", DependsOn: []string{"GHOST"}},
		},
	}
	tf := taskfile.New()
	errs := ValidateDependencies(doc, tf)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "GHOST")
}

func TestConvertSeedsToTasksResolvesIDCollision(t *testing.T) {
	seeds := []TaskSeed{{ID: "T1", Title: "first", Goal: "g", Acceptance: "a"}}
	existing := map[string]bool{"T1": true}

	tasks, added := convertSeedsToTasks(seeds, existing, "2026-08-03T00:00:00Z")
	require.Len(t, tasks, 1)
	assert.Equal(t, "T1-1", tasks[0].ID)
	assert.Equal(t, []string{"T1-1"}, added)
	assert.Contains(t, tasks[0].Notes, `collided, renamed`)
}

func TestConvertSeedsToTasksRemapsDependsOnThroughCollision(t *testing.T) {
	seeds := []TaskSeed{
		{ID: "T1", Goal: "g", Acceptance: "a"},
		{ID: "T2", Goal: "g", Acceptance: "a", DependsOn: []string{"T1"}},
	}
	existing := map[string]bool{"T1": true} // only T1 collides

	tasks, _ := convertSeedsToTasks(seeds, existing, "2026-08-03T00:00:00Z")
	require.Len(t, tasks, 2)
	assert.Equal(t, "T1-1", tasks[0].ID)
	assert.Equal(t, []string{"T1-1"}, tasks[1].DependsOn)
}

func TestMergeConfigOnlyTouchesNamedFields(t *testing.T) {
	base := taskfile.DefaultConfig()
	merged := mergeConfig(base, map[string]any{"max_attempts": 7})
	assert.Equal(t, 7, merged.MaxAttempts)
	assert.Equal(t, base.LeaseTTLSeconds, merged.LeaseTTLSeconds)
}

func TestScanForSecretsFindsOpenAIKey(t *testing.T) {
	doc := &Document{ProjectRequirements: "use key sk-abcdefghijklmnopqrstuvwx to call the API"}
	findings := ScanForSecrets(doc)
	require.NotEmpty(t, findings)
	assert.Contains(t, findings[0], "OpenAI API Key")
}

func TestScanForSecretsCleanDocumentHasNoFindings(t *testing.T) {
	doc := &Document{ProjectRequirements: "plain prose with no credentials"}
	assert.Empty(t, ScanForSecrets(doc))
}

func TestSchemaGatePassesValidTaskFile(t *testing.T) {
	tf := taskfile.New()
	tf.Tasks = append(tf.Tasks, taskfile.TaskRecord{ID: "t1", Status: taskfile.StatusPending})
	res := SchemaGate(tf)
	assert.Equal(t, 0, res.ExitCode)
}

func newTestStore(t *testing.T) *store.Store {
	return store.New(filepath.Join(t.TempDir(), "Task.json"))
}

func TestProcessorCommitsValidDocument(t *testing.T) {
	s := newTestStore(t)
	dir := t.TempDir()
	path := writeDoc(t, dir, "REQ_100.md", sampleDoc)

	p := New(s, dir, filepath.Join(dir, "CLAUDE.md"), nil)

	res := p.Process(context.Background(), path)
	require.Equal(t, "completed", res.Status, res.Error)
	assert.ElementsMatch(t, []string{"TASK-A", "TASK-B"}, res.TasksAdded)

	tf, err := s.Read()
	require.NoError(t, err)
	assert.Len(t, tf.Tasks, 2)
	assert.Equal(t, 5, tf.Config.MaxAttempts)

	_, statErr := os.Stat(filepath.Join(dir, "processed", "REQ_100.md"))
	assert.NoError(t, statErr, "document must be moved to processed/")
}

func TestProcessorRejectsDocumentMissingTaskSeeds(t *testing.T) {
	s := newTestStore(t)
	dir := t.TempDir()
	path := writeDoc(t, dir, "REQ_200.md", "# REQ_200: empty\n\n## Status\npending\n")

	p := New(s, dir, filepath.Join(dir, "CLAUDE.md"), nil)
	res := p.Process(context.Background(), path)

	assert.Equal(t, "failed", res.Status)
	assert.True(t, res.NeedsHuman)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "intake: rejected")

	_, err = s.Read()
	assert.True(t, os.IsNotExist(err), "TaskFile must remain untouched (never created)")
}

func TestProcessorRollsBackOnSecretsGateFailure(t *testing.T) {
	s := newTestStore(t)
	dir := t.TempDir()
	doc := `# REQ_300: leaky

## Status
pending

## 项目要求
uses api_key=abcdefghijklmnopqrstuvwx in prose

## Task Seeds
### TASK-X: do it
- goal: ship it
- acceptance: tests pass
`
	path := writeDoc(t, dir, "REQ_300.md", doc)

	p := New(s, dir, filepath.Join(dir, "CLAUDE.md"), nil)
	res := p.Process(context.Background(), path)

	assert.Equal(t, "blocked", res.Status)
	assert.True(t, res.NeedsHuman)

	tf, err := s.Read()
	require.NoError(t, err)
	assert.Empty(t, tf.Tasks, "gate failure must roll back the merge")
}

func TestProcessorRejectsCircularDependency(t *testing.T) {
	s := newTestStore(t)
	dir := t.TempDir()
	doc := `# REQ_400: cycle

## Status
pending

## Task Seeds
### TASK-A: a
- goal: g
- acceptance: a
- depends_on: [TASK-B]

### TASK-B: b
- goal: g
- acceptance: a
- depends_on: [TASK-A]
`
	path := writeDoc(t, dir, "REQ_400.md", doc)

	p := New(s, dir, filepath.Join(dir, "CLAUDE.md"), nil)
	res := p.Process(context.Background(), path)

	assert.Equal(t, "failed", res.Status)
	assert.True(t, res.NeedsHuman)
}
