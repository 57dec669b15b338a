package progresslog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTime() time.Time {
	return time.Date(2026, 8, 3, 12, 0, 0, 0, time.UTC)
}

func readLog(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestLogClaimAppendsBlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.txt")
	w := New(path)

	require.NoError(t, w.LogClaim(testTime(), "task-1", "run-abc", "do the thing", 1, 3))

	content := readLog(t, path)
	assert.Contains(t, content, "CLAIM: task-1")
	assert.Contains(t, content, "run id: run-abc")
	assert.Contains(t, content, "attempt: 1/3")
	assert.Contains(t, content, "pending -> in_progress")
}

func TestAppendsAreOrderedAndCumulative(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.txt")
	w := New(path)

	require.NoError(t, w.LogClaim(testTime(), "task-1", "run-abc", "do the thing", 1, 3))
	require.NoError(t, w.LogComplete(testTime(), "task-1", "run-abc", "done", "verify.sh", 0, "ok", "deadbeef", 2*time.Second))

	content := readLog(t, path)
	claimIdx := indexOf(content, "CLAIM: task-1")
	completeIdx := indexOf(content, "COMPLETE: task-1")
	require.GreaterOrEqual(t, claimIdx, 0)
	require.GreaterOrEqual(t, completeIdx, 0)
	assert.Less(t, claimIdx, completeIdx, "later events must append after earlier ones, never rewrite")
}

func TestLogBlockIncludesHumanHelpPacket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.txt")
	w := New(path)

	require.NoError(t, w.LogBlock(testTime(), "task-9", "run-xyz", "missing credentials", 90*time.Second))

	content := readLog(t, path)
	assert.Contains(t, content, "BLOCK: task-9")
	assert.Contains(t, content, "needs human: yes")
	assert.Contains(t, content, "Human Help Packet")
	assert.Contains(t, content, "block reason: missing credentials")
	assert.Contains(t, content, "suggested actions")
	assert.Contains(t, content, "End Packet")
}

func TestLogFailMarksNeedsHumanWhenAttemptsExhausted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.txt")
	w := New(path)

	require.NoError(t, w.LogFail(testTime(), "task-2", "run-def", "boom", 3, 3, time.Second, false))

	content := readLog(t, path)
	assert.Contains(t, content, "needs human: yes")
	assert.Contains(t, content, "requires human intervention")
}

func TestLogFailAllowsRetryWhenAttemptsRemain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.txt")
	w := New(path)

	require.NoError(t, w.LogFail(testTime(), "task-2", "run-def", "boom", 1, 3, time.Second, true))

	content := readLog(t, path)
	assert.Contains(t, content, "needs human: no")
	assert.Contains(t, content, "automatic retry")
}

func TestLogRunIDMismatchRecordsBothIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.txt")
	w := New(path)

	require.NoError(t, w.LogRunIDMismatch(testTime(), "task-3", "run-expected", "run-actual"))

	content := readLog(t, path)
	assert.Contains(t, content, "expected run id: run-expected")
	assert.Contains(t, content, "actual run id: run-actual")
	assert.Contains(t, content, "task state unchanged")
}

func TestLogVerifyFailRecordsDowngrade(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.txt")
	w := New(path)

	require.NoError(t, w.LogVerifyFail(testTime(), "task-4", "run-ghi", "verify.sh", 1, "assertion failed"))

	content := readLog(t, path)
	assert.Contains(t, content, "VERIFY_FAIL: task-4")
	assert.Contains(t, content, "exit code: 1")
	assert.Contains(t, content, "downgraded to failed")
}

func TestLogStartupRendersConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.txt")
	w := New(path)

	require.NoError(t, w.LogStartup(testTime(), "pid-123-456", StartupConfig{
		LeaseTTLSeconds: 600,
		MaxAttempts:     3,
		VerifyRequired:  true,
		TimeoutSeconds:  1800,
	}))

	content := readLog(t, path)
	assert.Contains(t, content, "supervisor id: pid-123-456")
	assert.Contains(t, content, "lease_ttl_seconds: 600")
	assert.Contains(t, content, "verify_required: true")
}

func TestLogPauseAndResume(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.txt")
	w := New(path)

	require.NoError(t, w.LogPause(testTime(), "PAUSE file present"))
	require.NoError(t, w.LogResume(testTime()))

	content := readLog(t, path)
	assert.Contains(t, content, "PAUSE")
	assert.Contains(t, content, "RESUME")
	assert.Contains(t, content, "PAUSE file removed")
}

func TestLogAbandonAndReclaim(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.txt")
	w := New(path)

	require.NoError(t, w.LogAbandon(testTime(), "task-5", "run-old", "lease expired"))
	require.NoError(t, w.LogReclaim(testTime(), "task-5", "run-old", "pending"))

	content := readLog(t, path)
	assert.Contains(t, content, "ABANDON: task-5")
	assert.Contains(t, content, "RECLAIM: task-5")
	assert.Contains(t, content, "new state: pending")
}

func TestLogStopRecordsReason(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.txt")
	w := New(path)

	require.NoError(t, w.LogStop(testTime(), "STOP file detected"))

	content := readLog(t, path)
	assert.Contains(t, content, "STOP")
	assert.Contains(t, content, "STOP file detected")
}

func TestLogIntakeLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.txt")
	w := New(path)

	require.NoError(t, w.LogIntakeStart(testTime(), "run-1", "REQ_001", "inbox/REQ_001.md"))
	require.NoError(t, w.LogIntakeComplete(testTime(), "run-1", "REQ_001", []string{"TASK-001", "TASK-002"}, 0, "abc1234"))

	content := readLog(t, path)
	assert.Contains(t, content, "INTAKE_START: REQ_001")
	assert.Contains(t, content, "INTAKE_COMPLETE: REQ_001")
	assert.Contains(t, content, "TASK-001, TASK-002")
	assert.Contains(t, content, "git commit: abc1234")
}

func TestLogIntakeFailMarksNeedsHuman(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.txt")
	w := New(path)

	require.NoError(t, w.LogIntakeFail(testTime(), "run-2", "REQ_002", "missing task_seeds"))

	content := readLog(t, path)
	assert.Contains(t, content, "INTAKE_FAIL: REQ_002")
	assert.Contains(t, content, "needs human: yes")
	assert.Contains(t, content, "TaskFile left untouched")
}

func TestWriterCreatesFileIfMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "progress.txt")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	w := New(path)

	require.NoError(t, w.LogStartup(testTime(), "pid-1-1", StartupConfig{}))

	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
