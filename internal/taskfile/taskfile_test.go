package taskfile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	tf := New()
	tf.LastModified = "2026-01-01T00:00:00Z"
	tf.Tasks = append(tf.Tasks, TaskRecord{
		ID:          "t1",
		Description: "do a thing",
		Status:      StatusPending,
		Priority:    PriorityP0,
	})

	data, err := Encode(tf)
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, tf.VersionField, got.VersionField)
	assert.Equal(t, tf.Tasks, got.Tasks)
}

func TestValidateCompletedRequiresVerify(t *testing.T) {
	tf := New()
	tf.Tasks = append(tf.Tasks, TaskRecord{ID: "t1", Status: StatusCompleted})
	err := Validate(tf)
	require.Error(t, err)
	var iv *InvariantViolation
	require.ErrorAs(t, err, &iv)
	assert.Equal(t, "3.1", iv.Invariant)
}

func TestValidateCompletedAllowsSkipWhenVerifyNotRequired(t *testing.T) {
	tf := New()
	tf.Config.VerifyRequired = false
	tf.Tasks = append(tf.Tasks, TaskRecord{ID: "t1", Status: StatusCompleted})
	assert.NoError(t, Validate(tf))
}

func TestValidateRejectsCycle(t *testing.T) {
	tf := New()
	tf.Tasks = append(tf.Tasks,
		TaskRecord{ID: "a", Status: StatusPending, DependsOn: []string{"b"}},
		TaskRecord{ID: "b", Status: StatusPending, DependsOn: []string{"a"}},
	)
	err := Validate(tf)
	require.Error(t, err)
	var iv *InvariantViolation
	require.ErrorAs(t, err, &iv)
	assert.Equal(t, "3.6", iv.Invariant)
}

func TestValidateRejectsUnknownDependency(t *testing.T) {
	tf := New()
	tf.Tasks = append(tf.Tasks, TaskRecord{ID: "a", Status: StatusPending, DependsOn: []string{"ghost"}})
	err := Validate(tf)
	require.Error(t, err)
}

func TestValidateRejectsPendingAtAttemptCap(t *testing.T) {
	tf := New()
	tf.Config.MaxAttempts = 2
	tf.Tasks = append(tf.Tasks, TaskRecord{
		ID:     "a",
		Status: StatusPending,
		History: []HistoryEntry{
			{Attempt: 1, Status: StatusFailed},
			{Attempt: 2, Status: StatusFailed},
		},
	})
	err := Validate(tf)
	require.Error(t, err)
	var iv *InvariantViolation
	require.ErrorAs(t, err, &iv)
	assert.Equal(t, "3.7", iv.Invariant)
}

func TestValidateInProgressRequiresClaim(t *testing.T) {
	tf := New()
	tf.Tasks = append(tf.Tasks, TaskRecord{ID: "a", Status: StatusInProgress})
	err := Validate(tf)
	require.Error(t, err)
}

func TestValidateClaimAttemptMustMatchHistoryLength(t *testing.T) {
	now := time.Now().UTC()
	tf := New()
	tf.Tasks = append(tf.Tasks, TaskRecord{
		ID:     "a",
		Status: StatusInProgress,
		Claim: &Claim{
			ClaimedAt:      now,
			LeaseExpiresAt: now.Add(time.Minute),
			Attempt:        5,
		},
	})
	err := Validate(tf)
	require.Error(t, err)
	var iv *InvariantViolation
	require.ErrorAs(t, err, &iv)
	assert.Equal(t, "3.4", iv.Invariant)
}

func TestPriorityRank(t *testing.T) {
	assert.Less(t, PriorityP0.Rank(), PriorityP1.Rank())
	assert.Less(t, PriorityP1.Rank(), PriorityP2.Rank())
}

func TestCloneIsIndependent(t *testing.T) {
	orig := &TaskRecord{ID: "a", DependsOn: []string{"b"}}
	clone := orig.Clone()
	clone.DependsOn[0] = "c"
	assert.Equal(t, "b", orig.DependsOn[0])
}
