package learning

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/remedyd/internal/record"
)

func openStore(t *testing.T, path string) *Store {
	t.Helper()
	store, err := Open(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func rec(issue record.IssueType, fix record.FixType, success bool, sideEffects int) record.LearningRecord {
	return record.LearningRecord{
		CorrelationID:         record.NewCorrelationID(),
		IssueType:             issue,
		FixType:               fix,
		Success:               success,
		TimeToFix:             30 * time.Second,
		SideEffectsIntroduced: sideEffects,
	}
}

func TestStore_AppendAndAggregate(t *testing.T) {
	store := openStore(t, filepath.Join(t.TempDir(), "learning.jsonl"))
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, rec(record.IssueMissingDependency, record.FixRestoreReference, true, 0)))
	require.NoError(t, store.Append(ctx, rec(record.IssueMissingDependency, record.FixRestoreReference, true, 0)))
	require.NoError(t, store.Append(ctx, rec(record.IssueMissingDependency, record.FixRestoreReference, false, 2)))

	agg, ok := store.Aggregate(record.IssueMissingDependency, record.FixRestoreReference)
	require.True(t, ok)
	assert.Equal(t, 3, agg.Attempts)
	assert.Equal(t, 2, agg.Successes)
	assert.InDelta(t, 2.0/3.0, agg.SuccessRate(), 1e-9)
	assert.Equal(t, 30*time.Second, agg.MeanTimeToFix())
	assert.InDelta(t, 2.0/3.0, agg.SideEffectRate(), 1e-9)
}

func TestStore_ReplayOnOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "learning.jsonl")
	ctx := context.Background()

	store := openStore(t, path)
	require.NoError(t, store.Append(ctx, rec(record.IssueBrokenReference, record.FixRestoreReference, true, 0)))
	require.NoError(t, store.Close())

	reopened := openStore(t, path)
	agg, ok := reopened.Aggregate(record.IssueBrokenReference, record.FixRestoreReference)
	require.True(t, ok)
	assert.Equal(t, 1, agg.Attempts)
	assert.Equal(t, 1, agg.Successes)
}

func TestStore_CorruptLineSkipped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "learning.jsonl")
	content := `{"issue_type":"broken_reference","fix_type":"restore_reference","success":true,"time_to_fix":1000000,"side_effects_introduced":0}
{not json at all
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	store := openStore(t, path)
	agg, ok := store.Aggregate(record.IssueBrokenReference, record.FixRestoreReference)
	require.True(t, ok)
	assert.Equal(t, 1, agg.Attempts)
}

func TestAdjustment_Neutral(t *testing.T) {
	var agg Aggregate
	assert.Equal(t, 1.0, agg.Adjustment())
}

func TestAdjustment_SuccessLowersFailureRaises(t *testing.T) {
	good := Aggregate{Attempts: 4, Successes: 4}
	bad := Aggregate{Attempts: 4, Successes: 0, TotalSideEffects: 4}

	assert.Less(t, good.Adjustment(), 1.0)
	assert.Greater(t, bad.Adjustment(), 1.0)
	assert.GreaterOrEqual(t, good.Adjustment(), adjustmentMin)
	assert.LessOrEqual(t, bad.Adjustment(), adjustmentMax)
}

func TestAdjustment_SideEffectsRaise(t *testing.T) {
	clean := Aggregate{Attempts: 2, Successes: 1}
	messy := Aggregate{Attempts: 2, Successes: 1, TotalSideEffects: 4}
	assert.Greater(t, messy.Adjustment(), clean.Adjustment())
}

func TestStore_AppendOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "learning.jsonl")
	ctx := context.Background()

	store := openStore(t, path)
	require.NoError(t, store.Append(ctx, rec(record.IssueRuntimeError, record.FixCodePatch, false, 1)))
	require.NoError(t, store.Append(ctx, rec(record.IssueRuntimeError, record.FixCodePatch, true, 0)))
	require.NoError(t, store.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	// Two lines, both retained: aggregation never overwrites.
	lines := 0
	for _, b := range data {
		if b == '\n' {
			lines++
		}
	}
	assert.Equal(t, 2, lines)
}
