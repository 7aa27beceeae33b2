package approval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/remedyd/internal/record"
)

func decision(id string) record.Decision {
	return record.Decision{
		DecisionID:    id,
		Tier:          record.TierRequiresApproval,
		ApprovalState: record.ApprovalPending,
	}
}

func TestSubmitPollResolve(t *testing.T) {
	svc := NewService(time.Minute, nil)
	ctx := context.Background()

	svc.Submit(ctx, decision("d1"))

	state, err := svc.Poll(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, record.ApprovalPending, state)

	require.NoError(t, svc.Resolve(ctx, "d1", true))
	state, err = svc.Poll(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, record.ApprovalApproved, state)
}

func TestResolve_Reject(t *testing.T) {
	svc := NewService(time.Minute, nil)
	ctx := context.Background()

	svc.Submit(ctx, decision("d1"))
	require.NoError(t, svc.Resolve(ctx, "d1", false))

	state, err := svc.Poll(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, record.ApprovalRejected, state)
}

func TestPoll_TimeoutDefers(t *testing.T) {
	svc := NewService(time.Minute, nil)
	ctx := context.Background()

	base := time.Now()
	svc.now = func() time.Time { return base }
	svc.Submit(ctx, decision("d1"))

	// Jump past the deadline.
	svc.now = func() time.Time { return base.Add(2 * time.Minute) }

	state, err := svc.Poll(ctx, "d1")
	assert.Equal(t, record.ApprovalDeferred, state)
	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, "d1", timeoutErr.DecisionID)

	// A deferred decision cannot be resolved without re-submission.
	require.Error(t, svc.Resolve(ctx, "d1", true))

	// Re-submission restarts the window.
	svc.Submit(ctx, decision("d1"))
	state, err = svc.Poll(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, record.ApprovalPending, state)
}

func TestPoll_Unknown(t *testing.T) {
	svc := NewService(time.Minute, nil)
	_, err := svc.Poll(context.Background(), "ghost")
	require.ErrorIs(t, err, ErrUnknownDecision)
}

func TestWaiting_OrderedBySubmission(t *testing.T) {
	svc := NewService(time.Minute, nil)
	ctx := context.Background()

	base := time.Now()
	svc.now = func() time.Time { return base }
	svc.Submit(ctx, decision("first"))
	svc.now = func() time.Time { return base.Add(time.Second) }
	svc.Submit(ctx, decision("second"))

	waiting := svc.Waiting()
	require.Len(t, waiting, 2)
	assert.Equal(t, "first", waiting[0].DecisionID)
	assert.Equal(t, "second", waiting[1].DecisionID)

	require.NoError(t, svc.Resolve(ctx, "first", true))
	waiting = svc.Waiting()
	require.Len(t, waiting, 1)
	assert.Equal(t, "second", waiting[0].DecisionID)
}

func TestRemove(t *testing.T) {
	svc := NewService(time.Minute, nil)
	ctx := context.Background()

	svc.Submit(ctx, decision("d1"))
	svc.Remove("d1")
	_, err := svc.Poll(ctx, "d1")
	require.ErrorIs(t, err, ErrUnknownDecision)
}
