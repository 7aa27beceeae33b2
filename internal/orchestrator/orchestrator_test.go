package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/remedyd/internal/approval"
	"github.com/fyrsmithlabs/remedyd/internal/collector"
	"github.com/fyrsmithlabs/remedyd/internal/config"
	"github.com/fyrsmithlabs/remedyd/internal/decision"
	"github.com/fyrsmithlabs/remedyd/internal/executor"
	"github.com/fyrsmithlabs/remedyd/internal/record"
)

type stubGatherer struct {
	mu    sync.Mutex
	calls int
	errs  []*collector.CollectionError
}

func (s *stubGatherer) Gather(ctx context.Context, scope string) ([]record.ObservationRecord, []*collector.CollectionError, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return nil, s.errs, ctx.Err()
}

// stubAnalyzer returns one batch of findings per iteration, then nothing.
type stubAnalyzer struct {
	mu      sync.Mutex
	batches [][]record.Finding
}

func (s *stubAnalyzer) Analyze(ctx context.Context, records []record.ObservationRecord) ([]record.Finding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.batches) == 0 {
		return nil, nil
	}
	batch := s.batches[0]
	s.batches = s.batches[1:]
	return batch, nil
}

// recordingDecider turns every finding into one ready decision and records
// the findings it was given per call.
type recordingDecider struct {
	mu     sync.Mutex
	seen   [][]record.Finding
	tier   record.Tier
	defer1 bool // defer the second finding of the first call
}

func (s *recordingDecider) Decide(ctx context.Context, findings []record.Finding) decision.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, findings)
	var result decision.Result
	for i, f := range findings {
		if s.defer1 && len(s.seen) == 1 && i == 1 {
			result.Deferred = append(result.Deferred, decision.Conflict{
				Finding: f,
				Target:  "shared.ini",
				Reason:  "scope overlap",
			})
			continue
		}
		tier := s.tier
		if tier == "" {
			tier = record.TierAutoApply
		}
		approvalState := record.ApprovalApproved
		if tier == record.TierRequiresApproval {
			approvalState = record.ApprovalPending
		}
		result.Ready = append(result.Ready, record.Decision{
			DecisionID:    "dec-" + f.FindingID,
			CorrelationID: f.CorrelationID,
			FindingID:     f.FindingID,
			Tier:          tier,
			ActionSpec:    record.ActionSpec{Target: "cfg/" + f.FindingID, Operation: "write"},
			RiskScore:     0.1,
			RollbackPlan:  "restore from backup_ref",
			ApprovalState: approvalState,
			State:         record.StatePending,
			IssueType:     f.IssueType,
		})
	}
	return result
}

// stubImplementer seals everything with a fixed outcome.
type stubImplementer struct {
	mu       sync.Mutex
	outcome  record.Outcome
	batches  [][]record.Decision
	rollback bool
}

func (s *stubImplementer) ImplementBatch(ctx context.Context, decisions []record.Decision) ([]record.ImplementationRecord, []error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, decisions)
	recs := make([]record.ImplementationRecord, len(decisions))
	errs := make([]error, len(decisions))
	for i, d := range decisions {
		outcome := s.outcome
		if outcome == "" {
			outcome = record.OutcomeCommitted
		}
		recs[i] = record.ImplementationRecord{
			DecisionID:       d.DecisionID,
			CorrelationID:    d.CorrelationID,
			Outcome:          outcome,
			ValidationResult: record.ValidationPassed,
		}
		if s.rollback {
			recs[i].Outcome = record.OutcomeRolledBack
			recs[i].ValidationResult = record.ValidationFailed
			errs[i] = &executor.ImplementationFailure{DecisionID: d.DecisionID, Stage: "validate"}
		}
	}
	return recs, errs
}

func finding(id string) record.Finding {
	return record.Finding{
		FindingID:     id,
		CorrelationID: record.NewCorrelationID(),
		IssueType:     record.IssueMissingDependency,
		Severity:      record.SeverityCritical,
		AffectedScope: []string{"cfg/" + id},
		RootCauseText: "missing dependency",
		Evidence:      []string{"obs-1"},
		Confidence:    0.95,
	}
}

func loopConfig(maxIter int) config.OrchestratorConfig {
	return config.OrchestratorConfig{
		MaxIterations:   maxIter,
		IterationBudget: config.Duration(5 * time.Second),
		ApprovalTimeout: config.Duration(time.Minute),
		Concurrency:     2,
	}
}

func newTestOrchestrator(cfg config.OrchestratorConfig, a *stubAnalyzer, d *recordingDecider, impl *stubImplementer, approvals Approvals) (*Orchestrator, *stubGatherer) {
	g := &stubGatherer{}
	if approvals == nil {
		approvals = approval.NewService(time.Minute, nil)
	}
	return New(cfg, "", g, a, d, approvals, impl, nil, nil, nil), g
}

func TestRun_EmptyCycleTerminates(t *testing.T) {
	analyzer := &stubAnalyzer{}
	decider := &recordingDecider{}
	impl := &stubImplementer{}
	o, g := newTestOrchestrator(loopConfig(10), analyzer, decider, impl, nil)

	require.NoError(t, o.Run(context.Background()))

	assert.Equal(t, 1, g.calls)
	require.Len(t, decider.seen, 1)
	assert.Empty(t, decider.seen[0])
	assert.Empty(t, impl.batches)
}

func TestRun_CommitsAndStops(t *testing.T) {
	analyzer := &stubAnalyzer{batches: [][]record.Finding{{finding("f1")}}}
	decider := &recordingDecider{}
	impl := &stubImplementer{}
	o, _ := newTestOrchestrator(loopConfig(10), analyzer, decider, impl, nil)

	require.NoError(t, o.Run(context.Background()))

	require.Len(t, impl.batches, 1)
	require.Len(t, impl.batches[0], 1)
	assert.Equal(t, "dec-f1", impl.batches[0][0].DecisionID)

	statuses := o.Decisions()
	require.Len(t, statuses, 1)
	assert.Equal(t, record.OutcomeCommitted, statuses[0].Outcome)
	assert.Equal(t, record.StateClosed, statuses[0].Decision.State)
}

func TestRun_IterationCapBoundsRollbackLoop(t *testing.T) {
	// Every implementation rolls back and re-queues its finding; only the
	// cap ends the run.
	analyzer := &stubAnalyzer{batches: [][]record.Finding{{finding("f1")}}}
	decider := &recordingDecider{}
	impl := &stubImplementer{rollback: true}
	o, g := newTestOrchestrator(loopConfig(3), analyzer, decider, impl, nil)

	require.NoError(t, o.Run(context.Background()))

	assert.Equal(t, 3, g.calls)
	assert.Len(t, impl.batches, 3)
}

func TestRun_DeferredConflictCarriesFindingID(t *testing.T) {
	f1, f2 := finding("f1"), finding("f2")
	analyzer := &stubAnalyzer{batches: [][]record.Finding{{f1, f2}}}
	decider := &recordingDecider{defer1: true}
	impl := &stubImplementer{}
	o, _ := newTestOrchestrator(loopConfig(10), analyzer, decider, impl, nil)

	require.NoError(t, o.Run(context.Background()))

	// Second iteration sees only the deferred finding, id unchanged.
	require.Len(t, decider.seen, 2)
	require.Len(t, decider.seen[1], 1)
	assert.Equal(t, "f2", decider.seen[1][0].FindingID)
	assert.Equal(t, f2.Confidence, decider.seen[1][0].Confidence)
}

func TestRun_RolledBackFindingRequeuedUnchanged(t *testing.T) {
	f1 := finding("f1")
	analyzer := &stubAnalyzer{batches: [][]record.Finding{{f1}}}
	decider := &recordingDecider{}
	impl := &stubImplementer{rollback: true}
	o, _ := newTestOrchestrator(loopConfig(2), analyzer, decider, impl, nil)

	require.NoError(t, o.Run(context.Background()))

	require.Len(t, decider.seen, 2)
	require.Len(t, decider.seen[1], 1)
	assert.Equal(t, "f1", decider.seen[1][0].FindingID)
	assert.Equal(t, f1.Confidence, decider.seen[1][0].Confidence)

	statuses := o.Decisions()
	require.NotEmpty(t, statuses)
	assert.Equal(t, record.OutcomeRolledBack, statuses[0].Outcome)
}

func TestRun_ApprovalFlow(t *testing.T) {
	svc := approval.NewService(time.Minute, nil)
	analyzer := &stubAnalyzer{batches: [][]record.Finding{{finding("f1")}}}
	decider := &recordingDecider{tier: record.TierRequiresApproval}
	impl := &stubImplementer{}
	o, _ := newTestOrchestrator(loopConfig(1000), analyzer, decider, impl, svc)
	o.pollInterval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	// Wait for the decision to reach the gate, then approve it.
	require.Eventually(t, func() bool {
		return len(svc.Waiting()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, svc.Resolve(ctx, "dec-f1", true))

	require.NoError(t, <-done)
	require.Len(t, impl.batches, 1)
	assert.Equal(t, "dec-f1", impl.batches[0][0].DecisionID)
	assert.Equal(t, record.ApprovalApproved, impl.batches[0][0].ApprovalState)
}

func TestRun_RejectedDecisionCloses(t *testing.T) {
	svc := approval.NewService(time.Minute, nil)
	analyzer := &stubAnalyzer{batches: [][]record.Finding{{finding("f1")}}}
	decider := &recordingDecider{tier: record.TierRequiresApproval}
	impl := &stubImplementer{}
	o, _ := newTestOrchestrator(loopConfig(1000), analyzer, decider, impl, svc)
	o.pollInterval = 5 * time.Millisecond

	done := make(chan error, 1)
	go func() { done <- o.Run(context.Background()) }()

	require.Eventually(t, func() bool {
		return len(svc.Waiting()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, svc.Resolve(context.Background(), "dec-f1", false))

	require.NoError(t, <-done)
	assert.Empty(t, impl.batches)

	statuses := o.Decisions()
	require.Len(t, statuses, 1)
	assert.Equal(t, record.StateClosed, statuses[0].Decision.State)
	assert.Equal(t, "rejected by operator", statuses[0].DeferralReason)
}

func TestStartStop(t *testing.T) {
	svc := approval.NewService(time.Hour, nil)
	analyzer := &stubAnalyzer{batches: [][]record.Finding{{finding("f1")}}}
	decider := &recordingDecider{tier: record.TierRequiresApproval}
	impl := &stubImplementer{}
	o, _ := newTestOrchestrator(loopConfig(1000), analyzer, decider, impl, svc)

	require.NoError(t, o.Start(context.Background()))
	assert.ErrorIs(t, o.Start(context.Background()), ErrAlreadyRunning)
	assert.True(t, o.Status().Running)

	o.Stop()
	assert.False(t, o.Status().Running)
}

func TestSetConfig_Validates(t *testing.T) {
	o, _ := newTestOrchestrator(loopConfig(10), &stubAnalyzer{}, &recordingDecider{}, &stubImplementer{}, nil)

	assert.Error(t, o.SetConfig(config.OrchestratorConfig{MaxIterations: 0}))

	next := loopConfig(5)
	require.NoError(t, o.SetConfig(next))
	assert.Equal(t, 5, o.Config().MaxIterations)
}
