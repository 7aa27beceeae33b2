package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/remedyd/internal/approval"
	"github.com/fyrsmithlabs/remedyd/internal/collector"
	"github.com/fyrsmithlabs/remedyd/internal/config"
	"github.com/fyrsmithlabs/remedyd/internal/decision"
	"github.com/fyrsmithlabs/remedyd/internal/executor"
	"github.com/fyrsmithlabs/remedyd/internal/logging"
	"github.com/fyrsmithlabs/remedyd/internal/record"
	"github.com/fyrsmithlabs/remedyd/internal/telemetry"
)

// Gatherer runs the collection phase.
type Gatherer interface {
	Gather(ctx context.Context, scope string) ([]record.ObservationRecord, []*collector.CollectionError, error)
}

// Analyzer turns observations into findings.
type Analyzer interface {
	Analyze(ctx context.Context, records []record.ObservationRecord) ([]record.Finding, error)
}

// Decider ranks findings into decisions.
type Decider interface {
	Decide(ctx context.Context, findings []record.Finding) decision.Result
}

// Implementer executes approved decisions.
type Implementer interface {
	ImplementBatch(ctx context.Context, decisions []record.Decision) ([]record.ImplementationRecord, []error)
}

// Approvals is the waiting-approval gate.
type Approvals interface {
	Submit(ctx context.Context, d record.Decision)
	Poll(ctx context.Context, decisionID string) (record.ApprovalState, error)
	Remove(decisionID string)
}

// Orchestrator sequences the remediation loop.
type Orchestrator struct {
	gatherer  Gatherer
	analyzer  Analyzer
	decider   Decider
	approvals Approvals
	impl      Implementer
	metrics   *telemetry.Metrics
	tracer    oteltrace.Tracer
	logger    *logging.Logger
	scope     string

	// pollInterval spaces out iterations whose only work is polling the
	// approval gate, so a waiting decision does not spin the loop hot.
	pollInterval time.Duration

	mu        sync.Mutex
	cfg       config.OrchestratorConfig
	cancel    context.CancelFunc
	done      chan struct{}
	status    Status
	carryOver []record.Finding
	waiting   []record.Decision
	findings  map[string]record.Finding // finding id -> finding, for re-queue
	decisions map[string]*DecisionStatus
}

// New wires an orchestrator. tracer and metrics may be nil.
func New(cfg config.OrchestratorConfig, scope string, gatherer Gatherer, analyzer Analyzer, decider Decider, approvals Approvals, impl Implementer, metrics *telemetry.Metrics, tracer oteltrace.Tracer, logger *logging.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("orchestrator")
	}
	return &Orchestrator{
		gatherer:     gatherer,
		analyzer:     analyzer,
		decider:      decider,
		approvals:    approvals,
		impl:         impl,
		metrics:      metrics,
		tracer:       tracer,
		logger:       logger,
		scope:        scope,
		pollInterval: 2 * time.Second,
		cfg:          cfg,
		findings:     make(map[string]record.Finding),
		decisions:    make(map[string]*DecisionStatus),
	}
}

// Config returns the current loop limits.
func (o *Orchestrator) Config() config.OrchestratorConfig {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cfg
}

// SetConfig replaces the loop limits. Takes effect at the next iteration
// boundary.
func (o *Orchestrator) SetConfig(cfg config.OrchestratorConfig) error {
	if cfg.MaxIterations < 1 {
		return fmt.Errorf("orchestrator: max_iterations must be positive, got %d", cfg.MaxIterations)
	}
	if cfg.IterationBudget.Duration() <= 0 {
		return fmt.Errorf("orchestrator: iteration_budget must be positive")
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cfg = cfg
	return nil
}

// Start launches a run in the background. It fails if one is in progress.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.cancel != nil {
		o.mu.Unlock()
		return ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.done = make(chan struct{})
	done := o.done
	o.status = Status{StartedAt: time.Now()}
	o.mu.Unlock()

	go func() {
		defer close(done)
		err := o.Run(runCtx)
		o.mu.Lock()
		if err != nil && !errors.Is(err, context.Canceled) {
			o.status.LastError = err.Error()
		}
		o.status.FinishedAt = time.Now()
		o.cancel = nil
		o.mu.Unlock()
	}()
	return nil
}

// Stop cancels the in-flight run and waits for it to wind down. An
// implementation mid-transaction completes its commit-or-rollback first.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	cancel, done := o.cancel, o.done
	o.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Run executes the loop synchronously until it terminates: zero actionable
// work, the iteration cap, or cancellation.
func (o *Orchestrator) Run(ctx context.Context) error {
	for iter := 1; ; iter++ {
		cfg := o.Config()
		if iter > cfg.MaxIterations {
			o.logger.Info(ctx, "iteration cap reached", zap.Int("max_iterations", cfg.MaxIterations))
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		o.mu.Lock()
		o.status.Iteration = iter
		o.mu.Unlock()

		iterCtx, cancel := context.WithTimeout(ctx, cfg.IterationBudget.Duration())
		res, err := o.iterate(logging.WithIteration(iterCtx, iter), iter)
		cancel()

		switch {
		case err == nil:
		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			// The iteration hit its budget, not the run. Abort the
			// iteration and move on; in-flight transactions were
			// already driven to a terminal state.
			exhausted := &ResourceExhausted{Iteration: iter, Budget: cfg.IterationBudget.Duration()}
			o.logger.Warn(ctx, "iteration aborted", zap.Error(exhausted))
			o.mu.Lock()
			o.status.LastError = exhausted.Error()
			o.mu.Unlock()
			continue
		default:
			return err
		}

		if o.metrics != nil {
			o.metrics.Iterations.Inc()
		}
		if res.idle {
			o.logger.Info(ctx, "no actionable findings, run complete", zap.Int("iterations", iter))
			return nil
		}
		if res.waitingOnly {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(o.pollInterval):
			}
		}
	}
}

// iterResult summarizes one pipeline pass for the loop's control flow.
type iterResult struct {
	// idle: no fresh findings, nothing carried over, nothing waiting.
	idle bool
	// waitingOnly: the only remaining work is polling the approval gate.
	waitingOnly bool
}

// iterate runs one full pipeline pass.
func (o *Orchestrator) iterate(ctx context.Context, iter int) (iterResult, error) {
	start := time.Now()
	ctx, span := o.tracer.Start(ctx, "orchestrator.iterate",
		oteltrace.WithAttributes(attribute.Int("iteration", iter)))
	defer span.End()
	defer func() {
		if o.metrics != nil {
			o.metrics.IterationDuration.Observe(time.Since(start).Seconds())
		}
	}()

	records, collectErrs, err := o.phaseGather(ctx)
	if err != nil {
		return iterResult{}, err
	}
	for _, cerr := range collectErrs {
		o.logger.Warn(ctx, "collector failed, treating as missing evidence", zap.Error(cerr))
	}
	if err := ctx.Err(); err != nil {
		return iterResult{}, err
	}

	fresh, err := o.phaseAnalyze(ctx, records)
	if err != nil {
		return iterResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return iterResult{}, err
	}

	findings := o.takeCarryOver(fresh)
	result := o.phaseDecide(ctx, findings)
	toImplement := o.phaseGate(ctx, result)
	if err := ctx.Err(); err != nil {
		return iterResult{}, err
	}

	o.phaseImplement(ctx, toImplement)

	o.mu.Lock()
	res := iterResult{
		idle:        len(fresh) == 0 && len(o.carryOver) == 0 && len(o.waiting) == 0,
		waitingOnly: len(fresh) == 0 && len(o.carryOver) == 0 && len(o.waiting) > 0,
	}
	o.mu.Unlock()
	return res, ctx.Err()
}

func (o *Orchestrator) phaseGather(ctx context.Context) ([]record.ObservationRecord, []*collector.CollectionError, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.gather")
	defer span.End()
	return o.gatherer.Gather(ctx, o.scope)
}

func (o *Orchestrator) phaseAnalyze(ctx context.Context, records []record.ObservationRecord) ([]record.Finding, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.analyze")
	defer span.End()
	findings, err := o.analyzer.Analyze(ctx, records)
	if err != nil {
		return nil, err
	}
	if o.metrics != nil {
		o.metrics.ObserveFindings(findings)
	}
	return findings, nil
}

// takeCarryOver merges fresh findings with the previous iteration's deferred
// and re-queued ones. Carried findings keep their original finding id and
// confidence.
func (o *Orchestrator) takeCarryOver(fresh []record.Finding) []record.Finding {
	o.mu.Lock()
	carried := o.carryOver
	o.carryOver = nil
	o.mu.Unlock()

	findings := make([]record.Finding, 0, len(carried)+len(fresh))
	seen := make(map[string]bool, len(carried)+len(fresh))
	for _, f := range append(carried, fresh...) {
		if seen[f.FindingID] {
			continue
		}
		seen[f.FindingID] = true
		findings = append(findings, f)
	}

	o.mu.Lock()
	for _, f := range findings {
		o.findings[f.FindingID] = f
	}
	o.mu.Unlock()
	return findings
}

func (o *Orchestrator) phaseDecide(ctx context.Context, findings []record.Finding) decision.Result {
	ctx, span := o.tracer.Start(ctx, "orchestrator.decide")
	defer span.End()
	result := o.decider.Decide(ctx, findings)
	if o.metrics != nil {
		o.metrics.ObserveDecisions(result.Ready)
	}
	for _, conflict := range result.Deferred {
		o.logger.Info(ctx, "decision deferred",
			zap.String("finding_id", conflict.Finding.FindingID),
			zap.String("target", conflict.Target),
			zap.String("reason", conflict.Reason))
		o.requeue(conflict.Finding)
	}
	return result
}

// phaseGate resolves approvals: it polls decisions already waiting, submits
// new RequiresApproval decisions, and returns everything cleared to run.
func (o *Orchestrator) phaseGate(ctx context.Context, result decision.Result) []record.Decision {
	ctx, span := o.tracer.Start(ctx, "orchestrator.gate")
	defer span.End()

	o.mu.Lock()
	waiting := o.waiting
	o.waiting = nil
	o.mu.Unlock()

	var toImplement []record.Decision
	for _, d := range waiting {
		state, err := o.approvals.Poll(ctx, d.DecisionID)
		var timeout *approval.TimeoutError
		switch {
		case errors.As(err, &timeout):
			// Deferred, not resolved. Re-submit with a fresh window.
			o.approvals.Remove(d.DecisionID)
			d.ApprovalState = record.ApprovalPending
			o.approvals.Submit(ctx, d)
			o.keepWaiting(d, "approval timed out, re-submitted")
			o.logger.Warn(ctx, "approval timed out", zap.String("decision_id", d.DecisionID))
		case err != nil:
			o.logger.Error(ctx, "approval poll failed", zap.String("decision_id", d.DecisionID), zap.Error(err))
			o.keepWaiting(d, "approval state unavailable")
		case state == record.ApprovalApproved:
			o.approvals.Remove(d.DecisionID)
			d.ApprovalState = record.ApprovalApproved
			d.State = record.StateImplementing
			toImplement = append(toImplement, d)
		case state == record.ApprovalRejected:
			o.approvals.Remove(d.DecisionID)
			d.ApprovalState = record.ApprovalRejected
			d.State = record.StateClosed
			o.noteDecision(d, "", "rejected by operator")
			o.logger.Info(ctx, "decision rejected", zap.String("decision_id", d.DecisionID))
		default:
			o.keepWaiting(d, "waiting for operator approval")
		}
	}

	for _, d := range result.Ready {
		o.logger.Info(ctx, "decision ready",
			zap.String("decision_id", d.DecisionID),
			zap.String("finding_id", d.FindingID),
			zap.String("tier", string(d.Tier)),
			zap.Float64("priority", d.PriorityScore),
			zap.Float64("risk", d.RiskScore))
		if d.Tier == record.TierRequiresApproval {
			d.State = record.StateWaitingApproval
			o.approvals.Submit(ctx, d)
			o.keepWaiting(d, "waiting for operator approval")
			continue
		}
		d.State = record.StateImplementing
		toImplement = append(toImplement, d)
	}
	o.updatePendingGauge()
	return toImplement
}

func (o *Orchestrator) phaseImplement(ctx context.Context, decisions []record.Decision) {
	if len(decisions) == 0 {
		return
	}
	ctx, span := o.tracer.Start(ctx, "orchestrator.implement",
		oteltrace.WithAttributes(attribute.Int("decisions", len(decisions))))
	defer span.End()

	recs, errs := o.impl.ImplementBatch(ctx, decisions)
	for i, d := range decisions {
		rec, err := recs[i], errs[i]
		dctx := logging.WithCorrelationID(ctx, d.CorrelationID)
		switch {
		case err == nil:
			o.observeOutcome(rec.Outcome)
			o.noteDecision(d, rec.Outcome, "")
		case errors.Is(err, executor.ErrScopeLocked):
			o.logger.Warn(dctx, "scope locked, deferring", zap.String("decision_id", d.DecisionID))
			o.noteDecision(d, "", "scope locked")
			o.requeueByID(d.FindingID)
		case rec.Outcome == record.OutcomeRolledBack:
			// Validation or commit failed; the originating finding goes
			// back in the queue with confidence unchanged.
			o.observeOutcome(rec.Outcome)
			o.logger.Warn(dctx, "implementation rolled back",
				zap.String("decision_id", d.DecisionID), zap.Error(err))
			o.noteDecision(d, rec.Outcome, "")
			o.requeueByID(d.FindingID)
		default:
			// Failed before any effect (snapshot, refused). Nothing to
			// roll back; the finding is re-queued.
			o.logger.Error(dctx, "implementation aborted",
				zap.String("decision_id", d.DecisionID), zap.Error(err))
			o.noteDecision(d, "", err.Error())
			o.requeueByID(d.FindingID)
		}
	}
}

func (o *Orchestrator) observeOutcome(outcome record.Outcome) {
	if o.metrics != nil {
		o.metrics.Implementations.WithLabelValues(string(outcome)).Inc()
	}
}

func (o *Orchestrator) requeue(f record.Finding) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.carryOver = append(o.carryOver, f)
}

func (o *Orchestrator) requeueByID(findingID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if f, ok := o.findings[findingID]; ok {
		o.carryOver = append(o.carryOver, f)
	}
}

func (o *Orchestrator) keepWaiting(d record.Decision, reason string) {
	o.mu.Lock()
	o.waiting = append(o.waiting, d)
	o.mu.Unlock()
	o.noteDecision(d, "", reason)
}

func (o *Orchestrator) updatePendingGauge() {
	if o.metrics == nil {
		return
	}
	o.mu.Lock()
	n := len(o.waiting)
	o.mu.Unlock()
	o.metrics.PendingApprovals.Set(float64(n))
}
