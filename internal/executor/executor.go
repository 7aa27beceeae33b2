// Package executor applies approved decisions to the target project. Every
// action moves through Snapshot, Apply, Validate, and Commit-or-Rollback;
// there is no terminal state other than Committed or RolledBack, and a
// record sealed in either is never reopened. Only this package holds the
// version-control interface: observation code never gets write access.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/remedyd/internal/logging"
	"github.com/fyrsmithlabs/remedyd/internal/project"
	"github.com/fyrsmithlabs/remedyd/internal/record"
)

// ImplementationFailure reports validation failing after apply. The action
// was rolled back; the originating finding is re-queued by the orchestrator.
type ImplementationFailure struct {
	DecisionID string
	Stage      string
	Err        error
}

func (e *ImplementationFailure) Error() string {
	return fmt.Sprintf("executor: decision %s failed at %s: %v", e.DecisionID, e.Stage, e.Err)
}

func (e *ImplementationFailure) Unwrap() error { return e.Err }

// ErrScopeLocked is returned when the action's resources are held by
// another in-flight implementation.
var ErrScopeLocked = fmt.Errorf("executor: resource scope locked")

// ValidationReport is the validator's verdict plus the breakage it saw.
type ValidationReport struct {
	Result      record.ValidationResult
	SideEffects int
}

// Validator re-runs the minimal relevant check after an apply.
type Validator interface {
	Validate(ctx context.Context, d record.Decision) (ValidationReport, error)
}

// OutcomeSink receives one learning record per sealed implementation.
// Implemented by the learning store.
type OutcomeSink interface {
	Append(ctx context.Context, rec record.LearningRecord) error
}

// Executor carries out decisions. Shared state (the lock table, the
// learning sink) is injected, never ambient.
type Executor struct {
	vcs         project.VersionControl
	validator   Validator
	locks       *LockTable
	outcomes    OutcomeSink
	logger      *logging.Logger
	concurrency int
}

// New creates an executor. concurrency bounds how many disjoint-scope
// actions run at once; values below 1 mean serial execution.
func New(vcs project.VersionControl, validator Validator, locks *LockTable, outcomes OutcomeSink, logger *logging.Logger, concurrency int) *Executor {
	if logger == nil {
		logger = logging.NewNop()
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Executor{
		vcs:         vcs,
		validator:   validator,
		locks:       locks,
		outcomes:    outcomes,
		logger:      logger,
		concurrency: concurrency,
	}
}

// Implement performs exactly the decision's action. The returned record is
// sealed: its outcome is Committed or RolledBack, never anything else.
//
// Cancellation is honored between stages. Once Apply has run, the current
// transaction is driven to commit or rollback on a detached context before
// cancellation takes effect; a partial resource state is never left behind.
func (e *Executor) Implement(ctx context.Context, d record.Decision) (record.ImplementationRecord, error) {
	if d.State == record.StateClosed {
		return record.ImplementationRecord{}, fmt.Errorf("executor: decision %s is closed", d.DecisionID)
	}
	if d.Tier == record.TierRequiresApproval && d.ApprovalState != record.ApprovalApproved {
		return record.ImplementationRecord{}, fmt.Errorf("executor: decision %s is not approved (%s)", d.DecisionID, d.ApprovalState)
	}

	resources := []string{d.ActionSpec.Target}
	if !e.locks.Acquire(d.DecisionID, resources) {
		return record.ImplementationRecord{}, fmt.Errorf("%w: %s held by %s",
			ErrScopeLocked, d.ActionSpec.Target, e.locks.Holder(d.ActionSpec.Target))
	}
	defer e.locks.Release(d.DecisionID, resources)

	start := time.Now()
	ctx = logging.WithCorrelationID(ctx, d.CorrelationID)

	// Snapshot. Fails closed: no backup, no action.
	backupRef, err := e.vcs.Snapshot(ctx, resources)
	if err != nil {
		return record.ImplementationRecord{}, fmt.Errorf("executor: snapshot for %s: %w", d.DecisionID, err)
	}
	e.logger.Debug(ctx, "snapshot taken",
		zap.String("decision_id", d.DecisionID),
		zap.String("backup_ref", backupRef),
	)

	rec := record.ImplementationRecord{
		DecisionID:    d.DecisionID,
		CorrelationID: d.CorrelationID,
		BackupRef:     backupRef,
		ActionTaken:   fmt.Sprintf("%s %s", d.ActionSpec.Operation, d.ActionSpec.Target),
	}

	// From here on the transaction must terminate even if ctx is cancelled.
	sealCtx := context.WithoutCancel(ctx)

	if err := e.vcs.Apply(ctx, d.ActionSpec); err != nil {
		return e.rollback(sealCtx, d, rec, start, 0, &ImplementationFailure{
			DecisionID: d.DecisionID, Stage: "apply", Err: err,
		})
	}

	report, verr := e.validator.Validate(ctx, d)
	if verr != nil || report.Result != record.ValidationPassed {
		if verr == nil {
			verr = fmt.Errorf("validation failed")
		}
		rec.ValidationResult = record.ValidationFailed
		return e.rollback(sealCtx, d, rec, start, report.SideEffects, &ImplementationFailure{
			DecisionID: d.DecisionID, Stage: "validate", Err: verr,
		})
	}
	rec.ValidationResult = record.ValidationPassed

	revision, err := e.vcs.Commit(sealCtx, fmt.Sprintf("remedyd: %s (decision %s)", rec.ActionTaken, d.DecisionID))
	if err != nil {
		return e.rollback(sealCtx, d, rec, start, 0, &ImplementationFailure{
			DecisionID: d.DecisionID, Stage: "commit", Err: err,
		})
	}

	rec.Outcome = record.OutcomeCommitted
	rec.Duration = time.Since(start)
	e.learn(sealCtx, d, rec, 0)

	e.logger.Info(sealCtx, "decision committed",
		zap.String("decision_id", d.DecisionID),
		zap.String("revision", revision),
		zap.Duration("duration", rec.Duration),
	)
	return rec, nil
}

// rollback restores from the snapshot, seals the record as RolledBack, and
// forwards a failed learning record. The restore uses the detached context:
// it runs to completion even under cancellation.
func (e *Executor) rollback(ctx context.Context, d record.Decision, rec record.ImplementationRecord, start time.Time, sideEffects int, cause *ImplementationFailure) (record.ImplementationRecord, error) {
	if err := e.vcs.Revert(ctx, rec.BackupRef); err != nil {
		// Revert must not fail silently; surface both errors.
		e.logger.Error(ctx, "rollback failed",
			zap.String("decision_id", d.DecisionID),
			zap.String("backup_ref", rec.BackupRef),
			zap.Error(err),
		)
		return rec, fmt.Errorf("executor: rollback of %s failed: %v (after %w)", d.DecisionID, err, cause)
	}

	rec.Outcome = record.OutcomeRolledBack
	rec.Duration = time.Since(start)
	e.learn(ctx, d, rec, sideEffects)

	e.logger.Warn(ctx, "decision rolled back",
		zap.String("decision_id", d.DecisionID),
		zap.String("stage", cause.Stage),
		zap.Error(cause.Err),
	)
	return rec, cause
}

func (e *Executor) learn(ctx context.Context, d record.Decision, rec record.ImplementationRecord, sideEffects int) {
	if e.outcomes == nil {
		return
	}
	lr := record.LearningRecord{
		CorrelationID:         d.CorrelationID,
		IssueType:             d.IssueType,
		FixType:               d.ActionSpec.FixType,
		Success:               rec.Outcome == record.OutcomeCommitted,
		TimeToFix:             rec.Duration,
		SideEffectsIntroduced: sideEffects,
	}
	if err := e.outcomes.Append(ctx, lr); err != nil {
		e.logger.Error(ctx, "failed to append learning record",
			zap.String("decision_id", d.DecisionID),
			zap.Error(err),
		)
	}
}

// ImplementBatch runs a ranked slice of decisions. Actions are started in
// strictly descending priority order; disjoint scopes proceed concurrently
// up to the configured limit. The result slice is indexed like decisions;
// a decision that errored has its error in errs at the same index.
func (e *Executor) ImplementBatch(ctx context.Context, decisions []record.Decision) ([]record.ImplementationRecord, []error) {
	records := make([]record.ImplementationRecord, len(decisions))
	errs := make([]error, len(decisions))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, d := range decisions {
		g.Go(func() error {
			rec, err := e.Implement(gctx, d)
			mu.Lock()
			records[i] = rec
			errs[i] = err
			mu.Unlock()
			return nil
		})
	}
	g.Wait() //nolint:errcheck // individual errors are reported per decision
	return records, errs
}
