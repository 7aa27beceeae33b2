// Package approval implements the poll-based human approval gate. Gated
// decisions sit in a pending queue until an operator resolves them or their
// timeout lapses; a lapsed decision is deferred, never silently approved or
// rejected.
package approval

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/remedyd/internal/logging"
	"github.com/fyrsmithlabs/remedyd/internal/record"
)

// ErrUnknownDecision is returned when polling or resolving a decision that
// was never submitted.
var ErrUnknownDecision = fmt.Errorf("approval: unknown decision")

// TimeoutError reports an approval window that lapsed. The decision is
// deferred and re-submitted next iteration.
type TimeoutError struct {
	DecisionID string
	Waited     time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("approval: decision %s timed out after %s", e.DecisionID, e.Waited)
}

type pending struct {
	decision    record.Decision
	state       record.ApprovalState
	submittedAt time.Time
	deadline    time.Time
}

// Service is an in-memory approval queue with explicit deadlines.
type Service struct {
	mu      sync.Mutex
	pending map[string]*pending
	timeout time.Duration
	logger  *logging.Logger
	now     func() time.Time
}

// NewService creates an approval service with the given default timeout.
func NewService(timeout time.Duration, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		pending: make(map[string]*pending),
		timeout: timeout,
		logger:  logger,
		now:     time.Now,
	}
}

// Submit places a decision in the approval queue. Re-submitting a deferred
// decision restarts its window.
func (s *Service) Submit(ctx context.Context, d record.Decision) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.pending[d.DecisionID] = &pending{
		decision:    d,
		state:       record.ApprovalPending,
		submittedAt: now,
		deadline:    now.Add(s.timeout),
	}
	s.logger.Info(ctx, "decision submitted for approval",
		zap.String("decision_id", d.DecisionID),
		zap.Time("deadline", now.Add(s.timeout)),
	)
}

// Poll returns the decision's current approval state. Past the deadline an
// unresolved decision reports Deferred and a TimeoutError.
func (s *Service) Poll(ctx context.Context, decisionID string) (record.ApprovalState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[decisionID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownDecision, decisionID)
	}
	if p.state == record.ApprovalPending && s.now().After(p.deadline) {
		p.state = record.ApprovalDeferred
		return record.ApprovalDeferred, &TimeoutError{
			DecisionID: decisionID,
			Waited:     s.now().Sub(p.submittedAt),
		}
	}
	return p.state, nil
}

// Resolve records an operator's verdict. Only pending decisions can be
// resolved; a deferred decision must be re-submitted first.
func (s *Service) Resolve(ctx context.Context, decisionID string, approved bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[decisionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDecision, decisionID)
	}
	if p.state != record.ApprovalPending {
		return fmt.Errorf("approval: decision %s already %s", decisionID, p.state)
	}
	if approved {
		p.state = record.ApprovalApproved
	} else {
		p.state = record.ApprovalRejected
	}
	s.logger.Info(ctx, "decision resolved",
		zap.String("decision_id", decisionID),
		zap.String("state", string(p.state)),
	)
	return nil
}

// Waiting returns the decisions currently awaiting resolution, ordered by
// submission time. This backs the operator surface's queue view.
func (s *Service) Waiting() []record.Decision {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []record.Decision
	for _, p := range s.pending {
		if p.state == record.ApprovalPending {
			out = append(out, p.decision)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return s.pending[out[i].DecisionID].submittedAt.Before(s.pending[out[j].DecisionID].submittedAt)
	})
	return out
}

// Remove drops a decision from the queue once the orchestrator has acted on
// its resolution.
func (s *Service) Remove(decisionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, decisionID)
}
