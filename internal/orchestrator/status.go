package orchestrator

import (
	"sort"
	"time"

	"github.com/fyrsmithlabs/remedyd/internal/record"
)

// DecisionStatus is the operator view of one decision: the decision itself,
// its last terminal outcome if it has one, and the reason it was deferred
// if it was.
type DecisionStatus struct {
	Decision       record.Decision `json:"decision"`
	Outcome        record.Outcome  `json:"outcome,omitempty"`
	DeferralReason string          `json:"deferral_reason,omitempty"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Status is a point-in-time snapshot of the run.
type Status struct {
	Running       bool      `json:"running"`
	Iteration     int       `json:"iteration"`
	MaxIterations int       `json:"max_iterations"`
	CarryOver     int       `json:"carry_over"`
	Waiting       int       `json:"waiting_approval"`
	LastError     string    `json:"last_error,omitempty"`
	StartedAt     time.Time `json:"started_at,omitzero"`
	FinishedAt    time.Time `json:"finished_at,omitzero"`
}

// Status returns the current run snapshot.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.status
	s.Running = o.cancel != nil
	s.MaxIterations = o.cfg.MaxIterations
	s.CarryOver = len(o.carryOver)
	s.Waiting = len(o.waiting)
	return s
}

// Decisions returns the operator decision list, most recently updated first.
func (o *Orchestrator) Decisions() []DecisionStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]DecisionStatus, 0, len(o.decisions))
	for _, ds := range o.decisions {
		out = append(out, *ds)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].Decision.DecisionID < out[j].Decision.DecisionID
	})
	return out
}

// noteDecision records the operator-visible state of a decision. A non-empty
// outcome means the decision reached a terminal state.
func (o *Orchestrator) noteDecision(d record.Decision, outcome record.Outcome, reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if outcome != "" {
		d.State = record.StateClosed
	}
	o.decisions[d.DecisionID] = &DecisionStatus{
		Decision:       d,
		Outcome:        outcome,
		DeferralReason: reason,
		UpdatedAt:      time.Now(),
	}
}
