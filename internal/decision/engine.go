// Package decision ranks findings and converts them into risk-tiered,
// rollback-bearing remediation plans. Ranking is a deterministic scoring
// function over a static policy table plus a historical adjustment from the
// learning store; the approval tier matrix is applied after scoring and is
// never bypassed by a score.
package decision

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/remedyd/internal/config"
	"github.com/fyrsmithlabs/remedyd/internal/logging"
	"github.com/fyrsmithlabs/remedyd/internal/project"
	"github.com/fyrsmithlabs/remedyd/internal/record"
)

// History serves aggregate outcome multipliers per (issue_type, fix_type)
// pair. Implemented by the learning store; injected, never ambient.
type History interface {
	Adjustment(issue record.IssueType, fix record.FixType) float64
}

// Conflict is a finding whose decision lost an overlapping-scope contest
// this iteration. It is deferred, not dropped: the orchestrator re-queues
// the finding, unchanged, for the next iteration.
type Conflict struct {
	Finding record.Finding
	Target  string
	Reason  string
}

// Result is one iteration's decision output.
type Result struct {
	Ready    []record.Decision
	Deferred []Conflict
}

// Engine is the decision stage.
type Engine struct {
	table   FixTable
	policy  config.PolicyConfig
	history History
	logger  *logging.Logger
}

// riskFloor keeps the priority formula's denominator sane; an effective
// risk of zero would rank a decision infinitely urgent.
const riskFloor = 0.05

// forcedProtectedRisk is the minimum effective risk for an action touching
// protected scope. With the default 0.7 cutoff this alone forces the
// RequiresApproval tier.
const forcedProtectedRisk = 0.75

// NewEngine builds a decision engine. history may be nil for a cold start
// (every adjustment is then neutral).
func NewEngine(table FixTable, policy config.PolicyConfig, history History, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Engine{table: table, policy: policy, history: history, logger: logger}
}

// Decide ranks the findings and emits decisions in strictly descending
// priority order. Overlapping-scope decisions are serialized: the
// lower-priority one is deferred to the next iteration. Given the same
// findings and the same history snapshot, the output order is identical on
// repeated runs.
func (e *Engine) Decide(ctx context.Context, findings []record.Finding) Result {
	type candidate struct {
		decision record.Decision
		finding  record.Finding
	}
	candidates := make([]candidate, 0, len(findings))

	for _, f := range findings {
		rule, ok := e.table[f.IssueType]
		if !ok {
			e.logger.Warn(ctx, "no fix rule for issue type, finding skipped",
				zap.String("issue_type", string(f.IssueType)),
				zap.String("finding_id", f.FindingID),
			)
			continue
		}
		if len(f.AffectedScope) == 0 {
			continue
		}

		d := e.build(f, rule)
		if d.RollbackPlan == "" {
			// Invalid by construction; never emitted.
			e.logger.Error(ctx, "decision without rollback plan suppressed",
				zap.String("finding_id", f.FindingID))
			continue
		}
		candidates = append(candidates, candidate{decision: d, finding: f})
	}

	// Descending priority; finding id breaks ties so the order is total.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].decision.PriorityScore != candidates[j].decision.PriorityScore {
			return candidates[i].decision.PriorityScore > candidates[j].decision.PriorityScore
		}
		return candidates[i].decision.FindingID < candidates[j].decision.FindingID
	})

	var result Result
	claimed := make(map[string]string) // target -> winning decision id
	for _, c := range candidates {
		target := c.decision.ActionSpec.Target
		if winner, taken := claimed[target]; taken {
			result.Deferred = append(result.Deferred, Conflict{
				Finding: c.finding,
				Target:  target,
				Reason:  fmt.Sprintf("scope overlap with decision %s", winner),
			})
			continue
		}
		claimed[target] = c.decision.DecisionID
		result.Ready = append(result.Ready, c.decision)

		e.logger.Info(ctx, "decision emitted",
			zap.String("decision_id", c.decision.DecisionID),
			zap.String("finding_id", c.decision.FindingID),
			zap.String("tier", string(c.decision.Tier)),
			zap.Float64("priority", c.decision.PriorityScore),
			zap.Float64("risk", c.decision.RiskScore),
		)
	}
	return result
}

// build scores one finding against its rule and assigns the tier.
func (e *Engine) build(f record.Finding, rule FixRule) record.Decision {
	adjustment := 1.0
	if e.history != nil {
		adjustment = e.history.Adjustment(f.IssueType, rule.FixType)
	}

	effort := rule.Effort * adjustment
	risk := rule.BaseRisk * adjustment
	if risk < riskFloor {
		risk = riskFloor
	}
	if risk > 1 {
		risk = 1
	}

	target := rule.target(f.AffectedScope[0])
	protected := e.isProtected(target, rule.Operation)
	if protected && risk < forcedProtectedRisk {
		risk = forcedProtectedRisk
	}

	weight := e.policy.SeverityWeights[string(f.Severity)]
	impact := float64(len(f.AffectedScope))
	priority := (weight * impact * f.Confidence) / (effort * risk)

	tier := e.tierFor(risk, rule, protected)
	approval := record.ApprovalApproved
	if tier == record.TierRequiresApproval {
		approval = record.ApprovalPending
	}

	return record.Decision{
		DecisionID:    uuid.NewString(),
		CorrelationID: f.CorrelationID,
		FindingID:     f.FindingID,
		PriorityScore: priority,
		Tier:          tier,
		ActionSpec: record.ActionSpec{
			Target:    target,
			Operation: rule.Operation,
			FixType:   rule.FixType,
		},
		RiskScore:     risk,
		RollbackPlan:  fmt.Sprintf("restore %s from backup_ref", target),
		ApprovalState: approval,
		State:         record.StatePending,
		IssueType:     f.IssueType,
	}
}

// tierFor applies the decision matrix. The matrix is deterministic and
// never learned away: a risk score over the assisted cutoff, or protected
// scope, forces RequiresApproval with no exception path.
func (e *Engine) tierFor(risk float64, rule FixRule, protected bool) record.Tier {
	switch {
	case protected || risk > e.policy.RiskAssistedMax:
		return record.TierRequiresApproval
	case risk <= e.policy.RiskAutoApplyMax && rule.Mechanical:
		return record.TierAutoApply
	case rule.BehaviorPreserving:
		return record.TierAssisted
	default:
		return record.TierRequiresApproval
	}
}

// isProtected reports whether the action touches protected scope. Deleting
// a tracked resource is protected unless the target lives under a cache
// path; everything matching a configured protected pattern is protected
// regardless of operation.
func (e *Engine) isProtected(target, operation string) bool {
	for _, pattern := range e.policy.ProtectedScopes {
		if strings.HasPrefix(target, pattern) || strings.HasSuffix(target, pattern) {
			return true
		}
	}
	if operation == project.OpDelete && !strings.HasPrefix(target, "cache/") {
		return true
	}
	return false
}
