package record

import (
	"time"

	"github.com/google/uuid"
)

// CollectorType identifies which collector produced an observation.
type CollectorType string

const (
	CollectorBuildDiagnostics  CollectorType = "build_diagnostics"
	CollectorRuntimeLog        CollectorType = "runtime_log"
	CollectorPerformanceSample CollectorType = "performance_sample"
	CollectorBehavioralMetric  CollectorType = "behavioral_metric"
	CollectorResourceIntegrity CollectorType = "resource_integrity"
)

// Severity classifies a finding's impact.
type Severity string

const (
	// SeverityCritical blocks the build or launch of the target project.
	SeverityCritical Severity = "critical"
	// SeverityHigh is a user-facing defect or resource leak.
	SeverityHigh Severity = "high"
	// SeverityMedium is a balance or quality defect.
	SeverityMedium Severity = "medium"
	// SeverityLow is cosmetic or non-blocking.
	SeverityLow Severity = "low"
)

// IssueType classifies the family of problem a finding describes.
type IssueType string

const (
	IssueMissingDependency    IssueType = "missing_dependency"
	IssueCompileError         IssueType = "compile_error"
	IssueRuntimeError         IssueType = "runtime_error"
	IssuePerformanceHotspot   IssueType = "performance_hotspot"
	IssueBehavioralRegression IssueType = "behavioral_regression"
	IssueBrokenReference      IssueType = "broken_reference"
	IssueQualityDefect        IssueType = "quality_defect"
)

// FixType names a remediation strategy. The decision engine's static policy
// table assigns each fix type an effort estimate and a base risk score.
type FixType string

const (
	FixRestoreReference  FixType = "restore_reference"
	FixRevertConfig      FixType = "revert_config"
	FixResourceCleanup   FixType = "resource_cleanup"
	FixExpectationUpdate FixType = "expectation_update"
	FixCodePatch         FixType = "code_patch"
	FixInterfaceChange   FixType = "interface_change"
)

// Tier is the approval gate level for a decision.
type Tier string

const (
	// TierAutoApply applies without human involvement.
	TierAutoApply Tier = "auto_apply"
	// TierAssisted proceeds but is flagged for post-hoc review.
	TierAssisted Tier = "assisted"
	// TierRequiresApproval blocks until an operator resolves it.
	TierRequiresApproval Tier = "requires_approval"
)

// ApprovalState tracks operator resolution of a gated decision.
type ApprovalState string

const (
	ApprovalPending  ApprovalState = "pending"
	ApprovalApproved ApprovalState = "approved"
	ApprovalRejected ApprovalState = "rejected"
	ApprovalDeferred ApprovalState = "deferred"
)

// DecisionState is a decision's position in its lifecycle state machine.
// Terminal state is StateClosed; a closed decision is never implemented again.
type DecisionState string

const (
	StatePending         DecisionState = "pending"
	StateWaitingApproval DecisionState = "waiting_approval"
	StateImplementing    DecisionState = "implementing"
	StateClosed          DecisionState = "closed"
)

// ValidationResult is the outcome of the executor's post-apply check.
type ValidationResult string

const (
	ValidationPassed ValidationResult = "passed"
	ValidationFailed ValidationResult = "failed"
)

// Outcome is the sealed terminal state of an implementation. There is no
// third value: every implementation resolves to one of these.
type Outcome string

const (
	OutcomeCommitted  Outcome = "committed"
	OutcomeRolledBack Outcome = "rolled_back"
)

// NewCorrelationID returns a fresh correlation id for threading one issue
// across all record types.
func NewCorrelationID() string {
	return uuid.NewString()
}

// Diagnostic is a single structured compiler or build-tool message.
type Diagnostic struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	File     string `json:"file,omitempty"`
	Line     int    `json:"line,omitempty"`
	Blocking bool   `json:"blocking"`
}

// LogLine is one parsed line from the target's runtime log.
type LogLine struct {
	Level      string `json:"level"`
	Message    string `json:"message"`
	Source     string `json:"source,omitempty"`
	StackTrace string `json:"stack_trace,omitempty"`
}

// Sample is one numeric time-series sample from the performance source.
type Sample struct {
	Metric string    `json:"metric"`
	Value  float64   `json:"value"`
	At     time.Time `json:"at"`
}

// MetricResult is one behavioral metric compared against its expectation.
type MetricResult struct {
	Name     string  `json:"name"`
	Expected float64 `json:"expected"`
	Actual   float64 `json:"actual"`
}

// ResourceRef is one entry from the resource-graph query. A ref with
// Valid=false is a missing or broken reference.
type ResourceRef struct {
	Path         string `json:"path"`
	ReferencedBy string `json:"referenced_by,omitempty"`
	Valid        bool   `json:"valid"`
	Reason       string `json:"reason,omitempty"`
}

// Payload carries collector-specific observation data. Exactly the slices
// relevant to the producing collector are populated.
type Payload struct {
	Diagnostics []Diagnostic   `json:"diagnostics,omitempty"`
	LogLines    []LogLine      `json:"log_lines,omitempty"`
	Samples     []Sample       `json:"samples,omitempty"`
	Metrics     []MetricResult `json:"metrics,omitempty"`
	Resources   []ResourceRef  `json:"resources,omitempty"`
}

// ObservationRecord is the opinion-free output of one collector run.
type ObservationRecord struct {
	ID            string        `json:"id"`
	CollectorType CollectorType `json:"collector_type"`
	Timestamp     time.Time     `json:"timestamp"`
	Scope         string        `json:"scope"`
	Payload       Payload       `json:"payload"`
}

// NewObservationRecord stamps a new observation with an id and timestamp.
func NewObservationRecord(ct CollectorType, scope string, payload Payload) ObservationRecord {
	return ObservationRecord{
		ID:            uuid.NewString(),
		CollectorType: ct,
		Timestamp:     time.Now().UTC(),
		Scope:         scope,
		Payload:       payload,
	}
}

// Finding is an analyzed, evidenced, confidence-scored issue.
//
// Every finding references at least one observation record as evidence;
// the analysis engine never synthesizes a finding without evidence.
type Finding struct {
	FindingID     string    `json:"finding_id"`
	CorrelationID string    `json:"correlation_id"`
	IssueType     IssueType `json:"issue_type"`
	Severity      Severity  `json:"severity"`
	AffectedScope []string  `json:"affected_scope"`
	RootCauseText string    `json:"root_cause_text"`
	Evidence      []string  `json:"evidence"`
	Confidence    float64   `json:"confidence"`
}

// ActionSpec is the exact operation a decision authorizes: one operation
// against one target resource, nothing else.
type ActionSpec struct {
	Target    string  `json:"target"`
	Operation string  `json:"operation"`
	FixType   FixType `json:"fix_type"`
	Content   string  `json:"content,omitempty"`
}

// Decision is a ranked, risk-tiered, rollback-bearing remediation plan for
// one finding. A decision with an empty rollback plan is invalid and is
// never emitted by the decision engine.
type Decision struct {
	DecisionID    string        `json:"decision_id"`
	CorrelationID string        `json:"correlation_id"`
	FindingID     string        `json:"finding_id"`
	PriorityScore float64       `json:"priority_score"`
	Tier          Tier          `json:"tier"`
	ActionSpec    ActionSpec    `json:"action_spec"`
	RiskScore     float64       `json:"risk_score"`
	RollbackPlan  string        `json:"rollback_plan"`
	ApprovalState ApprovalState `json:"approval_state"`
	State         DecisionState `json:"state"`
	IssueType     IssueType     `json:"issue_type"`
}

// ImplementationRecord is created when the executor starts an action and
// sealed exactly once, at commit or rollback. It is never reopened.
type ImplementationRecord struct {
	DecisionID       string           `json:"decision_id"`
	CorrelationID    string           `json:"correlation_id"`
	BackupRef        string           `json:"backup_ref"`
	ActionTaken      string           `json:"action_taken"`
	ValidationResult ValidationResult `json:"validation_result"`
	Outcome          Outcome          `json:"outcome"`
	Duration         time.Duration    `json:"duration"`
}

// LearningRecord is one appended outcome for a (issue_type, fix_type) pair.
// Records are aggregated, never overwritten.
type LearningRecord struct {
	CorrelationID         string        `json:"correlation_id"`
	IssueType             IssueType     `json:"issue_type"`
	FixType               FixType       `json:"fix_type"`
	Success               bool          `json:"success"`
	TimeToFix             time.Duration `json:"time_to_fix"`
	SideEffectsIntroduced int           `json:"side_effects_introduced"`
	RecordedAt            time.Time     `json:"recorded_at"`
}
