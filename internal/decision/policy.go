package decision

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/remedyd/internal/project"
	"github.com/fyrsmithlabs/remedyd/internal/record"
)

// FixRule is one row of the per-fix-type policy table: how an issue family
// is remediated, what it costs, and how risky it is before history is
// applied. The constants here are asserted policy, not tuned truths, so the
// whole table can be replaced from a YAML file.
type FixRule struct {
	Issue              record.IssueType `yaml:"issue"`
	FixType            record.FixType   `yaml:"fix_type"`
	Operation          string           `yaml:"operation"`
	TargetTemplate     string           `yaml:"target_template"`
	Effort             float64          `yaml:"effort"`
	BaseRisk           float64          `yaml:"base_risk"`
	Mechanical         bool             `yaml:"mechanical"`
	BehaviorPreserving bool             `yaml:"behavior_preserving"`
}

// FixTable maps issue types to their remediation rule.
type FixTable map[record.IssueType]FixRule

// DefaultFixTable returns the built-in policy table.
func DefaultFixTable() FixTable {
	rules := []FixRule{
		{
			Issue:              record.IssueMissingDependency,
			FixType:            record.FixRestoreReference,
			Operation:          project.OpRestoreBaseline,
			Effort:             1.0,
			BaseRisk:           0.1,
			Mechanical:         true,
			BehaviorPreserving: true,
		},
		{
			Issue:              record.IssueBrokenReference,
			FixType:            record.FixRestoreReference,
			Operation:          project.OpRestoreBaseline,
			Effort:             1.0,
			BaseRisk:           0.1,
			Mechanical:         true,
			BehaviorPreserving: true,
		},
		{
			Issue:              record.IssueBehavioralRegression,
			FixType:            record.FixRevertConfig,
			Operation:          project.OpRestoreBaseline,
			TargetTemplate:     "balance/{scope}.cfg",
			Effort:             1.5,
			BaseRisk:           0.25,
			Mechanical:         true,
			BehaviorPreserving: true,
		},
		{
			Issue:              record.IssuePerformanceHotspot,
			FixType:            record.FixResourceCleanup,
			Operation:          project.OpDelete,
			TargetTemplate:     "cache/{scope}.cache",
			Effort:             2.0,
			BaseRisk:           0.4,
			BehaviorPreserving: true,
		},
		{
			Issue:              record.IssueQualityDefect,
			FixType:            record.FixExpectationUpdate,
			Operation:          project.OpRestoreBaseline,
			Effort:             2.0,
			BaseRisk:           0.45,
			BehaviorPreserving: true,
		},
		{
			Issue:     record.IssueCompileError,
			FixType:   record.FixCodePatch,
			Operation: project.OpRestoreBaseline,
			Effort:    3.0,
			BaseRisk:  0.5,
		},
		{
			Issue:     record.IssueRuntimeError,
			FixType:   record.FixCodePatch,
			Operation: project.OpRestoreBaseline,
			Effort:    4.0,
			BaseRisk:  0.6,
		},
	}

	table := make(FixTable, len(rules))
	for _, r := range rules {
		table[r.Issue] = r
	}
	return table
}

// LoadFixTable reads rule overrides from a YAML file and merges them over
// the defaults. A missing file is not an error; the defaults stand.
func LoadFixTable(path string) (FixTable, error) {
	table := DefaultFixTable()
	if path == "" {
		return table, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return table, nil
		}
		return nil, fmt.Errorf("decision: read fix table: %w", err)
	}
	var rules []FixRule
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("decision: parse fix table: %w", err)
	}
	for _, r := range rules {
		if err := validateRule(r); err != nil {
			return nil, fmt.Errorf("decision: invalid rule for %s: %w", r.Issue, err)
		}
		table[r.Issue] = r
	}
	return table, nil
}

func validateRule(r FixRule) error {
	if r.Issue == "" || r.FixType == "" || r.Operation == "" {
		return errors.New("issue, fix_type, and operation are required")
	}
	if r.Effort <= 0 {
		return fmt.Errorf("effort must be positive, got %f", r.Effort)
	}
	if r.BaseRisk <= 0 || r.BaseRisk > 1 {
		return fmt.Errorf("base_risk must be in (0,1], got %f", r.BaseRisk)
	}
	return nil
}

// target resolves the rule's action target from a finding's first affected
// scope. With no template, the scope itself is the target.
func (r FixRule) target(scope string) string {
	if r.TargetTemplate == "" {
		return scope
	}
	return strings.ReplaceAll(r.TargetTemplate, "{scope}", scope)
}
