package executor

import (
	"context"
	"path/filepath"

	"github.com/fyrsmithlabs/remedyd/internal/project"
	"github.com/fyrsmithlabs/remedyd/internal/record"
)

// BuildValidator validates an applied action by re-running the build.
// The narrow scope (the target's directory) runs first; when the decision's
// impact is broad the full build runs as well.
type BuildValidator struct {
	Runner project.BuildRunner
}

// broadImpact reports whether a decision's effect can reach beyond its
// target's own directory.
func broadImpact(d record.Decision) bool {
	switch d.ActionSpec.FixType {
	case record.FixCodePatch, record.FixInterfaceChange:
		return true
	}
	return d.RiskScore > 0.5
}

// Validate implements Validator.
func (v *BuildValidator) Validate(ctx context.Context, d record.Decision) (ValidationReport, error) {
	scope := filepath.Dir(d.ActionSpec.Target)
	if scope == "." {
		scope = ""
	}

	report, err := v.Runner.Build(ctx, scope)
	if err != nil {
		return ValidationReport{Result: record.ValidationFailed}, err
	}
	if !report.Success {
		return failedReport(report), nil
	}

	if broadImpact(d) && scope != "" {
		report, err = v.Runner.Build(ctx, "")
		if err != nil {
			return ValidationReport{Result: record.ValidationFailed}, err
		}
		if !report.Success {
			return failedReport(report), nil
		}
	}
	return ValidationReport{Result: record.ValidationPassed}, nil
}

func failedReport(report project.BuildReport) ValidationReport {
	blocking := 0
	for _, d := range report.Diagnostics {
		if d.Blocking {
			blocking++
		}
	}
	return ValidationReport{Result: record.ValidationFailed, SideEffects: blocking}
}
