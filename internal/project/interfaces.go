// Package project defines the narrow interfaces through which the pipeline
// touches the managed target project, plus local-filesystem implementations
// of each. Collectors consume the read-only interfaces; only the executor
// holds the VersionControl interface, and only under an approved decision.
package project

import (
	"context"

	"github.com/fyrsmithlabs/remedyd/internal/record"
)

// BuildReport is the structured result of one build invocation.
type BuildReport struct {
	Success     bool
	Diagnostics []record.Diagnostic
}

// BuildRunner invokes the target's build toolchain. Read-only: a build run
// must not modify tracked project state.
type BuildRunner interface {
	// Build runs the build for the given scope ("" means full project) and
	// returns parsed diagnostics. A failing build is not an error; the
	// failure is in the report. An error means the toolchain itself could
	// not be invoked.
	Build(ctx context.Context, scope string) (BuildReport, error)
}

// LogSource exposes the target's runtime log.
type LogSource interface {
	// Tail returns up to max parsed lines from the end of the log.
	Tail(ctx context.Context, max int) ([]record.LogLine, error)
}

// SampleSource exposes periodic numeric performance series.
type SampleSource interface {
	Samples(ctx context.Context) ([]record.Sample, error)
}

// MetricSource exposes behavioral/functional metrics with expectations.
type MetricSource interface {
	Metrics(ctx context.Context) ([]record.MetricResult, error)
}

// ResourceGraph answers asset/reference validity queries.
type ResourceGraph interface {
	// Resolve returns every known resource reference with its validity.
	Resolve(ctx context.Context) ([]record.ResourceRef, error)
}

// VersionControl is the executor's mutation interface to the target.
// Snapshot must capture enough state that Revert restores the touched
// resources byte-identically.
type VersionControl interface {
	Snapshot(ctx context.Context, resources []string) (backupRef string, err error)
	Apply(ctx context.Context, action record.ActionSpec) error
	Commit(ctx context.Context, message string) (revisionID string, err error)
	Revert(ctx context.Context, backupRef string) error
}
