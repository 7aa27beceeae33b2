// Package collector holds the stateless observation adapters that feed the
// analysis engine. Collectors are strictly read-only against the target
// project: they observe, they never interpret, prioritize, or repair.
package collector

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/remedyd/internal/project"
	"github.com/fyrsmithlabs/remedyd/internal/record"
)

// Collector runs one observation against the target project.
type Collector interface {
	Type() record.CollectorType
	Collect(ctx context.Context, scope string) (record.ObservationRecord, error)
}

// CollectionError wraps a collector failure. The analysis engine treats it
// as absence of evidence, never as a finding, and it is never fatal to the
// iteration.
type CollectionError struct {
	Collector record.CollectorType
	Err       error
}

func (e *CollectionError) Error() string {
	return fmt.Sprintf("collector %s: %v", e.Collector, e.Err)
}

func (e *CollectionError) Unwrap() error { return e.Err }

// BuildDiagnostics observes the target's build output.
type BuildDiagnostics struct {
	Runner project.BuildRunner
}

func (c *BuildDiagnostics) Type() record.CollectorType { return record.CollectorBuildDiagnostics }

func (c *BuildDiagnostics) Collect(ctx context.Context, scope string) (record.ObservationRecord, error) {
	report, err := c.Runner.Build(ctx, scope)
	if err != nil {
		return record.ObservationRecord{}, &CollectionError{Collector: c.Type(), Err: err}
	}
	return record.NewObservationRecord(c.Type(), scope, record.Payload{
		Diagnostics: report.Diagnostics,
	}), nil
}

// RuntimeLog observes the target's runtime log stream.
type RuntimeLog struct {
	Source   project.LogSource
	MaxLines int
}

func (c *RuntimeLog) Type() record.CollectorType { return record.CollectorRuntimeLog }

func (c *RuntimeLog) Collect(ctx context.Context, scope string) (record.ObservationRecord, error) {
	max := c.MaxLines
	if max <= 0 {
		max = 1000
	}
	lines, err := c.Source.Tail(ctx, max)
	if err != nil {
		return record.ObservationRecord{}, &CollectionError{Collector: c.Type(), Err: err}
	}
	return record.NewObservationRecord(c.Type(), scope, record.Payload{LogLines: lines}), nil
}

// PerformanceSample observes the periodic numeric series.
type PerformanceSample struct {
	Source project.SampleSource
}

func (c *PerformanceSample) Type() record.CollectorType { return record.CollectorPerformanceSample }

func (c *PerformanceSample) Collect(ctx context.Context, scope string) (record.ObservationRecord, error) {
	samples, err := c.Source.Samples(ctx)
	if err != nil {
		return record.ObservationRecord{}, &CollectionError{Collector: c.Type(), Err: err}
	}
	return record.NewObservationRecord(c.Type(), scope, record.Payload{Samples: samples}), nil
}

// BehavioralMetric observes functional metrics against their expectations.
type BehavioralMetric struct {
	Source project.MetricSource
}

func (c *BehavioralMetric) Type() record.CollectorType { return record.CollectorBehavioralMetric }

func (c *BehavioralMetric) Collect(ctx context.Context, scope string) (record.ObservationRecord, error) {
	metrics, err := c.Source.Metrics(ctx)
	if err != nil {
		return record.ObservationRecord{}, &CollectionError{Collector: c.Type(), Err: err}
	}
	return record.NewObservationRecord(c.Type(), scope, record.Payload{Metrics: metrics}), nil
}

// ResourceIntegrity observes missing and broken resource references.
type ResourceIntegrity struct {
	Graph project.ResourceGraph
}

func (c *ResourceIntegrity) Type() record.CollectorType { return record.CollectorResourceIntegrity }

func (c *ResourceIntegrity) Collect(ctx context.Context, scope string) (record.ObservationRecord, error) {
	refs, err := c.Graph.Resolve(ctx)
	if err != nil {
		return record.ObservationRecord{}, &CollectionError{Collector: c.Type(), Err: err}
	}
	return record.NewObservationRecord(c.Type(), scope, record.Payload{Resources: refs}), nil
}
