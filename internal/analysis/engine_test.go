package analysis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/remedyd/internal/record"
)

func obs(ct record.CollectorType, payload record.Payload) record.ObservationRecord {
	return record.NewObservationRecord(ct, "", payload)
}

func TestAnalyze_MissingDependencyDiagnostic(t *testing.T) {
	rec := obs(record.CollectorBuildDiagnostics, record.Payload{
		Diagnostics: []record.Diagnostic{{
			Code:     "E1001",
			Message:  "undefined reference to 'frobnicate'",
			File:     "src/main.x",
			Line:     42,
			Blocking: true,
		}},
	})

	engine := NewEngine(0.4, nil)
	findings, err := engine.Analyze(context.Background(), []record.ObservationRecord{rec})
	require.NoError(t, err)
	require.Len(t, findings, 1)

	f := findings[0]
	assert.Equal(t, record.IssueMissingDependency, f.IssueType)
	assert.Equal(t, record.SeverityCritical, f.Severity)
	assert.Equal(t, 0.95, f.Confidence)
	assert.Equal(t, []string{"src/main.x"}, f.AffectedScope)
	require.Len(t, f.Evidence, 1)
	assert.Equal(t, rec.ID, f.Evidence[0])
	assert.NotEmpty(t, f.FindingID)
	assert.NotEmpty(t, f.CorrelationID)
}

func TestAnalyze_SingleAmbiguousLogLineLowConfidence(t *testing.T) {
	rec := obs(record.CollectorRuntimeLog, record.Payload{
		LogLines: []record.LogLine{{Level: "error", Message: "something odd happened"}},
	})

	// With a floor of 0.4 the finding survives but stays at low confidence.
	engine := NewEngine(0.4, nil)
	findings, err := engine.Analyze(context.Background(), []record.ObservationRecord{rec})
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.LessOrEqual(t, findings[0].Confidence, 0.5)

	// A higher floor drops it entirely.
	strict := NewEngine(0.5, nil)
	findings, err = strict.Analyze(context.Background(), []record.ObservationRecord{rec})
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestAnalyze_StackTraceHighConfidence(t *testing.T) {
	rec := obs(record.CollectorRuntimeLog, record.Payload{
		LogLines: []record.LogLine{{
			Level:      "error",
			Source:     "physics",
			Message:    "null body in contact solver",
			StackTrace: "at solver.step(solver.x:120)",
		}},
	})

	engine := NewEngine(0.4, nil)
	findings, err := engine.Analyze(context.Background(), []record.ObservationRecord{rec})
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.GreaterOrEqual(t, findings[0].Confidence, 0.9)
	assert.Equal(t, record.IssueRuntimeError, findings[0].IssueType)
	assert.Equal(t, record.SeverityHigh, findings[0].Severity)
}

func TestAnalyze_BrokenReference(t *testing.T) {
	rec := obs(record.CollectorResourceIntegrity, record.Payload{
		Resources: []record.ResourceRef{
			{Path: "assets/ok.png", Valid: true},
			{Path: "assets/gone.png", ReferencedBy: "menu.scene", Valid: false, Reason: "missing"},
			{Path: "assets/orphan.png", Valid: false, Reason: "empty"},
		},
	})

	engine := NewEngine(0.4, nil)
	findings, err := engine.Analyze(context.Background(), []record.ObservationRecord{rec})
	require.NoError(t, err)
	require.Len(t, findings, 2)

	assert.Equal(t, record.SeverityCritical, findings[0].Severity)
	assert.Contains(t, findings[0].AffectedScope, "assets/gone.png")
	assert.Equal(t, record.SeverityHigh, findings[1].Severity)
}

func TestAnalyze_PerformanceSpike(t *testing.T) {
	now := time.Now()
	samples := []record.Sample{
		{Metric: "frame_ms", Value: 16, At: now},
		{Metric: "frame_ms", Value: 17, At: now},
		{Metric: "frame_ms", Value: 16, At: now},
		{Metric: "frame_ms", Value: 200, At: now}, // severe spike
	}
	rec := obs(record.CollectorPerformanceSample, record.Payload{Samples: samples})

	engine := NewEngine(0.4, nil)
	findings, err := engine.Analyze(context.Background(), []record.ObservationRecord{rec})
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, record.IssuePerformanceHotspot, findings[0].IssueType)
	assert.Equal(t, record.SeverityHigh, findings[0].Severity)
}

func TestAnalyze_BehavioralRegression(t *testing.T) {
	rec := obs(record.CollectorBehavioralMetric, record.Payload{
		Metrics: []record.MetricResult{
			{Name: "win_rate", Expected: 0.5, Actual: 0.48},  // within tolerance
			{Name: "drop_rate", Expected: 0.1, Actual: 0.25}, // gross regression
		},
	})

	engine := NewEngine(0.4, nil)
	findings, err := engine.Analyze(context.Background(), []record.ObservationRecord{rec})
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, record.IssueBehavioralRegression, findings[0].IssueType)
	assert.Equal(t, record.SeverityHigh, findings[0].Severity)
	assert.Equal(t, []string{"drop_rate"}, findings[0].AffectedScope)
}

func TestAnalyze_QualityWarnings(t *testing.T) {
	rec := obs(record.CollectorBuildDiagnostics, record.Payload{
		Diagnostics: []record.Diagnostic{
			{Code: "W0203", Message: "unused variable 'tmp'", File: "src/util.x", Line: 7, Blocking: false},
			{Code: "W0203", Message: "unused variable 'tmp2'", File: "src/other.x", Line: 9, Blocking: false},
		},
	})

	engine := NewEngine(0.4, nil)
	findings, err := engine.Analyze(context.Background(), []record.ObservationRecord{rec})
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, record.IssueQualityDefect, findings[0].IssueType)
	assert.Equal(t, record.SeverityLow, findings[0].Severity)
	assert.Len(t, findings[0].AffectedScope, 2)
}

func TestAnalyze_EveryFindingHasEvidence(t *testing.T) {
	records := []record.ObservationRecord{
		obs(record.CollectorBuildDiagnostics, record.Payload{
			Diagnostics: []record.Diagnostic{{Code: "E1", Message: "boom", File: "a.x", Line: 1, Blocking: true}},
		}),
		obs(record.CollectorResourceIntegrity, record.Payload{
			Resources: []record.ResourceRef{{Path: "b.png", Valid: false, Reason: "missing"}},
		}),
	}
	byID := map[string]bool{records[0].ID: true, records[1].ID: true}

	engine := NewEngine(0.4, nil)
	findings, err := engine.Analyze(context.Background(), records)
	require.NoError(t, err)
	require.NotEmpty(t, findings)
	for _, f := range findings {
		require.NotEmpty(t, f.Evidence, "finding %s has no evidence", f.FindingID)
		for _, ev := range f.Evidence {
			assert.True(t, byID[ev], "evidence %s does not resolve to a real record", ev)
		}
	}
}

func TestAnalyze_EmptyInput(t *testing.T) {
	engine := NewEngine(0.4, nil)
	findings, err := engine.Analyze(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, findings)
}
