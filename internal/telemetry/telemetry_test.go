package telemetry

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/remedyd/internal/config"
	"github.com/fyrsmithlabs/remedyd/internal/record"
)

func TestNew_NoEndpointIsNoop(t *testing.T) {
	tel, err := New(context.Background(), config.TelemetryConfig{})
	require.NoError(t, err)

	tracer := tel.Tracer("test")
	_, span := tracer.Start(context.Background(), "op")
	assert.False(t, span.SpanContext().IsValid())
	span.End()

	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics()

	m.ObserveFindings([]record.Finding{
		{Severity: record.SeverityCritical},
		{Severity: record.SeverityCritical},
		{Severity: record.SeverityLow},
	})
	m.ObserveDecisions([]record.Decision{
		{Tier: record.TierAutoApply},
		{Tier: record.TierRequiresApproval},
	})
	m.Implementations.WithLabelValues(string(record.OutcomeCommitted)).Inc()
	m.Iterations.Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Findings.WithLabelValues("critical")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Findings.WithLabelValues("low")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Decisions.WithLabelValues("auto_apply")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Implementations.WithLabelValues("committed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Iterations))
}
