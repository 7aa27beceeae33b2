package orchestrator

import (
	"context"

	"github.com/fyrsmithlabs/remedyd/internal/executor"
	"github.com/fyrsmithlabs/remedyd/internal/record"
	"github.com/fyrsmithlabs/remedyd/internal/telemetry"
)

// MeteredSink wraps a learning sink and counts every appended record.
type MeteredSink struct {
	Sink    executor.OutcomeSink
	Metrics *telemetry.Metrics
}

func (m *MeteredSink) Append(ctx context.Context, rec record.LearningRecord) error {
	if err := m.Sink.Append(ctx, rec); err != nil {
		return err
	}
	if m.Metrics != nil {
		m.Metrics.LearningRecords.Inc()
	}
	return nil
}
