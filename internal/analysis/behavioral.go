package analysis

import (
	"fmt"
	"math"
	"sort"

	"github.com/fyrsmithlabs/remedyd/internal/record"
)

// BehavioralRegression compares functional metrics against their declared
// expectations. The expectation itself is the signal clarity: an explicit
// declared baseline makes a deviation high-confidence evidence.
type BehavioralRegression struct{}

func (a *BehavioralRegression) Name() string { return "behavioral-regression" }

func (a *BehavioralRegression) Accepts(ct record.CollectorType) bool {
	return ct == record.CollectorBehavioralMetric
}

const (
	// deviationFloor is the relative deviation below which a metric is
	// considered within tolerance.
	deviationFloor = 0.10
	// deviationSevere raises severity for gross regressions.
	deviationSevere = 0.50
)

func (a *BehavioralRegression) Analyze(records []record.ObservationRecord) []record.Finding {
	type result struct {
		metric   record.MetricResult
		evidence string
	}
	var results []result
	for _, rec := range records {
		for _, m := range rec.Payload.Metrics {
			results = append(results, result{metric: m, evidence: rec.ID})
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].metric.Name < results[j].metric.Name })

	var findings []record.Finding
	for _, r := range results {
		m := r.metric
		if m.Expected == 0 {
			continue
		}
		deviation := math.Abs(m.Actual-m.Expected) / math.Abs(m.Expected)
		if deviation < deviationFloor {
			continue
		}

		sev := record.SeverityMedium // balance defect
		if deviation >= deviationSevere {
			sev = record.SeverityHigh
		}

		findings = append(findings, newFinding(
			record.IssueBehavioralRegression,
			sev,
			[]string{m.Name},
			fmt.Sprintf("metric %s deviates %.0f%% from expectation (expected %.2f, got %.2f)",
				m.Name, deviation*100, m.Expected, m.Actual),
			[]string{r.evidence},
			0.85,
		))
	}
	return findings
}
