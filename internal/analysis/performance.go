package analysis

import (
	"fmt"
	"sort"

	"github.com/fyrsmithlabs/remedyd/internal/record"
)

// PerformanceBottleneck detects sustained spikes in the numeric series.
// A metric is a bottleneck when enough of its samples sit far above the
// series mean; an isolated spike is noise, not a finding.
type PerformanceBottleneck struct{}

func (a *PerformanceBottleneck) Name() string { return "performance-bottleneck" }

func (a *PerformanceBottleneck) Accepts(ct record.CollectorType) bool {
	return ct == record.CollectorPerformanceSample
}

const (
	// spikeFactor is how far above the mean a sample must sit to count.
	spikeFactor = 2.0
	// severeFactor marks a spike severe enough to raise severity.
	severeFactor = 3.0
	// minSamples is the minimum series length worth judging.
	minSamples = 3
)

func (a *PerformanceBottleneck) Analyze(records []record.ObservationRecord) []record.Finding {
	type series struct {
		samples  []record.Sample
		evidence map[string]struct{}
	}
	byMetric := make(map[string]*series)
	for _, rec := range records {
		for _, s := range rec.Payload.Samples {
			m, ok := byMetric[s.Metric]
			if !ok {
				m = &series{evidence: make(map[string]struct{})}
				byMetric[s.Metric] = m
			}
			m.samples = append(m.samples, s)
			m.evidence[rec.ID] = struct{}{}
		}
	}

	metrics := make([]string, 0, len(byMetric))
	for m := range byMetric {
		metrics = append(metrics, m)
	}
	sort.Strings(metrics)

	var findings []record.Finding
	for _, metric := range metrics {
		s := byMetric[metric]
		if len(s.samples) < minSamples {
			continue
		}

		var sum float64
		for _, sample := range s.samples {
			sum += sample.Value
		}
		mean := sum / float64(len(s.samples))
		if mean == 0 {
			continue
		}

		var spikes, severe int
		for _, sample := range s.samples {
			if sample.Value > severeFactor*mean {
				severe++
				spikes++
			} else if sample.Value > spikeFactor*mean {
				spikes++
			}
		}
		if spikes == 0 {
			continue
		}

		sev := record.SeverityMedium
		if severe > 0 {
			sev = record.SeverityHigh
		}

		// More corroborating spikes, more confidence.
		confidence := 0.5 + 0.1*float64(spikes)
		if confidence > 0.9 {
			confidence = 0.9
		}

		findings = append(findings, newFinding(
			record.IssuePerformanceHotspot,
			sev,
			[]string{metric},
			fmt.Sprintf("%d of %d samples of %s exceed %.0fx the series mean (%.2f)",
				spikes, len(s.samples), metric, spikeFactor, mean),
			evidenceIDs(s.evidence),
			confidence,
		))
	}
	return findings
}
