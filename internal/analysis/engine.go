// Package analysis converts raw observations into evidenced, confidence
// scored findings. One analyzer exists per issue family; each groups related
// observations, assigns severity from a fixed table, and computes confidence
// from corroboration count and signal clarity. Findings below the
// configured confidence floor are discarded, not forwarded: the engine
// never passes uncertain guesses downstream.
package analysis

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/remedyd/internal/logging"
	"github.com/fyrsmithlabs/remedyd/internal/record"
)

// Analyzer detects one family of issues in the observation set.
type Analyzer interface {
	Name() string
	// Accepts reports whether records of this collector type belong to this
	// analyzer's subset. Subsets may be routed to several analyzers; each
	// analyzer inspects a disjoint slice of the payload.
	Accepts(ct record.CollectorType) bool
	Analyze(records []record.ObservationRecord) []record.Finding
}

// Engine runs all analyzers over a gathering phase's observations.
type Engine struct {
	analyzers []Analyzer
	floor     float64
	logger    *logging.Logger
}

// NewEngine builds an engine with the standard analyzer set.
func NewEngine(floor float64, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Engine{
		analyzers: []Analyzer{
			&ErrorPattern{},
			&PerformanceBottleneck{},
			&BehavioralRegression{},
			&ResourceIntegrity{},
			&Quality{},
		},
		floor:  floor,
		logger: logger,
	}
}

// Analyze fans the analyzers out in parallel over their record subsets and
// returns the merged findings that clear the confidence floor. Findings are
// ordered deterministically for a given input set.
func (e *Engine) Analyze(ctx context.Context, records []record.ObservationRecord) ([]record.Finding, error) {
	var (
		mu  sync.Mutex
		all []record.Finding
	)

	g, _ := errgroup.WithContext(ctx)
	for _, a := range e.analyzers {
		subset := subsetFor(a, records)
		if len(subset) == 0 {
			continue
		}
		g.Go(func() error {
			findings := a.Analyze(subset)
			mu.Lock()
			all = append(all, findings...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	kept := all[:0]
	for _, f := range all {
		if f.Confidence < e.floor {
			e.logger.Debug(ctx, "finding below confidence floor, dropped",
				zap.String("issue_type", string(f.IssueType)),
				zap.Float64("confidence", f.Confidence),
			)
			continue
		}
		if len(f.Evidence) == 0 {
			// An analyzer bug, not a data condition. Never forward.
			e.logger.Error(ctx, "finding without evidence discarded",
				zap.String("issue_type", string(f.IssueType)),
			)
			continue
		}
		kept = append(kept, f)
	}

	sort.Slice(kept, func(i, j int) bool {
		if kept[i].IssueType != kept[j].IssueType {
			return kept[i].IssueType < kept[j].IssueType
		}
		return kept[i].RootCauseText < kept[j].RootCauseText
	})
	return kept, nil
}

func subsetFor(a Analyzer, records []record.ObservationRecord) []record.ObservationRecord {
	var subset []record.ObservationRecord
	for _, r := range records {
		if a.Accepts(r.CollectorType) {
			subset = append(subset, r)
		}
	}
	return subset
}

// newFinding stamps ids onto an analyzed issue.
func newFinding(issue record.IssueType, sev record.Severity, scope []string, rootCause string, evidence []string, confidence float64) record.Finding {
	return record.Finding{
		FindingID:     record.NewCorrelationID(),
		CorrelationID: record.NewCorrelationID(),
		IssueType:     issue,
		Severity:      sev,
		AffectedScope: scope,
		RootCauseText: rootCause,
		Evidence:      evidence,
		Confidence:    confidence,
	}
}
