// Package learning persists remediation outcomes and serves the aggregates
// the decision engine uses to adjust risk. The store is append-only JSONL:
// records are never overwritten, aggregation happens at read time from
// in-memory rollups rebuilt on open.
package learning

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/remedyd/internal/logging"
	"github.com/fyrsmithlabs/remedyd/internal/record"
)

// Key identifies one (issue_type, fix_type) outcome population.
type Key struct {
	IssueType record.IssueType
	FixType   record.FixType
}

// Aggregate is the rolled-up outcome statistics for one key.
type Aggregate struct {
	Attempts         int
	Successes        int
	TotalTimeToFix   time.Duration
	TotalSideEffects int
}

// SuccessRate returns successes/attempts; 0 with no attempts.
func (a Aggregate) SuccessRate() float64 {
	if a.Attempts == 0 {
		return 0
	}
	return float64(a.Successes) / float64(a.Attempts)
}

// MeanTimeToFix returns the average fix duration; 0 with no attempts.
func (a Aggregate) MeanTimeToFix() time.Duration {
	if a.Attempts == 0 {
		return 0
	}
	return a.TotalTimeToFix / time.Duration(a.Attempts)
}

// SideEffectRate returns side effects per attempt.
func (a Aggregate) SideEffectRate() float64 {
	if a.Attempts == 0 {
		return 0
	}
	return float64(a.TotalSideEffects) / float64(a.Attempts)
}

// adjustment bounds. A pair with a perfect record halves its effective risk
// and effort; a disastrous one at most doubles them.
const (
	adjustmentMin = 0.5
	adjustmentMax = 2.0
)

// Adjustment is the historical multiplier applied to a fix type's static
// effort and risk. 1.0 is neutral (no history). Failures and side effects
// push it up, successes pull it down.
func (a Aggregate) Adjustment() float64 {
	if a.Attempts == 0 {
		return 1.0
	}
	adj := 1.0 + (1.0-2.0*a.SuccessRate())*0.5 + a.SideEffectRate()*0.25
	if adj < adjustmentMin {
		adj = adjustmentMin
	}
	if adj > adjustmentMax {
		adj = adjustmentMax
	}
	return adj
}

// Store is the append-only learning sink.
type Store struct {
	mu     sync.RWMutex
	file   *os.File
	aggs   map[Key]Aggregate
	logger *logging.Logger
}

// Open opens (or creates) the learning log and rebuilds aggregates by
// replaying it. A corrupt line is skipped with a warning, never fatal: a
// partial record from a crash must not take the pipeline down.
func Open(path string, logger *logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("learning: create directory: %w", err)
		}
	}

	aggs := make(map[Key]Aggregate)
	if f, err := os.Open(path); err == nil {
		scanner := bufio.NewScanner(f)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			var rec record.LearningRecord
			if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
				logger.Warn(context.Background(), "skipping corrupt learning record",
					zap.Int("line", lineNo), zap.Error(err))
				continue
			}
			fold(aggs, rec)
		}
		closeErr := f.Close()
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("learning: replay log: %w", err)
		}
		if closeErr != nil {
			return nil, fmt.Errorf("learning: replay log: %w", closeErr)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("learning: open log: %w", err)
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("learning: open log for append: %w", err)
	}
	return &Store{file: file, aggs: aggs, logger: logger}, nil
}

// Append persists one outcome and folds it into the aggregates.
func (s *Store) Append(ctx context.Context, rec record.LearningRecord) error {
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("learning: marshal record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("learning: append record: %w", err)
	}
	fold(s.aggs, rec)

	s.logger.Info(ctx, "learning record appended",
		zap.String("issue_type", string(rec.IssueType)),
		zap.String("fix_type", string(rec.FixType)),
		zap.Bool("success", rec.Success),
		zap.Int("side_effects", rec.SideEffectsIntroduced),
	)
	return nil
}

// Aggregate returns the rollup for a key; ok is false with no history.
func (s *Store) Aggregate(issue record.IssueType, fix record.FixType) (Aggregate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agg, ok := s.aggs[Key{IssueType: issue, FixType: fix}]
	return agg, ok
}

// Adjustment implements the decision engine's history interface.
func (s *Store) Adjustment(issue record.IssueType, fix record.FixType) float64 {
	agg, _ := s.Aggregate(issue, fix)
	return agg.Adjustment()
}

// Close flushes and closes the log.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

func fold(aggs map[Key]Aggregate, rec record.LearningRecord) {
	key := Key{IssueType: rec.IssueType, FixType: rec.FixType}
	agg := aggs[key]
	agg.Attempts++
	if rec.Success {
		agg.Successes++
	}
	agg.TotalTimeToFix += rec.TimeToFix
	agg.TotalSideEffects += rec.SideEffectsIntroduced
	aggs[key] = agg
}
