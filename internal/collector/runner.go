package collector

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/remedyd/internal/logging"
	"github.com/fyrsmithlabs/remedyd/internal/record"
)

// Runner fans collectors out in parallel for one gathering phase.
// Collectors are mutually independent and read-only, so no locking is
// needed between them; the phase completes when the slowest collector
// returns or times out.
type Runner struct {
	collectors []Collector
	timeout    time.Duration
	logger     *logging.Logger
}

// NewRunner creates a gathering runner. timeout bounds each individual
// collector; a collector that exceeds it yields a CollectionError.
func NewRunner(collectors []Collector, timeout time.Duration, logger *logging.Logger) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{collectors: collectors, timeout: timeout, logger: logger}
}

// Gather runs every collector concurrently and returns the successful
// observations plus the collection errors. Collection errors are reported,
// not propagated: a failed collector reduces evidence, it never fails the
// phase. The only error returned is parent-context cancellation.
func (r *Runner) Gather(ctx context.Context, scope string) ([]record.ObservationRecord, []*CollectionError, error) {
	var (
		mu      sync.Mutex
		records []record.ObservationRecord
		errs    []*CollectionError
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range r.collectors {
		g.Go(func() error {
			cctx := gctx
			var cancel context.CancelFunc
			if r.timeout > 0 {
				cctx, cancel = context.WithTimeout(gctx, r.timeout)
				defer cancel()
			}

			rec, err := c.Collect(cctx, scope)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				cerr, ok := err.(*CollectionError)
				if !ok {
					cerr = &CollectionError{Collector: c.Type(), Err: err}
				}
				errs = append(errs, cerr)
				r.logger.Warn(ctx, "collector failed",
					zap.String("collector", string(c.Type())),
					zap.Error(cerr.Err),
				)
				return nil
			}
			records = append(records, rec)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	return records, errs, nil
}
