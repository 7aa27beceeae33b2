package orchestrator

import (
	"errors"
	"fmt"
	"time"
)

// ErrAlreadyRunning is returned by Start while a run is in progress.
var ErrAlreadyRunning = errors.New("orchestrator: run already in progress")

// ResourceExhausted reports an iteration that hit its wall-clock budget.
// The iteration is aborted; any in-flight implementation was forced through
// its commit-or-rollback transaction first, so no partial state survives.
type ResourceExhausted struct {
	Iteration int
	Budget    time.Duration
}

func (e *ResourceExhausted) Error() string {
	return fmt.Sprintf("orchestrator: iteration %d exhausted its %s budget", e.Iteration, e.Budget)
}
