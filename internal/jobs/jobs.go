// Package jobs serializes the application's long-running work. Scrape,
// export, and analysis all contend for a single slot: the browser page
// is a shared mutable resource and two drivers manipulating it at once
// would corrupt both sessions. The rest of the codebase assumes this
// guarantee and does no locking of its own.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"scrollback/internal/logging"
)

// ErrBusy is returned when another job already holds the slot. Callers
// fail fast rather than queueing; the operator decides whether to retry.
var ErrBusy = errors.New("another job is already running")

// Kind labels what a job does.
type Kind string

const (
	KindScrape   Kind = "scrape"
	KindExport   Kind = "export"
	KindAnalysis Kind = "analysis"
	KindHydrate  Kind = "hydrate"
)

// Job describes one admitted unit of work.
type Job struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	StartedAt time.Time `json:"started_at"`
}

// Gate admits at most one job at a time.
type Gate struct {
	sem *semaphore.Weighted

	mu      sync.Mutex
	current *Job
}

// NewGate returns a Gate with an empty slot.
func NewGate() *Gate {
	return &Gate{sem: semaphore.NewWeighted(1)}
}

// Run executes fn under the slot, or fails fast with ErrBusy when
// another job holds it. The slot is released when fn returns, whether
// it succeeded or not.
func (g *Gate) Run(ctx context.Context, kind Kind, fn func(ctx context.Context) error) error {
	if !g.sem.TryAcquire(1) {
		current := g.Current()
		if current != nil {
			return fmt.Errorf("%w (%s %s since %s)", ErrBusy,
				current.Kind, current.ID, current.StartedAt.Format(time.RFC3339))
		}
		return ErrBusy
	}
	defer g.sem.Release(1)

	job := &Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		StartedAt: time.Now(),
	}
	g.mu.Lock()
	g.current = job
	g.mu.Unlock()
	logging.Jobs("job %s admitted (%s)", job.ID, kind)

	defer func() {
		g.mu.Lock()
		g.current = nil
		g.mu.Unlock()
	}()

	err := fn(ctx)
	if err != nil {
		logging.Jobs("job %s finished with error after %v: %v", job.ID, time.Since(job.StartedAt), err)
		return err
	}
	logging.Jobs("job %s finished in %v", job.ID, time.Since(job.StartedAt))
	return nil
}

// Current returns a snapshot of the running job, or nil when the slot
// is free.
func (g *Gate) Current() *Job {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current == nil {
		return nil
	}
	snapshot := *g.current
	return &snapshot
}
