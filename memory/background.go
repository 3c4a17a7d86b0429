package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// Dispatcher runs the extraction pipeline in the background, off the reply path.
//
// Jobs are detached from the submitting request's cancellation, bounded by
// Config.ExtractionTimeout, and dropped when MaxConcurrentExtractions jobs
// are already running. There is no ordering between jobs.
type Dispatcher struct {
	pipeline *Pipeline
	sem      *semaphore.Weighted
	timeout  time.Duration

	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// NewDispatcher creates a dispatcher for pipeline.
func NewDispatcher(pipeline *Pipeline) *Dispatcher {
	cfg := pipeline.manager.config
	return &Dispatcher{
		pipeline: pipeline,
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrentExtractions)),
		timeout:  cfg.ExtractionTimeout,
	}
}

// Submit schedules turn for extraction and returns immediately.
// It reports false when the job was dropped (saturated or closed).
func (d *Dispatcher) Submit(ctx context.Context, turn Turn) bool {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return false
	}
	if !d.sem.TryAcquire(1) {
		d.mu.Unlock()
		slog.Warn("extraction dropped, dispatcher saturated",
			"component", "pipeline",
			"user_id", turn.UserID,
			"character_id", turn.CharacterID,
		)
		d.pipeline.manager.metrics.extraction("turn", "dropped")
		return false
	}
	d.wg.Add(1)
	d.mu.Unlock()

	jobID := uuid.New().String()
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)

	go func() {
		defer d.wg.Done()
		defer d.sem.Release(1)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("extraction job panicked",
					"component", "pipeline", "job_id", jobID, "panic", r)
			}
		}()

		start := time.Now()
		d.pipeline.Process(jobCtx, turn)
		slog.Debug("extraction job finished",
			"component", "pipeline",
			"job_id", jobID,
			"user_id", turn.UserID,
			"duration", time.Since(start),
		)
	}()
	return true
}

// Close stops accepting jobs and waits for in-flight ones or ctx expiry.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
