// Package worker runs background tasks with bounded concurrency, per-task
// deadlines and panic recovery.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/chldlstlr7-art/AITA-sub000/internal/observability"
)

// ErrPanic wraps a value recovered from a panicking task.
var ErrPanic = errors.New("worker: task panicked")

// ErrStopped is returned by Submit after Shutdown has begun.
var ErrStopped = errors.New("worker: runner stopped")

// Task is a unit of background work.
type Task struct {
	Name     string
	ReportID string
	Run      func(ctx context.Context) error
	// OnFailure runs on timeout or panic with a fresh context.
	OnFailure func(ctx context.Context, err error)
}

// Config bounds a Runner.
type Config struct {
	Concurrency int
	Timeout     time.Duration
}

// Runner executes tasks on goroutines gated by a weighted semaphore.
type Runner struct {
	sem     *semaphore.Weighted
	timeout time.Duration
	logger  zerolog.Logger

	base   context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// NewRunner builds a runner. Zero values fall back to 8 slots and a 10 minute timeout.
func NewRunner(cfg Config, logger zerolog.Logger) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}

	base, cancel := context.WithCancel(context.Background())
	return &Runner{
		sem:     semaphore.NewWeighted(int64(cfg.Concurrency)),
		timeout: cfg.Timeout,
		logger:  logger.With().Str("component", "worker").Logger(),
		base:    base,
		cancel:  cancel,
	}
}

// Submit schedules task and returns immediately.
func (r *Runner) Submit(task Task) error {
	if task.Run == nil {
		return fmt.Errorf("worker: task %q has no run func", task.Name)
	}

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return ErrStopped
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		r.execute(task)
	}()
	return nil
}

func (r *Runner) execute(task Task) {
	log := r.logger.With().Str("task", task.Name).Str("report_id", task.ReportID).Logger()

	if err := r.sem.Acquire(r.base, 1); err != nil {
		log.Warn().Err(err).Msg("task dropped before start")
		observability.WorkerTasks().WithLabelValues(task.Name, "dropped").Inc()
		return
	}
	defer r.sem.Release(1)

	observability.WorkerInFlight().Inc()
	defer observability.WorkerInFlight().Dec()

	ctx, cancel := context.WithTimeout(r.base, r.timeout)
	defer cancel()

	start := time.Now()
	err := r.safeRun(ctx, task)
	duration := time.Since(start)

	switch {
	case err == nil:
		observability.WorkerTasks().WithLabelValues(task.Name, "ok").Inc()
		log.Debug().Dur("duration", duration).Msg("task completed")
		return
	case errors.Is(err, ErrPanic):
		observability.WorkerTasks().WithLabelValues(task.Name, "panic").Inc()
		log.Error().Err(err).Dur("duration", duration).Msg("task panicked")
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		err = fmt.Errorf("task timed out after %s: %w", r.timeout, err)
		observability.WorkerTasks().WithLabelValues(task.Name, "timeout").Inc()
		log.Error().Err(err).Dur("duration", duration).Msg("task timed out")
	default:
		observability.WorkerTasks().WithLabelValues(task.Name, "error").Inc()
		log.Warn().Err(err).Dur("duration", duration).Msg("task failed")
		return
	}

	if task.OnFailure != nil {
		failCtx, failCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer failCancel()
		task.OnFailure(failCtx, err)
	}
}

func (r *Runner) safeRun(ctx context.Context, task Task) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, recovered)
			r.logger.Debug().Str("task", task.Name).Bytes("stack", debug.Stack()).Msg("panic stack")
		}
	}()
	return task.Run(ctx)
}

// Wait blocks until every submitted task has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Shutdown stops accepting tasks and waits for running ones until ctx expires,
// then cancels whatever is still running.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.cancel()
		<-done
		return ctx.Err()
	}
}
