// Package engine drives batch jobs end to end: jobs run one at a time,
// tasks within a job run in parallel on the worker pool, and every
// result and lifecycle change is pushed to registered listeners.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"heiconv/internal/batch"
	"heiconv/internal/pool"
	"heiconv/internal/task"
)

// Listener receives engine notifications. Callbacks are invoked from
// the engine's processing goroutine and must not block for long.
type Listener interface {
	// OnResult fires once per completed task, after the job's counters
	// have been updated.
	OnResult(job *batch.Job, result task.Result)

	// OnJobUpdate fires on job lifecycle changes.
	OnJobUpdate(job *batch.Job)

	// OnPaused fires when the pool is paused and in-flight work has
	// fully drained.
	OnPaused()
}

// Engine owns one manager/pool pair. It is safe to call Pause, Resume,
// and Stop from other goroutines while Run is in progress.
type Engine struct {
	manager   *batch.Manager
	pool      *pool.Pool
	batchSize int

	stopRequested atomic.Bool

	mu        sync.Mutex
	listeners []Listener
}

// New wires an engine around an existing job queue and pool.
func New(manager *batch.Manager, p *pool.Pool, batchSize int) *Engine {
	if batchSize <= 0 {
		batchSize = pool.DefaultBatchSize
	}
	return &Engine{
		manager:   manager,
		pool:      p,
		batchSize: batchSize,
	}
}

// AddListener registers a notification target. All registered
// listeners receive every event.
func (e *Engine) AddListener(l Listener) {
	e.mu.Lock()
	e.listeners = append(e.listeners, l)
	e.mu.Unlock()
}

// Run executes queued jobs until none remain, the engine is stopped, or
// ctx is cancelled. Unscanned jobs are scanned first. Returns the
// context error when the run was cut short by ctx.
func (e *Engine) Run(ctx context.Context) error {
	e.stopRequested.Store(false)

	cancelWatch := context.AfterFunc(ctx, e.Stop)
	defer cancelWatch()

	for {
		if e.stopRequested.Load() {
			break
		}

		job := e.manager.NextJob()
		if job == nil {
			break
		}

		if job.ScanResult == nil {
			if _, err := e.manager.ScanJob(job, nil); err != nil {
				slog.Error("scan failed, skipping job", "job", job.ID, "error", err)
				e.notifyJob(job)
				continue
			}
			e.notifyJob(job)
		}

		tasks, err := e.manager.GenerateTasks(job)
		if err != nil {
			slog.Error("cannot generate tasks", "job", job.ID, "error", err)
			continue
		}

		e.manager.MarkProcessing(job)
		e.notifyJob(job)
		slog.Info("processing job", "job", job.ID, "files", job.TotalFiles, "workers", e.pool.Workers())

		e.pool.ProcessTasks(tasks, func(res task.Result) {
			e.manager.UpdateProgress(job, res)
			e.notifyResult(job, res)
			if job.IsComplete() {
				e.notifyJob(job)
			}
		}, e.batchSize, e.notifyPaused)

		if e.pool.Stopped() {
			e.manager.MarkCancelled(job)
			e.notifyJob(job)
			break
		}

		// A job with zero eligible files produces no results; it is
		// complete all the same.
		e.manager.FinishIfDrained(job)
		if job.IsComplete() {
			e.notifyJob(job)
		}
	}

	return ctx.Err()
}

// Pause holds back new task submissions; in-flight conversions finish.
func (e *Engine) Pause() {
	e.pool.Pause()
}

// Resume releases a paused run.
func (e *Engine) Resume() {
	e.pool.Resume()
}

// Stop ends the run cooperatively: the current job is cancelled and no
// further jobs start.
func (e *Engine) Stop() {
	e.stopRequested.Store(true)
	e.pool.Stop()
}

// WaitForIdle blocks until in-flight work has drained. See
// pool.WaitForIdle.
func (e *Engine) WaitForIdle(pollInterval time.Duration) {
	e.pool.WaitForIdle(pollInterval)
}

// IsPaused reports whether the pause gate is closed.
func (e *Engine) IsPaused() bool {
	return e.pool.IsPaused()
}

// Stats aggregates progress across all jobs in the queue.
func (e *Engine) Stats() batch.Stats {
	return e.manager.TotalStats()
}

func (e *Engine) snapshotListeners() []Listener {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Listener(nil), e.listeners...)
}

func (e *Engine) notifyResult(job *batch.Job, res task.Result) {
	for _, l := range e.snapshotListeners() {
		l.OnResult(job, res)
	}
}

func (e *Engine) notifyJob(job *batch.Job) {
	for _, l := range e.snapshotListeners() {
		l.OnJobUpdate(job)
	}
}

func (e *Engine) notifyPaused() {
	for _, l := range e.snapshotListeners() {
		l.OnPaused()
	}
}
