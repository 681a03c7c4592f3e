// Package pool executes conversion tasks across a bounded set of
// parallel workers. Processing can be paused, resumed, and stopped
// cooperatively; every submitted task yields exactly one resultable
// callback, in completion order.
package pool

import (
	"iter"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"heiconv/internal/task"
)

// Converter is the adapter contract the pool consumes. Convert must be
// total: failures come back inside the Result, never as panics.
type Converter interface {
	Convert(task.Task) task.Result
}

const (
	// maxWorkers caps the pool even on very large machines.
	maxWorkers = 32

	// DefaultBatchSize bounds how many tasks are queued to the pool at
	// once.
	DefaultBatchSize = 100

	// stoppedError is the synthetic failure reported for tasks that
	// were submitted but never reached the adapter.
	stoppedError = "processing stopped by user"
)

// Pool is a reusable worker pool. A Pool must not run two ProcessTasks
// calls concurrently.
type Pool struct {
	workers int
	convert Converter

	gate    *gate
	stopped atomic.Bool
	running atomic.Bool

	// active counts tasks submitted whose result has not yet been
	// delivered to the callback.
	active atomic.Int64

	// mu guards the in-flight counter and the one-shot paused
	// notification; it is never held across an adapter call.
	mu            sync.Mutex
	inFlight      int
	pauseNotified bool
	onPaused      func()
}

// New builds a pool around the given adapter. workers <= 0 selects a
// default from the available hardware parallelism.
func New(convert Converter, workers int) *Pool {
	if workers <= 0 {
		workers = min(maxWorkers, runtime.NumCPU()*2)
	}
	slog.Info("worker pool initialized", "workers", workers)
	return &Pool{
		workers: workers,
		convert: convert,
		gate:    newGate(true),
	}
}

// Workers returns the bounded worker count.
func (p *Pool) Workers() int {
	return p.workers
}

// ProcessTasks drains the task stream in chunks of batchSize, executing
// each task on the pool and handing every result to onResult as it
// completes. The call blocks until the stream is exhausted and all
// outstanding work has finished, or until the pool is stopped. onPaused
// fires at most once per pause cycle, when the pool is paused and the
// last in-flight task has drained.
func (p *Pool) ProcessTasks(tasks iter.Seq[task.Task], onResult func(task.Result), batchSize int, onPaused func()) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	// Each run starts clean: not stopped, not paused, not notified.
	p.stopped.Store(false)
	p.gate.Open()
	p.active.Store(0)
	p.mu.Lock()
	p.inFlight = 0
	p.onPaused = onPaused
	p.pauseNotified = false
	p.mu.Unlock()
	p.running.Store(true)

	jobs := make(chan task.Task, batchSize)
	results := make(chan task.Result, batchSize)

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker(jobs, results)
		}()
	}

	collectorDone := make(chan struct{})
	go func() {
		defer close(collectorDone)
		for res := range results {
			onResult(res)
			p.active.Add(-1)
		}
	}()

	next, stopIter := iter.Pull(tasks)
	chunk := make([]task.Task, 0, batchSize)
	exhausted := false

	for !exhausted && !p.stopped.Load() {
		chunk = chunk[:0]
		for len(chunk) < batchSize {
			if p.stopped.Load() {
				break
			}
			p.gate.Wait()
			if p.stopped.Load() {
				break
			}
			t, ok := next()
			if !ok {
				exhausted = true
				break
			}
			chunk = append(chunk, t)
		}

		for _, t := range chunk {
			if p.stopped.Load() {
				// Never-submitted tasks are dropped, not reported.
				break
			}
			p.gate.Wait()
			p.active.Add(1)
			jobs <- t
		}
	}
	stopIter()

	close(jobs)
	wg.Wait()
	close(results)
	<-collectorDone

	p.mu.Lock()
	p.onPaused = nil
	p.pauseNotified = false
	p.mu.Unlock()
	p.running.Store(false)

	slog.Info("worker pool processing complete", "stopped", p.stopped.Load())
}

func (p *Pool) worker(jobs <-chan task.Task, results chan<- task.Result) {
	for t := range jobs {
		p.gate.Wait()

		if p.stopped.Load() {
			// Already submitted: still owed a result.
			results <- task.Result{
				Success:   false,
				InputPath: t.InputPath,
				Error:     stoppedError,
				Timestamp: time.Now(),
			}
			continue
		}

		p.beginTask()
		res := p.convert.Convert(t)
		p.endTask()

		results <- res
	}
}

func (p *Pool) beginTask() {
	p.mu.Lock()
	p.inFlight++
	p.mu.Unlock()
}

// endTask decrements the in-flight counter and, when this was the last
// in-flight task while the pool is paused, fires the paused callback
// exactly once. This lets a caller detect "fully drained and paused"
// without polling.
func (p *Pool) endTask() {
	p.mu.Lock()
	p.inFlight--
	cb := p.pausedCallbackLocked()
	p.mu.Unlock()

	if cb != nil {
		cb()
	}
}

// pausedCallbackLocked arms the one-shot notification when the pool is
// paused with nothing in flight. Caller holds p.mu.
func (p *Pool) pausedCallbackLocked() func() {
	if p.pauseNotified || p.onPaused == nil || p.inFlight != 0 || p.gate.IsOpen() {
		return nil
	}
	p.pauseNotified = true
	return p.onPaused
}

// Pause holds back new work: the feeder stops submitting and workers
// stop starting tasks. In-flight conversions run to completion. No-op
// when already paused.
func (p *Pool) Pause() {
	if !p.gate.IsOpen() {
		slog.Info("worker pool already paused")
		return
	}

	slog.Info("pausing worker pool")
	p.gate.Close()

	// Nothing in flight means the decrement path will never fire.
	p.mu.Lock()
	var cb func()
	if p.running.Load() {
		cb = p.pausedCallbackLocked()
	}
	p.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// Resume releases the pause gate. No-op when already running.
func (p *Pool) Resume() {
	if p.gate.IsOpen() {
		slog.Info("worker pool already running")
		return
	}

	slog.Info("resuming worker pool")
	p.mu.Lock()
	p.pauseNotified = false
	p.mu.Unlock()
	p.gate.Open()
}

// Stop prevents new tasks from starting and releases the pause gate so
// paused workers can observe the stop rather than deadlock. In-flight
// work runs to completion.
func (p *Pool) Stop() {
	slog.Info("stopping worker pool")
	p.stopped.Store(true)
	p.gate.Open()
}

// IsRunning reports whether a ProcessTasks call is in progress and has
// not been stopped.
func (p *Pool) IsRunning() bool {
	return p.running.Load() && !p.stopped.Load()
}

// Stopped reports whether the last run was cut short by Stop.
func (p *Pool) Stopped() bool {
	return p.stopped.Load()
}

// IsPaused reports whether the pause gate is closed.
func (p *Pool) IsPaused() bool {
	return !p.gate.IsOpen()
}

// ActiveTaskCount is the number of submitted tasks whose result has not
// yet been delivered.
func (p *Pool) ActiveTaskCount() int {
	return int(p.active.Load())
}

// InFlightCount is the number of tasks currently inside the adapter,
// not merely queued.
func (p *Pool) InFlightCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inFlight
}

// WaitForIdle blocks until the pool is stopped, paused with no work in
// flight, or fully drained. Used after Pause to know when it is safe to
// present a quiesced state.
func (p *Pool) WaitForIdle(pollInterval time.Duration) {
	if pollInterval <= 0 {
		pollInterval = 200 * time.Millisecond
	}
	for {
		if p.stopped.Load() {
			return
		}
		if p.IsPaused() && p.InFlightCount() == 0 {
			return
		}
		if p.ActiveTaskCount() == 0 {
			return
		}
		time.Sleep(pollInterval)
	}
}
