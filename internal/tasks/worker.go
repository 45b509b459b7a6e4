package tasks

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Worker runs fire-and-forget side effects off the request path, one at
// a time, so their failures are logged instead of silently dropped. The
// queue is bounded; when it is full the task is rejected rather than
// blocking the caller.
type Worker struct {
	queue   chan task
	timeout time.Duration

	mu      sync.Mutex
	stopped bool
	done    chan struct{}
}

type task struct {
	name string
	run  func(context.Context) error
}

func NewWorker(buffer int, timeout time.Duration) *Worker {
	if buffer <= 0 {
		buffer = 64
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Worker{
		queue:   make(chan task, buffer),
		timeout: timeout,
		done:    make(chan struct{}),
	}
}

func (w *Worker) Start() {
	go func() {
		defer close(w.done)
		for t := range w.queue {
			w.runOne(t)
		}
	}()
}

// Stop closes intake and waits for queued tasks to drain.
func (w *Worker) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		<-w.done
		return
	}
	w.stopped = true
	close(w.queue)
	w.mu.Unlock()

	<-w.done
}

// Enqueue submits a task. Returns false when the worker is stopped or
// the queue is full; the caller treats that like any other side-effect
// failure (logged, not fatal).
func (w *Worker) Enqueue(name string, run func(context.Context) error) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		slog.Warn("task rejected, worker stopped", "task", name)
		return false
	}

	select {
	case w.queue <- task{name: name, run: run}:
		return true
	default:
		slog.Warn("task rejected, queue full", "task", name)
		return false
	}
}

func (w *Worker) runOne(t task) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("task panic recovered", "task", t.name, "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	start := time.Now()
	if err := t.run(ctx); err != nil {
		slog.Error("task failed", "task", t.name, "error", err)
		return
	}
	slog.Debug("task completed", "task", t.name, "duration_ms", time.Since(start).Milliseconds())
}
