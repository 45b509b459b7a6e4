package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smswave/smswave/internal/model"
	"github.com/smswave/smswave/internal/repo"
)

// Processor runs one dispatch for a claimed message.
type Processor interface {
	Process(ctx context.Context, messageID string) (*model.Message, error)
}

// Scheduler periodically runs a tick function. Start fires an immediate
// tick; every tick runs under its own timeout and a panic in the tick
// never takes the loop down.
type Scheduler struct {
	interval    time.Duration
	tickTimeout time.Duration
	tick        func(context.Context)

	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(interval, tickTimeout time.Duration, tick func(context.Context)) (*Scheduler, error) {
	if interval <= 0 {
		return nil, errors.New("interval must be > 0")
	}
	if tickTimeout <= 0 {
		tickTimeout = interval
	}
	if tick == nil {
		return nil, errors.New("tick must not be nil")
	}
	return &Scheduler{
		interval:    interval,
		tickTimeout: tickTimeout,
		tick:        tick,
		done:        make(chan struct{}),
	}, nil
}

func (s *Scheduler) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running.Store(true)

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		slog.Info("scheduler started", "interval", s.interval.String())

		s.safeTick(ctx)

		for {
			select {
			case <-ctx.Done():
				slog.Info("scheduler stopping")
				return
			case <-ticker.C:
				s.safeTick(ctx)
			}
		}
	}()

	return true
}

func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return false
	}

	s.cancel()
	<-s.done
	s.running.Store(false)

	slog.Info("scheduler stopped")
	return true
}

func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

func (s *Scheduler) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("scheduler tick panic recovered", "panic", r)
		}
	}()

	tickCtx, cancel := context.WithTimeout(ctx, s.tickTimeout)
	defer cancel()

	start := time.Now()
	s.tick(tickCtx)
	slog.Info("scheduler tick completed", "duration_ms", time.Since(start).Milliseconds())
}

// DispatchTick builds the tick that promotes due scheduled messages into
// dispatch runs. Losing a race for a message is normal: another tick or
// an API call may have claimed it first, so ErrAlreadyProcessing is
// logged at debug level and skipped.
func DispatchTick(messages repo.MessageRepository, proc Processor, batchSize int) func(context.Context) {
	return func(ctx context.Context) {
		due, err := messages.ClaimDueScheduled(ctx, batchSize)
		if err != nil {
			slog.Error("failed to list due scheduled messages", "error", err)
			return
		}
		if len(due) == 0 {
			return
		}

		slog.Info("processing due scheduled messages", "count", len(due))

		for _, msg := range due {
			if ctx.Err() != nil {
				return
			}
			if _, err := proc.Process(ctx, msg.ID); err != nil {
				if errors.Is(err, repo.ErrAlreadyProcessing) {
					slog.Debug("scheduled message already claimed", "message_id", msg.ID)
					continue
				}
				slog.Error("failed to process scheduled message", "message_id", msg.ID, "error", err)
			}
		}
	}
}
