package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smswave/smswave/internal/model"
	"github.com/smswave/smswave/internal/repo"
)

func TestNew_InvalidArgs(t *testing.T) {
	t.Parallel()

	t.Run("interval must be > 0", func(t *testing.T) {
		t.Parallel()

		s, err := New(0, time.Second, func(context.Context) {})
		if err == nil {
			t.Fatalf("expected error, got nil")
		}
		if s != nil {
			t.Fatalf("expected nil scheduler, got %#v", s)
		}
	})

	t.Run("tick must not be nil", func(t *testing.T) {
		t.Parallel()

		s, err := New(100*time.Millisecond, time.Second, nil)
		if err == nil {
			t.Fatalf("expected error, got nil")
		}
		if s != nil {
			t.Fatalf("expected nil scheduler, got %#v", s)
		}
	})
}

func TestScheduler_StartStop_Basics(t *testing.T) {
	var calls atomic.Int64

	s, err := New(10*time.Millisecond, time.Second, func(context.Context) {
		calls.Add(1)
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	if s.IsRunning() {
		t.Fatalf("expected scheduler not running initially")
	}

	if ok := s.Start(); !ok {
		t.Fatalf("expected Start() true on first call")
	}
	if !s.IsRunning() {
		t.Fatalf("expected scheduler running after Start()")
	}

	// Start should fail when already running.
	if ok := s.Start(); ok {
		t.Fatalf("expected Start() false when already running")
	}

	// There is an immediate tick on Start().
	waitForAtLeast(t, &calls, 1, 500*time.Millisecond)

	if ok := s.Stop(); !ok {
		t.Fatalf("expected Stop() true on first call")
	}
	if s.IsRunning() {
		t.Fatalf("expected scheduler not running after Stop()")
	}

	if ok := s.Stop(); ok {
		t.Fatalf("expected Stop() false when already stopped")
	}
}

func TestScheduler_DoesNotTickAfterStop(t *testing.T) {
	var calls atomic.Int64

	s, err := New(10*time.Millisecond, time.Second, func(context.Context) {
		calls.Add(1)
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	if ok := s.Start(); !ok {
		t.Fatalf("expected Start() true")
	}

	waitForAtLeast(t, &calls, 2, 750*time.Millisecond)
	beforeStop := calls.Load()

	if ok := s.Stop(); !ok {
		t.Fatalf("expected Stop() true")
	}

	time.Sleep(100 * time.Millisecond)
	afterStop := calls.Load()

	if afterStop != beforeStop {
		t.Fatalf("expected no ticks after Stop; before=%d after=%d", beforeStop, afterStop)
	}
}

func TestScheduler_ImmediateTickOnStart(t *testing.T) {
	var calls atomic.Int64

	s, err := New(10*time.Second, time.Second, func(context.Context) {
		calls.Add(1)
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	if ok := s.Start(); !ok {
		t.Fatalf("expected Start() true")
	}
	defer s.Stop()

	waitForAtLeast(t, &calls, 1, 500*time.Millisecond)
}

func TestScheduler_PanicInTickIsRecoveredAndContinues(t *testing.T) {
	var calls atomic.Int64
	var panicked atomic.Bool

	s, err := New(10*time.Millisecond, time.Second, func(context.Context) {
		if panicked.CompareAndSwap(false, true) {
			panic("boom")
		}
		calls.Add(1)
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	if ok := s.Start(); !ok {
		t.Fatalf("expected Start() true")
	}
	defer s.Stop()

	waitForAtLeast(t, &calls, 1, 750*time.Millisecond)
}

func TestScheduler_TickContextHasDeadline(t *testing.T) {
	var hasDeadline atomic.Bool
	var ticked atomic.Int64

	s, err := New(10*time.Millisecond, 250*time.Millisecond, func(ctx context.Context) {
		if _, ok := ctx.Deadline(); ok {
			hasDeadline.Store(true)
		}
		ticked.Add(1)
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	if ok := s.Start(); !ok {
		t.Fatalf("expected Start() true")
	}
	defer s.Stop()

	waitForAtLeast(t, &ticked, 1, 500*time.Millisecond)

	if !hasDeadline.Load() {
		t.Fatalf("expected tick context to carry a deadline")
	}
}

func TestScheduler_TickContextCanceledOnStop(t *testing.T) {
	var capturedMu sync.Mutex
	var captured context.Context

	s, err := New(10*time.Millisecond, time.Hour, func(ctx context.Context) {
		capturedMu.Lock()
		if captured == nil {
			captured = ctx
		}
		capturedMu.Unlock()
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	if ok := s.Start(); !ok {
		t.Fatalf("expected Start() true")
	}

	deadline := time.Now().Add(500 * time.Millisecond)
	for {
		capturedMu.Lock()
		got := captured
		capturedMu.Unlock()

		if got != nil {
			break
		}
		if time.Now().After(deadline) {
			_ = s.Stop()
			t.Fatalf("did not capture tick context in time")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if ok := s.Stop(); !ok {
		t.Fatalf("expected Stop() true")
	}

	capturedMu.Lock()
	ctx := captured
	capturedMu.Unlock()

	select {
	case <-ctx.Done():
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("expected tick context to be canceled after Stop()")
	}
}

type fakeClaimRepo struct {
	mu  sync.Mutex
	due []model.Message
	err error
}

var _ repo.MessageRepository = (*fakeClaimRepo)(nil)

func (f *fakeClaimRepo) Create(ctx context.Context, m *model.Message) error { return nil }

func (f *fakeClaimRepo) Get(ctx context.Context, id string) (*model.Message, error) {
	return nil, repo.ErrNotFound
}

func (f *fakeClaimRepo) BeginSending(ctx context.Context, id string) error { return nil }

func (f *fakeClaimRepo) Finalize(ctx context.Context, id string, status model.MessageStatus, successCount, failedCount int, cost float64, sentAt time.Time) error {
	return nil
}

func (f *fakeClaimRepo) CancelScheduled(ctx context.Context, id, userID string) error { return nil }

func (f *fakeClaimRepo) ClaimDueScheduled(ctx context.Context, limit int) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if len(f.due) > limit {
		return f.due[:limit], nil
	}
	return f.due, nil
}

func (f *fakeClaimRepo) UsageStats(ctx context.Context, userID string) (*model.AnalyticsUpdate, error) {
	return &model.AnalyticsUpdate{UserID: userID}, nil
}

type fakeProcessor struct {
	mu        sync.Mutex
	processed []string
	errs      map[string]error
}

func (f *fakeProcessor) Process(ctx context.Context, messageID string) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed = append(f.processed, messageID)
	if err, ok := f.errs[messageID]; ok {
		return nil, err
	}
	return &model.Message{ID: messageID}, nil
}

func TestDispatchTick_ProcessesDueMessages(t *testing.T) {
	t.Parallel()

	claims := &fakeClaimRepo{due: []model.Message{{ID: "m1"}, {ID: "m2"}}}
	proc := &fakeProcessor{}

	DispatchTick(claims, proc, 20)(context.Background())

	if len(proc.processed) != 2 {
		t.Fatalf("expected 2 processed, got %v", proc.processed)
	}
}

func TestDispatchTick_RespectsBatchLimit(t *testing.T) {
	t.Parallel()

	claims := &fakeClaimRepo{due: []model.Message{{ID: "m1"}, {ID: "m2"}, {ID: "m3"}}}
	proc := &fakeProcessor{}

	DispatchTick(claims, proc, 2)(context.Background())

	if len(proc.processed) != 2 {
		t.Fatalf("expected batch of 2, got %v", proc.processed)
	}
}

func TestDispatchTick_LostRaceIsSkipped(t *testing.T) {
	t.Parallel()

	claims := &fakeClaimRepo{due: []model.Message{{ID: "m1"}, {ID: "m2"}}}
	proc := &fakeProcessor{errs: map[string]error{"m1": repo.ErrAlreadyProcessing}}

	DispatchTick(claims, proc, 20)(context.Background())

	// m1 losing the claim race must not stop m2 from dispatching.
	if len(proc.processed) != 2 {
		t.Fatalf("expected both messages attempted, got %v", proc.processed)
	}
}

func TestDispatchTick_ListFailureIsNonFatal(t *testing.T) {
	t.Parallel()

	claims := &fakeClaimRepo{err: errors.New("db down")}
	proc := &fakeProcessor{}

	DispatchTick(claims, proc, 20)(context.Background())

	if len(proc.processed) != 0 {
		t.Fatalf("expected nothing processed, got %v", proc.processed)
	}
}

func TestDispatchTick_StopsOnCanceledContext(t *testing.T) {
	t.Parallel()

	claims := &fakeClaimRepo{due: []model.Message{{ID: "m1"}, {ID: "m2"}}}
	proc := &fakeProcessor{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	DispatchTick(claims, proc, 20)(ctx)

	if len(proc.processed) != 0 {
		t.Fatalf("expected no processing on canceled context, got %v", proc.processed)
	}
}

// waitForAtLeast waits until calls >= n or fails the test after timeout.
// Uses polling to avoid test flakes across CI.
func waitForAtLeast(t *testing.T, calls *atomic.Int64, n int64, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		if calls.Load() >= n {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for calls >= %d (got %d)", n, calls.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}
}
