package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/smswave/smswave/internal/carrier"
	"github.com/smswave/smswave/internal/ratelimit"
)

// Outcome is the result of one recipient's send attempt.
type Outcome struct {
	Phone             string
	Success           bool
	ProviderMessageID string
	ErrorReason       string
	Cost              float64
}

// Report aggregates a full dispatch run.
type Report struct {
	TotalSent   int
	TotalFailed int
	TotalCost   float64
	Outcomes    []Outcome
}

// Engine fans a recipient list out to the carrier in fixed-size batches.
// Sends within a batch run concurrently; batches run strictly one after
// another with a throttle delay in between, so in-flight sends never
// exceed the batch size. Every recipient is attempted exactly once per
// run: a denied or failed send is recorded, never retried, and never
// aborts its siblings. A run is not cancellable; once started it attempts
// all recipients, and context cancellation only cuts the remaining
// inter-batch delays short (the sends themselves then fail fast and are
// recorded as failures).
type Engine struct {
	gateway    carrier.Gateway
	limiter    ratelimit.Limiter
	batchSize  int
	batchDelay time.Duration
}

func NewEngine(gateway carrier.Gateway, limiter ratelimit.Limiter, batchSize int, batchDelay time.Duration) *Engine {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &Engine{
		gateway:    gateway,
		limiter:    limiter,
		batchSize:  batchSize,
		batchDelay: batchDelay,
	}
}

func (e *Engine) SendBulk(ctx context.Context, destinations []string, body string) Report {
	report := Report{
		Outcomes: make([]Outcome, 0, len(destinations)),
	}

	for start := 0; start < len(destinations); start += e.batchSize {
		end := start + e.batchSize
		if end > len(destinations) {
			end = len(destinations)
		}
		batch := destinations[start:end]

		results := make([]Outcome, len(batch))
		g := new(errgroup.Group)
		for i, dest := range batch {
			i, dest := i, dest
			g.Go(func() error {
				results[i] = e.sendOne(ctx, dest, body)
				return nil
			})
		}
		_ = g.Wait()

		for _, res := range results {
			if res.Success {
				report.TotalSent++
				report.TotalCost += res.Cost
			} else {
				report.TotalFailed++
			}
			report.Outcomes = append(report.Outcomes, res)
		}

		slog.Info("dispatch batch completed",
			"from", start,
			"to", end,
			"sent", report.TotalSent,
			"failed", report.TotalFailed,
		)

		if end < len(destinations) && e.batchDelay > 0 {
			select {
			case <-time.After(e.batchDelay):
			case <-ctx.Done():
			}
		}
	}

	return report
}

func (e *Engine) sendOne(ctx context.Context, destination, body string) Outcome {
	decision := e.limiter.CheckAndConsume(ctx, destination)
	if !decision.Allowed {
		return Outcome{
			Phone:       destination,
			ErrorReason: fmt.Sprintf("rate limit exceeded, try again after %s", decision.ResetAt.Format(time.RFC3339)),
		}
	}

	res := e.gateway.Send(ctx, destination, body)
	return Outcome{
		Phone:             destination,
		Success:           res.Success,
		ProviderMessageID: res.ProviderMessageID,
		ErrorReason:       res.ErrorReason,
		Cost:              res.Cost,
	}
}
