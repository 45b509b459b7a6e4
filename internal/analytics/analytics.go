package analytics

import (
	"context"
	"fmt"

	"github.com/smswave/smswave/internal/hub"
	"github.com/smswave/smswave/internal/model"
	"github.com/smswave/smswave/internal/repo"
)

type Notifier interface {
	BroadcastToRoom(room, event string, data any)
}

// Service recomputes a user's usage aggregates and pushes them to
// analytics subscribers. It runs off the dispatch path, usually via the
// background task worker.
type Service struct {
	messages repo.MessageRepository
	notifier Notifier
}

func New(messages repo.MessageRepository, notifier Notifier) *Service {
	return &Service{messages: messages, notifier: notifier}
}

// Recompute loads fresh aggregates for a user and broadcasts them to
// that user's analytics room.
func (s *Service) Recompute(ctx context.Context, userID string) error {
	stats, err := s.messages.UsageStats(ctx, userID)
	if err != nil {
		return fmt.Errorf("usage stats for %s: %w", userID, err)
	}

	s.notifier.BroadcastToRoom(hub.AnalyticsRoom(userID), model.EventAnalyticsUpdate, stats)
	return nil
}

// Stats returns the current aggregates without broadcasting.
func (s *Service) Stats(ctx context.Context, userID string) (*model.AnalyticsUpdate, error) {
	return s.messages.UsageStats(ctx, userID)
}
