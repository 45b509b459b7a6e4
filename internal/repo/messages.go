package repo

import (
	"context"
	"errors"
	"time"

	"github.com/smswave/smswave/internal/model"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrAlreadyProcessing means the message is not in a state that
	// allows dispatch to begin (already sending, or terminal).
	ErrAlreadyProcessing = errors.New("message is not dispatchable")

	// ErrNotScheduled means cancellation was attempted on a message
	// that is not in the scheduled state.
	ErrNotScheduled = errors.New("message is not scheduled")
)

type MessageRepository interface {
	Create(ctx context.Context, m *model.Message) error
	Get(ctx context.Context, id string) (*model.Message, error)

	// BeginSending atomically moves a draft or scheduled message to
	// sending. It is the guard that keeps two dispatch runs off the
	// same message: the loser gets ErrAlreadyProcessing.
	BeginSending(ctx context.Context, id string) error

	// Finalize records the dispatch run's aggregate outcome.
	Finalize(ctx context.Context, id string, status model.MessageStatus, successCount, failedCount int, cost float64, sentAt time.Time) error

	// CancelScheduled moves a scheduled message to cancelled. Only
	// scheduled messages qualify; anything else is ErrNotScheduled.
	CancelScheduled(ctx context.Context, id, userID string) error

	// ClaimDueScheduled lists scheduled messages whose send time has
	// passed. BeginSending is the actual claim; this is just the scan.
	ClaimDueScheduled(ctx context.Context, limit int) ([]model.Message, error)

	UsageStats(ctx context.Context, userID string) (*model.AnalyticsUpdate, error)
}

type RecipientRepository interface {
	InsertBulk(ctx context.Context, recipients []model.MessageRecipient) error
	ListByMessage(ctx context.Context, messageID string) ([]model.MessageRecipient, error)

	// UpdateStatusByPhone updates every recipient row matching
	// (messageID, phone). sentAt is stamped only on transition to
	// sent, deliveredAt only on delivered; neither is ever cleared.
	UpdateStatusByPhone(ctx context.Context, messageID, phone string, status model.RecipientStatus, errorMessage, carrierSID *string, cost float64) error

	GetByPhone(ctx context.Context, messageID, phone string) (*model.MessageRecipient, error)
}
