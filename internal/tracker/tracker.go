package tracker

import (
	"context"
	"errors"
	"log/slog"

	"github.com/smswave/smswave/internal/hub"
	"github.com/smswave/smswave/internal/model"
	"github.com/smswave/smswave/internal/repo"
)

// Notifier is the slice of the hub the tracker needs.
type Notifier interface {
	BroadcastToUser(userID, event string, data any)
	BroadcastToRoom(room, event string, data any)
}

// Tracker persists per-recipient delivery transitions and pushes them
// to the message owner and to anyone tracking the message. Everything
// here is best-effort: a failed write or lookup is logged and the
// dispatch run carries on, leaving the row for the pull-based status
// endpoint to reconcile.
type Tracker struct {
	messages   repo.MessageRepository
	recipients repo.RecipientRepository
	notifier   Notifier
}

func New(messages repo.MessageRepository, recipients repo.RecipientRepository, notifier Notifier) *Tracker {
	return &Tracker{messages: messages, recipients: recipients, notifier: notifier}
}

// RecordStatus applies one status transition for (messageID, phone).
func (t *Tracker) RecordStatus(ctx context.Context, messageID, phone string, status model.RecipientStatus, errorMessage, carrierSID *string, cost float64) {
	msg, err := t.messages.Get(ctx, messageID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			slog.Warn("status update for unknown message", "message_id", messageID, "phone", phone)
		} else {
			slog.Error("failed to load message for status update", "message_id", messageID, "error", err)
		}
		return
	}

	if err := t.recipients.UpdateStatusByPhone(ctx, messageID, phone, status, errorMessage, carrierSID, cost); err != nil {
		slog.Error("failed to persist recipient status",
			"message_id", messageID,
			"phone", phone,
			"status", status,
			"error", err,
		)
		return
	}

	rec, err := t.recipients.GetByPhone(ctx, messageID, phone)
	if err != nil {
		slog.Error("failed to load recipient after status update", "message_id", messageID, "phone", phone, "error", err)
		return
	}

	update := model.RecipientUpdate{
		MessageID:   messageID,
		RecipientID: rec.ID,
		Phone:       rec.Phone,
		Status:      rec.Status,
	}
	if rec.ErrorMessage != nil {
		update.ErrorMessage = *rec.ErrorMessage
	}

	t.notifier.BroadcastToUser(msg.UserID, model.EventRecipientUpdate, update)
	t.notifier.BroadcastToRoom(hub.MessageRoom(messageID), model.EventRecipientUpdate, update)
}
