package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/smswave/smswave/internal/dispatch"
	"github.com/smswave/smswave/internal/hub"
	"github.com/smswave/smswave/internal/model"
	"github.com/smswave/smswave/internal/phone"
	"github.com/smswave/smswave/internal/repo"
)

var (
	// ErrValidation covers bad input rejected before any row exists.
	ErrValidation = errors.New("validation failed")

	// ErrResolution covers contact/group references that do not
	// resolve for the calling user.
	ErrResolution = errors.New("recipient resolution failed")
)

// BulkSender drives the actual carrier fan-out.
type BulkSender interface {
	SendBulk(ctx context.Context, destinations []string, body string) dispatch.Report
}

// StatusRecorder persists and publishes one recipient transition.
type StatusRecorder interface {
	RecordStatus(ctx context.Context, messageID, phone string, status model.RecipientStatus, errorMessage, carrierSID *string, cost float64)
}

// ContactResolver expands contact and group references into concrete
// destinations, scoped to the owning user.
type ContactResolver interface {
	ResolveContacts(ctx context.Context, userID string, contactIDs []string) ([]model.Recipient, error)
	ResolveGroups(ctx context.Context, userID string, groupIDs []string) ([]model.Recipient, error)
}

type Notifier interface {
	BroadcastToUser(userID, event string, data any)
	BroadcastToRoom(room, event string, data any)
}

// SideEffects accepts fire-and-forget work (analytics recompute).
type SideEffects interface {
	Enqueue(name string, run func(context.Context) error) bool
}

type AnalyticsRecomputer interface {
	Recompute(ctx context.Context, userID string) error
}

type SendRequest struct {
	Content      string     `json:"content" validate:"required"`
	Recipients   []string   `json:"recipients"`
	ContactIDs   []string   `json:"contactIds"`
	GroupIDs     []string   `json:"groupIds"`
	ScheduledFor *time.Time `json:"scheduledFor"`
	TemplateID   *string    `json:"templateId"`
}

// Orchestrator owns the message lifecycle: it resolves recipients,
// creates the rows, runs dispatch, and finalizes status. It is the only
// writer of message status transitions.
type Orchestrator struct {
	messages   repo.MessageRepository
	recipients repo.RecipientRepository
	sender     BulkSender
	recorder   StatusRecorder
	resolver   ContactResolver
	notifier   Notifier
	effects    SideEffects
	analytics  AnalyticsRecomputer

	validate       *validator.Validate
	contentMax     int
	domesticPrefix string
}

func NewOrchestrator(
	messages repo.MessageRepository,
	recipients repo.RecipientRepository,
	sender BulkSender,
	recorder StatusRecorder,
	resolver ContactResolver,
	notifier Notifier,
	effects SideEffects,
	analytics AnalyticsRecomputer,
	contentMax int,
	domesticPrefix string,
) *Orchestrator {
	return &Orchestrator{
		messages:       messages,
		recipients:     recipients,
		sender:         sender,
		recorder:       recorder,
		resolver:       resolver,
		notifier:       notifier,
		effects:        effects,
		analytics:      analytics,
		validate:       validator.New(),
		contentMax:     contentMax,
		domesticPrefix: domesticPrefix,
	}
}

// Send validates the request, resolves and dedups the recipient set,
// persists the message, and either schedules it or dispatches it right
// away. Nothing is persisted when validation or resolution fails.
func (o *Orchestrator) Send(ctx context.Context, userID string, req SendRequest) (*model.Message, error) {
	if err := o.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if o.contentMax > 0 && len([]rune(req.Content)) > o.contentMax {
		return nil, fmt.Errorf("%w: content exceeds %d characters", ErrValidation, o.contentMax)
	}

	resolved, err := o.resolveRecipients(ctx, userID, req)
	if err != nil {
		return nil, err
	}
	if len(resolved) == 0 {
		return nil, fmt.Errorf("%w: no recipients", ErrValidation)
	}

	now := time.Now().UTC()
	status := model.MessageDraft
	var scheduledFor *time.Time
	if req.ScheduledFor != nil && req.ScheduledFor.After(now) {
		status = model.MessageScheduled
		t := req.ScheduledFor.UTC()
		scheduledFor = &t
	}

	msg := &model.Message{
		ID:              uuid.NewString(),
		UserID:          userID,
		Content:         req.Content,
		Channel:         "sms",
		Status:          status,
		ScheduledFor:    scheduledFor,
		TotalRecipients: len(resolved),
		TemplateID:      req.TemplateID,
	}
	if err := o.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	rows := make([]model.MessageRecipient, 0, len(resolved))
	for _, rec := range resolved {
		row := model.MessageRecipient{
			ID:        uuid.NewString(),
			MessageID: msg.ID,
			Phone:     rec.Phone,
			Name:      rec.Name,
			Status:    model.RecipientPending,
		}
		if rec.ContactID != "" {
			id := rec.ContactID
			row.ContactID = &id
		}
		rows = append(rows, row)
	}
	if err := o.recipients.InsertBulk(ctx, rows); err != nil {
		return nil, fmt.Errorf("insert recipients: %w", err)
	}

	slog.Info("message created",
		"message_id", msg.ID,
		"user_id", userID,
		"recipients", len(rows),
		"status", msg.Status,
	)

	if status == model.MessageScheduled {
		return msg, nil
	}
	return o.Process(ctx, msg.ID)
}

// resolveRecipients merges explicit numbers with contact and group
// expansions, normalizes every destination, and collapses duplicates.
// The first occurrence of a number wins, so an explicit entry keeps its
// position over a later group hit.
func (o *Orchestrator) resolveRecipients(ctx context.Context, userID string, req SendRequest) ([]model.Recipient, error) {
	var all []model.Recipient

	for _, raw := range req.Recipients {
		normalized, err := phone.Normalize(raw, o.domesticPrefix)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid recipient number %q", ErrValidation, raw)
		}
		all = append(all, model.Recipient{Phone: normalized})
	}

	if len(req.ContactIDs) > 0 {
		contacts, err := o.resolver.ResolveContacts(ctx, userID, req.ContactIDs)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrResolution, err)
		}
		all = append(all, contacts...)
	}
	if len(req.GroupIDs) > 0 {
		members, err := o.resolver.ResolveGroups(ctx, userID, req.GroupIDs)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrResolution, err)
		}
		all = append(all, members...)
	}

	seen := make(map[string]bool, len(all))
	out := make([]model.Recipient, 0, len(all))
	for _, rec := range all {
		normalized, err := phone.Normalize(rec.Phone, o.domesticPrefix)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid recipient number %q", ErrValidation, rec.Phone)
		}
		if seen[normalized] {
			continue
		}
		seen[normalized] = true
		rec.Phone = normalized
		out = append(out, rec)
	}
	return out, nil
}

// Process runs one full dispatch for a message. Callers must not invoke
// it twice for the same id; the sending-status precondition makes the
// second caller fail fast with ErrAlreadyProcessing.
func (o *Orchestrator) Process(ctx context.Context, messageID string) (*model.Message, error) {
	// The run must outlive the caller: an HTTP client disconnect or a
	// scheduler tick timeout must not abort sends or finalization, or
	// the message would be stuck in sending with stale counts.
	ctx = context.WithoutCancel(ctx)

	if err := o.messages.BeginSending(ctx, messageID); err != nil {
		return nil, err
	}

	msg, err := o.messages.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	rows, err := o.recipients.ListByMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}

	// Subscribers must see the sending transition before any
	// recipient event from this run.
	o.emitMessageUpdate(msg)

	destinations := make([]string, len(rows))
	for i, r := range rows {
		destinations[i] = r.Phone
	}

	report := o.sender.SendBulk(ctx, destinations, msg.Content)

	for _, outcome := range report.Outcomes {
		status := model.RecipientSent
		var errMsg *string
		var sid *string
		if !outcome.Success {
			status = model.RecipientFailed
			reason := outcome.ErrorReason
			errMsg = &reason
		} else if outcome.ProviderMessageID != "" {
			id := outcome.ProviderMessageID
			sid = &id
		}
		o.recorder.RecordStatus(ctx, messageID, outcome.Phone, status, errMsg, sid, outcome.Cost)
	}

	finalStatus := model.MessageSent
	if report.TotalFailed > 0 {
		finalStatus = model.MessageFailed
	}

	sentAt := time.Now().UTC()
	if err := o.messages.Finalize(ctx, messageID, finalStatus, report.TotalSent, report.TotalFailed, report.TotalCost, sentAt); err != nil {
		return nil, fmt.Errorf("finalize message: %w", err)
	}

	msg.Status = finalStatus
	msg.SuccessCount = report.TotalSent
	msg.FailedCount = report.TotalFailed
	msg.Cost = report.TotalCost
	msg.SentAt = &sentAt

	o.emitMessageUpdate(msg)
	o.notifyCompletion(msg)

	userID := msg.UserID
	o.effects.Enqueue("analytics-recompute", func(taskCtx context.Context) error {
		return o.analytics.Recompute(taskCtx, userID)
	})

	slog.Info("dispatch run completed",
		"message_id", messageID,
		"status", finalStatus,
		"sent", report.TotalSent,
		"failed", report.TotalFailed,
		"cost", report.TotalCost,
	)

	return msg, nil
}

// Cancel moves a scheduled message to cancelled. Recipient rows are
// left untouched.
func (o *Orchestrator) Cancel(ctx context.Context, messageID, userID string) error {
	if err := o.messages.CancelScheduled(ctx, messageID, userID); err != nil {
		return err
	}

	o.notifier.BroadcastToUser(userID, model.EventMessageUpdate, model.MessageUpdate{
		MessageID: messageID,
		Status:    model.MessageCancelled,
	})
	return nil
}

// Status returns a message with its recipients, scoped to the owner.
func (o *Orchestrator) Status(ctx context.Context, messageID, userID string) (*model.Message, []model.MessageRecipient, error) {
	msg, err := o.messages.Get(ctx, messageID)
	if err != nil {
		return nil, nil, err
	}
	if msg.UserID != userID {
		return nil, nil, repo.ErrNotFound
	}

	rows, err := o.recipients.ListByMessage(ctx, messageID)
	if err != nil {
		return nil, nil, err
	}
	return msg, rows, nil
}

func (o *Orchestrator) notifyCompletion(msg *model.Message) {
	n := model.Notification{
		Title: "Message sent",
		Body:  fmt.Sprintf("Delivered to %d of %d recipients", msg.SuccessCount, msg.TotalRecipients),
		Type:  "success",
		At:    time.Now().UTC(),
	}
	if msg.Status == model.MessageFailed {
		n.Title = "Message failed"
		n.Body = fmt.Sprintf("%d of %d recipients failed", msg.FailedCount, msg.TotalRecipients)
		n.Type = "error"
	}
	o.notifier.BroadcastToUser(msg.UserID, model.EventNotification, n)
}

func (o *Orchestrator) emitMessageUpdate(msg *model.Message) {
	update := model.MessageUpdate{
		MessageID:       msg.ID,
		Status:          msg.Status,
		TotalRecipients: msg.TotalRecipients,
		SuccessCount:    msg.SuccessCount,
		FailedCount:     msg.FailedCount,
		Cost:            msg.Cost,
	}
	o.notifier.BroadcastToUser(msg.UserID, model.EventMessageUpdate, update)
	o.notifier.BroadcastToRoom(hub.MessageRoom(msg.ID), model.EventMessageUpdate, update)
}
