package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/smswave/smswave/internal/hub"
	"github.com/smswave/smswave/internal/model"
	"github.com/smswave/smswave/internal/phone"
	"github.com/smswave/smswave/internal/repo"
	"github.com/smswave/smswave/internal/service"
)

// Messenger is the message-lifecycle surface the HTTP layer needs.
type Messenger interface {
	Send(ctx context.Context, userID string, req service.SendRequest) (*model.Message, error)
	Cancel(ctx context.Context, messageID, userID string) error
	Status(ctx context.Context, messageID, userID string) (*model.Message, []model.MessageRecipient, error)
}

type UsageReader interface {
	Stats(ctx context.Context, userID string) (*model.AnalyticsUpdate, error)
}

type Presence interface {
	IsUserOnline(userID string) bool
	OnlineUserCount() int
	Stats() hub.Stats
}

type SchedulerControl interface {
	Start() bool
	Stop() bool
	IsRunning() bool
}

type Handler struct {
	messenger Messenger
	usage     UsageReader
	presence  Presence
	sched     SchedulerControl

	jwtSecret      string
	domesticPrefix string
}

func NewHandler(messenger Messenger, usage UsageReader, presence Presence, sched SchedulerControl, jwtSecret, domesticPrefix string) *Handler {
	return &Handler{
		messenger:      messenger,
		usage:          usage,
		presence:       presence,
		sched:          sched,
		jwtSecret:      jwtSecret,
		domesticPrefix: domesticPrefix,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req service.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid request body"})
		return
	}

	msg, err := h.messenger.Send(r.Context(), UserID(r.Context()), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

func (h *Handler) MessageStatus(w http.ResponseWriter, r *http.Request) {
	msg, recipients, err := h.messenger.Status(r.Context(), r.PathValue("id"), UserID(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":    msg,
		"recipients": recipients,
	})
}

func (h *Handler) CancelMessage(w http.ResponseWriter, r *http.Request) {
	if err := h.messenger.Cancel(r.Context(), r.PathValue("id"), UserID(r.Context())); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"cancelled": true})
}

func (h *Handler) ValidatePhone(w http.ResponseWriter, r *http.Request) {
	number := r.URL.Query().Get("number")
	if number == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "number query parameter is required"})
		return
	}

	normalized, err := phone.Normalize(number, h.domesticPrefix)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"valid": false})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"valid": true, "normalized": normalized})
}

func (h *Handler) UsageStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.usage.Stats(r.Context(), UserID(r.Context()))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to load usage stats"})
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) PresenceStats(w http.ResponseWriter, r *http.Request) {
	if user := r.URL.Query().Get("user"); user != "" {
		writeJSON(w, http.StatusOK, map[string]any{
			"userId": user,
			"online": h.presence.IsUserOnline(user),
		})
		return
	}

	writeJSON(w, http.StatusOK, h.presence.Stats())
}

func (h *Handler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

func (h *Handler) SchedulerStart(w http.ResponseWriter, r *http.Request) {
	h.sched.Start()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

func (h *Handler) SchedulerStop(w http.ResponseWriter, r *http.Request) {
	h.sched.Stop()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

// writeServiceError maps lifecycle errors onto HTTP statuses. Anything
// unrecognized is a 500 with a generic body so internals do not leak.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrValidation), errors.Is(err, service.ErrResolution):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
	case errors.Is(err, repo.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "message not found"})
	case errors.Is(err, repo.ErrNotScheduled), errors.Is(err, repo.ErrAlreadyProcessing):
		writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
