package api

import "net/http"

func Router(h *Handler, ws http.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", h.Health)

	mux.HandleFunc("POST /v1/messages/send", h.requireAuth(h.SendMessage))
	mux.HandleFunc("POST /v1/messages/bulk-send", h.requireAuth(h.SendMessage))
	mux.HandleFunc("GET /v1/messages/{id}/status", h.requireAuth(h.MessageStatus))
	mux.HandleFunc("DELETE /v1/messages/{id}", h.requireAuth(h.CancelMessage))

	mux.HandleFunc("GET /v1/phone/validate", h.requireAuth(h.ValidatePhone))
	mux.HandleFunc("GET /v1/usage-stats", h.requireAuth(h.UsageStats))
	mux.HandleFunc("GET /v1/presence", h.requireAuth(h.PresenceStats))

	mux.HandleFunc("GET /v1/scheduler/status", h.requireAuth(h.SchedulerStatus))
	mux.HandleFunc("POST /v1/scheduler/start", h.requireAuth(h.SchedulerStart))
	mux.HandleFunc("POST /v1/scheduler/stop", h.requireAuth(h.SchedulerStop))

	if ws != nil {
		mux.Handle("GET /v1/ws", ws)
	}

	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("smswave"))
	})

	return mux
}
