package hub

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/smswave/smswave/internal/auth"
	"github.com/smswave/smswave/internal/model"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 25 * time.Second
	sendBufferSize = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// clientCommand is what clients send over the socket.
type clientCommand struct {
	Event string `json:"event"`
	Data  struct {
		Room           string `json:"room"`
		MessageID      string `json:"messageId"`
		NotificationID string `json:"notificationId"`
	} `json:"data"`
}

// Handler upgrades authenticated HTTP requests to websocket connections
// and bridges them into the registry.
type Handler struct {
	registry  *Registry
	jwtSecret string
}

func NewHandler(registry *Registry, jwtSecret string) *Handler {
	return &Handler{registry: registry, jwtSecret: jwtSecret}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := auth.BearerFromHeader(r.Header.Get("Authorization"))
	if token == "" {
		token = r.URL.Query().Get("token")
	}

	claims, err := auth.ValidateToken(token, h.jwtSecret)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &wsConn{
		ws:   ws,
		send: make(chan Envelope, sendBufferSize),
		done: make(chan struct{}),
	}

	connID := h.registry.Register(claims.UserID, c)

	go c.writePump()
	go h.readPump(c, connID, claims.UserID)
}

func (h *Handler) readPump(c *wsConn, connID, userID string) {
	defer func() {
		h.registry.Unregister(connID)
		_ = c.Close()
	}()

	c.ws.SetReadLimit(4096)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			return
		}

		var cmd clientCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			slog.Warn("unparseable client command", "user_id", userID, "error", err)
			continue
		}

		switch cmd.Event {
		case "join_room":
			h.registry.JoinRoom(connID, cmd.Data.Room)
		case "leave_room":
			h.registry.LeaveRoom(connID, cmd.Data.Room)
		case "track_message":
			h.registry.JoinRoom(connID, MessageRoom(cmd.Data.MessageID))
		case "untrack_message":
			h.registry.LeaveRoom(connID, MessageRoom(cmd.Data.MessageID))
		case "subscribe_analytics":
			h.registry.JoinRoom(connID, AnalyticsRoom(userID))
		case "unsubscribe_analytics":
			h.registry.LeaveRoom(connID, AnalyticsRoom(userID))
		case "mark_notification_read":
			// Notification read-state lives with the notification
			// store, which is outside this service.
			slog.Debug("mark_notification_read", "user_id", userID, "notification_id", cmd.Data.NotificationID)
		default:
			slog.Warn("unknown client command", "user_id", userID, "event", cmd.Event)
		}
	}
}

// wsConn adapts a gorilla websocket to the registry's Conn. Outbound
// events go through a buffered channel so one slow client cannot block
// a broadcast; when the buffer is full the event is dropped for that
// client.
type wsConn struct {
	ws   *websocket.Conn
	send chan Envelope
	done chan struct{}

	closeOnce sync.Once
}

func (c *wsConn) Send(e Envelope) error {
	select {
	case c.send <- e:
		return nil
	case <-c.done:
		return websocket.ErrCloseSent
	default:
		return errSendBufferFull
	}
}

var errSendBufferFull = &websocket.CloseError{Code: websocket.CloseTryAgainLater, Text: "send buffer full"}

// Close is safe to call from both pumps at once; only the first call
// tears the connection down.
func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.ws.Close()
	})
	return err
}

func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.Close()
	}()

	for {
		select {
		case e := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(e); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(Envelope{Event: model.EventPing}); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
