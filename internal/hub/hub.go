package hub

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Envelope is one event as it travels to a client.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Conn is a live client channel. Send must be safe for concurrent use;
// delivery is best-effort and a failed Send only affects that client.
type Conn interface {
	Send(e Envelope) error
	Close() error
}

// Stats is a point-in-time view of the connection registry.
type Stats struct {
	TotalConnections int            `json:"totalConnections"`
	UniqueUsers      int            `json:"uniqueUsers"`
	PerUser          map[string]int `json:"perUser"`
}

// Room names.
func UserRoom(userID string) string       { return "user:" + userID }
func MessageRoom(messageID string) string { return "message:" + messageID }
func AnalyticsRoom(userID string) string  { return "analytics:" + userID }

// Registry owns the user -> connection mapping and room membership.
// It is the only component that touches this state; everything else
// goes through its methods. A user is online iff they have at least
// one registered connection.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*entry
	users map[string]map[string]*entry
	rooms map[string]map[string]*entry
}

type entry struct {
	id     string
	userID string
	conn   Conn
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]*entry),
		users: make(map[string]map[string]*entry),
		rooms: make(map[string]map[string]*entry),
	}
}

// Register adds a connection for a user and joins the per-user room.
// Returns the connection id used for all later calls.
func (r *Registry) Register(userID string, c Conn) string {
	e := &entry{id: uuid.NewString(), userID: userID, conn: c}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[e.id] = e
	if r.users[userID] == nil {
		r.users[userID] = make(map[string]*entry)
	}
	r.users[userID][e.id] = e
	r.joinLocked(e, UserRoom(userID))

	slog.Info("client connected", "user_id", userID, "conn_id", e.id)
	return e.id
}

// Unregister removes a connection; when it was the user's last one the
// user goes offline.
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[connID]
	if !ok {
		return
	}
	delete(r.conns, connID)

	for room, members := range r.rooms {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}

	if set, ok := r.users[e.userID]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.users, e.userID)
			slog.Info("user went offline", "user_id", e.userID)
		}
	}
}

func (r *Registry) JoinRoom(connID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[connID]
	if !ok {
		return
	}
	r.joinLocked(e, room)
}

func (r *Registry) LeaveRoom(connID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}

func (r *Registry) joinLocked(e *entry, room string) {
	if r.rooms[room] == nil {
		r.rooms[room] = make(map[string]*entry)
	}
	r.rooms[room][e.id] = e
}

// BroadcastToUser sends to every connection of one user.
func (r *Registry) BroadcastToUser(userID, event string, data any) {
	r.BroadcastToRoom(UserRoom(userID), event, data)
}

// BroadcastToRoom sends to every member of a room. Send failures are
// logged and skipped; real-time delivery is best-effort and clients
// reconcile through the status endpoints.
func (r *Registry) BroadcastToRoom(room, event string, data any) {
	r.mu.RLock()
	targets := make([]*entry, 0, len(r.rooms[room]))
	for _, e := range r.rooms[room] {
		targets = append(targets, e)
	}
	r.mu.RUnlock()

	r.deliver(targets, event, data)
}

// BroadcastAll sends to every connected client.
func (r *Registry) BroadcastAll(event string, data any) {
	r.mu.RLock()
	targets := make([]*entry, 0, len(r.conns))
	for _, e := range r.conns {
		targets = append(targets, e)
	}
	r.mu.RUnlock()

	r.deliver(targets, event, data)
}

func (r *Registry) deliver(targets []*entry, event string, data any) {
	for _, e := range targets {
		if err := e.conn.Send(Envelope{Event: event, Data: data}); err != nil {
			slog.Error("event delivery failed", "event", event, "user_id", e.userID, "conn_id", e.id, "error", err)
		}
	}
}

func (r *Registry) IsUserOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID]) > 0
}

func (r *Registry) OnlineUserCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Stats{
		TotalConnections: len(r.conns),
		UniqueUsers:      len(r.users),
		PerUser:          make(map[string]int, len(r.users)),
	}
	for userID, set := range r.users {
		s.PerUser[userID] = len(set)
	}
	return s
}

// RoomSize reports current membership. Used by tests and the stats surface.
func (r *Registry) RoomSize(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}

func (r *Registry) String() string {
	s := r.Stats()
	return fmt.Sprintf("hub{conns=%d users=%d}", s.TotalConnections, s.UniqueUsers)
}
