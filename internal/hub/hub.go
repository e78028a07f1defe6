// Package hub fans realtime messages out to the WebSocket connections of a
// room and mirrors them to other instances through a Bridge.
package hub

import (
	"cmp"
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/playperu/motionquiz/internal/metrics"
	"github.com/playperu/motionquiz/internal/motionquiz"
)

const (
	DefaultQueueSize = 64
	outboxSize       = 1024
	bridgeTimeout    = 5 * time.Second
)

// Conn is one live client connection. The hub writes encoded messages to
// its queue; the connection's writer goroutine drains Send. The queue is
// closed when the hub drops or unregisters the connection.
type Conn struct {
	ID          string
	UserID      string
	RoomID      string
	DisplayName string

	send chan []byte
}

func NewConn(userID, roomID, displayName string, queueSize int) *Conn {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Conn{
		ID:          uuid.NewString(),
		UserID:      userID,
		RoomID:      roomID,
		DisplayName: displayName,
		send:        make(chan []byte, queueSize),
	}
}

func (c *Conn) Send() <-chan []byte { return c.send }

type room struct {
	conns       map[*Conn]struct{}
	users       map[string]int // live connections per user
	names       map[string]string
	unsubscribe func()
}

// Presence is one user's live footprint in a room.
type Presence struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Connections int    `json:"connections"`
}

type Hub struct {
	instanceID string
	logger     *slog.Logger
	bridge     Bridge
	presence   PresenceStore
	now        func() time.Time

	mu    sync.Mutex
	rooms map[string]*room

	outbox chan func(ctx context.Context)
}

type Option func(*Hub)

func WithBridge(b Bridge) Option { return func(h *Hub) { h.bridge = b } }

func WithPresenceStore(p PresenceStore) Option { return func(h *Hub) { h.presence = p } }

func New(instanceID string, logger *slog.Logger, opts ...Option) *Hub {
	if instanceID == "" {
		instanceID = uuid.NewString()
	}
	h := &Hub{
		instanceID: instanceID,
		logger:     logger,
		now:        time.Now,
		rooms:      make(map[string]*room),
		outbox:     make(chan func(ctx context.Context), outboxSize),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) InstanceID() string { return h.instanceID }

// Run executes bridge publishes and presence writes in FIFO order until ctx
// is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case job := <-h.outbox:
			job(ctx)
		case <-ctx.Done():
			return nil
		}
	}
}

func (h *Hub) enqueue(job func(ctx context.Context)) {
	select {
	case h.outbox <- job:
	default:
		h.logger.Warn("hub outbox full, dropping bridge job")
	}
}

// Register adds c to its room. The initial messages (typically a
// room_update snapshot) go to c alone, ahead of anything broadcast later.
// The room hears player_joined only for the user's first connection.
func (h *Hub) Register(c *Conn, initial ...motionquiz.Message) {
	h.mu.Lock()
	r, ok := h.rooms[c.RoomID]
	if !ok {
		r = &room{
			conns: make(map[*Conn]struct{}),
			users: make(map[string]int),
			names: make(map[string]string),
		}
		h.rooms[c.RoomID] = r
		metrics.Rooms.Inc()
	}
	r.conns[c] = struct{}{}
	r.users[c.UserID]++
	r.names[c.UserID] = c.DisplayName
	first := r.users[c.UserID] == 1
	online := len(r.users)

	for _, m := range initial {
		data, err := json.Marshal(m)
		if err != nil {
			h.logger.Error("encoding message", "type", m.Type, "error", err)
			continue
		}
		c.send <- data
	}
	h.mu.Unlock()
	metrics.Connections.Inc()

	if !ok {
		h.subscribe(c.RoomID)
	}
	h.logger.Debug("connection registered", "room_id", c.RoomID, "user_id", c.UserID, "conn_id", c.ID)

	if first {
		h.announce(c.RoomID, motionquiz.MessagePlayerJoined, c.UserID, c.DisplayName, online)
	}
}

// Unregister removes c and closes its queue. It is safe to call more than
// once.
func (h *Hub) Unregister(c *Conn) {
	h.mu.Lock()
	last, online, ok := h.remove(c)
	h.mu.Unlock()
	if !ok {
		return
	}
	h.logger.Debug("connection unregistered", "room_id", c.RoomID, "user_id", c.UserID, "conn_id", c.ID)
	if last {
		h.announce(c.RoomID, motionquiz.MessagePlayerLeft, c.UserID, c.DisplayName, online)
	}
}

// remove must be called with h.mu held. It reports whether c was the
// user's last connection and how many users remain online.
func (h *Hub) remove(c *Conn) (last bool, online int, ok bool) {
	r, ok := h.rooms[c.RoomID]
	if !ok {
		return false, 0, false
	}
	if _, ok := r.conns[c]; !ok {
		return false, 0, false
	}
	delete(r.conns, c)
	close(c.send)
	metrics.Connections.Dec()

	r.users[c.UserID]--
	if r.users[c.UserID] == 0 {
		delete(r.users, c.UserID)
		delete(r.names, c.UserID)
		last = true
	}
	if len(r.conns) == 0 {
		delete(h.rooms, c.RoomID)
		metrics.Rooms.Dec()
		if r.unsubscribe != nil {
			unsubscribe := r.unsubscribe
			h.enqueue(func(context.Context) { unsubscribe() })
		}
	}
	return last, len(r.users), true
}

// Broadcast implements session.Broadcaster: local fan-out now, bridge
// publish through the outbox.
func (h *Hub) Broadcast(roomID string, msg motionquiz.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("encoding message", "type", msg.Type, "error", err)
		return
	}
	metrics.Broadcasts.WithLabelValues(string(msg.Type), "local").Inc()
	h.deliver(roomID, data)

	if h.bridge == nil {
		return
	}
	payload, err := json.Marshal(envelope{Origin: h.instanceID, Data: data})
	if err != nil {
		h.logger.Error("encoding bridge envelope", "error", err)
		return
	}
	h.enqueue(func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, bridgeTimeout)
		defer cancel()
		if err := h.bridge.Publish(ctx, roomID, payload); err != nil {
			h.logger.Error("bridge publish", "room_id", roomID, "error", err)
		}
	})
}

// Send queues msg for c alone. It reports false when c is gone or was
// dropped for being too slow.
func (h *Hub) Send(c *Conn, msg motionquiz.Message) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("encoding message", "type", msg.Type, "error", err)
		return false
	}

	h.mu.Lock()
	r, ok := h.rooms[c.RoomID]
	if ok {
		_, ok = r.conns[c]
	}
	if !ok {
		h.mu.Unlock()
		return false
	}
	select {
	case c.send <- data:
		h.mu.Unlock()
		return true
	default:
	}
	last, online, _ := h.remove(c)
	h.mu.Unlock()

	h.dropped(c, last, online)
	return false
}

// deliver writes data to every connection in roomID. A connection whose
// queue is full is dropped; the others are unaffected.
func (h *Hub) deliver(roomID string, data []byte) {
	type drop struct {
		c      *Conn
		last   bool
		online int
	}
	var drops []drop

	h.mu.Lock()
	if r, ok := h.rooms[roomID]; ok {
		for c := range r.conns {
			select {
			case c.send <- data:
			default:
				last, online, _ := h.remove(c)
				drops = append(drops, drop{c, last, online})
			}
		}
	}
	h.mu.Unlock()

	for _, d := range drops {
		h.dropped(d.c, d.last, d.online)
	}
}

func (h *Hub) dropped(c *Conn, last bool, online int) {
	metrics.Dropped.Inc()
	h.logger.Warn("dropping slow connection", "room_id", c.RoomID, "user_id", c.UserID, "conn_id", c.ID)
	if last {
		h.announce(c.RoomID, motionquiz.MessagePlayerLeft, c.UserID, c.DisplayName, online)
	}
}

func (h *Hub) announce(roomID string, t motionquiz.MessageType, userID, name string, online int) {
	msg, err := motionquiz.NewMessage(t, roomID, userID, motionquiz.PresenceEvent{
		UserID:      userID,
		DisplayName: name,
		Online:      online,
	}, h.now())
	if err != nil {
		h.logger.Error("encoding presence", "error", err)
		return
	}
	h.Broadcast(roomID, msg)
	h.recordPresence(roomID)
}

func (h *Hub) recordPresence(roomID string) {
	if h.presence == nil {
		return
	}
	users := h.Presence(roomID)
	state := RoomState{Count: len(users), UpdatedAt: h.now(), Participants: make([]string, len(users))}
	for i, p := range users {
		state.Participants[i] = p.UserID
	}
	h.enqueue(func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, bridgeTimeout)
		defer cancel()
		if err := h.presence.SetRoomState(ctx, roomID, state); err != nil {
			h.logger.Error("recording room state", "room_id", roomID, "error", err)
		}
	})
}

// subscribe attaches the bridge to roomID. Remote payloads are delivered
// locally; this instance's own echoes are skipped.
func (h *Hub) subscribe(roomID string) {
	if h.bridge == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), bridgeTimeout)
	defer cancel()

	unsubscribe, err := h.bridge.Subscribe(ctx, roomID, func(payload []byte) {
		var env envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			h.logger.Warn("malformed bridge payload", "room_id", roomID, "error", err)
			return
		}
		if env.Origin == h.instanceID {
			return
		}
		metrics.Broadcasts.WithLabelValues("bridged", "remote").Inc()
		h.deliver(roomID, env.Data)
	})
	if err != nil {
		h.logger.Error("bridge subscribe", "room_id", roomID, "error", err)
		return
	}

	h.mu.Lock()
	r, ok := h.rooms[roomID]
	if ok && r.unsubscribe == nil {
		r.unsubscribe = unsubscribe
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()
	// The room emptied (or resubscribed) while we were subscribing.
	unsubscribe()
}

// Presence lists the users with live connections in roomID.
func (h *Hub) Presence(roomID string) []Presence {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[roomID]
	if !ok {
		return []Presence{}
	}
	out := make([]Presence, 0, len(r.users))
	for uid, n := range r.users {
		out = append(out, Presence{UserID: uid, DisplayName: r.names[uid], Connections: n})
	}
	slices.SortFunc(out, func(a, b Presence) int { return cmp.Compare(a.UserID, b.UserID) })
	return out
}

// Connections is the number of live connections in roomID.
func (h *Hub) Connections(roomID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.rooms[roomID]; ok {
		return len(r.conns)
	}
	return 0
}
