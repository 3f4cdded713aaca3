// Package broadcast fans out state snapshots to WebSocket observers.
//
// Delivery is fire-and-forget: one serialization per publish, a best-effort
// write to every observer, no acknowledgement, no retry, no backpressure
// queue. A slow or dead observer can never block the others; it is removed
// lazily when a write fails, or by the two-strike ping check.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vivariumhq/vivarium/cmd/vivarium/cli/logging"
)

// PingInterval is how often observers are challenged. An observer that has
// not answered the previous challenge when the next one fires is dropped,
// so one missed heartbeat is tolerated.
const PingInterval = 30 * time.Second

const writeWait = 10 * time.Second

// Message is the wire envelope pushed to observers.
type Message struct {
	Kind    string `json:"kind"`
	Payload any    `json:"payload"`
}

type observer struct {
	id      string
	conn    *websocket.Conn
	writeMu sync.Mutex // gorilla conns are not concurrent-write safe
	alive   bool       // answered the previous ping; guarded by Hub.mu
}

func (o *observer) write(messageType int, data []byte) error {
	o.writeMu.Lock()
	defer o.writeMu.Unlock()
	if err := o.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := o.conn.WriteMessage(messageType, data); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// Hub tracks connected observers.
type Hub struct {
	mu        sync.Mutex
	observers map[string]*observer

	published uint64
	dropped   uint64
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{observers: make(map[string]*observer)}
}

// Add registers a connected observer and starts its read loop (required
// for pong frames to be processed). Returns the observer id.
func (h *Hub) Add(ctx context.Context, conn *websocket.Conn) string {
	o := &observer{id: uuid.NewString(), conn: conn, alive: true}

	conn.SetPongHandler(func(string) error {
		h.mu.Lock()
		o.alive = true
		h.mu.Unlock()
		return nil
	})

	h.mu.Lock()
	h.observers[o.id] = o
	count := len(h.observers)
	h.mu.Unlock()

	logCtx := logging.WithComponent(ctx, "broadcast")
	logging.Info(logCtx, "observer connected",
		slog.String("observer_id", o.id),
		slog.Int("observers", count),
	)

	go h.readLoop(logCtx, o)
	return o.id
}

// readLoop drains the connection. Observers only send pong/close frames;
// anything else is discarded.
func (h *Hub) readLoop(ctx context.Context, o *observer) {
	for {
		if _, _, err := o.conn.ReadMessage(); err != nil {
			h.remove(ctx, o.id, "read error")
			return
		}
	}
}

// Publish serializes {kind, payload} once and delivers it to every tracked
// observer. Observers whose write fails are removed as a side effect.
func (h *Hub) Publish(ctx context.Context, kind string, payload any) {
	data, err := json.Marshal(Message{Kind: kind, Payload: payload})
	if err != nil {
		logging.Error(logging.WithComponent(ctx, "broadcast"), "failed to marshal message",
			slog.String("kind", kind),
			slog.Any("error", err),
		)
		return
	}

	h.mu.Lock()
	targets := make([]*observer, 0, len(h.observers))
	for _, o := range h.observers {
		targets = append(targets, o)
	}
	h.published++
	h.mu.Unlock()

	for _, o := range targets {
		if err := o.write(websocket.TextMessage, data); err != nil {
			h.remove(ctx, o.id, "write error")
		}
	}
}

// Send delivers one message to a single observer, removing it on failure.
// Used for the initial state push right after a connect.
func (h *Hub) Send(ctx context.Context, id, kind string, payload any) {
	h.mu.Lock()
	o, ok := h.observers[id]
	h.mu.Unlock()
	if !ok {
		return
	}

	data, err := json.Marshal(Message{Kind: kind, Payload: payload})
	if err != nil {
		return
	}
	if err := o.write(websocket.TextMessage, data); err != nil {
		h.remove(ctx, id, "write error")
	}
}

// PingAll enforces liveness: an observer still marked dead from the
// previous round is dropped, everyone else is challenged again.
func (h *Hub) PingAll(ctx context.Context) {
	h.mu.Lock()
	var stale []*observer
	var live []*observer
	for _, o := range h.observers {
		if !o.alive {
			stale = append(stale, o)
			continue
		}
		o.alive = false
		live = append(live, o)
	}
	h.mu.Unlock()

	for _, o := range stale {
		h.remove(ctx, o.id, "missed ping")
	}
	for _, o := range live {
		o.writeMu.Lock()
		err := o.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
		o.writeMu.Unlock()
		if err != nil {
			h.remove(ctx, o.id, "ping failed")
		}
	}
}

// Count returns the number of tracked observers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.observers)
}

// Published returns the number of publishes since start.
func (h *Hub) Published() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.published
}

// Dropped returns the number of observers dropped since start.
func (h *Hub) Dropped() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

func (h *Hub) remove(ctx context.Context, id, reason string) {
	h.mu.Lock()
	o, ok := h.observers[id]
	if ok {
		delete(h.observers, id)
		h.dropped++
	}
	count := len(h.observers)
	h.mu.Unlock()
	if !ok {
		return
	}

	_ = o.conn.Close()
	logging.Info(logging.WithComponent(ctx, "broadcast"), "observer dropped",
		slog.String("observer_id", id),
		slog.String("reason", reason),
		slog.Int("observers", count),
	)
}
