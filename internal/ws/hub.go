package ws

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/mistakeknot/hivewatch/internal/core"
)

const (
	writeTimeout = 5 * time.Second

	// subscriberBuffer bounds the per-subscriber queue. A subscriber that
	// falls this far behind is disconnected instead of backpressuring
	// producers.
	subscriberBuffer = 64
)

// Hub fans out notifications to live stream subscribers. Each subscriber has
// its own bounded queue drained by a dedicated writer goroutine, so a slow or
// dead connection never blocks a publisher; per-subscriber order is preserved.
type Hub struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]*subscriber
}

type subscriber struct {
	id        uuid.UUID
	sessionID string // empty = subscribed to everything
	conn      *websocket.Conn
	queue     chan core.Notification
	done      chan struct{}
	closeOnce sync.Once
}

func NewHub() *Hub {
	return &Hub{subs: make(map[uuid.UUID]*subscriber)}
}

// Handler accepts websocket subscriptions on /stream. An optional session_id
// query parameter restricts the stream to one session's notifications.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			return
		}

		sub := &subscriber{
			id:        uuid.New(),
			sessionID: sessionID,
			conn:      conn,
			queue:     make(chan core.Notification, subscriberBuffer),
			done:      make(chan struct{}),
		}
		h.add(sub)
		defer h.remove(sub)

		ctx := r.Context()
		if err := h.write(ctx, conn, map[string]string{"type": "connected"}); err != nil {
			return
		}
		go h.writeLoop(ctx, sub)

		// Inbound frames are keepalives; discard until the peer goes away.
		for {
			var v any
			if err := wsjson.Read(ctx, conn, &v); err != nil {
				return
			}
		}
	}
}

// Publish enqueues a notification for every matching subscriber. A full queue
// disconnects that one subscriber; the publisher never waits.
func (h *Hub) Publish(n core.Notification) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if n.SessionID != "" && sub.sessionID != "" && sub.sessionID != n.SessionID {
			continue
		}
		select {
		case sub.queue <- n:
		default:
			go sub.conn.Close(websocket.StatusPolicyViolation, "subscriber too slow")
			sub.stop()
		}
	}
}

// SubscriberCount reports the number of live subscriptions.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) writeLoop(ctx context.Context, sub *subscriber) {
	for {
		select {
		case <-sub.done:
			return
		case <-ctx.Done():
			return
		case n := <-sub.queue:
			if err := h.write(ctx, sub.conn, n); err != nil {
				sub.conn.Close(websocket.StatusGoingAway, "write error")
				sub.stop()
				return
			}
		}
	}
}

func (h *Hub) write(ctx context.Context, conn *websocket.Conn, v any) error {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(wctx, conn, v)
}

func (h *Hub) add(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[sub.id] = sub
}

func (h *Hub) remove(sub *subscriber) {
	sub.stop()
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, sub.id)
}

func (sub *subscriber) stop() {
	sub.closeOnce.Do(func() { close(sub.done) })
}
