// WebSocket support for live notification subscriptions.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Notification is one frame from the hub's broadcast stream.
type Notification struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// NotificationHandler is called for each notification received on the stream.
type NotificationHandler func(n Notification)

// StreamClient manages a websocket subscription to the hub.
type StreamClient struct {
	baseURL   string
	sessionID string
	reconnect bool

	mu       sync.RWMutex
	conn     *websocket.Conn
	handlers []NotificationHandler
	done     chan struct{}
	once     sync.Once
}

// StreamOption configures the stream client.
type StreamOption func(*StreamClient)

// WithSessionFilter restricts the stream to one session's notifications.
func WithSessionFilter(sessionID string) StreamOption {
	return func(c *StreamClient) {
		c.sessionID = sessionID
	}
}

// WithAutoReconnect toggles automatic reconnection on disconnect.
func WithAutoReconnect(enabled bool) StreamOption {
	return func(c *StreamClient) {
		c.reconnect = enabled
	}
}

// NewStreamClient creates a stream client. Call Connect to open the stream.
func NewStreamClient(baseURL string, opts ...StreamOption) *StreamClient {
	c := &StreamClient{
		baseURL:   baseURL,
		reconnect: true,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnNotification registers a handler. Handlers run on the read goroutine in
// arrival order.
func (c *StreamClient) OnNotification(h NotificationHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, h)
}

// Connect opens the websocket and starts the read loop.
func (c *StreamClient) Connect(ctx context.Context) error {
	streamURL, err := c.buildStreamURL()
	if err != nil {
		return fmt.Errorf("build stream url: %w", err)
	}
	conn, _, err := websocket.Dial(ctx, streamURL, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	// The hub acknowledges the subscription before streaming notifications.
	// Consuming the acknowledgement here means the subscription is live once
	// Connect returns.
	var hello Notification
	if err := wsjson.Read(ctx, conn, &hello); err != nil {
		conn.Close(websocket.StatusProtocolError, "no acknowledgement")
		return fmt.Errorf("read acknowledgement: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(ctx)
	return nil
}

// Close tears down the stream.
func (c *StreamClient) Close() error {
	c.once.Do(func() { close(c.done) })
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "client closing")
	}
	return nil
}

func (c *StreamClient) buildStreamURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/stream"
	if c.sessionID != "" {
		q := u.Query()
		q.Set("session_id", c.sessionID)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (c *StreamClient) readLoop(ctx context.Context) {
	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		default:
		}

		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()

		var n Notification
		if err := wsjson.Read(ctx, conn, &n); err != nil {
			if !c.reconnect {
				return
			}
			select {
			case <-c.done:
				return
			default:
				if !c.handleReconnect(ctx) {
					return
				}
				continue
			}
		}
		c.dispatch(n)
	}
}

func (c *StreamClient) dispatch(n Notification) {
	c.mu.RLock()
	handlers := make([]NotificationHandler, len(c.handlers))
	copy(handlers, c.handlers)
	c.mu.RUnlock()
	for _, h := range handlers {
		h(n)
	}
}

// handleReconnect retries with exponential backoff until connected or stopped.
func (c *StreamClient) handleReconnect(ctx context.Context) bool {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		select {
		case <-c.done:
			return false
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}

		streamURL, err := c.buildStreamURL()
		if err != nil {
			return false
		}
		conn, _, err := websocket.Dial(ctx, streamURL, nil)
		if err == nil {
			var hello Notification
			if err := wsjson.Read(ctx, conn, &hello); err == nil {
				c.mu.Lock()
				c.conn = conn
				c.mu.Unlock()
				return true
			}
			conn.Close(websocket.StatusProtocolError, "no acknowledgement")
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
