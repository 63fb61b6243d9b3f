package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/mistakeknot/hivewatch/internal/core"
)

type wsFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func dialStream(t *testing.T, ctx context.Context, srvURL, query string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srvURL, "http") + "/stream" + query
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("ws dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })

	// The first frame is the connection acknowledgement.
	var hello wsFrame
	if err := wsjson.Read(ctx, conn, &hello); err != nil {
		t.Fatalf("read hello: %v", err)
	}
	if hello.Type != "connected" {
		t.Fatalf("expected connected frame, got %q", hello.Type)
	}
	return conn
}

func waitForSubscribers(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.SubscriberCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d subscribers, got %d", want, hub.SubscriberCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubDeliversNotification(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialStream(t, ctx, srv.URL, "")
	waitForSubscribers(t, hub, 1)

	hub.Publish(core.Notification{
		Type: core.NotifyEvent,
		Data: map[string]string{"session_id": "s1"},
	})

	var frame wsFrame
	if err := wsjson.Read(ctx, conn, &frame); err != nil {
		t.Fatalf("read: %v", err)
	}
	if frame.Type != string(core.NotifyEvent) {
		t.Fatalf("expected event frame, got %q", frame.Type)
	}
}

func TestHubSessionFiltering(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	scoped := dialStream(t, ctx, srv.URL, "?session_id=s1")
	waitForSubscribers(t, hub, 1)

	// A frame for another session must be filtered out; a global frame and a
	// matching frame must arrive, in order.
	hub.Publish(core.Notification{Type: core.NotifyEvent, SessionID: "other", Data: "skip"})
	hub.Publish(core.Notification{Type: core.NotifyAgentMessage, Data: "global"})
	hub.Publish(core.Notification{Type: core.NotifyEvent, SessionID: "s1", Data: "mine"})

	var first, second wsFrame
	if err := wsjson.Read(ctx, scoped, &first); err != nil {
		t.Fatalf("read first: %v", err)
	}
	if err := wsjson.Read(ctx, scoped, &second); err != nil {
		t.Fatalf("read second: %v", err)
	}
	if first.Type != string(core.NotifyAgentMessage) {
		t.Fatalf("expected global frame first, got %q", first.Type)
	}
	if second.Type != string(core.NotifyEvent) || string(second.Data) != `"mine"` {
		t.Fatalf("expected matching event frame, got %q %s", second.Type, second.Data)
	}
}

func TestHubRemovesSubscriberOnDisconnect(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialStream(t, ctx, srv.URL, "")
	waitForSubscribers(t, hub, 1)

	conn.Close(websocket.StatusNormalClosure, "")
	waitForSubscribers(t, hub, 0)

	// Publishing with no subscribers is a no-op, not a panic.
	hub.Publish(core.Notification{Type: core.NotifyEvent, Data: "nobody"})
}

func TestHubSlowSubscriberDisconnected(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	dialStream(t, ctx, srv.URL, "")
	waitForSubscribers(t, hub, 1)

	// Flood far past the queue bound without reading. The hub must drop the
	// subscriber rather than block the publisher.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuffer*4; i++ {
			hub.Publish(core.Notification{Type: core.NotifyEvent, Data: i})
		}
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}
}
