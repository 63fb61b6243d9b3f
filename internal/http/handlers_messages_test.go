package httpapi

import (
	"net/http"
	"testing"
	"time"
)

func TestSendAndConsumeMessages(t *testing.T) {
	env := newTestEnv(t)
	registerAgent(t, env, "s1", "alpha")
	registerAgent(t, env, "s1", "beta")

	resp := env.post(t, "/subagents/message", map[string]any{
		"sender":  "alpha",
		"message": map[string]any{"text": "hello beta"},
	})
	requireStatus(t, resp, http.StatusOK)
	sent := decodeJSON[sendMessageResponse](t, resp)
	if sent.ID != 1 {
		t.Fatalf("expected message id 1, got %d", sent.ID)
	}

	resp = env.post(t, "/subagents/unread", map[string]any{"name": "beta"})
	requireStatus(t, resp, http.StatusOK)
	unread := decodeJSON[unreadResponse](t, resp)
	if len(unread.Messages) != 1 || unread.Messages[0].Sender != "alpha" {
		t.Fatalf("expected 1 message from alpha, got %+v", unread.Messages)
	}

	// Delivery consumes: the next poll is empty.
	resp = env.post(t, "/subagents/unread", map[string]any{"name": "beta"})
	requireStatus(t, resp, http.StatusOK)
	unread = decodeJSON[unreadResponse](t, resp)
	if len(unread.Messages) != 0 {
		t.Fatalf("expected no redelivery, got %d", len(unread.Messages))
	}

	// The sender does not receive its own message.
	resp = env.post(t, "/subagents/unread", map[string]any{"name": "alpha"})
	requireStatus(t, resp, http.StatusOK)
	unread = decodeJSON[unreadResponse](t, resp)
	if len(unread.Messages) != 0 {
		t.Fatalf("sender got its own message: %+v", unread.Messages)
	}
}

func TestSendMessageValidation(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/subagents/message", map[string]any{
		"message": map[string]any{"text": "anonymous"},
	})
	requireStatus(t, resp, http.StatusBadRequest)
	body := decodeJSON[map[string]string](t, resp)
	if body["field"] != "sender" {
		t.Fatalf("expected missing sender, got %v", body)
	}

	resp = env.post(t, "/subagents/message", map[string]any{"sender": "alpha"})
	requireStatus(t, resp, http.StatusBadRequest)
	body = decodeJSON[map[string]string](t, resp)
	if body["field"] != "message" {
		t.Fatalf("expected missing message, got %v", body)
	}
}

func TestUnreadBeforeRegistration(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/subagents/message", map[string]any{
		"sender":  "alpha",
		"message": map[string]any{"text": "early"},
	})
	requireStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	time.Sleep(2 * time.Millisecond)
	registerAgent(t, env, "s1", "beta")

	// The pre-registration message is never delivered.
	resp = env.post(t, "/subagents/unread", map[string]any{"name": "beta"})
	requireStatus(t, resp, http.StatusOK)
	unread := decodeJSON[unreadResponse](t, resp)
	if len(unread.Messages) != 0 {
		t.Fatalf("expected no history replay, got %+v", unread.Messages)
	}
}

func TestRecentMessagesFeed(t *testing.T) {
	env := newTestEnv(t)
	registerAgent(t, env, "s1", "beta")

	for _, text := range []string{"one", "two", "three"} {
		resp := env.post(t, "/subagents/message", map[string]any{
			"sender":  "alpha",
			"message": map[string]any{"text": text},
		})
		requireStatus(t, resp, http.StatusOK)
		resp.Body.Close()
	}

	// Consume as beta so the feed records delivery.
	resp := env.post(t, "/subagents/unread", map[string]any{"name": "beta"})
	requireStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = env.get(t, "/subagents/messages?limit=2")
	requireStatus(t, resp, http.StatusOK)
	feed := decodeJSON[[]apiMessage](t, resp)
	if len(feed) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(feed))
	}
	if len(feed[0].Notified) != 1 || feed[0].Notified[0] != "beta" {
		t.Fatalf("expected notified [beta], got %v", feed[0].Notified)
	}

	// The read-only feed never consumes; beta's ledger is unchanged.
	resp = env.post(t, "/subagents/unread", map[string]any{"name": "beta"})
	requireStatus(t, resp, http.StatusOK)
	unread := decodeJSON[unreadResponse](t, resp)
	if len(unread.Messages) != 0 {
		t.Fatalf("feed read must not affect unread state, got %d", len(unread.Messages))
	}
}
