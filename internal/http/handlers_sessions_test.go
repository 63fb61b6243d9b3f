package httpapi

import (
	"net/http"
	"testing"
	"time"

	"github.com/mistakeknot/hivewatch/internal/core"
)

func TestListSessions(t *testing.T) {
	env := newTestEnv(t)
	registerAgent(t, env, "big", "a")
	registerAgent(t, env, "big", "b")
	registerAgent(t, env, "big", "c")
	time.Sleep(2 * time.Millisecond)
	registerAgent(t, env, "small", "solo")

	resp := env.get(t, "/sessions")
	requireStatus(t, resp, http.StatusOK)
	sessions := decodeJSON[[]core.SessionSummary](t, resp)
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].SessionID != "small" || sessions[0].AgentCount != 1 {
		t.Fatalf("expected small/1 first, got %s/%d", sessions[0].SessionID, sessions[0].AgentCount)
	}
	if sessions[1].SessionID != "big" || sessions[1].AgentCount != 3 {
		t.Fatalf("expected big/3 second, got %s/%d", sessions[1].SessionID, sessions[1].AgentCount)
	}
}

func TestListSessionsEmpty(t *testing.T) {
	env := newTestEnv(t)

	resp := env.get(t, "/sessions")
	requireStatus(t, resp, http.StatusOK)
	sessions := decodeJSON[[]core.SessionSummary](t, resp)
	if sessions == nil || len(sessions) != 0 {
		t.Fatalf("expected empty list, got %v", sessions)
	}
}
