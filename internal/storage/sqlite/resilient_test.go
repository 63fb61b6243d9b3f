package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/mistakeknot/hivewatch/internal/core"
)

func newResilientTest(t *testing.T) *ResilientStore {
	t.Helper()
	return NewResilient(NewSQLiteTest(t))
}

func TestResilientPassthrough(t *testing.T) {
	st := newResilientTest(t)
	ctx := context.Background()

	agent, err := st.RegisterAgent(ctx, "s1", "scout", "researcher")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if agent.ID == 0 {
		t.Fatal("expected assigned id")
	}
	if _, err := st.SendMessage(ctx, "scout", json.RawMessage(`{"hi":true}`)); err != nil {
		t.Fatalf("send: %v", err)
	}
	if st.CircuitBreakerState() != "closed" {
		t.Fatalf("expected closed breaker, got %s", st.CircuitBreakerState())
	}
}

func TestResilientCallerErrorsDoNotTripBreaker(t *testing.T) {
	cb := NewCircuitBreaker(2, 30*time.Second)
	st := NewResilientWithBreaker(NewSQLiteTest(t), cb)
	ctx := context.Background()

	// Repeated validation failures and not-found lookups are the caller's
	// problem, not the database's.
	for i := 0; i < 5; i++ {
		if _, err := st.AppendEvent(ctx, core.Event{}); err == nil {
			t.Fatal("expected validation error")
		}
		if _, err := st.GetAgent(ctx, "s1", "ghost"); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	}
	if cb.State() != StateClosed {
		t.Fatalf("expected breaker to stay closed, got %s", cb.State())
	}
}

func TestResilientPreservesErrorIdentity(t *testing.T) {
	st := newResilientTest(t)
	ctx := context.Background()

	_, err := st.GetAgent(ctx, "s1", "ghost")
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound through the wrapper, got %v", err)
	}

	_, err = st.AppendEvent(ctx, core.Event{SessionID: "s1"})
	var verr *core.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError through the wrapper, got %v", err)
	}
}
