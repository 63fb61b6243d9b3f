package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/mistakeknot/hivewatch/internal/core"
	"github.com/mistakeknot/hivewatch/internal/storage"
)

// newRaceStore creates a file-backed store for concurrent access tests.
// In-memory ":memory:" doesn't work here because each pool connection would
// get its own private database.
func newRaceStore(t *testing.T) *Store {
	t.Helper()
	st, err := New(filepath.Join(t.TempDir(), "race.db"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// TestConcurrentAppendEvent verifies that concurrent event appends don't race.
// 10 goroutines each append 10 events; all 100 must land with distinct ids.
func TestConcurrentAppendEvent(t *testing.T) {
	st := newRaceStore(t)
	ctx := context.Background()
	const workers = 10
	const eventsPerWorker = 10

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for j := 0; j < eventsPerWorker; j++ {
				_, err := st.AppendEvent(ctx, core.Event{
					SourceApp:     fmt.Sprintf("worker-%d", workerID),
					SessionID:     "race-session",
					HookEventType: "PostToolUse",
					Payload:       json.RawMessage(fmt.Sprintf(`{"seq":%d}`, j)),
				})
				if err != nil {
					t.Errorf("worker %d event %d: %v", workerID, j, err)
				}
			}
		}(i)
	}
	wg.Wait()

	events, err := st.QueryEvents(ctx, storage.EventFilter{SessionID: "race-session"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(events) != workers*eventsPerWorker {
		t.Fatalf("expected %d events, got %d", workers*eventsPerWorker, len(events))
	}
	seen := make(map[int64]bool, len(events))
	for _, ev := range events {
		if seen[ev.ID] {
			t.Fatalf("duplicate event id %d", ev.ID)
		}
		seen[ev.ID] = true
	}
}

// TestConcurrentUnreadConsumption verifies the consuming delivery protocol
// under contention: two goroutines draining the same recipient must never
// deliver the same message twice.
func TestConcurrentUnreadConsumption(t *testing.T) {
	st := newRaceStore(t)
	ctx := context.Background()

	if _, err := st.RegisterAgent(ctx, "s1", "drain", "worker"); err != nil {
		t.Fatalf("register: %v", err)
	}
	const total = 20
	for i := 0; i < total; i++ {
		if _, err := st.SendMessage(ctx, "producer", json.RawMessage(fmt.Sprintf(`{"n":%d}`, i))); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		delivered = make(map[int64]int)
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				msgs, err := st.UnreadMessages(ctx, "drain")
				if err != nil {
					t.Errorf("unread: %v", err)
					return
				}
				mu.Lock()
				for _, m := range msgs {
					delivered[m.ID]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(delivered) != total {
		t.Fatalf("expected %d distinct deliveries, got %d", total, len(delivered))
	}
	for id, n := range delivered {
		if n != 1 {
			t.Fatalf("message %d delivered %d times", id, n)
		}
	}
}

// TestConcurrentReadsDuringWrites verifies that session and agent reads stay
// consistent while registrations are in flight.
func TestConcurrentReadsDuringWrites(t *testing.T) {
	st := newRaceStore(t)
	ctx := context.Background()
	const agents = 20

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < agents; i++ {
			if _, err := st.RegisterAgent(ctx, "s1", fmt.Sprintf("agent-%d", i), "worker"); err != nil {
				t.Errorf("register %d: %v", i, err)
			}
		}
	}()

	for r := 0; r < 3; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < agents; i++ {
				if _, err := st.ListSessions(ctx); err != nil {
					t.Errorf("sessions: %v", err)
					return
				}
				if _, err := st.ListAgents(ctx, "s1"); err != nil {
					t.Errorf("agents: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	list, err := st.ListAgents(ctx, "s1")
	if err != nil {
		t.Fatalf("final list: %v", err)
	}
	if len(list) != agents {
		t.Fatalf("expected %d agents, got %d", agents, len(list))
	}
}
