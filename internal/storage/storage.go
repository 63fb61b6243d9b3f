package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mistakeknot/hivewatch/internal/core"
)

// EventFilter narrows an event query. Zero values mean "no constraint".
type EventFilter struct {
	SourceApp     string
	SessionID     string
	HookEventType string
	SinceID       int64
	Limit         int
	Descending    bool
}

// Store is the single shared mutable resource. The registry and ledger are
// stateless layers that always transact through it; no caller may cache
// registry or ledger state out of band.
type Store interface {
	// Event log (append-only, ordered by id).
	AppendEvent(ctx context.Context, ev core.Event) (core.Event, error)
	QueryEvents(ctx context.Context, f EventFilter) ([]core.Event, error)
	FilterOptions(ctx context.Context) (core.FilterOptions, error)
	PruneEvents(ctx context.Context, before time.Time) (int64, error)

	// Agent registry.
	RegisterAgent(ctx context.Context, sessionID, name, agentKind string) (core.Agent, error)
	UpdateCompletion(ctx context.Context, sessionID, name string, upd core.CompletionUpdate) (bool, error)
	SetPrompt(ctx context.Context, sessionID, name, text string) (bool, error)
	SetResponse(ctx context.Context, sessionID, name, text string) (bool, error)
	ListAgents(ctx context.Context, sessionID string) ([]core.Agent, error)
	GetAgent(ctx context.Context, sessionID, name string) (core.AgentDetail, error)

	// Message ledger.
	SendMessage(ctx context.Context, sender string, body json.RawMessage) (core.Message, error)
	UnreadMessages(ctx context.Context, recipient string) ([]core.Message, error)
	RecentMessages(ctx context.Context, limit int) ([]core.Message, error)

	// Session projection.
	ListSessions(ctx context.Context) ([]core.SessionSummary, error)

	Close() error
}
