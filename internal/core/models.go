package core

import (
	"encoding/json"
	"time"
)

// NotificationType identifies the kind of record carried by a broadcast frame.
type NotificationType string

const (
	NotifyEvent             NotificationType = "event"
	NotifyAgentRegistered   NotificationType = "subagent_registered"
	NotifyAgentMessage      NotificationType = "subagent_message"
	NotifyAgentStatusUpdate NotificationType = "agent_status_update"
)

// MaxTextLen caps any single text field (prompt, response, payload, chat).
// Oversized input is rejected, never truncated.
const MaxTextLen = 1 << 20

// Event is one hook event captured from a producer. Immutable once written;
// total order is the insertion id, not the wall-clock timestamp.
type Event struct {
	ID            int64           `json:"id"`
	SourceApp     string          `json:"source_app"`
	SessionID     string          `json:"session_id"`
	HookEventType string          `json:"hook_event_type"`
	Payload       json.RawMessage `json:"payload"`
	Chat          json.RawMessage `json:"chat,omitempty"`
	Summary       string          `json:"summary,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

type AgentStatus string

const (
	AgentStatusPending    AgentStatus = "pending"
	AgentStatusInProgress AgentStatus = "in_progress"
	AgentStatusCompleted  AgentStatus = "completed"
	AgentStatusFailed     AgentStatus = "failed"
)

// TokenUsage is the token accounting reported on completion.
type TokenUsage struct {
	Total      int64 `json:"total_tokens"`
	Input      int64 `json:"input_tokens"`
	Output     int64 `json:"output_tokens"`
	CacheWrite int64 `json:"cache_creation_tokens"`
	CacheRead  int64 `json:"cache_read_tokens"`
}

// Agent is one spawned worker instance. Name is unique only within a session;
// registering the same name again creates a distinct row.
type Agent struct {
	ID            int64       `json:"id"`
	SessionID     string      `json:"session_id"`
	Name          string      `json:"name"`
	AgentKind     string      `json:"agent_kind"`
	Status        AgentStatus `json:"status"`
	CreatedAt     time.Time   `json:"created_at"`
	CompletedAt   *int64      `json:"completed_at,omitempty"` // epoch ms
	DurationMS    *int64      `json:"duration_ms,omitempty"`
	TokenUsage    *TokenUsage `json:"token_usage,omitempty"`
	ToolUseCount  *int64      `json:"tool_use_count,omitempty"`
	InitialPrompt string      `json:"initial_prompt,omitempty"`
	FinalResponse string      `json:"final_response,omitempty"`
}

// AgentDetail is an Agent plus derived prompt/response metadata.
type AgentDetail struct {
	Agent
	PromptLength   int  `json:"prompt_length"`
	ResponseLength int  `json:"response_length"`
	HasPrompt      bool `json:"has_prompt"`
	HasResponse    bool `json:"has_response"`
}

// CompletionUpdate is a partial update to the latest agent row matching
// (session_id, name). A nil field leaves the stored value untouched; a non-nil
// field overwrites it, including explicit zero.
type CompletionUpdate struct {
	Status       *AgentStatus `json:"status,omitempty"`
	CompletedAt  *int64       `json:"completed_at,omitempty"`
	DurationMS   *int64       `json:"duration_ms,omitempty"`
	TotalTokens  *int64       `json:"total_tokens,omitempty"`
	InputTokens  *int64       `json:"input_tokens,omitempty"`
	OutputTokens *int64       `json:"output_tokens,omitempty"`
	CacheWrite   *int64       `json:"cache_creation_tokens,omitempty"`
	CacheRead    *int64       `json:"cache_read_tokens,omitempty"`
	ToolUseCount *int64       `json:"tool_use_count,omitempty"`
}

// Empty reports whether the update carries no fields at all.
func (u CompletionUpdate) Empty() bool {
	return u.Status == nil && u.CompletedAt == nil && u.DurationMS == nil &&
		u.TotalTokens == nil && u.InputTokens == nil && u.OutputTokens == nil &&
		u.CacheWrite == nil && u.CacheRead == nil && u.ToolUseCount == nil
}

// Message is one inter-agent message. The payload is immutable; Notified is
// the set of recipient names that have consumed it.
type Message struct {
	ID        int64           `json:"id"`
	Sender    string          `json:"sender"`
	Body      json.RawMessage `json:"message"`
	CreatedAt time.Time       `json:"created_at"`
	Notified  []string        `json:"notified,omitempty"`
}

// SessionSummary is a derived grouping of agent rows sharing a session id.
// Sessions are not stored; they are computed at read time.
type SessionSummary struct {
	SessionID           string    `json:"session_id"`
	AgentCount          int       `json:"agent_count"`
	MostRecentCreatedAt time.Time `json:"most_recent_created_at"`
}

// Notification is one frame pushed to broadcast subscribers. SessionID scopes
// delivery; empty means global (delivered to every subscriber).
type Notification struct {
	Type      NotificationType `json:"type"`
	SessionID string           `json:"-"`
	Data      any              `json:"data"`
}

// FilterOptions lists the distinct values seen across stored events, for
// dashboard filter dropdowns.
type FilterOptions struct {
	SourceApps     []string `json:"source_apps"`
	SessionIDs     []string `json:"session_ids"`
	HookEventTypes []string `json:"hook_event_types"`
}
