// Package client provides a Go client for the hivewatch observability hub.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound is returned when the hub reports an unknown session/agent pair.
var ErrNotFound = errors.New("not found")

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.HTTP = httpClient
		}
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Event mirrors the hub's event record.
type Event struct {
	ID            int64           `json:"id,omitempty"`
	SourceApp     string          `json:"source_app"`
	SessionID     string          `json:"session_id"`
	HookEventType string          `json:"hook_event_type"`
	Payload       json.RawMessage `json:"payload"`
	Chat          json.RawMessage `json:"chat,omitempty"`
	Summary       string          `json:"summary,omitempty"`
	Timestamp     time.Time       `json:"timestamp,omitempty"`
}

// TokenUsage mirrors the hub's token accounting.
type TokenUsage struct {
	Total      int64 `json:"total_tokens"`
	Input      int64 `json:"input_tokens"`
	Output     int64 `json:"output_tokens"`
	CacheWrite int64 `json:"cache_creation_tokens"`
	CacheRead  int64 `json:"cache_read_tokens"`
}

// Agent mirrors the hub's agent record.
type Agent struct {
	ID           int64       `json:"id"`
	SessionID    string      `json:"session_id"`
	Name         string      `json:"name"`
	AgentKind    string      `json:"agent_kind"`
	Status       string      `json:"status"`
	CreatedAt    time.Time   `json:"created_at"`
	CompletedAt  *int64      `json:"completed_at,omitempty"`
	DurationMS   *int64      `json:"duration_ms,omitempty"`
	TokenUsage   *TokenUsage `json:"token_usage,omitempty"`
	ToolUseCount *int64      `json:"tool_use_count,omitempty"`
}

// AgentDetail is an Agent plus derived prompt/response metadata.
type AgentDetail struct {
	Agent
	InitialPrompt  string `json:"initial_prompt,omitempty"`
	FinalResponse  string `json:"final_response,omitempty"`
	PromptLength   int    `json:"prompt_length"`
	ResponseLength int    `json:"response_length"`
	HasPrompt      bool   `json:"has_prompt"`
	HasResponse    bool   `json:"has_response"`
}

// CompletionUpdate is a partial completion update; nil fields are omitted
// from the request and leave the stored value untouched.
type CompletionUpdate struct {
	Status       *string `json:"status,omitempty"`
	CompletedAt  *int64  `json:"completed_at,omitempty"`
	DurationMS   *int64  `json:"duration_ms,omitempty"`
	TotalTokens  *int64  `json:"total_tokens,omitempty"`
	InputTokens  *int64  `json:"input_tokens,omitempty"`
	OutputTokens *int64  `json:"output_tokens,omitempty"`
	CacheWrite   *int64  `json:"cache_creation_tokens,omitempty"`
	CacheRead    *int64  `json:"cache_read_tokens,omitempty"`
	ToolUseCount *int64  `json:"tool_use_count,omitempty"`
}

// Message mirrors the hub's inter-agent message.
type Message struct {
	Sender    string          `json:"sender"`
	Body      json.RawMessage `json:"message"`
	CreatedAt time.Time       `json:"created_at"`
	Notified  []string        `json:"notified,omitempty"`
}

// SessionSummary mirrors the hub's derived session aggregate.
type SessionSummary struct {
	SessionID           string    `json:"session_id"`
	AgentCount          int       `json:"agent_count"`
	MostRecentCreatedAt time.Time `json:"most_recent_created_at"`
}

// FilterOptions lists distinct event field values for dashboard filters.
type FilterOptions struct {
	SourceApps     []string `json:"source_apps"`
	SessionIDs     []string `json:"session_ids"`
	HookEventTypes []string `json:"hook_event_types"`
}

// EventQuery narrows RecentEvents.
type EventQuery struct {
	SourceApp     string
	SessionID     string
	HookEventType string
	SinceID       int64
	Limit         int
	Descending    bool
}

func (c *Client) SendEvent(ctx context.Context, ev Event) (Event, error) {
	// The ingest endpoint takes an optional epoch-ms timestamp and assigns
	// one itself when absent.
	req := struct {
		SourceApp     string          `json:"source_app"`
		SessionID     string          `json:"session_id"`
		HookEventType string          `json:"hook_event_type"`
		Payload       json.RawMessage `json:"payload"`
		Chat          json.RawMessage `json:"chat,omitempty"`
		Summary       string          `json:"summary,omitempty"`
		Timestamp     *int64          `json:"timestamp,omitempty"`
	}{
		SourceApp:     ev.SourceApp,
		SessionID:     ev.SessionID,
		HookEventType: ev.HookEventType,
		Payload:       ev.Payload,
		Chat:          ev.Chat,
		Summary:       ev.Summary,
	}
	if !ev.Timestamp.IsZero() {
		ms := ev.Timestamp.UnixMilli()
		req.Timestamp = &ms
	}
	var out Event
	err := c.postDecode(ctx, "/events", req, &out)
	return out, err
}

func (c *Client) RecentEvents(ctx context.Context, q EventQuery) ([]Event, error) {
	vals := url.Values{}
	if q.SourceApp != "" {
		vals.Set("source_app", q.SourceApp)
	}
	if q.SessionID != "" {
		vals.Set("session_id", q.SessionID)
	}
	if q.HookEventType != "" {
		vals.Set("hook_event_type", q.HookEventType)
	}
	if q.SinceID > 0 {
		vals.Set("since_id", strconv.FormatInt(q.SinceID, 10))
	}
	if q.Limit > 0 {
		vals.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Descending {
		vals.Set("order", "desc")
	}
	path := "/events/recent"
	if len(vals) > 0 {
		path += "?" + vals.Encode()
	}
	var out []Event
	err := c.getDecode(ctx, path, &out)
	return out, err
}

func (c *Client) FilterOptions(ctx context.Context) (FilterOptions, error) {
	var out FilterOptions
	err := c.getDecode(ctx, "/events/filter-options", &out)
	return out, err
}

func (c *Client) RegisterAgent(ctx context.Context, sessionID, name, agentKind string) (int64, error) {
	var out struct {
		ID int64 `json:"id"`
	}
	err := c.postDecode(ctx, "/subagents/register", map[string]string{
		"session_id": sessionID,
		"name":       name,
		"agent_kind": agentKind,
	}, &out)
	return out.ID, err
}

func (c *Client) UpdateCompletion(ctx context.Context, sessionID, name string, upd CompletionUpdate) error {
	body := map[string]any{"session_id": sessionID, "name": name}
	raw, err := json.Marshal(upd)
	if err != nil {
		return err
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return err
	}
	for k, v := range fields {
		body[k] = v
	}
	return c.postDecode(ctx, "/subagents/update-completion", body, nil)
}

// SetPrompt records the agent's initial prompt text.
func (c *Client) SetPrompt(ctx context.Context, sessionID, name, text string) error {
	return c.patchAgent(ctx, sessionID, name, map[string]string{"initial_prompt": text})
}

// SetResponse records the agent's final response text.
func (c *Client) SetResponse(ctx context.Context, sessionID, name, text string) error {
	return c.patchAgent(ctx, sessionID, name, map[string]string{"final_response": text})
}

func (c *Client) patchAgent(ctx context.Context, sessionID, name string, body any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	path := "/subagents/" + url.PathEscape(sessionID) + "/" + url.PathEscape(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.BaseURL+path, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

func (c *Client) AgentFull(ctx context.Context, sessionID, name string) (AgentDetail, error) {
	var out AgentDetail
	path := "/subagents/" + url.PathEscape(sessionID) + "/" + url.PathEscape(name) + "/full"
	err := c.getDecode(ctx, path, &out)
	return out, err
}

func (c *Client) Agents(ctx context.Context, sessionID string) ([]Agent, error) {
	var out []Agent
	err := c.getDecode(ctx, "/subagents/"+url.PathEscape(sessionID), &out)
	return out, err
}

func (c *Client) Sessions(ctx context.Context) ([]SessionSummary, error) {
	var out []SessionSummary
	err := c.getDecode(ctx, "/sessions", &out)
	return out, err
}

func (c *Client) SendMessage(ctx context.Context, sender string, body any) (int64, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	var out struct {
		ID int64 `json:"id"`
	}
	err = c.postDecode(ctx, "/subagents/message", map[string]any{
		"sender":  sender,
		"message": json.RawMessage(raw),
	}, &out)
	return out.ID, err
}

// Unread retrieves and consumes the recipient's unread messages.
func (c *Client) Unread(ctx context.Context, name string) ([]Message, error) {
	var out struct {
		Messages []Message `json:"messages"`
	}
	err := c.postDecode(ctx, "/subagents/unread", map[string]string{"name": name}, &out)
	return out.Messages, err
}

func (c *Client) RecentMessages(ctx context.Context, limit int) ([]Message, error) {
	path := "/subagents/messages"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []Message
	err := c.getDecode(ctx, path, &out)
	return out, err
}

func (c *Client) postDecode(ctx context.Context, path string, body, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) getDecode(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= 400:
		var apiErr struct {
			Error   string `json:"error"`
			Field   string `json:"field"`
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			if apiErr.Field != "" {
				return fmt.Errorf("%s: %s %s (%s)", apiErr.Error, apiErr.Field, apiErr.Message, apiErr.Code)
			}
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
