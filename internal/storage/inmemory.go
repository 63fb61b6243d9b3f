package storage

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/mistakeknot/hivewatch/internal/core"
)

var _ Store = (*InMemory)(nil)

// InMemory is a mutex-guarded Store used by unit tests. It implements the same
// semantics as the SQLite store, including the consuming unread protocol.
type InMemory struct {
	mu       sync.Mutex
	nextEvt  int64
	nextAgt  int64
	nextMsg  int64
	events   []core.Event
	agents   []core.Agent
	messages []core.Message
	notified map[int64]map[string]struct{} // message id -> recipient names
}

func NewInMemory() *InMemory {
	return &InMemory{notified: make(map[int64]map[string]struct{})}
}

func (m *InMemory) AppendEvent(_ context.Context, ev core.Event) (core.Event, error) {
	if err := core.ValidateEvent(ev); err != nil {
		return core.Event{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextEvt++
	ev.ID = m.nextEvt
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	m.events = append(m.events, ev)
	return ev, nil
}

func (m *InMemory) QueryEvents(_ context.Context, f EventFilter) ([]core.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.Event
	for _, ev := range m.events {
		if f.SourceApp != "" && ev.SourceApp != f.SourceApp {
			continue
		}
		if f.SessionID != "" && ev.SessionID != f.SessionID {
			continue
		}
		if f.HookEventType != "" && ev.HookEventType != f.HookEventType {
			continue
		}
		if ev.ID <= f.SinceID {
			continue
		}
		out = append(out, ev)
	}
	if f.Descending {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	if f.Limit > 0 && len(out) > f.Limit {
		if f.Descending {
			out = out[:f.Limit]
		} else {
			out = out[len(out)-f.Limit:]
		}
	}
	return out, nil
}

func (m *InMemory) FilterOptions(_ context.Context) (core.FilterOptions, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	apps := map[string]struct{}{}
	sessions := map[string]struct{}{}
	types := map[string]struct{}{}
	for _, ev := range m.events {
		apps[ev.SourceApp] = struct{}{}
		sessions[ev.SessionID] = struct{}{}
		types[ev.HookEventType] = struct{}{}
	}
	return core.FilterOptions{
		SourceApps:     sortedKeys(apps),
		SessionIDs:     sortedKeys(sessions),
		HookEventTypes: sortedKeys(types),
	}, nil
}

func (m *InMemory) PruneEvents(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.events[:0]
	var pruned int64
	for _, ev := range m.events {
		if ev.Timestamp.Before(before) {
			pruned++
			continue
		}
		kept = append(kept, ev)
	}
	m.events = kept
	return pruned, nil
}

func (m *InMemory) RegisterAgent(_ context.Context, sessionID, name, agentKind string) (core.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextAgt++
	agent := core.Agent{
		ID:        m.nextAgt,
		SessionID: sessionID,
		Name:      name,
		AgentKind: agentKind,
		Status:    core.AgentStatusPending,
		CreatedAt: time.Now().UTC(),
	}
	m.agents = append(m.agents, agent)
	return agent, nil
}

// latest returns the index of the highest-id agent row matching the pair, or -1.
func (m *InMemory) latest(sessionID, name string) int {
	best := -1
	for i, a := range m.agents {
		if a.SessionID == sessionID && a.Name == name {
			if best < 0 || a.ID > m.agents[best].ID {
				best = i
			}
		}
	}
	return best
}

func (m *InMemory) UpdateCompletion(_ context.Context, sessionID, name string, upd core.CompletionUpdate) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.latest(sessionID, name)
	if i < 0 {
		return false, nil
	}
	a := &m.agents[i]
	if upd.Status != nil {
		a.Status = *upd.Status
	}
	if upd.CompletedAt != nil {
		v := *upd.CompletedAt
		a.CompletedAt = &v
	}
	if upd.DurationMS != nil {
		v := *upd.DurationMS
		a.DurationMS = &v
	}
	if upd.ToolUseCount != nil {
		v := *upd.ToolUseCount
		a.ToolUseCount = &v
	}
	if upd.TotalTokens != nil || upd.InputTokens != nil || upd.OutputTokens != nil ||
		upd.CacheWrite != nil || upd.CacheRead != nil {
		if a.TokenUsage == nil {
			a.TokenUsage = &core.TokenUsage{}
		}
		if upd.TotalTokens != nil {
			a.TokenUsage.Total = *upd.TotalTokens
		}
		if upd.InputTokens != nil {
			a.TokenUsage.Input = *upd.InputTokens
		}
		if upd.OutputTokens != nil {
			a.TokenUsage.Output = *upd.OutputTokens
		}
		if upd.CacheWrite != nil {
			a.TokenUsage.CacheWrite = *upd.CacheWrite
		}
		if upd.CacheRead != nil {
			a.TokenUsage.CacheRead = *upd.CacheRead
		}
	}
	return true, nil
}

func (m *InMemory) SetPrompt(_ context.Context, sessionID, name, text string) (bool, error) {
	if err := core.CheckTextLen("initial_prompt", text); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.latest(sessionID, name)
	if i < 0 {
		return false, nil
	}
	m.agents[i].InitialPrompt = text
	return true, nil
}

func (m *InMemory) SetResponse(_ context.Context, sessionID, name, text string) (bool, error) {
	if err := core.CheckTextLen("final_response", text); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.latest(sessionID, name)
	if i < 0 {
		return false, nil
	}
	m.agents[i].FinalResponse = text
	return true, nil
}

func (m *InMemory) ListAgents(_ context.Context, sessionID string) ([]core.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.Agent
	for _, a := range m.agents {
		if a.SessionID == sessionID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *InMemory) GetAgent(_ context.Context, sessionID, name string) (core.AgentDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.latest(sessionID, name)
	if i < 0 {
		return core.AgentDetail{}, core.ErrNotFound
	}
	a := m.agents[i]
	return core.AgentDetail{
		Agent:          a,
		PromptLength:   len(a.InitialPrompt),
		ResponseLength: len(a.FinalResponse),
		HasPrompt:      a.InitialPrompt != "",
		HasResponse:    a.FinalResponse != "",
	}, nil
}

func (m *InMemory) SendMessage(_ context.Context, sender string, body json.RawMessage) (core.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextMsg++
	msg := core.Message{
		ID:        m.nextMsg,
		Sender:    sender,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
	m.messages = append(m.messages, msg)
	return msg, nil
}

// UnreadMessages implements the consuming delivery protocol: messages at or
// after the recipient's most recent registration, excluding its own sends and
// anything it already consumed. Returned messages are marked notified before
// the call returns, so a repeat call with no intervening send is empty.
func (m *InMemory) UnreadMessages(_ context.Context, recipient string) ([]core.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var join time.Time
	var found bool
	var bestID int64
	for _, a := range m.agents {
		if a.Name == recipient && a.ID > bestID {
			bestID = a.ID
			join = a.CreatedAt
			found = true
		}
	}
	if !found {
		return nil, nil
	}
	var out []core.Message
	for _, msg := range m.messages {
		if msg.CreatedAt.Before(join) || msg.Sender == recipient {
			continue
		}
		seen := m.notified[msg.ID]
		if _, ok := seen[recipient]; ok {
			continue
		}
		if seen == nil {
			seen = make(map[string]struct{})
			m.notified[msg.ID] = seen
		}
		seen[recipient] = struct{}{}
		out = append(out, msg)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *InMemory) RecentMessages(_ context.Context, limit int) ([]core.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.Message, 0, limit)
	for i := len(m.messages) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		msg := m.messages[i]
		for name := range m.notified[msg.ID] {
			msg.Notified = append(msg.Notified, name)
		}
		sort.Strings(msg.Notified)
		out = append(out, msg)
	}
	return out, nil
}

func (m *InMemory) ListSessions(_ context.Context) ([]core.SessionSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byID := make(map[string]*core.SessionSummary)
	for _, a := range m.agents {
		s, ok := byID[a.SessionID]
		if !ok {
			s = &core.SessionSummary{SessionID: a.SessionID}
			byID[a.SessionID] = s
		}
		s.AgentCount++
		if a.CreatedAt.After(s.MostRecentCreatedAt) {
			s.MostRecentCreatedAt = a.CreatedAt
		}
	}
	out := make([]core.SessionSummary, 0, len(byID))
	for _, s := range byID {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].MostRecentCreatedAt.After(out[j].MostRecentCreatedAt)
	})
	return out, nil
}

func (m *InMemory) Close() error { return nil }

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
