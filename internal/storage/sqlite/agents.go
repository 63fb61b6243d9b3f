package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mistakeknot/hivewatch/internal/core"
)

// latestAgentSubquery resolves the highest-id row for a (session_id, name)
// pair, i.e. the most recently registered instance of that name.
const latestAgentSubquery = `(SELECT id FROM subagents WHERE session_id = ? AND name = ? ORDER BY id DESC LIMIT 1)`

const agentColumns = `id, session_id, name, agent_kind, status, created_at, completed_at,
	duration_ms, total_tokens, input_tokens, output_tokens, cache_creation_tokens,
	cache_read_tokens, tool_use_count, initial_prompt, final_response`

func (s *Store) RegisterAgent(ctx context.Context, sessionID, name, agentKind string) (core.Agent, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO subagents (session_id, name, agent_kind, status, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		sessionID, name, agentKind, string(core.AgentStatusPending), now.UnixMilli(),
	)
	if err != nil {
		return core.Agent{}, fmt.Errorf("register agent: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Agent{}, fmt.Errorf("agent id: %w", err)
	}
	return core.Agent{
		ID:        id,
		SessionID: sessionID,
		Name:      name,
		AgentKind: agentKind,
		Status:    core.AgentStatusPending,
		CreatedAt: time.UnixMilli(now.UnixMilli()).UTC(),
	}, nil
}

func (s *Store) UpdateCompletion(ctx context.Context, sessionID, name string, upd core.CompletionUpdate) (bool, error) {
	if upd.Empty() {
		return s.agentExists(ctx, sessionID, name)
	}

	var sets []string
	var args []any
	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if upd.Status != nil {
		add("status", string(*upd.Status))
	}
	if upd.CompletedAt != nil {
		add("completed_at", *upd.CompletedAt)
	}
	if upd.DurationMS != nil {
		add("duration_ms", *upd.DurationMS)
	}
	if upd.TotalTokens != nil {
		add("total_tokens", *upd.TotalTokens)
	}
	if upd.InputTokens != nil {
		add("input_tokens", *upd.InputTokens)
	}
	if upd.OutputTokens != nil {
		add("output_tokens", *upd.OutputTokens)
	}
	if upd.CacheWrite != nil {
		add("cache_creation_tokens", *upd.CacheWrite)
	}
	if upd.CacheRead != nil {
		add("cache_read_tokens", *upd.CacheRead)
	}
	if upd.ToolUseCount != nil {
		add("tool_use_count", *upd.ToolUseCount)
	}
	args = append(args, sessionID, name)

	res, err := s.db.ExecContext(ctx,
		`UPDATE subagents SET `+strings.Join(sets, ", ")+` WHERE id = `+latestAgentSubquery,
		args...,
	)
	if err != nil {
		return false, fmt.Errorf("update completion: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update completion count: %w", err)
	}
	return n > 0, nil
}

func (s *Store) SetPrompt(ctx context.Context, sessionID, name, text string) (bool, error) {
	if err := core.CheckTextLen("initial_prompt", text); err != nil {
		return false, err
	}
	return s.setAgentText(ctx, "initial_prompt", sessionID, name, text)
}

func (s *Store) SetResponse(ctx context.Context, sessionID, name, text string) (bool, error) {
	if err := core.CheckTextLen("final_response", text); err != nil {
		return false, err
	}
	return s.setAgentText(ctx, "final_response", sessionID, name, text)
}

func (s *Store) setAgentText(ctx context.Context, column, sessionID, name, text string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE subagents SET `+column+` = ? WHERE id = `+latestAgentSubquery,
		text, sessionID, name,
	)
	if err != nil {
		return false, fmt.Errorf("set %s: %w", column, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set %s count: %w", column, err)
	}
	return n > 0, nil
}

func (s *Store) ListAgents(ctx context.Context, sessionID string) ([]core.Agent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+agentColumns+` FROM subagents WHERE session_id = ? ORDER BY id DESC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var out []core.Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, agent)
	}
	return out, rows.Err()
}

func (s *Store) GetAgent(ctx context.Context, sessionID, name string) (core.AgentDetail, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+agentColumns+` FROM subagents WHERE id = `+latestAgentSubquery,
		sessionID, name,
	)
	agent, err := scanAgent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.AgentDetail{}, core.ErrNotFound
		}
		return core.AgentDetail{}, err
	}
	return core.AgentDetail{
		Agent:          agent,
		PromptLength:   len(agent.InitialPrompt),
		ResponseLength: len(agent.FinalResponse),
		HasPrompt:      agent.InitialPrompt != "",
		HasResponse:    agent.FinalResponse != "",
	}, nil
}

func (s *Store) agentExists(ctx context.Context, sessionID, name string) (bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM subagents WHERE session_id = ? AND name = ? ORDER BY id DESC LIMIT 1`,
		sessionID, name,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("resolve agent: %w", err)
	}
	return true, nil
}

func scanAgent(row scanner) (core.Agent, error) {
	var a core.Agent
	var status string
	var createdAt int64
	var completedAt, durationMS, total, input, output, cacheWrite, cacheRead, toolUse sql.NullInt64
	var prompt, response sql.NullString
	err := row.Scan(&a.ID, &a.SessionID, &a.Name, &a.AgentKind, &status, &createdAt,
		&completedAt, &durationMS, &total, &input, &output, &cacheWrite, &cacheRead,
		&toolUse, &prompt, &response)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Agent{}, err
		}
		return core.Agent{}, fmt.Errorf("scan agent: %w", err)
	}
	a.Status = core.AgentStatus(status)
	a.CreatedAt = time.UnixMilli(createdAt).UTC()
	if completedAt.Valid {
		a.CompletedAt = &completedAt.Int64
	}
	if durationMS.Valid {
		a.DurationMS = &durationMS.Int64
	}
	if toolUse.Valid {
		a.ToolUseCount = &toolUse.Int64
	}
	if total.Valid || input.Valid || output.Valid || cacheWrite.Valid || cacheRead.Valid {
		a.TokenUsage = &core.TokenUsage{
			Total:      total.Int64,
			Input:      input.Int64,
			Output:     output.Int64,
			CacheWrite: cacheWrite.Int64,
			CacheRead:  cacheRead.Int64,
		}
	}
	a.InitialPrompt = prompt.String
	a.FinalResponse = response.String
	return a, nil
}
