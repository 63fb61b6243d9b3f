package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/mistakeknot/hivewatch/internal/core"
)

func (s *Store) SendMessage(ctx context.Context, sender string, body json.RawMessage) (core.Message, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO subagent_messages (sender, body, created_at) VALUES (?, ?, ?)`,
		sender, string(body), now.UnixMilli(),
	)
	if err != nil {
		return core.Message{}, fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Message{}, fmt.Errorf("message id: %w", err)
	}
	return core.Message{
		ID:        id,
		Sender:    sender,
		Body:      body,
		CreatedAt: time.UnixMilli(now.UnixMilli()).UTC(),
	}, nil
}

// UnreadMessages runs the consuming delivery protocol in one transaction:
// find the recipient's join time (latest registration), select eligible
// messages, and mark each one notified before returning it. A message sent
// before the join time is never delivered to that recipient; joining late
// means missing history, by contract not by accident.
func (s *Store) UnreadMessages(ctx context.Context, recipient string) ([]core.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin unread tx: %w", err)
	}
	defer tx.Rollback()

	var join int64
	err = tx.QueryRowContext(ctx,
		`SELECT created_at FROM subagents WHERE name = ? ORDER BY id DESC LIMIT 1`,
		recipient,
	).Scan(&join)
	if errors.Is(err, sql.ErrNoRows) {
		// Never registered: nothing is eligible.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve join time: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id, sender, body, created_at, notified FROM subagent_messages
		 WHERE created_at >= ? AND sender != ?
		 ORDER BY created_at ASC, id ASC`,
		join, recipient,
	)
	if err != nil {
		return nil, fmt.Errorf("query unread: %w", err)
	}
	type candidate struct {
		msg      core.Message
		notified []string
	}
	var candidates []candidate
	for rows.Next() {
		var c candidate
		var body, notifiedJSON string
		var createdAt int64
		if err := rows.Scan(&c.msg.ID, &c.msg.Sender, &body, &createdAt, &notifiedJSON); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan unread: %w", err)
		}
		c.msg.Body = []byte(body)
		c.msg.CreatedAt = time.UnixMilli(createdAt).UTC()
		if err := json.Unmarshal([]byte(notifiedJSON), &c.notified); err != nil {
			rows.Close()
			return nil, fmt.Errorf("decode notified set: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("rows: %w", err)
	}
	rows.Close()

	var out []core.Message
	for _, c := range candidates {
		if slices.Contains(c.notified, recipient) {
			continue
		}
		notifiedJSON, err := json.Marshal(append(c.notified, recipient))
		if err != nil {
			return nil, fmt.Errorf("encode notified set: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE subagent_messages SET notified = ? WHERE id = ?`,
			string(notifiedJSON), c.msg.ID,
		); err != nil {
			return nil, fmt.Errorf("mark notified: %w", err)
		}
		out = append(out, c.msg)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit unread tx: %w", err)
	}
	return out, nil
}

func (s *Store) RecentMessages(ctx context.Context, limit int) ([]core.Message, error) {
	query := `SELECT id, sender, body, created_at, notified FROM subagent_messages ORDER BY id DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()

	var out []core.Message
	for rows.Next() {
		var msg core.Message
		var body, notifiedJSON string
		var createdAt int64
		if err := rows.Scan(&msg.ID, &msg.Sender, &body, &createdAt, &notifiedJSON); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Body = []byte(body)
		msg.CreatedAt = time.UnixMilli(createdAt).UTC()
		if err := json.Unmarshal([]byte(notifiedJSON), &msg.Notified); err != nil {
			return nil, fmt.Errorf("decode notified set: %w", err)
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}
