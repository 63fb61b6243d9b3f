package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mistakeknot/hivewatch/internal/core"
	"github.com/mistakeknot/hivewatch/internal/storage"
)

func (s *Store) AppendEvent(ctx context.Context, ev core.Event) (core.Event, error) {
	if err := core.ValidateEvent(ev); err != nil {
		return core.Event{}, err
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	var chat, summary any
	if len(ev.Chat) > 0 {
		chat = string(ev.Chat)
	}
	if ev.Summary != "" {
		summary = ev.Summary
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO events (source_app, session_id, hook_event_type, payload, chat, summary, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.SourceApp, ev.SessionID, ev.HookEventType, string(ev.Payload), chat, summary, ev.Timestamp.UnixMilli(),
	)
	if err != nil {
		return core.Event{}, fmt.Errorf("insert event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Event{}, fmt.Errorf("event id: %w", err)
	}
	ev.ID = id
	return ev, nil
}

func (s *Store) QueryEvents(ctx context.Context, f storage.EventFilter) ([]core.Event, error) {
	query := `SELECT id, source_app, session_id, hook_event_type, payload, chat, summary, timestamp
	          FROM events WHERE 1=1`
	var args []any
	if f.SourceApp != "" {
		query += " AND source_app = ?"
		args = append(args, f.SourceApp)
	}
	if f.SessionID != "" {
		query += " AND session_id = ?"
		args = append(args, f.SessionID)
	}
	if f.HookEventType != "" {
		query += " AND hook_event_type = ?"
		args = append(args, f.HookEventType)
	}
	if f.SinceID > 0 {
		query += " AND id > ?"
		args = append(args, f.SinceID)
	}
	// Limited scans take the newest window; ascending callers get it flipped below.
	query += " ORDER BY id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []core.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	if !f.Descending {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}

func (s *Store) FilterOptions(ctx context.Context) (core.FilterOptions, error) {
	opts := core.FilterOptions{}
	cols := []struct {
		query string
		dst   *[]string
	}{
		{`SELECT DISTINCT source_app FROM events ORDER BY source_app`, &opts.SourceApps},
		{`SELECT DISTINCT session_id FROM events ORDER BY session_id`, &opts.SessionIDs},
		{`SELECT DISTINCT hook_event_type FROM events ORDER BY hook_event_type`, &opts.HookEventTypes},
	}
	for _, c := range cols {
		rows, err := s.db.QueryContext(ctx, c.query)
		if err != nil {
			return core.FilterOptions{}, fmt.Errorf("filter options: %w", err)
		}
		for rows.Next() {
			var v string
			if err := rows.Scan(&v); err != nil {
				rows.Close()
				return core.FilterOptions{}, fmt.Errorf("scan filter option: %w", err)
			}
			*c.dst = append(*c.dst, v)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return core.FilterOptions{}, fmt.Errorf("rows: %w", err)
		}
		rows.Close()
	}
	return opts, nil
}

func (s *Store) PruneEvents(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE timestamp < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune count: %w", err)
	}
	return n, nil
}

func scanEvent(row scanner) (core.Event, error) {
	var ev core.Event
	var payload string
	var chat, summary sql.NullString
	var ts int64
	if err := row.Scan(&ev.ID, &ev.SourceApp, &ev.SessionID, &ev.HookEventType, &payload, &chat, &summary, &ts); err != nil {
		return core.Event{}, fmt.Errorf("scan event: %w", err)
	}
	ev.Payload = []byte(payload)
	if chat.Valid {
		ev.Chat = []byte(chat.String)
	}
	ev.Summary = summary.String
	ev.Timestamp = time.UnixMilli(ts).UTC()
	return ev, nil
}

type scanner interface {
	Scan(dest ...any) error
}
