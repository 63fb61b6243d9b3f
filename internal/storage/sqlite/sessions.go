package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/mistakeknot/hivewatch/internal/core"
)

// ListSessions derives session aggregates from agent rows at read time.
// Sessions have no table of their own.
func (s *Store) ListSessions(ctx context.Context) ([]core.SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, COUNT(*), MAX(created_at)
		 FROM subagents
		 GROUP BY session_id
		 ORDER BY MAX(created_at) DESC, session_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []core.SessionSummary
	for rows.Next() {
		var sum core.SessionSummary
		var latest int64
		if err := rows.Scan(&sum.SessionID, &sum.AgentCount, &latest); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sum.MostRecentCreatedAt = time.UnixMilli(latest).UTC()
		out = append(out, sum)
	}
	return out, rows.Err()
}
