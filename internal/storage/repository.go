package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// SaveSession upserts the session row and inserts any new turns in one transaction.
// Turns whose seq already exists are left untouched, so callers may resend
// the full tail after a failed write.
func (db *DB) SaveSession(ctx context.Context, s *Session, turns []Turn) error {
	profile, err := json.Marshal(s.Profile)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	if s.Profile == nil {
		profile = []byte("{}")
	}

	start := time.Now()
	err = db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (id, channel, state, profile, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				state = excluded.state,
				profile = excluded.profile,
				updated_at = excluded.updated_at
		`, s.ID, s.Channel, s.State, string(profile), unixMilli(s.CreatedAt), unixMilli(s.UpdatedAt))
		if err != nil {
			return fmt.Errorf("upsert session: %w", err)
		}

		if len(turns) == 0 {
			return nil
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO turns (session_id, seq, role, content, created_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(session_id, seq) DO NOTHING
		`)
		if err != nil {
			return fmt.Errorf("prepare turn insert: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, t := range turns {
			if _, err := stmt.ExecContext(ctx, s.ID, t.Seq, t.Role, t.Content, unixMilli(t.CreatedAt)); err != nil {
				return fmt.Errorf("insert turn %d: %w", t.Seq, err)
			}
		}
		return nil
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to save session",
			"session_id", s.ID,
			"error", err)
		return err
	}

	if duration := time.Since(start); duration > 100*time.Millisecond {
		slog.WarnContext(ctx, "slow database operation",
			"operation", "SaveSession",
			"duration_ms", duration.Milliseconds(),
			"turns", len(turns))
	}
	return nil
}

// GetSession retrieves a session by ID. Returns nil, nil when absent.
func (db *DB) GetSession(ctx context.Context, id string) (*Session, error) {
	query := `SELECT id, channel, state, profile, created_at, updated_at FROM sessions WHERE id = ?`

	var (
		s                    Session
		profile              string
		createdAt, updatedAt int64
	)
	err := db.reader.QueryRowContext(ctx, query, id).Scan(
		&s.ID,
		&s.Channel,
		&s.State,
		&profile,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}

	if err := json.Unmarshal([]byte(profile), &s.Profile); err != nil {
		return nil, fmt.Errorf("decode profile for session %s: %w", id, err)
	}
	s.CreatedAt = fromUnixMilli(createdAt)
	s.UpdatedAt = fromUnixMilli(updatedAt)
	return &s, nil
}

// GetTurns returns the conversation of a session ordered by seq.
func (db *DB) GetTurns(ctx context.Context, sessionID string) ([]Turn, error) {
	rows, err := db.reader.QueryContext(ctx,
		`SELECT seq, role, content, created_at FROM turns WHERE session_id = ? ORDER BY seq`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var turns []Turn
	for rows.Next() {
		var (
			t         Turn
			createdAt int64
		)
		if err := rows.Scan(&t.Seq, &t.Role, &t.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.CreatedAt = fromUnixMilli(createdAt)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}
	return turns, nil
}

// DeleteSession removes a session and its turns. Reports whether a row existed.
func (db *DB) DeleteSession(ctx context.Context, id string) (bool, error) {
	res, err := db.writer.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	return n > 0, nil
}

// DeleteIdleSessions removes sessions not updated since cutoff, except the
// IDs in keep.
func (db *DB) DeleteIdleSessions(ctx context.Context, cutoff time.Time, keep ...string) (int64, error) {
	query := `DELETE FROM sessions WHERE updated_at < ?`
	args := make([]any, 0, len(keep)+1)
	args = append(args, unixMilli(cutoff))
	if len(keep) > 0 {
		query += ` AND id NOT IN (?` + strings.Repeat(`, ?`, len(keep)-1) + `)`
		for _, id := range keep {
			args = append(args, id)
		}
	}

	res, err := db.writer.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete idle sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete idle sessions: %w", err)
	}
	if n > 0 {
		slog.InfoContext(ctx, "deleted idle sessions", "count", n)
	}
	return n, nil
}

// CountSessions returns the number of persisted sessions.
func (db *DB) CountSessions(ctx context.Context) (int, error) {
	var count int
	if err := db.reader.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return count, nil
}
