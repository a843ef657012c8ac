package store

import (
	"context"
	"fmt"

	"github.com/oklog/ulid/v2"

	jerrors "github.com/p-blackswan/joinery-agent/internal/errors"
)

// RecordTurn appends a completed exchange to the turn log. IDs are ULIDs so
// the log sorts by time.
func (s *Store) RecordTurn(ctx context.Context, t *VoiceTurn) error {
	if t.SessionKey == "" || t.Outcome == "" {
		return fmt.Errorf("turn needs a session key and an outcome: %w", jerrors.ErrInvalidInput)
	}
	now := s.now()
	t.ID = ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
	t.CreatedAt = fromMillis(now.UnixMilli())

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO voice_turns (id, session_key, utterance, action, outcome, reply, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.SessionKey, t.Utterance, t.Action, t.Outcome, t.Reply, now.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to record turn: %w", err)
	}
	return nil
}

// ListTurns returns the most recent turns for a session, newest first.
func (s *Store) ListTurns(ctx context.Context, sessionKey string, limit int) ([]*VoiceTurn, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_key, utterance, action, outcome, reply, created_at
		 FROM voice_turns WHERE session_key = ? ORDER BY id DESC LIMIT ?`, sessionKey, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	var out []*VoiceTurn
	for rows.Next() {
		var (
			t       VoiceTurn
			created int64
		)
		if err := rows.Scan(&t.ID, &t.SessionKey, &t.Utterance, &t.Action, &t.Outcome, &t.Reply, &created); err != nil {
			return nil, err
		}
		t.CreatedAt = fromMillis(created)
		out = append(out, &t)
	}
	return out, rows.Err()
}

// PruneTurns deletes turns created before cutoffMillis and returns the count.
func (s *Store) PruneTurns(ctx context.Context, cutoffMillis int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM voice_turns WHERE created_at < ?`, cutoffMillis)
	if err != nil {
		return 0, fmt.Errorf("failed to prune turns: %w", err)
	}
	return res.RowsAffected()
}
