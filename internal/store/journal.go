package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/wrightlabs/gamewright/internal/match"
	"github.com/wrightlabs/gamewright/internal/mutate"
)

// CreateMatch registers a match and its seed. Idempotent on id.
func (s *Store) CreateMatch(ctx context.Context, id string, seed int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO matches (id, seed, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, seed, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("create match %s: %w", id, err)
	}
	return nil
}

// MatchSeed returns the seed a match was created with.
func (s *Store) MatchSeed(ctx context.Context, id string) (int64, error) {
	var seed int64
	err := s.db.QueryRowContext(ctx,
		`SELECT seed FROM matches WHERE id = ?`, id).Scan(&seed)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("match seed %s: %w", id, err)
	}
	return seed, nil
}

// WriteStep journals one step. (match_id, seq) is the primary key and
// conflicts are ignored, so re-journaling a replayed step is idempotent.
func (s *Store) WriteStep(ctx context.Context, matchID string, rec match.StepRecord) error {
	opsJSON, err := mutate.MarshalOps(rec.Ops)
	if err != nil {
		return fmt.Errorf("write step %s/%d: marshal ops: %w", matchID, rec.Seq, err)
	}

	var errsJSON []byte
	if len(rec.Errors) > 0 {
		errsJSON, err = json.Marshal(rec.Errors)
		if err != nil {
			return fmt.Errorf("write step %s/%d: marshal errors: %w", matchID, rec.Seq, err)
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO steps (match_id, seq, event, rule, phase, ops, errors, digest)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(match_id, seq) DO NOTHING
	`,
		matchID,
		rec.Seq,
		rec.Event,
		nullableString([]byte(rec.Rule)),
		rec.Phase,
		string(opsJSON),
		nullableString(errsJSON),
		rec.Digest,
	)
	if err != nil {
		return fmt.Errorf("write step %s/%d: %w", matchID, rec.Seq, err)
	}
	return nil
}

// Steps returns a match's journal in seq order.
func (s *Store) Steps(ctx context.Context, matchID string) ([]match.StepRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, event, rule, phase, ops, errors, digest
		FROM steps WHERE match_id = ?
		ORDER BY seq ASC
	`, matchID)
	if err != nil {
		return nil, fmt.Errorf("steps %s: %w", matchID, err)
	}
	defer rows.Close()

	var out []match.StepRecord
	for rows.Next() {
		var (
			rec      match.StepRecord
			rule     sql.NullString
			opsJSON  string
			errsJSON sql.NullString
		)
		if err := rows.Scan(&rec.Seq, &rec.Event, &rule, &rec.Phase,
			&opsJSON, &errsJSON, &rec.Digest); err != nil {
			return nil, fmt.Errorf("steps %s: scan: %w", matchID, err)
		}
		rec.Rule = rule.String
		rec.Ops, err = mutate.UnmarshalOps([]byte(opsJSON))
		if err != nil {
			return nil, fmt.Errorf("steps %s/%d: decode ops: %w", matchID, rec.Seq, err)
		}
		if errsJSON.Valid {
			if err := json.Unmarshal([]byte(errsJSON.String), &rec.Errors); err != nil {
				return nil, fmt.Errorf("steps %s/%d: decode errors: %w", matchID, rec.Seq, err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Events returns a match's event sequence in seq order, the input replay
// needs to reconstruct the journal.
func (s *Store) Events(ctx context.Context, matchID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event FROM steps WHERE match_id = ? ORDER BY seq ASC
	`, matchID)
	if err != nil {
		return nil, fmt.Errorf("events %s: %w", matchID, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var event string
		if err := rows.Scan(&event); err != nil {
			return nil, fmt.Errorf("events %s: scan: %w", matchID, err)
		}
		out = append(out, event)
	}
	return out, rows.Err()
}
