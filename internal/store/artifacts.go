package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/wrightlabs/gamewright/internal/artifact"
)

// WriteEnvelope inserts an artifact envelope. A zero Version gets the
// next per-kind version at insert; explicit versions are kept as given.
// ON CONFLICT(id) DO NOTHING makes the write idempotent: re-persisting
// an extraction run is safe.
func (s *Store) WriteEnvelope(ctx context.Context, env artifact.Envelope) error {
	version := env.Version
	if version == 0 {
		row := s.db.QueryRowContext(ctx, `
			SELECT COALESCE(MAX(version), 0) + 1 FROM artifacts WHERE kind = ?
		`, string(env.Kind))
		if err := row.Scan(&version); err != nil {
			return fmt.Errorf("write envelope %s: next version: %w", env.ID, err)
		}
	}

	var errsJSON []byte
	if len(env.Errors) > 0 {
		var err error
		errsJSON, err = json.Marshal(env.Errors)
		if err != nil {
			return fmt.Errorf("write envelope %s: marshal errors: %w", env.ID, err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO artifacts
		(id, kind, version, retry_count, escalated, errors, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		env.ID,
		string(env.Kind),
		version,
		env.RetryCount,
		boolToInt(env.Escalated),
		nullableString(errsJSON),
		nullableString(env.Payload),
		env.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("write envelope %s: %w", env.ID, err)
	}
	return nil
}

// Envelope loads one envelope by id.
func (s *Store) Envelope(ctx context.Context, id string) (artifact.Envelope, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, kind, version, retry_count, escalated, errors, payload, created_at
		FROM artifacts WHERE id = ?
	`, id)
	return scanEnvelope(row)
}

// LatestCommitted returns the newest non-escalated envelope of a kind.
// The runtime activates artifacts only through this path, so escalated
// rows can never leak into a match.
func (s *Store) LatestCommitted(ctx context.Context, kind artifact.Kind) (artifact.Envelope, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, kind, version, retry_count, escalated, errors, payload, created_at
		FROM artifacts
		WHERE kind = ? AND escalated = 0
		ORDER BY version DESC, created_at DESC, id DESC
		LIMIT 1
	`, string(kind))
	return scanEnvelope(row)
}

// ListEscalated returns every escalated envelope, oldest first, for
// operator review.
func (s *Store) ListEscalated(ctx context.Context) ([]artifact.Envelope, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, version, retry_count, escalated, errors, payload, created_at
		FROM artifacts
		WHERE escalated = 1
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list escalated: %w", err)
	}
	defer rows.Close()

	var out []artifact.Envelope
	for rows.Next() {
		env, err := scanEnvelope(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, env)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEnvelope(row rowScanner) (artifact.Envelope, error) {
	var (
		env       artifact.Envelope
		kind      string
		escalated int
		errsJSON  sql.NullString
		payload   sql.NullString
		createdAt string
	)
	err := row.Scan(&env.ID, &kind, &env.Version, &env.RetryCount,
		&escalated, &errsJSON, &payload, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return env, ErrNotFound
	}
	if err != nil {
		return env, fmt.Errorf("scan envelope: %w", err)
	}

	env.Kind = artifact.Kind(kind)
	env.Escalated = escalated != 0
	if errsJSON.Valid {
		if err := json.Unmarshal([]byte(errsJSON.String), &env.Errors); err != nil {
			return env, fmt.Errorf("envelope %s: decode errors: %w", env.ID, err)
		}
	}
	if payload.Valid {
		env.Payload = []byte(payload.String)
	}
	env.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return env, fmt.Errorf("envelope %s: parse created_at: %w", env.ID, err)
	}
	return env, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
