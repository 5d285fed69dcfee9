package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/andresmejia3/vigil/internal/types"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the sightings journal in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// SightingRecord is a persisted sighting.
type SightingRecord struct {
	ID        int64
	SessionID uuid.UUID
	types.Sighting
}

// IdentityStats aggregates the journal for one identity.
type IdentityStats struct {
	Identity    string
	Sightings   int
	Seen        time.Duration
	LastSeen    time.Time
	Enrollments int
}

// New establishes a connection pool and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{pool: pool}, nil
}

// initSchema creates the journal tables if they don't exist (Auto-Migration).
func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	query := `
		CREATE TABLE IF NOT EXISTS capture_sessions (
			id UUID PRIMARY KEY,
			source TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			ended_at TIMESTAMPTZ
		);
		CREATE TABLE IF NOT EXISTS sightings (
			id BIGSERIAL PRIMARY KEY,
			session_id UUID NOT NULL REFERENCES capture_sessions(id) ON DELETE CASCADE,
			identity TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ NOT NULL,
			frame_count INT NOT NULL,
			best_distance DOUBLE PRECISION NOT NULL
		);
		CREATE TABLE IF NOT EXISTS enrollments (
			id BIGSERIAL PRIMARY KEY,
			session_id UUID REFERENCES capture_sessions(id) ON DELETE SET NULL,
			identity TEXT NOT NULL,
			sample_path TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS sightings_identity_idx ON sightings (identity, started_at DESC);
	`
	_, err := pool.Exec(ctx, query)
	return err
}

// Close terminates every pooled connection.
func (s *Store) Close() {
	s.pool.Close()
}

// StartSession registers a capture session and returns its ID.
func (s *Store) StartSession(ctx context.Context, source string) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.pool.Exec(ctx, `INSERT INTO capture_sessions (id, source) VALUES ($1, $2)`, id, source)
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// EndSession stamps the session's end time.
func (s *Store) EndSession(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `UPDATE capture_sessions SET ended_at = NOW() WHERE id = $1`, id)
	return err
}

// InsertSighting saves a closed sighting.
func (s *Store) InsertSighting(ctx context.Context, session uuid.UUID, sg types.Sighting) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sightings (session_id, identity, started_at, ended_at, frame_count, best_distance)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, session, sg.Identity, sg.Start, sg.End, sg.FrameCount, sg.BestDistance)
	return err
}

// RecordEnrollment logs a saved gallery sample. A nil session is stored as NULL.
func (s *Store) RecordEnrollment(ctx context.Context, session uuid.UUID, identity, path string) error {
	var sid *uuid.UUID
	if session != uuid.Nil {
		sid = &session
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO enrollments (session_id, identity, sample_path) VALUES ($1, $2, $3)
	`, sid, identity, path)
	return err
}

// ListSightings returns the most recent sightings, newest first. An empty
// identity lists everyone; identity matching ignores case.
func (s *Store) ListSightings(ctx context.Context, identity string, limit int) ([]SightingRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, identity, started_at, ended_at, frame_count, best_distance
		FROM sightings
		WHERE $1 = '' OR lower(identity) = lower($1)
		ORDER BY started_at DESC
		LIMIT $2
	`, identity, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SightingRecord
	for rows.Next() {
		var r SightingRecord
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Identity, &r.Start, &r.End, &r.FrameCount, &r.BestDistance); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Summary aggregates sightings and enrollments per identity, ordered by name.
func (s *Store) Summary(ctx context.Context) ([]IdentityStats, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT
			COALESCE(sg.identity, en.identity) AS identity,
			COALESCE(sg.n, 0),
			COALESCE(sg.seconds, 0),
			sg.last_seen,
			COALESCE(en.n, 0)
		FROM (
			SELECT identity, COUNT(*) AS n,
				SUM(EXTRACT(EPOCH FROM ended_at - started_at))::DOUBLE PRECISION AS seconds,
				MAX(ended_at) AS last_seen
			FROM sightings GROUP BY identity
		) sg
		FULL OUTER JOIN (
			SELECT identity, COUNT(*) AS n FROM enrollments GROUP BY identity
		) en ON en.identity = sg.identity
		ORDER BY 1
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []IdentityStats
	for rows.Next() {
		var (
			st       IdentityStats
			seconds  float64
			lastSeen *time.Time
		)
		if err := rows.Scan(&st.Identity, &st.Sightings, &seconds, &lastSeen, &st.Enrollments); err != nil {
			return nil, err
		}
		st.Seen = time.Duration(seconds * float64(time.Second))
		if lastSeen != nil {
			st.LastSeen = *lastSeen
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// RenameIdentity rewrites an identity's name across the journal and returns the rows touched.
func (s *Store) RenameIdentity(ctx context.Context, from, to string) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var total int64
	for _, q := range []string{
		`UPDATE sightings SET identity = $2 WHERE lower(identity) = lower($1)`,
		`UPDATE enrollments SET identity = $2 WHERE lower(identity) = lower($1)`,
	} {
		tag, err := tx.Exec(ctx, q, from, to)
		if err != nil {
			return 0, err
		}
		total += tag.RowsAffected()
	}
	return total, tx.Commit(ctx)
}

// LastSeen returns the end of the most recent sighting of identity.
func (s *Store) LastSeen(ctx context.Context, identity string) (time.Time, bool, error) {
	var t time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT ended_at FROM sightings WHERE lower(identity) = lower($1) ORDER BY ended_at DESC LIMIT 1
	`, identity).Scan(&t)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

// Reset drops all application tables to clear the journal.
// The next New recreates them.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		DROP TABLE IF EXISTS sightings CASCADE;
		DROP TABLE IF EXISTS enrollments CASCADE;
		DROP TABLE IF EXISTS capture_sessions CASCADE;
	`)
	return err
}

// Session binds the journal to one capture session.
type Session struct {
	store *Store
	ID    uuid.UUID
}

// Session returns a writer for an existing session.
func (s *Store) Session(id uuid.UUID) *Session {
	return &Session{store: s, ID: id}
}

func (j *Session) InsertSighting(ctx context.Context, sg types.Sighting) error {
	return j.store.InsertSighting(ctx, j.ID, sg)
}

func (j *Session) RecordEnrollment(ctx context.Context, identity, path string) error {
	return j.store.RecordEnrollment(ctx, j.ID, identity, path)
}
