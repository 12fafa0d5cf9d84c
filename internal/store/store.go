package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Store manages the PostgreSQL connection holding capture history.
type Store struct {
	conn *pgx.Conn
}

// Capture is one admitted face and what became of it.
type Capture struct {
	ID              string
	SessionID       string
	TakenAt         time.Time
	Crop            []int32 // x0, y0, x1, y1 in photo pixels
	TensorShape     []int64
	OutputName      string
	OutputDims      []int64
	OutputData      []float32
	GalleryLocation string
	Error           string
}

// Session is one run of a capture subcommand.
type Session struct {
	ID        string
	Profile   string
	ModelPath string
	Source    string
	StartedAt time.Time
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

// initSchema creates the necessary tables if they don't exist (Auto-Migration).
func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS capture_sessions (
			id TEXT PRIMARY KEY,
			profile TEXT NOT NULL,
			model_path TEXT NOT NULL,
			source TEXT NOT NULL,
			started_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS captures (
			id UUID PRIMARY KEY,
			session_id TEXT REFERENCES capture_sessions(id) ON DELETE CASCADE,
			taken_at TIMESTAMPTZ NOT NULL,
			crop INT[] NOT NULL,
			tensor_shape BIGINT[] NOT NULL,
			output_name TEXT NOT NULL DEFAULT '',
			output_dims BIGINT[],
			output_data REAL[],
			gallery_location TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS captures_session_id_idx ON captures (session_id);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// EnsureSession registers the session. Re-registering the same id refreshes its start time.
func (s *Store) EnsureSession(ctx context.Context, sess Session) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO capture_sessions (id, profile, model_path, source, started_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (id) DO UPDATE SET started_at = NOW(), profile = EXCLUDED.profile,
			model_path = EXCLUDED.model_path, source = EXCLUDED.source
	`, sess.ID, sess.Profile, sess.ModelPath, sess.Source)
	return err
}

// InsertCapture records one capture attempt, successful or not.
func (s *Store) InsertCapture(ctx context.Context, c Capture) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO captures (id, session_id, taken_at, crop, tensor_shape, output_name,
			output_dims, output_data, gallery_location, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, c.ID, c.SessionID, c.TakenAt, c.Crop, c.TensorShape, c.OutputName,
		c.OutputDims, c.OutputData, c.GalleryLocation, c.Error)
	return err
}

// ListCaptures returns the most recent captures first.
func (s *Store) ListCaptures(ctx context.Context, limit int) ([]Capture, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.conn.Query(ctx, `
		SELECT id::text, session_id, taken_at, crop, tensor_shape, output_name,
			COALESCE(output_dims, '{}'), COALESCE(output_data, '{}'), gallery_location, error
		FROM captures ORDER BY taken_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanCapture)
}

func scanCapture(row pgx.CollectableRow) (Capture, error) {
	var c Capture
	err := row.Scan(&c.ID, &c.SessionID, &c.TakenAt, &c.Crop, &c.TensorShape, &c.OutputName,
		&c.OutputDims, &c.OutputData, &c.GalleryLocation, &c.Error)
	return c, err
}

// ErrAmbiguousID means an id prefix matched more than one capture.
var ErrAmbiguousID = errors.New("capture id prefix matches more than one capture")

// GetCapture fetches one capture by its id or an unambiguous prefix of it, as printed by
// the history listing. A prefix that matches nothing returns nil.
func (s *Store) GetCapture(ctx context.Context, idPrefix string) (*Capture, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id::text, session_id, taken_at, crop, tensor_shape, output_name,
			COALESCE(output_dims, '{}'), COALESCE(output_data, '{}'), gallery_location, error
		FROM captures WHERE starts_with(id::text, lower($1)) ORDER BY taken_at DESC LIMIT 2
	`, idPrefix)
	if err != nil {
		return nil, err
	}
	found, err := pgx.CollectRows(rows, scanCapture)
	if err != nil {
		return nil, err
	}
	switch len(found) {
	case 0:
		return nil, nil
	case 1:
		return &found[0], nil
	}
	return nil, fmt.Errorf("%w: %q", ErrAmbiguousID, idPrefix)
}

// Reset drops all application tables to clear the database state.
// This is useful for development to force a schema refresh without migrations.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `
		DROP TABLE IF EXISTS captures CASCADE;
		DROP TABLE IF EXISTS capture_sessions CASCADE;
	`)
	return err
}
