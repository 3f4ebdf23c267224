// Package history records completed runs.
//
// PostgresStore keeps them in a batch_runs table through pgx; MemoryStore
// keeps a bounded in-process list when no database is configured.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/rosterbatch/internal/batch"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS batch_runs (
	id           uuid PRIMARY KEY,
	file_name    text        NOT NULL,
	output_name  text        NOT NULL,
	strategy     text        NOT NULL,
	records      integer     NOT NULL,
	accepted     integer     NOT NULL,
	duplicates   integer     NOT NULL,
	excluded     integer     NOT NULL,
	files        jsonb       NOT NULL,
	archive_key  text,
	archive_size integer     NOT NULL,
	duration_ms  bigint      NOT NULL,
	created_at   timestamptz NOT NULL
);
CREATE INDEX IF NOT EXISTS batch_runs_created_at_idx ON batch_runs (created_at DESC);
`

const selectColumns = `id, file_name, output_name, strategy, records, accepted, duplicates,
	excluded, files, archive_key, archive_size, duration_ms, created_at`

// PostgresStore implements batch.RunRecorder on PostgreSQL.
type PostgresStore struct {
	db DBTX
}

// NewPostgresStore returns a store using db.
func NewPostgresStore(db DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the batch_runs table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create batch_runs schema: %w", err)
	}
	return nil
}

// Record inserts a completed run.
func (s *PostgresStore) Record(ctx context.Context, run batch.RunRecord) error {
	id, err := toPgUUID(run.ID)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	files := run.Files
	if files == nil {
		files = []batch.FileCount{}
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO batch_runs (`+selectColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		id,
		run.FileName,
		run.OutputName,
		run.Strategy,
		run.Records,
		run.Accepted,
		run.Duplicates,
		run.Excluded,
		files,
		pgtype.Text{String: run.ArchiveKey, Valid: run.ArchiveKey != ""},
		run.ArchiveSize,
		run.Duration.Milliseconds(),
		pgtype.Timestamptz{Time: run.CreatedAt, Valid: true},
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", run.ID, err)
	}
	return nil
}

// List returns up to limit runs, newest first.
func (s *PostgresStore) List(ctx context.Context, limit int) ([]batch.RunRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := s.db.Query(ctx,
		`SELECT `+selectColumns+` FROM batch_runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []batch.RunRecord{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// Get returns one run by ID.
func (s *PostgresStore) Get(ctx context.Context, id string) (batch.RunRecord, error) {
	pgID, err := toPgUUID(id)
	if err != nil {
		return batch.RunRecord{}, fmt.Errorf("%w: %s", batch.ErrRunNotFound, id)
	}

	row := s.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM batch_runs WHERE id = $1`, pgID)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return batch.RunRecord{}, fmt.Errorf("%w: %s", batch.ErrRunNotFound, id)
	}
	if err != nil {
		return batch.RunRecord{}, fmt.Errorf("get run %s: %w", id, err)
	}
	return run, nil
}

func scanRun(row pgx.Row) (batch.RunRecord, error) {
	var (
		run        batch.RunRecord
		id         pgtype.UUID
		archiveKey pgtype.Text
		durationMS int64
		createdAt  pgtype.Timestamptz
	)
	err := row.Scan(
		&id,
		&run.FileName,
		&run.OutputName,
		&run.Strategy,
		&run.Records,
		&run.Accepted,
		&run.Duplicates,
		&run.Excluded,
		&run.Files,
		&archiveKey,
		&run.ArchiveSize,
		&durationMS,
		&createdAt,
	)
	if err != nil {
		return batch.RunRecord{}, err
	}

	run.ID = uuid.UUID(id.Bytes).String()
	run.ArchiveKey = archiveKey.String
	run.Duration = time.Duration(durationMS) * time.Millisecond
	run.CreatedAt = createdAt.Time
	return run, nil
}

func toPgUUID(s string) (pgtype.UUID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return pgtype.UUID{}, fmt.Errorf("invalid run id %q: %w", s, err)
	}
	return pgtype.UUID{Bytes: u, Valid: true}, nil
}
