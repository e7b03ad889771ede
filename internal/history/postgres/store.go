// Package postgres provides a PostgreSQL-backed history.Store.
//
// Transcripts are indexed for English full-text search. When an embedding
// dimension is configured, the pgvector extension is installed and an HNSW
// cosine index allows semantic search over transcript embeddings.
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/MrWong99/transcribot/internal/history"
	"github.com/MrWong99/transcribot/pkg/provider/transcribe"
)

// Compile-time assertion.
var _ history.Store = (*Store)(nil)

const ddlJobs = `
CREATE TABLE IF NOT EXISTS transcription_jobs (
    job_id       TEXT         PRIMARY KEY,
    provider     TEXT         NOT NULL DEFAULT '',
    platform     TEXT         NOT NULL DEFAULT '',
    chat_id      TEXT         NOT NULL DEFAULT '',
    sender       TEXT         NOT NULL DEFAULT '',
    file_name    TEXT         NOT NULL DEFAULT '',
    file_url     TEXT         NOT NULL DEFAULT '',
    status       TEXT         NOT NULL DEFAULT 'starting',
    transcript   TEXT         NOT NULL DEFAULT '',
    error        TEXT         NOT NULL DEFAULT '',
    created_at   TIMESTAMPTZ  NOT NULL DEFAULT now(),
    finished_at  TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_transcription_jobs_created_at
    ON transcription_jobs (created_at DESC);

CREATE INDEX IF NOT EXISTS idx_transcription_jobs_fts
    ON transcription_jobs USING GIN (to_tsvector('english', transcript));
`

// ddlEmbeddings adds the vector column. The dimension is fixed at creation.
func ddlEmbeddings(dims int) string {
	return fmt.Sprintf(`
ALTER TABLE transcription_jobs ADD COLUMN IF NOT EXISTS embedding vector(%d);

CREATE INDEX IF NOT EXISTS idx_transcription_jobs_embedding
    ON transcription_jobs USING hnsw (embedding vector_cosine_ops);
`, dims)
}

// Store is a PostgreSQL history store. All methods are safe for concurrent
// use.
type Store struct {
	pool    *pgxpool.Pool
	vectors bool
}

// NewStore connects to dsn, migrates the schema and returns a ready Store.
// embeddingDimensions of 0 disables the vector column and semantic search.
func NewStore(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	if embeddingDimensions > 0 {
		// The extension must exist before pgvector types can be registered
		// on pooled connections.
		if err := createVectorExtension(ctx, dsn); err != nil {
			return nil, err
		}
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("history postgres: parse dsn: %w", err)
	}
	if embeddingDimensions > 0 {
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			return pgxvec.RegisterTypes(ctx, conn)
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("history postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history postgres: ping: %w", err)
	}
	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool, vectors: embeddingDimensions > 0}, nil
}

func createVectorExtension(ctx context.Context, dsn string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return fmt.Errorf("history postgres: connect: %w", err)
	}
	defer conn.Close(ctx)
	if _, err := conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("history postgres: create extension: %w", err)
	}
	return nil
}

// Migrate creates the jobs table and indexes. It is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	statements := []string{ddlJobs}
	if embeddingDimensions > 0 {
		statements = append(statements, ddlEmbeddings(embeddingDimensions))
	}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("history postgres: migrate: %w", err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Create(ctx context.Context, rec history.Record) error {
	const q = `
		INSERT INTO transcription_jobs
		    (job_id, provider, platform, chat_id, sender, file_name, file_url, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (job_id) DO UPDATE SET
		    provider   = EXCLUDED.provider,
		    platform   = EXCLUDED.platform,
		    chat_id    = EXCLUDED.chat_id,
		    sender     = EXCLUDED.sender,
		    file_name  = EXCLUDED.file_name,
		    file_url   = EXCLUDED.file_url,
		    status     = EXCLUDED.status,
		    created_at = EXCLUDED.created_at`

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	status := rec.Status
	if status == "" {
		status = transcribe.StatusStarting
	}
	_, err := s.pool.Exec(ctx, q,
		rec.JobID,
		rec.Provider,
		rec.Platform,
		rec.ChatID,
		rec.Sender,
		rec.FileName,
		rec.FileURL,
		string(status),
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("history postgres: create: %w", err)
	}
	return nil
}

func (s *Store) Finish(ctx context.Context, jobID string, out history.Outcome) error {
	finishedAt := out.FinishedAt
	if finishedAt.IsZero() {
		finishedAt = time.Now()
	}
	args := []any{jobID, string(out.Status), out.Transcript, out.Error, finishedAt}
	set := "status = $2, transcript = $3, error = $4, finished_at = $5"
	if s.vectors && len(out.Embedding) > 0 {
		args = append(args, pgvector.NewVector(out.Embedding))
		set += ", embedding = $6"
	}

	tag, err := s.pool.Exec(ctx, "UPDATE transcription_jobs SET "+set+" WHERE job_id = $1", args...)
	if err != nil {
		return fmt.Errorf("history postgres: finish: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return history.ErrNotFound
	}
	return nil
}

const selectColumns = `job_id, provider, platform, chat_id, sender, file_name, file_url,
       status, transcript, error, created_at, finished_at`

func (s *Store) Get(ctx context.Context, jobID string) (history.Record, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+selectColumns+" FROM transcription_jobs WHERE job_id = $1", jobID)
	if err != nil {
		return history.Record{}, fmt.Errorf("history postgres: get: %w", err)
	}
	recs, err := collectRecords(rows)
	if err != nil {
		return history.Record{}, err
	}
	if len(recs) == 0 {
		return history.Record{}, history.ErrNotFound
	}
	return recs[0], nil
}

func (s *Store) Recent(ctx context.Context, limit int) ([]history.Record, error) {
	q := "SELECT " + selectColumns + "\nFROM   transcription_jobs\nORDER  BY created_at DESC"
	var args []any
	if limit > 0 {
		args = append(args, limit)
		q += "\nLIMIT  $1"
	}
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("history postgres: recent: %w", err)
	}
	return collectRecords(rows)
}

// Search ranks by cosine distance when q.Embedding is set and the store has
// vectors enabled; otherwise it runs an English full-text query over
// transcripts, newest first.
func (s *Store) Search(ctx context.Context, q history.SearchQuery) ([]history.Record, error) {
	var (
		args       []any
		conditions []string
		order      string
	)
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	switch {
	case s.vectors && len(q.Embedding) > 0:
		vec := next(pgvector.NewVector(q.Embedding))
		conditions = append(conditions, "embedding IS NOT NULL")
		order = "embedding <=> " + vec
	case strings.TrimSpace(q.Text) != "":
		text := next(q.Text)
		conditions = append(conditions,
			"(to_tsvector('english', transcript) @@ plainto_tsquery('english', "+text+") OR file_name ILIKE '%' || "+text+" || '%')")
		order = "created_at DESC"
	default:
		return []history.Record{}, nil
	}

	sql := "SELECT " + selectColumns + "\n" +
		"FROM   transcription_jobs\n" +
		"WHERE  " + strings.Join(conditions, "\n  AND  ") + "\n" +
		"ORDER  BY " + order
	if q.Limit > 0 {
		sql += "\nLIMIT  " + next(q.Limit)
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("history postgres: search: %w", err)
	}
	return collectRecords(rows)
}

func collectRecords(rows pgx.Rows) ([]history.Record, error) {
	recs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (history.Record, error) {
		var (
			r          history.Record
			status     string
			finishedAt *time.Time
		)
		if err := row.Scan(
			&r.JobID,
			&r.Provider,
			&r.Platform,
			&r.ChatID,
			&r.Sender,
			&r.FileName,
			&r.FileURL,
			&status,
			&r.Transcript,
			&r.Error,
			&r.CreatedAt,
			&finishedAt,
		); err != nil {
			return history.Record{}, err
		}
		r.Status = transcribe.Status(status)
		if finishedAt != nil {
			r.FinishedAt = *finishedAt
		}
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("history postgres: scan rows: %w", err)
	}
	if recs == nil {
		recs = []history.Record{}
	}
	return recs, nil
}
