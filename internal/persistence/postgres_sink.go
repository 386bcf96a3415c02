package persistence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

// Sink is the narrow, optional analytics collaborator a completed
// enrichment batch is mirrored into. Analytics is explicitly out of core
// scope (spec.md §1); this interface exists so a caller can wire a
// PostgresSink or a no-op without the rest of the system knowing which.
type Sink interface {
	IndexQuestion(ctx context.Context, q DumpedQuestion) error
	Close()
}

// NoopSink discards every question. It is the default when no Postgres DSN
// is configured.
type NoopSink struct{}

func (NoopSink) IndexQuestion(context.Context, DumpedQuestion) error { return nil }
func (NoopSink) Close()                                              {}

// PostgresSink mirrors each enriched question's primary subtopic vector into
// a pgvector-indexed table for offline analytics, grounded on the teacher's
// pkg/memory/postgres.SemanticIndexImpl upsert shape.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink connects to dsn, registers pgvector types on every
// connection, and ensures the questions table exists with a vector column
// sized to embeddingDimensions.
func NewPostgresSink(ctx context.Context, dsn string, embeddingDimensions int) (*PostgresSink, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("persistence: postgres sink: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("persistence: postgres sink: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("persistence: postgres sink: ping: %w", err)
	}
	if err := migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("persistence: postgres sink: migrate: %w", err)
	}
	return &PostgresSink{pool: pool}, nil
}

func migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	_, err := pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}
	_, err = pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS questions (
		    id            TEXT PRIMARY KEY,
		    prompt        TEXT NOT NULL,
		    primary_topic TEXT NOT NULL,
		    embedding     vector(%d)
		)`, embeddingDimensions))
	if err != nil {
		return fmt.Errorf("create questions table: %w", err)
	}
	return nil
}

// IndexQuestion upserts q's id, truncated prompt, primary topic, and first
// subtopic's vector (the question's dominant direction in embedding space).
// A question with no vectors yet (enrichment in flight or degraded, spec.md
// §7 EmbeddingUnavailable) is still recorded with a nil embedding column.
func (s *PostgresSink) IndexQuestion(ctx context.Context, q DumpedQuestion) error {
	const upsert = `
		INSERT INTO questions (id, prompt, primary_topic, embedding)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
		    prompt        = EXCLUDED.prompt,
		    primary_topic = EXCLUDED.primary_topic,
		    embedding     = EXCLUDED.embedding`

	var vec *pgvector.Vector
	if len(q.Vectors) > 0 && len(q.Vectors[0]) > 0 {
		v := pgvector.NewVector(q.Vectors[0])
		vec = &v
	}

	_, err := s.pool.Exec(ctx, upsert, q.ID, q.TruncatedPrompt, q.PrimaryTopic, vec)
	if err != nil {
		return fmt.Errorf("persistence: postgres sink: index question: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresSink) Close() {
	s.pool.Close()
}

var _ Sink = (*PostgresSink)(nil)
var _ Sink = NoopSink{}
