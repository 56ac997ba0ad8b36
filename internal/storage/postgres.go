package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/bdougie/uitraps/internal/embeddings"
	"github.com/bdougie/uitraps/internal/models"
)

// PostgresConfig holds connection details for PostgreSQL
type PostgresConfig struct {
	// DSN takes precedence over the individual fields when set
	DSN      string
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

// ConnString builds the pgx connection string
func (c PostgresConfig) ConnString() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.DBName,
	)
}

// PostgresStorage stores runs, frames and embedded findings in PostgreSQL
type PostgresStorage struct {
	pool     *pgxpool.Pool
	embedder *embeddings.Service
	logger   *slog.Logger
}

// NewPostgresStorage creates a new PostgreSQL storage connection
func NewPostgresStorage(ctx context.Context, config PostgresConfig, embedder *embeddings.Service, logger *slog.Logger) (*PostgresStorage, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := pgxpool.New(ctx, config.ConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStorage{
		pool:     pool,
		embedder: embedder,
		logger:   logger.With("component", "storage", "driver", "postgres"),
	}, nil
}

// Close closes the database connection
func (s *PostgresStorage) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Flush implements the Storage interface - no-op for Postgres as we save immediately
func (s *PostgresStorage) Flush() error {
	return nil
}

// SaveRun stores the run with its frames and findings in one transaction
func (s *PostgresStorage) SaveRun(ctx context.Context, run *models.Run) error {
	findings := Findings(run.Report)

	var vectors [][]float32
	if s.embedder != nil {
		issues := make([]models.Issue, len(findings))
		for i, f := range findings {
			issues[i] = f.Issue
		}
		var err error
		if vectors, err = s.embedder.EmbedIssues(ctx, issues); err != nil {
			// Store findings without embeddings rather than dropping the run
			s.logger.Warn("failed to embed findings", "run", run.ID, "error", err)
			vectors = nil
		}
	}

	report, err := json.Marshal(run.Report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	rec := run.Record()

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO runs
			(id, name, source, analysis_type, started_at, duration_seconds, frames, failed, issues, report)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (id) DO UPDATE SET report = EXCLUDED.report, issues = EXCLUDED.issues`,
			rec.ID, rec.Name, rec.Source, string(rec.AnalysisType), rec.StartedAt,
			rec.Duration, rec.Frames, rec.Failed, rec.Issues, report)
		if err != nil {
			return fmt.Errorf("failed to store run: %w", err)
		}

		if run.Report != nil {
			for index, img := range run.Report.FrameImages {
				_, err := tx.Exec(ctx,
					`INSERT INTO frames (run_id, frame_index, label, timestamp, created_at)
					VALUES ($1, $2, $3, $4, $5)
					ON CONFLICT (run_id, frame_index) DO NOTHING`,
					rec.ID, index, img.Filename, img.Timestamp, time.Now())
				if err != nil {
					return fmt.Errorf("failed to store frame information: %w", err)
				}
			}
		}

		for i, f := range findings {
			var embedding any
			if vectors != nil {
				embedding = pgvector.NewVector(vectors[i])
			}
			_, err := tx.Exec(ctx,
				`INSERT INTO findings
				(run_id, severity, trap_name, tenet, location, problem, frame_indices, embedding, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				rec.ID, string(f.Severity), f.Issue.TrapName, f.Issue.Tenet, f.Issue.Location,
				problemText(f.Issue), int32s(frameIndices(f.Issue)), embedding, time.Now())
			if err != nil {
				return fmt.Errorf("failed to store finding: %w", err)
			}
		}
		return nil
	})
}

// SearchSimilarFindings finds stored findings with similar content
func (s *PostgresStorage) SearchSimilarFindings(ctx context.Context, query string, limit int) ([]models.FindingMatch, error) {
	if s.embedder == nil {
		return nil, ErrSearchUnsupported
	}
	queryEmbedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT f.run_id, r.source, f.severity, f.trap_name, f.location, f.problem, f.frame_indices,
        1 - (f.embedding <=> $1) AS similarity
        FROM findings f
        JOIN runs r ON f.run_id = r.id
        WHERE f.embedding IS NOT NULL
        ORDER BY f.embedding <=> $1
        LIMIT $2`,
		pgvector.NewVector(queryEmbedding), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search similar findings: %w", err)
	}
	defer rows.Close()

	var results []models.FindingMatch
	for rows.Next() {
		var m models.FindingMatch
		var severity string
		var frames []int32
		if err := rows.Scan(&m.RunID, &m.Source, &severity, &m.TrapName, &m.Location,
			&m.Problem, &frames, &m.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan search results: %w", err)
		}
		m.Severity = models.Severity(severity)
		for _, f := range frames {
			m.Frames = append(m.Frames, int(f))
		}
		results = append(results, m)
	}

	return results, rows.Err()
}

// InitSchema creates the database schema if it doesn't exist. dims is the
// embedding width and must match the embedding service.
func InitSchema(ctx context.Context, config PostgresConfig, dims int) error {
	conn, err := pgx.Connect(ctx, config.ConnString())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close(ctx)

	// Check if vector extension exists
	var exists bool
	err = conn.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'vector')").Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check for vector extension: %w", err)
	}

	if !exists {
		if _, err := conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
			return fmt.Errorf("failed to create vector extension: %w", err)
		}
	}

	if _, err := conn.Exec(ctx, schemaSQL(dims)); err != nil {
		return fmt.Errorf("failed to create database schema: %w", err)
	}

	_, err = conn.Exec(ctx, `
        CREATE INDEX IF NOT EXISTS idx_frames_run_id ON frames(run_id);
        CREATE INDEX IF NOT EXISTS idx_findings_run_id ON findings(run_id);
        CREATE INDEX IF NOT EXISTS idx_findings_embedding ON findings USING hnsw (embedding vector_cosine_ops);
    `)
	if err != nil {
		return fmt.Errorf("failed to create database indexes: %w", err)
	}

	return nil
}

func schemaSQL(dims int) string {
	if dims <= 0 {
		dims = embeddings.DefaultDims
	}
	return fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS runs (
            id TEXT PRIMARY KEY,
            name VARCHAR(255) NOT NULL,
            source TEXT,
            analysis_type VARCHAR(32) NOT NULL,
            started_at TIMESTAMPTZ NOT NULL,
            duration_seconds DOUBLE PRECISION NOT NULL,
            frames INTEGER NOT NULL,
            failed INTEGER NOT NULL,
            issues INTEGER NOT NULL,
            report JSONB NOT NULL
        );

        CREATE TABLE IF NOT EXISTS frames (
            id SERIAL PRIMARY KEY,
            run_id TEXT REFERENCES runs(id) ON DELETE CASCADE,
            frame_index INTEGER NOT NULL,
            label TEXT NOT NULL,
            timestamp DOUBLE PRECISION,
            created_at TIMESTAMPTZ NOT NULL,
            UNIQUE(run_id, frame_index)
        );

        CREATE TABLE IF NOT EXISTS findings (
            id SERIAL PRIMARY KEY,
            run_id TEXT REFERENCES runs(id) ON DELETE CASCADE,
            severity VARCHAR(16) NOT NULL,
            trap_name TEXT NOT NULL,
            tenet TEXT,
            location TEXT,
            problem TEXT,
            frame_indices INTEGER[],
            embedding vector(%d),
            created_at TIMESTAMPTZ NOT NULL
        );
    `, dims)
}

func problemText(issue models.Issue) string {
	if issue.Problem != "" {
		return issue.Problem
	}
	return issue.Observation
}

func int32s(in []int) []int32 {
	out := make([]int32, len(in))
	for i, v := range in {
		out[i] = int32(v)
	}
	return out
}
