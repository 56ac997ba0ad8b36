package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)

	"github.com/bdougie/uitraps/internal/embeddings"
	"github.com/bdougie/uitraps/internal/models"
)

// SQLiteStorage keeps run history and embedded findings in a local database.
// Runs are written immediately, Flush is a no-op.
type SQLiteStorage struct {
	db       *sql.DB
	embedder *embeddings.Service
	logger   *slog.Logger
}

// NewSQLiteStorage opens or creates the database at path and applies the schema
func NewSQLiteStorage(path string, embedder *embeddings.Service, logger *slog.Logger) (*SQLiteStorage, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrent access
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &SQLiteStorage{
		db:       db,
		embedder: embedder,
		logger:   logger.With("component", "storage", "driver", "sqlite"),
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStorage) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		source TEXT,
		analysis_type TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		duration_seconds REAL NOT NULL,
		frames INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		issues INTEGER NOT NULL,
		report TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);

	CREATE TABLE IF NOT EXISTS findings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		severity TEXT NOT NULL,
		trap_name TEXT NOT NULL,
		location TEXT,
		problem TEXT,
		frame_indices TEXT,
		embedding BLOB
	);

	CREATE INDEX IF NOT EXISTS idx_findings_run ON findings(run_id);
	CREATE INDEX IF NOT EXISTS idx_findings_trap ON findings(trap_name);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveRun stores the run, its report and its findings in one transaction
func (s *SQLiteStorage) SaveRun(ctx context.Context, run *models.Run) error {
	findings := Findings(run.Report)

	var vectors [][]float32
	if s.embedder != nil && len(findings) > 0 {
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs
		(id, name, source, analysis_type, started_at, duration_seconds, frames, failed, issues, report)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Name, rec.Source, string(rec.AnalysisType), rec.StartedAt.UTC(),
		rec.Duration, rec.Frames, rec.Failed, rec.Issues, string(report))
	if err != nil {
		return fmt.Errorf("failed to store run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM findings WHERE run_id = ?", rec.ID); err != nil {
		return fmt.Errorf("failed to clear findings: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO findings (run_id, severity, trap_name, location, problem, frame_indices, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, f := range findings {
		frames, err := json.Marshal(frameIndices(f.Issue))
		if err != nil {
			return err
		}
		var blob []byte
		if vectors != nil {
			blob = serializeEmbedding(vectors[i])
		}
		if _, err := stmt.ExecContext(ctx, rec.ID, string(f.Severity), f.Issue.TrapName,
			f.Issue.Location, problemText(f.Issue), string(frames), blob); err != nil {
			return fmt.Errorf("failed to store finding %q: %w", f.Issue.TrapName, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStorage) Flush() error {
	return nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Runs lists stored runs, newest first. limit <= 0 lists all of them.
func (s *SQLiteStorage) Runs(ctx context.Context, limit int) ([]models.RunRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, source, analysis_type, started_at, duration_seconds, frames, failed, issues
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []models.RunRecord
	for rows.Next() {
		var rec models.RunRecord
		var kind string
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Source, &kind, &rec.StartedAt,
			&rec.Duration, &rec.Frames, &rec.Failed, &rec.Issues); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		rec.AnalysisType = models.AnalysisType(kind)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// LoadReport returns the stored report of a run
func (s *SQLiteStorage) LoadReport(ctx context.Context, runID string) (*models.AggregatedReport, error) {
	var raw string
	if err := s.db.QueryRowContext(ctx, "SELECT report FROM runs WHERE id = ?", runID).Scan(&raw); err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	var report models.AggregatedReport
	if err := json.Unmarshal([]byte(raw), &report); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	return &report, nil
}

// SearchSimilarFindings ranks every embedded finding by cosine similarity to the query
func (s *SQLiteStorage) SearchSimilarFindings(ctx context.Context, query string, limit int) ([]models.FindingMatch, error) {
	if s.embedder == nil {
		return nil, ErrSearchUnsupported
	}
	queryEmbedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT f.run_id, r.source, f.severity, f.trap_name, f.location, f.problem, f.frame_indices, f.embedding
		FROM findings f JOIN runs r ON f.run_id = r.id
		WHERE f.embedding IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("failed to search findings: %w", err)
	}
	defer rows.Close()

	var matches []models.FindingMatch
	for rows.Next() {
		var m models.FindingMatch
		var severity, frames string
		var blob []byte
		if err := rows.Scan(&m.RunID, &m.Source, &severity, &m.TrapName, &m.Location, &m.Problem, &frames, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan finding: %w", err)
		}
		m.Severity = models.Severity(severity)
		if frames != "" {
			_ = json.Unmarshal([]byte(frames), &m.Frames)
		}
		m.Similarity = embeddings.Cosine(queryEmbedding, deserializeEmbedding(blob))
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// serializeEmbedding converts a float32 slice to little-endian bytes
func serializeEmbedding(embedding []float32) []byte {
	if embedding == nil {
		return nil
	}
	blob := make([]byte, len(embedding)*4)
	for i, v := range embedding {
		bits := math.Float32bits(v)
		blob[i*4] = byte(bits)
		blob[i*4+1] = byte(bits >> 8)
		blob[i*4+2] = byte(bits >> 16)
		blob[i*4+3] = byte(bits >> 24)
	}
	return blob
}

func deserializeEmbedding(blob []byte) []float32 {
	if len(blob) == 0 || len(blob)%4 != 0 {
		return nil
	}
	embedding := make([]float32, len(blob)/4)
	for i := range embedding {
		bits := uint32(blob[i*4]) |
			uint32(blob[i*4+1])<<8 |
			uint32(blob[i*4+2])<<16 |
			uint32(blob[i*4+3])<<24
		embedding[i] = math.Float32frombits(bits)
	}
	return embedding
}
