package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bdougie/uitraps/internal/models"
)

const batchSize = 10 // Number of runs to batch write

var ErrSearchUnsupported = errors.New("storage driver does not support finding search")

// Storage defines the interface for storing analysis runs
type Storage interface {
	// SaveRun records a completed run
	SaveRun(ctx context.Context, run *models.Run) error

	// Flush ensures all pending runs are saved
	Flush() error

	Close() error
}

// Searcher finds stored findings similar to a free-text query
type Searcher interface {
	SearchSimilarFindings(ctx context.Context, query string, limit int) ([]models.FindingMatch, error)
}

// Finding is one issue of a run flattened with its severity
type Finding struct {
	Severity models.Severity
	Issue    models.Issue
}

// Findings flattens every severity bucket of a report, in report order
func Findings(report *models.AggregatedReport) []Finding {
	if report == nil {
		return nil
	}
	buckets := []struct {
		severity models.Severity
		issues   []models.Issue
	}{
		{models.SeverityCritical, report.CriticalIssues},
		{models.SeverityModerate, report.ModerateIssues},
		{models.SeverityMinor, report.MinorIssues},
		{models.SeverityPotential, report.PotentialIssues},
	}

	var out []Finding
	for _, b := range buckets {
		for _, issue := range b.issues {
			out = append(out, Finding{Severity: b.severity, Issue: issue})
		}
	}
	return out
}

// frameIndices returns the frames a finding came from, merged or not
func frameIndices(issue models.Issue) []int {
	if len(issue.OriginFrames) > 0 {
		return issue.OriginFrames
	}
	if issue.FrameIndex > 0 {
		return []int{issue.FrameIndex}
	}
	return nil
}

// JSONStorage writes each run's report to <outputDir>/<runID>/report.json and
// keeps a runs.json index in outputDir
type JSONStorage struct {
	runs      []*models.Run
	mu        sync.Mutex
	outputDir string
}

// NewJSONStorage creates a new storage manager
func NewJSONStorage(outputDir string) *JSONStorage {
	return &JSONStorage{
		runs:      []*models.Run{},
		outputDir: outputDir,
	}
}

// SaveRun adds a run to the batch and flushes if the batch is full
func (s *JSONStorage) SaveRun(ctx context.Context, run *models.Run) error {
	if run == nil {
		return errors.New("nil run")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)

	// Write to disk when batch is full
	if len(s.runs) >= batchSize {
		return s.flush()
	}
	return nil
}

// Flush writes all pending runs to disk
func (s *JSONStorage) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flush()
}

func (s *JSONStorage) Close() error {
	return s.Flush()
}

// Internal flush implementation
func (s *JSONStorage) flush() error {
	if len(s.runs) == 0 {
		return nil
	}

	records := make([]models.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		path, err := s.writeReport(run)
		if err != nil {
			return err
		}
		rec := run.Record()
		rec.ReportPath = path
		records = append(records, rec)
	}

	existing, err := s.Runs()
	if err != nil {
		return err
	}

	if err := writeJSON(s.indexPath(), append(existing, records...)); err != nil {
		return err
	}

	s.runs = nil // Clear the batch
	return nil
}

func (s *JSONStorage) writeReport(run *models.Run) (string, error) {
	path := filepath.Join(s.outputDir, run.ID, "report.json")
	if err := writeJSON(path, run); err != nil {
		return "", fmt.Errorf("failed to write report for run %s: %w", run.ID, err)
	}
	return path, nil
}

func (s *JSONStorage) indexPath() string {
	return filepath.Join(s.outputDir, "runs.json")
}

// Runs reads the run index. A missing index is an empty history.
func (s *JSONStorage) Runs() ([]models.RunRecord, error) {
	var records []models.RunRecord
	data, err := os.ReadFile(s.indexPath())
	if errors.Is(err, os.ErrNotExist) {
		return records, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read run index: %w", err)
	}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to unmarshal existing runs: %w", err)
	}
	return records, nil
}

// LoadRun reads a stored run back from disk
func (s *JSONStorage) LoadRun(id string) (*models.Run, error) {
	data, err := os.ReadFile(filepath.Join(s.outputDir, id, "report.json"))
	if err != nil {
		return nil, err
	}
	var run models.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run %s: %w", id, err)
	}
	return &run, nil
}

func writeJSON(path string, v any) error {
	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for results: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
