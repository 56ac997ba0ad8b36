package models

import "time"

// Run is one completed analysis, as handed to storage
type Run struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Source    string            `json:"source"`
	StartedAt time.Time         `json:"started_at"`
	Duration  time.Duration     `json:"duration"`
	Report    *AggregatedReport `json:"report"`
}

// RunRecord is the stored summary of a run, without the full report
type RunRecord struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Source       string       `json:"source"`
	AnalysisType AnalysisType `json:"analysis_type"`
	StartedAt    time.Time    `json:"started_at"`
	Duration     float64      `json:"duration_seconds"`
	Frames       int          `json:"frames"`
	Failed       int          `json:"failed"`
	Issues       int          `json:"issues"`
	ReportPath   string       `json:"report_path,omitempty"`
}

// Record summarizes the run for run history listings
func (r *Run) Record() RunRecord {
	rec := RunRecord{
		ID:        r.ID,
		Name:      r.Name,
		Source:    r.Source,
		StartedAt: r.StartedAt,
		Duration:  r.Duration.Seconds(),
	}
	if r.Report != nil {
		rec.AnalysisType = r.Report.AnalysisType
		rec.Frames = r.Report.FrameCount
		rec.Failed = r.Report.FailedCount
		rec.Issues = r.Report.Statistics.TotalIssues
	}
	return rec
}

// FindingMatch is a stored finding returned by similarity search
type FindingMatch struct {
	RunID      string   `json:"run_id"`
	Source     string   `json:"source"`
	Severity   Severity `json:"severity"`
	TrapName   string   `json:"trap_name"`
	Location   string   `json:"location"`
	Problem    string   `json:"problem"`
	Frames     []int    `json:"frame_indices"`
	Similarity float64  `json:"similarity"`
}
