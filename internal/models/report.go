package models

// Confidence of a finding
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Severity buckets issues are reported under
type Severity string

const (
	SeverityCritical  Severity = "critical"
	SeverityModerate  Severity = "moderate"
	SeverityMinor     Severity = "minor"
	SeverityPotential Severity = "potential"
)

// Issue is a single trap finding. The frame fields are empty as produced by the
// annotator and are filled in during aggregation.
type Issue struct {
	TrapName       string     `json:"trap_name"`
	Tenet          string     `json:"tenet"`
	Location       string     `json:"location"`
	Problem        string     `json:"problem,omitempty"`
	Recommendation string     `json:"recommendation,omitempty"`
	Observation    string     `json:"observation,omitempty"`
	WhyUncertain   string     `json:"why_uncertain,omitempty"`
	Confidence     Confidence `json:"confidence"`

	// OriginFrames is the ordered set of frame indices the issue was seen in
	OriginFrames []int `json:"frame_indices,omitempty"`
	// FrameLabels lists the frame label of every merged occurrence
	FrameLabels []string `json:"frames,omitempty"`
	Frame       string   `json:"frame,omitempty"`
	FrameIndex  int      `json:"frame_index,omitempty"`
	AppearsIn   []string `json:"appears_in,omitempty"`
}

// Bug is a technical failure observed in a frame, as opposed to a usability trap
type Bug struct {
	BugType       string     `json:"bug_type"`
	Location      string     `json:"location"`
	Description   string     `json:"description"`
	PossibleCause string     `json:"possible_cause,omitempty"`
	Confidence    Confidence `json:"confidence"`
	Frame         string     `json:"frame,omitempty"`
	FrameIndex    int        `json:"frame_index,omitempty"`
}

// FrameReport is what the annotator produces for a single frame
type FrameReport struct {
	Summary              []string `json:"summary"`
	CriticalIssues       []Issue  `json:"critical_issues"`
	ModerateIssues       []Issue  `json:"moderate_issues"`
	MinorIssues          []Issue  `json:"minor_issues"`
	PositiveObservations []string `json:"positive_observations"`
	PotentialIssues      []Issue  `json:"potential_issues"`
	TrapsCheckedNotFound []string `json:"traps_checked_not_found"`
	BugsDetected         []Bug    `json:"bugs_detected,omitempty"`
}

// Bucket returns the issues reported under a severity
func (r *FrameReport) Bucket(s Severity) []Issue {
	if r == nil {
		return nil
	}
	switch s {
	case SeverityCritical:
		return r.CriticalIssues
	case SeverityModerate:
		return r.ModerateIssues
	case SeverityMinor:
		return r.MinorIssues
	case SeverityPotential:
		return r.PotentialIssues
	}
	return nil
}

// Severities in report order
var Severities = []Severity{SeverityCritical, SeverityModerate, SeverityMinor, SeverityPotential}

// FrameResult pairs a submitted frame with its annotation outcome
type FrameResult struct {
	Frame    FrameRecord  `json:"frame"`
	Snapshot *Snapshot    `json:"-"`
	Report   *FrameReport `json:"report,omitempty"`
	Err      string       `json:"error,omitempty"`
}

// Failed reports whether the annotator call for this frame failed
func (r FrameResult) Failed() bool {
	return r.Err != "" || r.Report == nil
}

// QualityLabel is the prefilter classification of a candidate frame
type QualityLabel string

const (
	QualityGood       QualityLabel = "good"
	QualityLoading    QualityLabel = "loading"
	QualityBlank      QualityLabel = "blank"
	QualityTransition QualityLabel = "transition"
	QualityDuplicate  QualityLabel = "duplicate"
)

// QualityVerdict is the classifier output for one candidate
type QualityVerdict struct {
	Index   int          `json:"index"`
	Quality QualityLabel `json:"quality"`
	Reason  string       `json:"reason"`
}

// QualityNote records why a candidate frame was rejected. CandidateIndex is the
// position among extracted candidates, not the index of an analyzed frame.
type QualityNote struct {
	CandidateIndex int      `json:"candidate_index"`
	Issue          string   `json:"issue"`
	Description    string   `json:"description"`
	ShouldSkip     bool     `json:"should_skip"`
	Timestamp      *float64 `json:"timestamp,omitempty"`
}

// FrameOccurrence is one sighting of an element in the cross-frame timeline
type FrameOccurrence struct {
	FrameIndex         int      `json:"frame_index"`
	NormalizedLocation string   `json:"location"`
	RawLocation        string   `json:"raw_location"`
	Timestamp          *float64 `json:"timestamp,omitempty"`
}

// CrossFrameIssue is a finding that only exists across several frames
type CrossFrameIssue struct {
	TrapName           string            `json:"trap_name"`
	Tenet              string            `json:"tenet"`
	ElementDescription string            `json:"element_description"`
	LocationsFound     []string          `json:"locations_found"`
	FrameOccurrences   []FrameOccurrence `json:"frame_occurrences"`
	Problem            string            `json:"problem"`
	Recommendation     string            `json:"recommendation"`
	Confidence         Confidence        `json:"confidence"`
	Severity           Severity          `json:"severity"`
}

// FrameImage is the embedded snapshot for a frame, keyed by frame index in the report
type FrameImage struct {
	ImageData string   `json:"image_data"`
	Filename  string   `json:"filename"`
	Timestamp *float64 `json:"timestamp,omitempty"`
}

// Statistics are simple counts over an aggregated report
type Statistics struct {
	TotalIssues        int `json:"total_issues"`
	CriticalCount      int `json:"critical_count"`
	ModerateCount      int `json:"moderate_count"`
	MinorCount         int `json:"minor_count"`
	PositiveCount      int `json:"positive_count"`
	TrapsNotFoundCount int `json:"traps_not_found_count"`
	SummaryLength      int `json:"summary_length"`
}

// AggregatedReport is the terminal artifact of a run, read-only once built
type AggregatedReport struct {
	AnalysisType         AnalysisType       `json:"analysis_type"`
	Summary              []string           `json:"summary"`
	CriticalIssues       []Issue            `json:"critical_issues"`
	ModerateIssues       []Issue            `json:"moderate_issues"`
	MinorIssues          []Issue            `json:"minor_issues"`
	PositiveObservations []string           `json:"positive_observations"`
	PotentialIssues      []Issue            `json:"potential_issues"`
	TrapsCheckedNotFound []string           `json:"traps_checked_not_found"`
	BugsDetected         []Bug              `json:"bugs_detected,omitempty"`
	CrossFrameIssues     []CrossFrameIssue  `json:"cross_frame_issues,omitempty"`
	FrameQualityNotes    []QualityNote      `json:"frame_quality_notes,omitempty"`
	FrameImages          map[int]FrameImage `json:"frame_images"`
	VideoInfo            *VideoInfo         `json:"video_info,omitempty"`

	Statistics      Statistics `json:"statistics"`
	FrameCount      int        `json:"frame_count"`
	SuccessfulCount int        `json:"successful_count"`
	FailedCount     int        `json:"failed_count"`
}
