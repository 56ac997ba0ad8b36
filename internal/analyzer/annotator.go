package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/agent-api/core/agent"

	"github.com/bdougie/uitraps/internal/extractor"
	"github.com/bdougie/uitraps/internal/models"
	"github.com/bdougie/uitraps/internal/quality"
)

var (
	ErrNoResponse  = errors.New("no response messages received from model")
	ErrBadResponse = errors.New("model response is not a frame report")
)

const annotationPrompt = `Analyze this user interface screenshot for UI Traps.

Respond with a single JSON object with these keys:
- "summary": array of short bullet sentences
- "critical_issues", "moderate_issues", "minor_issues": arrays of
  {"trap_name": "TRAP NAME IN CAPS", "tenet": "...", "location": "where on screen",
   "problem": "...", "recommendation": "...", "confidence": "high|medium|low"}
- "positive_observations": array of strings
- "potential_issues": array of
  {"trap_name": "...", "tenet": "...", "location": "...", "observation": "...",
   "why_uncertain": "...", "confidence": "low"}
- "traps_checked_not_found": array of trap names
- "bugs_detected": array of
  {"bug_type": "blank_screen|broken_layout|missing_content|partial_load|error_state|technical_failure",
   "location": "...", "description": "...", "possible_cause": "...", "confidence": "high|medium|low"}

Describe locations with screen position words (top, bottom, left, right) and the
region (header, footer, sidebar, toolbar, modal) where they apply.`

// BuildPrompt renders the annotation prompt with the user's context
func BuildPrompt(actx models.AnalysisContext) string {
	var b strings.Builder
	b.WriteString(annotationPrompt)
	if actx.Users != "" {
		fmt.Fprintf(&b, "\n\nUsers: %s", actx.Users)
	}
	if actx.Tasks != "" {
		fmt.Fprintf(&b, "\nTasks: %s", actx.Tasks)
	}
	if actx.Format != "" {
		fmt.Fprintf(&b, "\nFormat: %s", actx.Format)
	}
	return b.String()
}

// AgentAnnotator annotates frames with an Ollama vision model
type AgentAnnotator struct {
	vision *Vision
	load   extractor.SnapshotLoader
}

func NewAgentAnnotator(v *Vision) *AgentAnnotator {
	return &AgentAnnotator{vision: v, load: extractor.LoadSnapshot}
}

func (a *AgentAnnotator) Annotate(ctx context.Context, frame models.FrameRecord, actx models.AnalysisContext) (*models.FrameReport, error) {
	snap, err := a.load(frame.Path)
	if err != nil {
		return nil, err
	}
	image, err := imageOption(snap)
	if err != nil {
		return nil, err
	}

	content, err := a.vision.Ask(ctx, agent.WithInput(BuildPrompt(actx)), image)
	if err != nil {
		return nil, err
	}
	return ParseFrameReport(content)
}

// AgentClassifier sends a whole candidate batch to the vision model in one request
type AgentClassifier struct {
	vision *Vision
}

func NewAgentClassifier(v *Vision) *AgentClassifier {
	return &AgentClassifier{vision: v}
}

// ClassifyQuality attaches the candidates' loaded snapshots in order
func (c *AgentClassifier) ClassifyQuality(ctx context.Context, candidates []quality.Candidate) (map[int]models.QualityVerdict, error) {
	opts := []agent.RunOptionFunc{agent.WithInput(ClassificationPrompt(candidates))}
	for _, cand := range candidates {
		image, err := imageOption(cand.Snapshot)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", cand.Frame.Index, err)
		}
		opts = append(opts, image)
	}

	content, err := c.vision.Ask(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return quality.ParseClassification(content)
}

// ClassificationPrompt lists the attached frames in order so verdicts can be keyed by index
func ClassificationPrompt(candidates []quality.Candidate) string {
	var b strings.Builder
	b.WriteString(quality.Prompt)
	for i, c := range candidates {
		fmt.Fprintf(&b, "\nImage %d is Frame %d", i+1, c.Frame.Index)
		if c.Frame.Timestamp != nil {
			fmt.Fprintf(&b, " (at %.1fs)", *c.Frame.Timestamp)
		}
	}
	return b.String()
}

var reportObject = regexp.MustCompile(`(?s)\{.*\}`)

// ParseFrameReport decodes a frame report from model output, tolerating prose
// around the JSON object. Trap names are canonicalized to upper case.
func ParseFrameReport(text string) (*models.FrameReport, error) {
	raw := reportObject.FindString(text)
	if raw == "" {
		return nil, fmt.Errorf("%w: no JSON object", ErrBadResponse)
	}

	var report models.FrameReport
	if err := json.Unmarshal([]byte(raw), &report); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}

	for _, bucket := range [][]models.Issue{
		report.CriticalIssues, report.ModerateIssues, report.MinorIssues, report.PotentialIssues,
	} {
		for i := range bucket {
			bucket[i].TrapName = strings.ToUpper(strings.TrimSpace(bucket[i].TrapName))
			bucket[i].Confidence = models.Confidence(strings.ToLower(strings.TrimSpace(string(bucket[i].Confidence))))
		}
	}
	for i, trap := range report.TrapsCheckedNotFound {
		report.TrapsCheckedNotFound[i] = strings.ToUpper(strings.TrimSpace(trap))
	}
	return &report, nil
}
