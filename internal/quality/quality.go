// Package quality selects usable frames from an over-extracted video candidate set.
//
// Selection is two-pass: the whole candidate batch is classified in a single
// request, then candidates are walked in order keeping "good" frames until the
// target count is reached. Every failure mode fails open and returns the
// candidates unfiltered.
package quality

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/bdougie/uitraps/internal/extractor"
	"github.com/bdougie/uitraps/internal/models"
	"github.com/bdougie/uitraps/internal/observe"
)

var ErrUnparsable = errors.New("quality classification could not be parsed")

// minGoodFrames is the floor below which filtering is judged too aggressive
const minGoodFrames = 3

// Prompt asks the classifier for one verdict per frame in a fixed JSON shape
const Prompt = `Classify each video frame for UI analysis suitability.
For each frame, respond with EXACTLY this JSON format:
{
  "frames": [
    {"index": 1, "quality": "good|loading|blank|transition|duplicate", "reason": "brief reason"}
  ]
}

Quality classifications:
- "good": Complete UI visible, stable, suitable for analysis
- "loading": Loading spinner, progress bar, or "loading" text visible
- "blank": Mostly empty screen, solid color, or no meaningful content
- "transition": Mid-animation, blurry, or partial UI (elements moving/fading)
- "duplicate": Nearly identical to previous frame (skip if consecutive)

IMPORTANT: Be strict. If you see ANY loading indicator, progress animation, or partially rendered UI, mark as loading/transition.
A blank screen with no visible UI elements should be marked as "blank" even without explicit loading text.

Analyze these frames:`

// Candidate is a frame submitted for classification together with its snapshot
type Candidate struct {
	Frame    models.FrameRecord
	Snapshot *models.Snapshot
}

// Classifier labels a whole batch of candidates in one call, keyed by frame index
type Classifier interface {
	ClassifyQuality(ctx context.Context, candidates []Candidate) (map[int]models.QualityVerdict, error)
}

// Prefilter drops loading, blank, transitional and duplicate frames
type Prefilter struct {
	classifier Classifier
	load       extractor.SnapshotLoader
	observer   observe.Observer
	loadLimit  int
}

// Option configures a Prefilter
type Option func(*Prefilter)

// WithSnapshotLoader overrides how candidate snapshots are read
func WithSnapshotLoader(load extractor.SnapshotLoader) Option {
	return func(p *Prefilter) { p.load = load }
}

// WithObserver sets the event observer
func WithObserver(o observe.Observer) Option {
	return func(p *Prefilter) { p.observer = observe.OrNop(o) }
}

// NewPrefilter returns a prefilter backed by classifier
func NewPrefilter(classifier Classifier, opts ...Option) *Prefilter {
	p := &Prefilter{
		classifier: classifier,
		load:       extractor.LoadSnapshot,
		observer:   observe.Nop{},
		loadLimit:  4,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SelectGoodFrames returns at most target good frames in candidate order and a
// quality note for every candidate rejected before the target was reached.
// Candidates keep their original indices; callers renumber before analysis.
func (p *Prefilter) SelectGoodFrames(ctx context.Context, candidates []models.FrameRecord, target int) ([]models.FrameRecord, []models.QualityNote) {
	if len(candidates) == 0 {
		return nil, nil
	}
	if target <= 0 {
		target = len(candidates)
	}

	snapshots, failures := extractor.LoadSnapshots(ctx, candidates, p.load, p.loadLimit)

	var loaded []Candidate
	for _, frame := range candidates {
		if err, failed := failures[frame.Index]; failed {
			p.observer.SnapshotFailed(frame.Index, err)
			continue
		}
		loaded = append(loaded, Candidate{Frame: frame, Snapshot: snapshots[frame.Index]})
	}
	if len(loaded) == 0 {
		p.observer.ClassifierFallback("no_snapshots", nil)
		return candidates, nil
	}

	verdicts, err := p.classify(ctx, loaded)
	if err != nil {
		reason := "classifier_error"
		if errors.Is(err, ErrUnparsable) {
			reason = "unparsable"
		}
		p.observer.ClassifierFallback(reason, err)
		return candidates, nil
	}

	var (
		good  []models.FrameRecord
		notes []models.QualityNote
	)
	for _, c := range loaded {
		v, ok := verdicts[c.Frame.Index]
		if !ok || v.Quality == models.QualityGood {
			good = append(good, c.Frame)
		} else {
			desc := v.Reason
			if desc == "" {
				desc = fmt.Sprintf("Frame classified as %s", v.Quality)
			}
			notes = append(notes, models.QualityNote{
				CandidateIndex: c.Frame.Index,
				Issue:          IssueKind(v.Quality),
				Description:    desc,
				ShouldSkip:     true,
				Timestamp:      c.Frame.Timestamp,
			})
			p.observer.FrameSkipped(c.Frame.Index, string(v.Quality), v.Reason)
		}

		// later candidates are not evaluated once the target is met
		if len(good) >= target {
			break
		}
	}

	if len(good) < minGoodFrames && len(candidates) >= minGoodFrames {
		p.observer.ClassifierFallback("too_aggressive", nil)
		return candidates, notes
	}
	return good, notes
}

func (p *Prefilter) classify(ctx context.Context, loaded []Candidate) (verdicts map[int]models.QualityVerdict, err error) {
	defer func() {
		if r := recover(); r != nil {
			verdicts, err = nil, fmt.Errorf("quality classifier panicked: %v", r)
		}
	}()
	return p.classifier.ClassifyQuality(ctx, loaded)
}

// IssueKind maps a quality label to the report's frame quality issue kind
func IssueKind(label models.QualityLabel) string {
	switch label {
	case models.QualityLoading:
		return "loading_state"
	case models.QualityBlank:
		return "blank_screen"
	case models.QualityTransition:
		return "mid_transition"
	case models.QualityDuplicate:
		return "duplicate"
	default:
		return "low_quality"
	}
}

var jsonObject = regexp.MustCompile(`(?s)\{.*\}`)

type classification struct {
	Frames []models.QualityVerdict `json:"frames"`
}

// ParseClassification extracts the verdict map from a classifier reply. The
// reply may wrap the JSON object in prose or code fences.
func ParseClassification(text string) (map[int]models.QualityVerdict, error) {
	raw := jsonObject.FindString(text)
	if raw == "" {
		return nil, fmt.Errorf("%w: no JSON object in response", ErrUnparsable)
	}

	var c classification
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparsable, err)
	}

	verdicts := make(map[int]models.QualityVerdict, len(c.Frames))
	for _, v := range c.Frames {
		v.Quality = models.QualityLabel(strings.ToLower(strings.TrimSpace(string(v.Quality))))
		if v.Quality == "" {
			v.Quality = models.QualityGood
		}
		verdicts[v.Index] = v
	}
	return verdicts, nil
}
