// Package correlate finds UI elements whose screen position drifts between frames.
package correlate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bdougie/uitraps/internal/identity"
	"github.com/bdougie/uitraps/internal/location"
	"github.com/bdougie/uitraps/internal/models"
)

const (
	TrapName = "WANDERING ELEMENT (Cross-Frame)"
	Tenet    = "HABITUATING"

	recommendation = "Maintain consistent element placement across all screens and states to support user muscle memory and habituation."
)

// Registry indexes element sightings by identity for a single run
type Registry struct {
	order       []identity.Identity
	occurrences map[identity.Identity][]models.FrameOccurrence
}

func NewRegistry() *Registry {
	return &Registry{occurrences: make(map[identity.Identity][]models.FrameOccurrence)}
}

// Record adds a sighting of the element an issue refers to. Issues whose
// element cannot be named are ignored and Record reports false.
func (r *Registry) Record(frame models.FrameRecord, issue models.Issue) bool {
	id := identity.Of(issue)
	if !id.Known() {
		return false
	}
	if _, ok := r.occurrences[id]; !ok {
		r.order = append(r.order, id)
	}
	r.occurrences[id] = append(r.occurrences[id], models.FrameOccurrence{
		FrameIndex:         frame.Index,
		NormalizedLocation: location.Normalize(issue.Location),
		RawLocation:        issue.Location,
		Timestamp:          frame.Timestamp,
	})
	return true
}

// Len returns the number of distinct elements seen
func (r *Registry) Len() int {
	return len(r.order)
}

// Drift emits one issue per element seen in at least two frames at more than one location
func (r *Registry) Drift() []models.CrossFrameIssue {
	var issues []models.CrossFrameIssue
	for _, id := range r.order {
		occ := r.occurrences[id]
		if len(occ) < 2 {
			continue
		}

		locations := distinct(occ)
		if len(locations) < 2 {
			continue
		}

		ordered := make([]models.FrameOccurrence, len(occ))
		copy(ordered, occ)
		sort.SliceStable(ordered, func(i, j int) bool {
			return ordered[i].FrameIndex < ordered[j].FrameIndex
		})

		confidence := models.ConfidenceMedium
		if len(locations) >= 3 {
			confidence = models.ConfidenceHigh
		}

		desc := id.Description()
		issues = append(issues, models.CrossFrameIssue{
			TrapName:           TrapName,
			Tenet:              Tenet,
			ElementDescription: desc,
			LocationsFound:     locations,
			FrameOccurrences:   ordered,
			Problem: fmt.Sprintf(
				"The %s appears in %d different locations across %d frames: %s. This inconsistent placement impedes user habituation.",
				desc, len(locations), len(occ), strings.Join(locations, ", "),
			),
			Recommendation: recommendation,
			Confidence:     confidence,
			Severity:       models.SeverityModerate,
		})
	}
	return issues
}

func distinct(occ []models.FrameOccurrence) []string {
	seen := make(map[string]bool, len(occ))
	var out []string
	for _, o := range occ {
		if !seen[o.NormalizedLocation] {
			seen[o.NormalizedLocation] = true
			out = append(out, o.NormalizedLocation)
		}
	}
	sort.Strings(out)
	return out
}

// DetectDrift scans every issue bucket of every successful frame and reports
// elements that wander between frames. Failed frames contribute nothing.
func DetectDrift(results []models.FrameResult) []models.CrossFrameIssue {
	registry := NewRegistry()
	for _, r := range results {
		if r.Failed() {
			continue
		}
		for _, s := range models.Severities {
			for _, issue := range r.Report.Bucket(s) {
				registry.Record(r.Frame, issue)
			}
		}
	}
	return registry.Drift()
}
