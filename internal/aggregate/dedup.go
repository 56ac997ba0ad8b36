package aggregate

import (
	"fmt"
	"sort"

	"github.com/bdougie/uitraps/internal/models"
)

// maxAppearsIn is how many frame labels are listed before collapsing into "+k more"
const maxAppearsIn = 5

type issueKey struct {
	trap     string
	location string
}

type merged struct {
	issue  models.Issue
	labels map[int]string
}

// Deduplicate merges issues reporting the same trap at the same location.
// Keys compare trap name and location exactly. The first occurrence seeds the
// merged issue, its confidence is raised to high if any occurrence is high,
// and the frames of every occurrence are collected. Running Deduplicate on its
// own output returns the same issues.
func Deduplicate(issues []models.Issue) []models.Issue {
	if len(issues) == 0 {
		return nil
	}

	var order []issueKey
	groups := make(map[issueKey]*merged)

	for _, issue := range issues {
		key := issueKey{trap: issue.TrapName, location: issue.Location}
		g, ok := groups[key]
		if !ok {
			g = &merged{issue: issue, labels: make(map[int]string)}
			groups[key] = g
			order = append(order, key)
		} else if issue.Confidence == models.ConfidenceHigh {
			g.issue.Confidence = models.ConfidenceHigh
		}
		for idx, label := range occurrences(issue) {
			if _, seen := g.labels[idx]; !seen {
				g.labels[idx] = label
			}
		}
	}

	out := make([]models.Issue, 0, len(order))
	for _, key := range order {
		out = append(out, finalize(groups[key]))
	}
	return out
}

// occurrences returns the frames an issue was seen in, keyed by frame index
func occurrences(issue models.Issue) map[int]string {
	if len(issue.OriginFrames) == 0 {
		return map[int]string{issue.FrameIndex: issue.Frame}
	}
	out := make(map[int]string, len(issue.OriginFrames))
	for i, idx := range issue.OriginFrames {
		var label string
		if i < len(issue.FrameLabels) {
			label = issue.FrameLabels[i]
		}
		out[idx] = label
	}
	return out
}

func finalize(g *merged) models.Issue {
	issue := g.issue

	indices := make([]int, 0, len(g.labels))
	for idx := range g.labels {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	labels := make([]string, len(indices))
	for i, idx := range indices {
		labels[i] = g.labels[idx]
	}

	issue.OriginFrames = indices
	issue.FrameLabels = labels

	if len(indices) > 1 {
		issue.Frame = fmt.Sprintf("%d frames", len(indices))
		issue.FrameIndex = 0
		issue.AppearsIn = appearsIn(labels)
		return issue
	}

	issue.Frame = labels[0]
	issue.FrameIndex = indices[0]
	issue.AppearsIn = nil
	return issue
}

func appearsIn(labels []string) []string {
	if len(labels) <= maxAppearsIn {
		return append([]string(nil), labels...)
	}
	out := append([]string(nil), labels[:maxAppearsIn]...)
	return append(out, fmt.Sprintf("+%d more", len(labels)-maxAppearsIn))
}
