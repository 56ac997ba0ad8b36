package aggregate

import (
	"fmt"
	"strings"

	"github.com/bdougie/uitraps/internal/models"
)

const (
	maxSummaryLines = 7
	maxTrapNames    = 3
)

// Summarize renders the templated summary bullets for an aggregated report
func Summarize(r *models.AggregatedReport) []string {
	noun := "screenshots"
	if r.AnalysisType == models.AnalysisVideo {
		noun = "video frames"
	}

	analyzed := fmt.Sprintf("Analyzed %d %s", r.SuccessfulCount, noun)
	if r.FailedCount > 0 {
		analyzed += fmt.Sprintf(" (%d failed)", r.FailedCount)
	}

	total := len(r.CriticalIssues) + len(r.ModerateIssues) + len(r.MinorIssues)
	summary := []string{
		analyzed,
		fmt.Sprintf("Found %d total issues: %d critical, %d moderate, %d minor",
			total, len(r.CriticalIssues), len(r.ModerateIssues), len(r.MinorIssues)),
	}

	if names := trapNames(r.CriticalIssues); len(names) > 0 {
		summary = append(summary, "Critical issues include: "+strings.Join(names, ", "))
	}
	if names := trapNames(r.ModerateIssues); len(names) > 0 {
		summary = append(summary, "Moderate issues include: "+strings.Join(names, ", "))
	}
	if n := len(r.CrossFrameIssues); n > 0 {
		summary = append(summary, fmt.Sprintf("Detected %d element(s) changing position across frames", n))
	}
	if n := len(r.BugsDetected); n > 0 {
		summary = append(summary, fmt.Sprintf("Detected %d technical bug(s)", n))
	}

	if len(summary) > maxSummaryLines {
		summary = summary[:maxSummaryLines]
	}
	return summary
}

// trapNames returns up to maxTrapNames distinct trap names in first-seen order
func trapNames(issues []models.Issue) []string {
	seen := make(map[string]bool)
	var names []string
	for _, issue := range issues {
		name := issue.TrapName
		if name == "" {
			name = "Unknown"
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
		if len(names) == maxTrapNames {
			break
		}
	}
	return names
}
