// Package aggregate folds per-frame reports into one deduplicated report for the run.
package aggregate

import (
	"fmt"
	"sort"

	"github.com/bdougie/uitraps/internal/correlate"
	"github.com/bdougie/uitraps/internal/models"
)

const maxPositives = 10

// Aggregate builds the run report from the orchestrator's results. Failed
// frames are counted and keep their snapshot in FrameImages but contribute no
// findings. It has no side effects and never fails on missing report fields.
func Aggregate(results []models.FrameResult, analysisType models.AnalysisType) *models.AggregatedReport {
	report := &models.AggregatedReport{
		AnalysisType: analysisType,
		FrameImages:  make(map[int]models.FrameImage),
		FrameCount:   len(results),
	}

	var critical, moderate, minor []models.Issue
	var positives []string
	notFound := make(map[string]bool)

	for _, r := range results {
		// Always capture the frame image, even if analysis failed
		if r.Snapshot != nil {
			report.FrameImages[r.Frame.Index] = models.FrameImage{
				ImageData: r.Snapshot.DataURL,
				Filename:  r.Frame.Label(),
				Timestamp: r.Frame.Timestamp,
			}
		}

		if r.Failed() {
			report.FailedCount++
			continue
		}
		report.SuccessfulCount++

		label := r.Frame.Label()
		critical = append(critical, tag(r.Report.CriticalIssues, r.Frame)...)
		moderate = append(moderate, tag(r.Report.ModerateIssues, r.Frame)...)
		minor = append(minor, tag(r.Report.MinorIssues, r.Frame)...)
		report.PotentialIssues = append(report.PotentialIssues, tag(r.Report.PotentialIssues, r.Frame)...)

		for _, obs := range r.Report.PositiveObservations {
			positives = append(positives, fmt.Sprintf("[%s] %s", label, obs))
		}
		for _, trap := range r.Report.TrapsCheckedNotFound {
			notFound[trap] = true
		}
		for _, bug := range r.Report.BugsDetected {
			bug.Frame = label
			bug.FrameIndex = r.Frame.Index
			report.BugsDetected = append(report.BugsDetected, bug)
		}
	}

	report.CriticalIssues = Deduplicate(critical)
	report.ModerateIssues = Deduplicate(moderate)
	report.MinorIssues = Deduplicate(minor)
	report.PositiveObservations = uniqueCapped(positives, maxPositives)
	report.TrapsCheckedNotFound = sortedKeys(notFound)
	report.CrossFrameIssues = correlate.DetectDrift(results)

	report.Summary = Summarize(report)
	report.Statistics = Stats(report)
	return report
}

// tag copies issues and stamps each with the frame it came from
func tag(issues []models.Issue, frame models.FrameRecord) []models.Issue {
	out := make([]models.Issue, len(issues))
	for i, issue := range issues {
		issue.Frame = frame.Label()
		issue.FrameIndex = frame.Index
		issue.OriginFrames = nil
		issue.FrameLabels = nil
		issue.AppearsIn = nil
		out[i] = issue
	}
	return out
}

func uniqueCapped(items []string, limit int) []string {
	seen := make(map[string]bool, len(items))
	var out []string
	for _, item := range items {
		if seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
		if len(out) == limit {
			break
		}
	}
	return out
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Stats counts over the final aggregated structure
func Stats(r *models.AggregatedReport) models.Statistics {
	return models.Statistics{
		TotalIssues:        len(r.CriticalIssues) + len(r.ModerateIssues) + len(r.MinorIssues),
		CriticalCount:      len(r.CriticalIssues),
		ModerateCount:      len(r.ModerateIssues),
		MinorCount:         len(r.MinorIssues),
		PositiveCount:      len(r.PositiveObservations),
		TrapsNotFoundCount: len(r.TrapsCheckedNotFound),
		SummaryLength:      len(r.Summary),
	}
}
