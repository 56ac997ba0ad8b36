package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/bdougie/uitraps/internal/models"
)

var (
	colorCritical = lipgloss.Color("196") // Red
	colorModerate = lipgloss.Color("214") // Orange
	colorMinor    = lipgloss.Color("78")  // Green
	colorMuted    = lipgloss.Color("241") // Gray
	colorPrimary  = lipgloss.Color("62")  // Purple
)

var titleStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("255")).
	Background(colorPrimary).
	Padding(0, 1)

var headerStyle = lipgloss.NewStyle().
	Bold(true).
	MarginTop(1)

var mutedStyle = lipgloss.NewStyle().
	Foreground(colorMuted)

var severityStyles = map[models.Severity]lipgloss.Style{
	models.SeverityCritical: lipgloss.NewStyle().Bold(true).Foreground(colorCritical),
	models.SeverityModerate: lipgloss.NewStyle().Bold(true).Foreground(colorModerate),
	models.SeverityMinor:    lipgloss.NewStyle().Foreground(colorMinor),
}

// renderRun prints a terminal summary of a finished run
func renderRun(w io.Writer, run *models.Run) {
	r := run.Report
	fmt.Fprintln(w, titleStyle.Render("UI traps report"))
	fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("run %s  %s  %.1fs", run.ID, run.Source, run.Duration.Seconds())))
	if r == nil {
		return
	}

	for _, line := range r.Summary {
		fmt.Fprintf(w, "  %s\n", line)
	}

	for _, sev := range []models.Severity{models.SeverityCritical, models.SeverityModerate, models.SeverityMinor} {
		issues := bucket(r, sev)
		if len(issues) == 0 {
			continue
		}
		fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%s (%d)", strings.ToUpper(string(sev)), len(issues))))
		for _, issue := range issues {
			fmt.Fprintf(w, "  %s %s\n", severityStyles[sev].Render(issue.TrapName), mutedStyle.Render("@ "+issue.Location+" · "+issue.Frame))
			if issue.Problem != "" {
				fmt.Fprintf(w, "    %s\n", issue.Problem)
			}
		}
	}

	if len(r.CrossFrameIssues) > 0 {
		fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("CROSS-FRAME (%d)", len(r.CrossFrameIssues))))
		for _, c := range r.CrossFrameIssues {
			fmt.Fprintf(w, "  %s %s\n", severityStyles[c.Severity].Render(c.ElementDescription), mutedStyle.Render(strings.Join(c.LocationsFound, " → ")))
		}
	}

	if len(r.FrameQualityNotes) > 0 {
		fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("%d frame(s) skipped by the quality filter", len(r.FrameQualityNotes))))
	}
}

func bucket(r *models.AggregatedReport, sev models.Severity) []models.Issue {
	switch sev {
	case models.SeverityCritical:
		return r.CriticalIssues
	case models.SeverityModerate:
		return r.ModerateIssues
	case models.SeverityMinor:
		return r.MinorIssues
	}
	return nil
}

func renderMatches(w io.Writer, matches []models.FindingMatch) {
	if len(matches) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("no similar findings"))
		return
	}
	for _, m := range matches {
		style, ok := severityStyles[m.Severity]
		if !ok {
			style = mutedStyle
		}
		fmt.Fprintf(w, "%.2f  %s %s\n", m.Similarity, style.Render(m.TrapName), mutedStyle.Render("@ "+m.Location+" · "+m.Source))
		if m.Problem != "" {
			fmt.Fprintf(w, "      %s\n", m.Problem)
		}
	}
}
