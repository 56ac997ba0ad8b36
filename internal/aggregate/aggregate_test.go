package aggregate

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/bdougie/uitraps/internal/models"
)

func shot(index int) models.FrameRecord {
	return models.FrameRecord{Index: index, Path: fmt.Sprintf("/tmp/upload/screen_%d.png", index)}
}

func snapshot(index int) *models.Snapshot {
	return &models.Snapshot{MediaType: "image/png", DataURL: fmt.Sprintf("data:image/png;base64,%d", index)}
}

func TestDeduplicate_InvisibleElementScenario(t *testing.T) {
	issues := []models.Issue{
		{TrapName: "INVISIBLE ELEMENT", Location: "search icon", Confidence: models.ConfidenceMedium, Frame: "a.png", FrameIndex: 1},
		{TrapName: "INVISIBLE ELEMENT", Location: "search icon", Confidence: models.ConfidenceHigh, Frame: "b.png", FrameIndex: 2},
	}

	out := Deduplicate(issues)
	require.Len(t, out, 1)
	assert.Equal(t, models.ConfidenceHigh, out[0].Confidence)
	assert.Equal(t, []int{1, 2}, out[0].OriginFrames)
	assert.Equal(t, "2 frames", out[0].Frame)
	assert.Equal(t, []string{"a.png", "b.png"}, out[0].AppearsIn)
	assert.Zero(t, out[0].FrameIndex)
}

func TestDeduplicate_KeyIsExact(t *testing.T) {
	issues := []models.Issue{
		{TrapName: "INVISIBLE ELEMENT", Location: "search icon", FrameIndex: 1, Frame: "a"},
		{TrapName: "invisible element", Location: "search icon", FrameIndex: 2, Frame: "b"},
		{TrapName: "INVISIBLE ELEMENT", Location: "Search icon", FrameIndex: 3, Frame: "c"},
	}
	assert.Len(t, Deduplicate(issues), 3)
}

func TestDeduplicate_SingleKeepsFrame(t *testing.T) {
	out := Deduplicate([]models.Issue{
		{TrapName: "TINY TEXT", Location: "footer", Confidence: models.ConfidenceLow, Frame: "Frame at 3.0s", FrameIndex: 4},
	})
	require.Len(t, out, 1)
	assert.Equal(t, "Frame at 3.0s", out[0].Frame)
	assert.Equal(t, 4, out[0].FrameIndex)
	assert.Equal(t, []int{4}, out[0].OriginFrames)
	assert.Nil(t, out[0].AppearsIn)
}

func TestDeduplicate_FirstSeenConfidenceKept(t *testing.T) {
	out := Deduplicate([]models.Issue{
		{TrapName: "X", Location: "y", Confidence: models.ConfidenceLow, FrameIndex: 1},
		{TrapName: "X", Location: "y", Confidence: models.ConfidenceMedium, FrameIndex: 2},
	})
	require.Len(t, out, 1)
	assert.Equal(t, models.ConfidenceLow, out[0].Confidence)
}

func TestDeduplicate_AppearsInCapped(t *testing.T) {
	var issues []models.Issue
	for i := 8; i >= 1; i-- {
		issues = append(issues, models.Issue{TrapName: "X", Location: "y", FrameIndex: i, Frame: fmt.Sprintf("f%d", i)})
	}

	out := Deduplicate(issues)
	require.Len(t, out, 1)
	assert.Equal(t, "8 frames", out[0].Frame)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8}, out[0].OriginFrames)
	assert.Equal(t, []string{"f1", "f2", "f3", "f4", "f5", "+3 more"}, out[0].AppearsIn)
	assert.Len(t, out[0].FrameLabels, 8)
}

func TestDeduplicate_Empty(t *testing.T) {
	assert.Empty(t, Deduplicate(nil))
}

func TestDeduplicate_Idempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		traps := []string{"INVISIBLE ELEMENT", "TINY TEXT", "WANDERING ELEMENT"}
		locations := []string{"header", "search icon", "footer"}
		confidences := []models.Confidence{models.ConfidenceHigh, models.ConfidenceMedium, models.ConfidenceLow}

		n := rapid.IntRange(0, 20).Draw(t, "n")
		issues := make([]models.Issue, n)
		for i := range issues {
			frame := rapid.IntRange(1, 10).Draw(t, "frame")
			issues[i] = models.Issue{
				TrapName:   rapid.SampledFrom(traps).Draw(t, "trap"),
				Location:   rapid.SampledFrom(locations).Draw(t, "location"),
				Confidence: rapid.SampledFrom(confidences).Draw(t, "confidence"),
				Frame:      fmt.Sprintf("screen_%d.png", frame),
				FrameIndex: frame,
			}
		}

		once := Deduplicate(issues)
		twice := Deduplicate(once)
		if len(once) != len(twice) {
			t.Fatalf("dedup changed size on re-run: %d -> %d", len(once), len(twice))
		}
		for i := range once {
			if fmt.Sprintf("%+v", once[i]) != fmt.Sprintf("%+v", twice[i]) {
				t.Fatalf("issue %d changed on re-run:\n%+v\n%+v", i, once[i], twice[i])
			}
		}
	})
}

func TestAggregate_PartialFailure(t *testing.T) {
	var results []models.FrameResult
	for i := 1; i <= 5; i++ {
		r := models.FrameResult{Frame: shot(i), Snapshot: snapshot(i)}
		if i == 3 {
			r.Err = "annotator timeout"
		} else {
			r.Report = &models.FrameReport{
				MinorIssues: []models.Issue{{TrapName: "TINY TEXT", Location: "footer", Confidence: models.ConfidenceLow}},
			}
		}
		results = append(results, r)
	}

	report := Aggregate(results, models.AnalysisMultiImage)
	assert.Equal(t, 5, report.FrameCount)
	assert.Equal(t, 4, report.SuccessfulCount)
	assert.Equal(t, 1, report.FailedCount)

	require.Contains(t, report.FrameImages, 3)
	assert.Equal(t, "data:image/png;base64,3", report.FrameImages[3].ImageData)
	assert.Equal(t, "screen_3.png", report.FrameImages[3].Filename)
	assert.Len(t, report.FrameImages, 5)

	require.Len(t, report.MinorIssues, 1)
	assert.Equal(t, []int{1, 2, 4, 5}, report.MinorIssues[0].OriginFrames)
	assert.Equal(t, "4 frames", report.MinorIssues[0].Frame)
	assert.Equal(t, "Analyzed 4 screenshots (1 failed)", report.Summary[0])
}

func TestAggregate_IndexStability(t *testing.T) {
	var results []models.FrameResult
	for i := 1; i <= 6; i++ {
		results = append(results, models.FrameResult{
			Frame:    shot(i),
			Snapshot: snapshot(i),
			Report: &models.FrameReport{
				CriticalIssues: []models.Issue{{TrapName: fmt.Sprintf("TRAP %d", i), Location: "header"}},
			},
		})
	}

	report := Aggregate(results, models.AnalysisMultiImage)
	require.Len(t, report.CriticalIssues, 6)
	for i, issue := range report.CriticalIssues {
		assert.Equal(t, i+1, issue.FrameIndex)
		assert.Equal(t, fmt.Sprintf("screen_%d.png", i+1), issue.Frame)
	}
	for idx := range report.FrameImages {
		assert.True(t, idx >= 1 && idx <= 6)
	}
}

func TestAggregate_Collections(t *testing.T) {
	ts1, ts2 := 1.0, 2.5
	results := []models.FrameResult{
		{
			Frame: models.FrameRecord{Index: 1, Path: "frame_0001.png", Timestamp: &ts1},
			Report: &models.FrameReport{
				PositiveObservations: []string{"Clear labels", "Clear labels"},
				TrapsCheckedNotFound: []string{"UNNECESSARY ELEMENT", "INVISIBLE ELEMENT"},
				PotentialIssues:      []models.Issue{{TrapName: "UNCOMPREHENDED ELEMENT", Location: "sidebar"}},
				BugsDetected:         []models.Bug{{BugType: "partial_load", Description: "spinner"}},
			},
		},
		{
			Frame: models.FrameRecord{Index: 2, Path: "frame_0002.png", Timestamp: &ts2},
			Report: &models.FrameReport{
				PositiveObservations: []string{"Clear labels"},
				TrapsCheckedNotFound: []string{"INVISIBLE ELEMENT"},
				PotentialIssues:      []models.Issue{{TrapName: "UNCOMPREHENDED ELEMENT", Location: "sidebar"}},
			},
		},
	}

	report := Aggregate(results, models.AnalysisVideo)
	assert.Equal(t, []string{"[Frame at 1.0s] Clear labels", "[Frame at 2.5s] Clear labels"}, report.PositiveObservations)
	assert.Equal(t, []string{"INVISIBLE ELEMENT", "UNNECESSARY ELEMENT"}, report.TrapsCheckedNotFound)

	// potential issues are tagged but not merged
	require.Len(t, report.PotentialIssues, 2)
	assert.Equal(t, 2, report.PotentialIssues[1].FrameIndex)
	assert.Equal(t, "Frame at 2.5s", report.PotentialIssues[1].Frame)

	require.Len(t, report.BugsDetected, 1)
	assert.Equal(t, 1, report.BugsDetected[0].FrameIndex)
	assert.Empty(t, report.FrameImages)

	assert.Equal(t, "Analyzed 2 video frames", report.Summary[0])
	assert.Equal(t, "Detected 1 technical bug(s)", report.Summary[len(report.Summary)-1])
}

func TestAggregate_PositivesCapped(t *testing.T) {
	var obs []string
	for i := 0; i < 15; i++ {
		obs = append(obs, fmt.Sprintf("good thing %d", i))
	}
	report := Aggregate([]models.FrameResult{{Frame: shot(1), Report: &models.FrameReport{PositiveObservations: obs}}}, models.AnalysisMultiImage)
	assert.Len(t, report.PositiveObservations, 10)
	assert.Equal(t, 10, report.Statistics.PositiveCount)
}

func TestAggregate_NilReportFieldsTolerated(t *testing.T) {
	report := Aggregate([]models.FrameResult{{Frame: shot(1), Report: &models.FrameReport{}}}, models.AnalysisMultiImage)
	assert.Equal(t, 1, report.SuccessfulCount)
	assert.Zero(t, report.Statistics.TotalIssues)
	assert.Empty(t, report.CrossFrameIssues)
}

func TestAggregate_CrossFrameIncluded(t *testing.T) {
	issue := func(loc string) []models.Issue {
		return []models.Issue{{TrapName: "INVISIBLE ELEMENT", Location: loc, Problem: "the settings gear icon is hard to notice"}}
	}
	results := []models.FrameResult{
		{Frame: shot(1), Report: &models.FrameReport{ModerateIssues: issue("top right")}},
		{Frame: shot(2), Report: &models.FrameReport{ModerateIssues: issue("bottom left")}},
	}

	report := Aggregate(results, models.AnalysisMultiImage)
	require.Len(t, report.CrossFrameIssues, 1)
	assert.Equal(t, "settings icon", report.CrossFrameIssues[0].ElementDescription)
	assert.Contains(t, report.Summary, "Detected 1 element(s) changing position across frames")
}

func TestSummarize(t *testing.T) {
	report := &models.AggregatedReport{
		AnalysisType:    models.AnalysisMultiImage,
		SuccessfulCount: 3,
		CriticalIssues: []models.Issue{
			{TrapName: "A"}, {TrapName: "B"}, {TrapName: "A"}, {TrapName: "C"}, {TrapName: "D"},
		},
		ModerateIssues: []models.Issue{{TrapName: "E"}},
		MinorIssues:    []models.Issue{{TrapName: "F"}, {TrapName: "G"}},
	}

	assert.Equal(t, []string{
		"Analyzed 3 screenshots",
		"Found 8 total issues: 5 critical, 1 moderate, 2 minor",
		"Critical issues include: A, B, C",
		"Moderate issues include: E",
	}, Summarize(report))
}

func TestStats(t *testing.T) {
	report := &models.AggregatedReport{
		Summary:              []string{"a", "b"},
		CriticalIssues:       []models.Issue{{}},
		MinorIssues:          []models.Issue{{}, {}},
		PositiveObservations: []string{"x"},
		TrapsCheckedNotFound: []string{"T1", "T2", "T3"},
	}
	assert.Equal(t, models.Statistics{
		TotalIssues:        3,
		CriticalCount:      1,
		MinorCount:         2,
		PositiveCount:      1,
		TrapsNotFoundCount: 3,
		SummaryLength:      2,
	}, Stats(report))
}
