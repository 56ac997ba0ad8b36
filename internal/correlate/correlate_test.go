package correlate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdougie/uitraps/internal/models"
)

func result(index int, ts float64, issues ...models.Issue) models.FrameResult {
	return models.FrameResult{
		Frame:  models.FrameRecord{Index: index, Path: "frame.png", Timestamp: &ts},
		Report: &models.FrameReport{ModerateIssues: issues},
	}
}

func searchIcon(loc string) models.Issue {
	return models.Issue{TrapName: "WANDERING ELEMENT", Location: loc, Problem: "The search icon moved"}
}

func TestDetectDrift_TwoLocationsIsMedium(t *testing.T) {
	results := []models.FrameResult{
		result(1, 0, searchIcon("top left corner")),
		result(2, 2, searchIcon("top left corner")),
		result(3, 4, searchIcon("bottom right corner")),
	}

	issues := DetectDrift(results)
	require.Len(t, issues, 1)

	got := issues[0]
	assert.Equal(t, TrapName, got.TrapName)
	assert.Equal(t, Tenet, got.Tenet)
	assert.Equal(t, "search icon", got.ElementDescription)
	assert.Equal(t, []string{"bottom-right", "top-left"}, got.LocationsFound)
	assert.Equal(t, models.ConfidenceMedium, got.Confidence)
	assert.Equal(t, models.SeverityModerate, got.Severity)
	assert.Equal(t,
		"The search icon appears in 2 different locations across 3 frames: bottom-right, top-left. This inconsistent placement impedes user habituation.",
		got.Problem)

	require.Len(t, got.FrameOccurrences, 3)
	for i, occ := range got.FrameOccurrences {
		assert.Equal(t, i+1, occ.FrameIndex)
	}
	assert.Equal(t, "bottom right corner", got.FrameOccurrences[2].RawLocation)
	require.NotNil(t, got.FrameOccurrences[2].Timestamp)
	assert.InDelta(t, 4.0, *got.FrameOccurrences[2].Timestamp, 1e-9)
}

func TestDetectDrift_ThirdLocationIsHigh(t *testing.T) {
	results := []models.FrameResult{
		result(1, 0, searchIcon("top left corner")),
		result(2, 2, searchIcon("top left corner")),
		result(3, 4, searchIcon("bottom right corner")),
		result(4, 6, searchIcon("middle of the screen")),
	}

	issues := DetectDrift(results)
	require.Len(t, issues, 1)
	assert.Equal(t, []string{"bottom-right", "center", "top-left"}, issues[0].LocationsFound)
	assert.Equal(t, models.ConfidenceHigh, issues[0].Confidence)
}

func TestDetectDrift_StationaryElementIsSilent(t *testing.T) {
	results := []models.FrameResult{
		result(1, 0, searchIcon("top left corner")),
		result(2, 2, searchIcon("upper left")),
	}
	assert.Empty(t, DetectDrift(results))
}

func TestDetectDrift_SingleOccurrence(t *testing.T) {
	assert.Empty(t, DetectDrift([]models.FrameResult{result(1, 0, searchIcon("top left"))}))
}

func TestDetectDrift_UnknownElementsSkipped(t *testing.T) {
	vague := func(loc string) models.Issue {
		return models.Issue{TrapName: "VARIABLE OUTCOME", Location: loc, Problem: "Layout shifts around"}
	}
	results := []models.FrameResult{
		result(1, 0, vague("top left")),
		result(2, 2, vague("bottom right")),
	}
	assert.Empty(t, DetectDrift(results))
}

func TestDetectDrift_FailedFramesIgnored(t *testing.T) {
	failed := result(2, 2, searchIcon("bottom right corner"))
	failed.Err = "model timeout"

	results := []models.FrameResult{
		result(1, 0, searchIcon("top left corner")),
		failed,
	}
	assert.Empty(t, DetectDrift(results))
}

func TestDetectDrift_ScansAllBuckets(t *testing.T) {
	ts := 0.0
	results := []models.FrameResult{
		{
			Frame:  models.FrameRecord{Index: 1, Timestamp: &ts},
			Report: &models.FrameReport{CriticalIssues: []models.Issue{searchIcon("top left")}},
		},
		{
			Frame:  models.FrameRecord{Index: 2, Timestamp: &ts},
			Report: &models.FrameReport{PotentialIssues: []models.Issue{searchIcon("bottom right")}},
		},
	}
	require.Len(t, DetectDrift(results), 1)
}

func TestDetectDrift_OrderIndependent(t *testing.T) {
	forward := []models.FrameResult{
		result(1, 0, searchIcon("top left corner")),
		result(2, 2, searchIcon("bottom right corner")),
		result(3, 4, searchIcon("top right corner")),
	}
	reversed := []models.FrameResult{forward[2], forward[1], forward[0]}

	assert.Equal(t, DetectDrift(forward), DetectDrift(reversed))
}

func TestRegistry_Record(t *testing.T) {
	r := NewRegistry()
	frame := models.FrameRecord{Index: 1}

	assert.True(t, r.Record(frame, searchIcon("top")))
	assert.False(t, r.Record(frame, models.Issue{Location: "somewhere", Problem: "hard to read"}))
	assert.Equal(t, 1, r.Len())
}
