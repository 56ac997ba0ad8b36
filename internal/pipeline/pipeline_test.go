package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/bdougie/uitraps/internal/analyzer"
	"github.com/bdougie/uitraps/internal/extractor"
	"github.com/bdougie/uitraps/internal/models"
	"github.com/bdougie/uitraps/internal/observe"
)

type fakeSource struct {
	dir       string
	count     int
	requested int
	err       error
}

func (f *fakeSource) ExtractFrames(_ context.Context, _ string, maxFrames int) (*extractor.Extraction, error) {
	f.requested = maxFrames
	if f.err != nil {
		return nil, f.err
	}
	frames := make([]models.FrameRecord, f.count)
	for i := range frames {
		ts := float64(i)
		path := filepath.Join(f.dir, fmt.Sprintf("frame_%04d.png", i+1))
		if err := os.WriteFile(path, []byte("png"), 0o644); err != nil {
			return nil, err
		}
		frames[i] = models.FrameRecord{Index: i + 1, Path: path, Timestamp: &ts}
	}
	return &extractor.Extraction{
		Dir:    f.dir,
		Frames: frames,
		Info:   &models.VideoInfo{Duration: float64(f.count), Codec: "h264"},
	}, nil
}

// keepEven keeps even-indexed candidates up to target and notes the rest
type keepEven struct {
	called bool
}

func (k *keepEven) SelectGoodFrames(_ context.Context, candidates []models.FrameRecord, target int) ([]models.FrameRecord, []models.QualityNote) {
	k.called = true
	var good []models.FrameRecord
	var notes []models.QualityNote
	for _, c := range candidates {
		if len(good) == target {
			break
		}
		if c.Index%2 == 0 {
			good = append(good, c)
			continue
		}
		notes = append(notes, models.QualityNote{CandidateIndex: c.Index, Issue: "blank_screen", ShouldSkip: true})
	}
	return good, notes
}

type fakeAnnotator struct {
	fail map[string]bool
}

func (f fakeAnnotator) Annotate(_ context.Context, frame models.FrameRecord, _ models.AnalysisContext) (*models.FrameReport, error) {
	if f.fail[filepath.Base(frame.Path)] {
		return nil, errors.New("model unavailable")
	}
	return &models.FrameReport{
		CriticalIssues: []models.Issue{{TrapName: "INVISIBLE ELEMENT", Location: "search icon", Confidence: models.ConfidenceMedium}},
	}, nil
}

type summaryObserver struct {
	observe.Nop
	summaries []observe.RunSummary
}

func (s *summaryObserver) RunCompleted(summary observe.RunSummary) {
	s.summaries = append(s.summaries, summary)
}

func fakeLoader(path string) (*models.Snapshot, error) {
	return &models.Snapshot{MediaType: "image/png", DataURL: "data:image/png;base64," + filepath.Base(path)}, nil
}

func newTracer() (*tracetest.InMemoryExporter, *sdktrace.TracerProvider) {
	exporter := tracetest.NewInMemoryExporter()
	return exporter, sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
}

func TestAnalyzeVideo_FiltersAndRenumbers(t *testing.T) {
	dir := t.TempDir()
	frameDir := filepath.Join(dir, "frames")
	require.NoError(t, os.Mkdir(frameDir, 0o755))

	source := &fakeSource{dir: frameDir, count: 8}
	selector := &keepEven{}
	obs := &summaryObserver{}
	exporter, provider := newTracer()

	processor := analyzer.NewProcessor(fakeAnnotator{}, analyzer.WithSnapshotLoader(fakeLoader))
	p := New(processor,
		WithFrameSource(source),
		WithSelector(selector),
		WithObserver(obs),
		WithTracer(provider.Tracer("test")),
		WithMaxFrames(3),
	)

	run, err := p.AnalyzeVideo(context.Background(), "demo.mp4", models.AnalysisContext{})
	require.NoError(t, err)

	assert.Equal(t, 6, source.requested)
	assert.True(t, selector.called)

	report := run.Report
	assert.Equal(t, models.AnalysisVideo, report.AnalysisType)
	assert.Equal(t, 3, report.FrameCount)
	assert.Len(t, report.FrameQualityNotes, 3)
	require.NotNil(t, report.VideoInfo)
	assert.Equal(t, "h264", report.VideoInfo.Codec)

	// frames 2, 4, 6 survive and are renumbered 1..3
	require.Len(t, report.CriticalIssues, 1)
	assert.Equal(t, []int{1, 2, 3}, report.CriticalIssues[0].OriginFrames)
	assert.Equal(t, "data:image/png;base64,frame_0002.png", report.FrameImages[1].ImageData)
	assert.Equal(t, "Frame at 1.0s", report.FrameImages[1].Filename)

	_, statErr := os.Stat(frameDir)
	assert.True(t, os.IsNotExist(statErr), "extracted frames are removed after the run")

	require.Len(t, obs.summaries, 1)
	assert.Equal(t, run.ID, obs.summaries[0].RunID)
	assert.Equal(t, "video", obs.summaries[0].Type)

	var names []string
	for _, s := range exporter.GetSpans() {
		names = append(names, s.Name)
	}
	assert.ElementsMatch(t, []string{"uitraps.analyze_batch", "uitraps.analyze_video"}, names)
}

func TestAnalyzeVideo_NoFilteringWhenDisabled(t *testing.T) {
	source := &fakeSource{dir: t.TempDir(), count: 4}
	selector := &keepEven{}

	processor := analyzer.NewProcessor(fakeAnnotator{}, analyzer.WithSnapshotLoader(fakeLoader))
	p := New(processor, WithFrameSource(source), WithSelector(selector), WithFiltering(false), WithMaxFrames(4))

	run, err := p.AnalyzeVideo(context.Background(), "demo.mp4", models.AnalysisContext{})
	require.NoError(t, err)
	assert.Equal(t, 4, source.requested)
	assert.False(t, selector.called)
	assert.Equal(t, 4, run.Report.FrameCount)
	assert.Empty(t, run.Report.FrameQualityNotes)
}

func TestAnalyzeVideo_SkipsFilterWhenFewCandidates(t *testing.T) {
	source := &fakeSource{dir: t.TempDir(), count: 3}
	selector := &keepEven{}

	processor := analyzer.NewProcessor(fakeAnnotator{}, analyzer.WithSnapshotLoader(fakeLoader))
	p := New(processor, WithFrameSource(source), WithSelector(selector), WithMaxFrames(5))

	run, err := p.AnalyzeVideo(context.Background(), "demo.mp4", models.AnalysisContext{})
	require.NoError(t, err)
	assert.Equal(t, 10, source.requested)
	assert.False(t, selector.called)
	assert.Equal(t, 3, run.Report.FrameCount)
}

func TestAnalyzeVideo_ExtractionError(t *testing.T) {
	source := &fakeSource{err: extractor.ErrNoFrames}
	exporter, provider := newTracer()

	p := New(analyzer.NewProcessor(fakeAnnotator{}), WithFrameSource(source), WithTracer(provider.Tracer("test")))
	_, err := p.AnalyzeVideo(context.Background(), "demo.mp4", models.AnalysisContext{})
	require.ErrorIs(t, err, extractor.ErrNoFrames)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "Error", spans[0].Status.Code.String())
}

func TestAnalyzeVideo_NoSource(t *testing.T) {
	p := New(analyzer.NewProcessor(fakeAnnotator{}))
	_, err := p.AnalyzeVideo(context.Background(), "demo.mp4", models.AnalysisContext{})
	require.ErrorIs(t, err, extractor.ErrFFmpegNotFound)
}

func TestAnalyzeImages_PartialFailure(t *testing.T) {
	paths := []string{"a.png", "b.png", "c.png", "d.png", "e.png"}
	annotator := fakeAnnotator{fail: map[string]bool{"c.png": true}}
	obs := &summaryObserver{}

	processor := analyzer.NewProcessor(annotator, analyzer.WithSnapshotLoader(fakeLoader))
	p := New(processor, WithObserver(obs))

	run, err := p.AnalyzeImages(context.Background(), paths, models.AnalysisContext{Users: "shoppers"})
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)
	assert.Equal(t, "a.png", run.Source)

	report := run.Report
	assert.Equal(t, models.AnalysisMultiImage, report.AnalysisType)
	assert.Equal(t, 4, report.SuccessfulCount)
	assert.Equal(t, 1, report.FailedCount)
	assert.Contains(t, report.FrameImages, 3)
	assert.Equal(t, "c.png", report.FrameImages[3].Filename)

	require.Len(t, report.CriticalIssues, 1)
	assert.Equal(t, models.ConfidenceMedium, report.CriticalIssues[0].Confidence)
	assert.Equal(t, []int{1, 2, 4, 5}, report.CriticalIssues[0].OriginFrames)

	require.Len(t, obs.summaries, 1)
	assert.Equal(t, 1, obs.summaries[0].Failed)
}

func TestAnalyzeImages_Empty(t *testing.T) {
	p := New(analyzer.NewProcessor(fakeAnnotator{}))
	_, err := p.AnalyzeImages(context.Background(), nil, models.AnalysisContext{})
	require.ErrorIs(t, err, ErrNoInput)
}
