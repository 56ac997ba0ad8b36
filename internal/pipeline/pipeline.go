// Package pipeline runs a full analysis: frames in, one aggregated report out.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bdougie/uitraps/internal/aggregate"
	"github.com/bdougie/uitraps/internal/extractor"
	"github.com/bdougie/uitraps/internal/models"
	"github.com/bdougie/uitraps/internal/observe"
)

const instrumentationName = "github.com/bdougie/uitraps/internal/pipeline"

var ErrNoInput = errors.New("no frames to analyze")

// FrameSource extracts candidate frames from a video
type FrameSource interface {
	ExtractFrames(ctx context.Context, videoPath string, maxFrames int) (*extractor.Extraction, error)
}

// FrameSelector drops unusable frames before annotation
type FrameSelector interface {
	SelectGoodFrames(ctx context.Context, candidates []models.FrameRecord, target int) ([]models.FrameRecord, []models.QualityNote)
}

// BatchAnalyzer annotates an ordered batch of frames
type BatchAnalyzer interface {
	AnalyzeBatch(ctx context.Context, frames []models.FrameRecord, actx models.AnalysisContext) ([]models.FrameResult, error)
}

// Pipeline wires the stages of a run together
type Pipeline struct {
	source    FrameSource
	selector  FrameSelector
	analyzer  BatchAnalyzer
	observer  observe.Observer
	logger    *slog.Logger
	tracer    trace.Tracer
	maxFrames int
	filter    bool
}

type Option func(*Pipeline)

// WithFrameSource enables video runs
func WithFrameSource(src FrameSource) Option {
	return func(p *Pipeline) { p.source = src }
}

// WithSelector enables quality prefiltering of video frames
func WithSelector(sel FrameSelector) Option {
	return func(p *Pipeline) { p.selector = sel }
}

func WithObserver(o observe.Observer) Option {
	return func(p *Pipeline) { p.observer = observe.OrNop(o) }
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(p *Pipeline) {
		if tracer != nil {
			p.tracer = tracer
		}
	}
}

// WithMaxFrames sets how many frames a video run analyzes
func WithMaxFrames(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxFrames = n
		}
	}
}

// WithFiltering toggles the two-pass quality selection for videos
func WithFiltering(enabled bool) Option {
	return func(p *Pipeline) { p.filter = enabled }
}

func New(analyzer BatchAnalyzer, opts ...Option) *Pipeline {
	p := &Pipeline{
		analyzer:  analyzer,
		observer:  observe.Nop{},
		logger:    slog.Default(),
		tracer:    otel.Tracer(instrumentationName),
		maxFrames: 15,
		filter:    true,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "pipeline")
	return p
}

// AnalyzeImages analyzes uploaded screenshots in argument order
func (p *Pipeline) AnalyzeImages(ctx context.Context, paths []string, actx models.AnalysisContext) (*models.Run, error) {
	if len(paths) == 0 {
		return nil, ErrNoInput
	}

	run := newRun(models.AnalysisMultiImage, paths)
	ctx, span := p.tracer.Start(ctx, "uitraps.analyze_images", trace.WithAttributes(
		attribute.String("run.id", run.ID),
		attribute.Int("frames.submitted", len(paths)),
	))
	defer span.End()

	report, err := p.analyze(ctx, extractor.ImageFrames(paths), actx, models.AnalysisMultiImage)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	return p.finish(run, report, span), nil
}

// AnalyzeVideo extracts frames from a video, optionally filters them for
// quality, and analyzes what remains. Extracted frames are removed when the
// run ends, whether or not it succeeded.
func (p *Pipeline) AnalyzeVideo(ctx context.Context, videoPath string, actx models.AnalysisContext) (*models.Run, error) {
	if p.source == nil {
		return nil, extractor.ErrFFmpegNotFound
	}

	run := newRun(models.AnalysisVideo, []string{videoPath})
	ctx, span := p.tracer.Start(ctx, "uitraps.analyze_video", trace.WithAttributes(
		attribute.String("run.id", run.ID),
		attribute.String("video.path", videoPath),
		attribute.Int("frames.max", p.maxFrames),
	))
	defer span.End()

	filtering := p.filter && p.selector != nil

	// Extract 2x more than needed so the selector has headroom
	extractCount := p.maxFrames
	if filtering {
		extractCount = p.maxFrames * 2
	}

	extraction, err := p.source.ExtractFrames(ctx, videoPath, extractCount)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer extraction.Cleanup()

	frames := extraction.Frames
	var notes []models.QualityNote
	if filtering && len(frames) > p.maxFrames {
		p.logger.Info("filtering frames for quality", "candidates", len(frames), "target", p.maxFrames)
		frames, notes = p.selector.SelectGoodFrames(ctx, frames, p.maxFrames)
		frames = models.Renumber(frames)
		span.SetAttributes(attribute.Int("frames.rejected", len(notes)))
	}

	report, err := p.analyze(ctx, frames, actx, models.AnalysisVideo)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	report.VideoInfo = extraction.Info
	report.FrameQualityNotes = notes

	return p.finish(run, report, span), nil
}

func (p *Pipeline) analyze(ctx context.Context, frames []models.FrameRecord, actx models.AnalysisContext, kind models.AnalysisType) (*models.AggregatedReport, error) {
	if len(frames) == 0 {
		return nil, ErrNoInput
	}

	ctx, span := p.tracer.Start(ctx, "uitraps.analyze_batch", trace.WithAttributes(
		attribute.Int("frames", len(frames)),
	))
	results, err := p.analyzer.AnalyzeBatch(ctx, frames, actx)
	span.End()
	if err != nil {
		return nil, err
	}

	return aggregate.Aggregate(results, kind), nil
}

func (p *Pipeline) finish(run *models.Run, report *models.AggregatedReport, span trace.Span) *models.Run {
	run.Report = report
	run.Duration = time.Since(run.StartedAt)

	span.SetAttributes(
		attribute.Int("frames.successful", report.SuccessfulCount),
		attribute.Int("frames.failed", report.FailedCount),
		attribute.Int("issues.total", report.Statistics.TotalIssues),
	)

	p.observer.RunCompleted(observe.RunSummary{
		RunID:      run.ID,
		Type:       string(report.AnalysisType),
		Frames:     report.FrameCount,
		Successful: report.SuccessfulCount,
		Failed:     report.FailedCount,
		Issues:     report.Statistics.TotalIssues,
		CrossFrame: len(report.CrossFrameIssues),
		Duration:   run.Duration,
	})
	return run
}

func newRun(kind models.AnalysisType, sources []string) *models.Run {
	run := &models.Run{
		ID:        uuid.NewString(),
		Name:      string(kind),
		StartedAt: time.Now(),
	}
	if len(sources) > 0 {
		run.Source = sources[0]
	}
	return run
}
