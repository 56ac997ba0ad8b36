package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/bdougie/uitraps/internal/extractor"
	"github.com/bdougie/uitraps/internal/models"
	"github.com/bdougie/uitraps/internal/observe"
)

const maxWorkers = 4 // Adjust based on annotator throughput

// ErrIndexGap is returned when submitted frames are not indexed 1..N in order
var ErrIndexGap = errors.New("frame indices must run 1..N in submission order")

// Annotator produces the findings for a single frame
type Annotator interface {
	Annotate(ctx context.Context, frame models.FrameRecord, actx models.AnalysisContext) (*models.FrameReport, error)
}

// workItem represents a frame to be processed
type workItem struct {
	frame models.FrameRecord
	total int
}

// Processor fans frames out to the annotator and isolates per-frame failures
type Processor struct {
	annotator Annotator
	load      extractor.SnapshotLoader
	observer  observe.Observer
	logger    *slog.Logger
	workers   int
	limiter   *rate.Limiter
}

// Option configures a Processor
type Option func(*Processor)

// WithWorkers bounds the number of concurrent annotator calls. 1 runs frames strictly in order.
func WithWorkers(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithRateLimit paces annotator calls. rps <= 0 disables pacing.
func WithRateLimit(rps float64, burst int) Option {
	return func(p *Processor) {
		if rps <= 0 {
			p.limiter = nil
			return
		}
		p.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}
}

// WithSnapshotLoader overrides how frame snapshots are read
func WithSnapshotLoader(load extractor.SnapshotLoader) Option {
	return func(p *Processor) { p.load = load }
}

// WithObserver sets the event observer
func WithObserver(o observe.Observer) Option {
	return func(p *Processor) { p.observer = observe.OrNop(o) }
}

// WithLogger sets the progress logger
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func NewProcessor(annotator Annotator, opts ...Option) *Processor {
	p := &Processor{
		annotator: annotator,
		load:      extractor.LoadSnapshot,
		observer:  observe.Nop{},
		logger:    slog.Default(),
		workers:   maxWorkers,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "analyzer")
	return p
}

// AnalyzeBatch annotates every frame and returns one result per frame ordered
// by frame index. A failing frame is recorded on its result and never aborts
// the batch. The only error returned is ErrIndexGap for malformed input.
func (p *Processor) AnalyzeBatch(ctx context.Context, frames []models.FrameRecord, actx models.AnalysisContext) ([]models.FrameResult, error) {
	for i, f := range frames {
		if f.Index != i+1 {
			return nil, fmt.Errorf("%w: position %d has index %d", ErrIndexGap, i+1, f.Index)
		}
	}
	if len(frames) == 0 {
		return nil, nil
	}

	workChan := make(chan workItem, len(frames))
	resultsChan := make(chan models.FrameResult, len(frames))

	var wg sync.WaitGroup

	remainingFrames := atomic.Int64{}
	remainingFrames.Store(int64(len(frames)))

	// Start worker pool
	for i := 0; i < min(p.workers, len(frames)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for work := range workChan {
				resultsChan <- p.analyzeFrame(ctx, work.frame, actx)

				remaining := remainingFrames.Add(-1)
				p.logger.Debug("frame done", "frame", work.frame.Index, "remaining", remaining, "total", work.total)
			}
		}()
	}

	// Send work to workers
	for _, frame := range frames {
		workChan <- workItem{frame: frame, total: len(frames)}
	}
	close(workChan)

	wg.Wait()
	close(resultsChan)

	results := make([]models.FrameResult, 0, len(frames))
	for r := range resultsChan {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Frame.Index < results[j].Frame.Index
	})

	return results, nil
}

func (p *Processor) analyzeFrame(ctx context.Context, frame models.FrameRecord, actx models.AnalysisContext) models.FrameResult {
	result := models.FrameResult{Frame: frame}

	// Load the snapshot before annotating so the report can show the frame even if the call fails
	snap, err := p.load(frame.Path)
	if err != nil {
		p.observer.SnapshotFailed(frame.Index, err)
	} else {
		result.Snapshot = snap
	}

	start := time.Now()
	report, err := p.annotate(ctx, frame, actx)
	if err != nil {
		result.Err = err.Error()
		p.observer.FrameFailed(frame.Index, err)
		return result
	}

	result.Report = report
	p.observer.FrameAnalyzed(frame.Index, time.Since(start))
	return result
}

func (p *Processor) annotate(ctx context.Context, frame models.FrameRecord, actx models.AnalysisContext) (report *models.FrameReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			report, err = nil, fmt.Errorf("annotator panicked: %v", r)
		}
	}()

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	report, err = p.annotator.Annotate(ctx, frame, actx)
	if err == nil && report == nil {
		err = ErrNoResponse
	}
	return report, err
}
