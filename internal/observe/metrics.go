package observe

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records pipeline events as Prometheus metrics
type Metrics struct {
	framesSkipped       *prometheus.CounterVec
	snapshotFailures    prometheus.Counter
	classifierFallbacks *prometheus.CounterVec
	framesAnalyzed      prometheus.Counter
	framesFailed        prometheus.Counter
	frameDuration       prometheus.Histogram
	runsTotal           *prometheus.CounterVec
	issuesFound         prometheus.Counter
	crossFrameIssues    prometheus.Counter
}

// NewMetrics registers the pipeline metrics with reg under namespace
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		framesSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_skipped_total",
			Help:      "Candidate frames rejected by the quality prefilter",
		}, []string{"quality"}),
		snapshotFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_failures_total",
			Help:      "Frames whose snapshot could not be loaded",
		}),
		classifierFallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifier_fallbacks_total",
			Help:      "Prefilter runs that returned all candidates unfiltered",
		}, []string{"reason"}),
		framesAnalyzed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_analyzed_total",
			Help:      "Frames annotated successfully",
		}),
		framesFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_failed_total",
			Help:      "Frames whose annotation failed",
		}),
		frameDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "frame_annotation_seconds",
			Help:      "Annotator latency per frame",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 8),
		}),
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Completed analysis runs",
		}, []string{"type"}),
		issuesFound: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "issues_found_total",
			Help:      "Deduplicated issues reported by completed runs",
		}),
		crossFrameIssues: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cross_frame_issues_total",
			Help:      "Wandering element findings reported by completed runs",
		}),
	}
}

func (m *Metrics) FrameSkipped(_ int, label, _ string) {
	m.framesSkipped.WithLabelValues(label).Inc()
}

func (m *Metrics) SnapshotFailed(int, error) {
	m.snapshotFailures.Inc()
}

func (m *Metrics) ClassifierFallback(reason string, _ error) {
	m.classifierFallbacks.WithLabelValues(reason).Inc()
}

func (m *Metrics) FrameAnalyzed(_ int, elapsed time.Duration) {
	m.framesAnalyzed.Inc()
	m.frameDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) FrameFailed(int, error) {
	m.framesFailed.Inc()
}

func (m *Metrics) RunCompleted(s RunSummary) {
	m.runsTotal.WithLabelValues(s.Type).Inc()
	m.issuesFound.Add(float64(s.Issues))
	m.crossFrameIssues.Add(float64(s.CrossFrame))
}
