// Package observe carries structured pipeline events to logs and metrics.
//
// Pipeline stages never write to stdout. They report what happened through an
// Observer injected by the caller, which can fan out to slog and Prometheus.
package observe

import (
	"log/slog"
	"time"
)

// RunSummary describes a completed analysis run
type RunSummary struct {
	RunID      string
	Type       string
	Frames     int
	Successful int
	Failed     int
	Issues     int
	CrossFrame int
	Duration   time.Duration
}

// Observer receives pipeline events
type Observer interface {
	// FrameSkipped is a candidate rejected by the quality prefilter
	FrameSkipped(index int, label, reason string)
	SnapshotFailed(index int, err error)
	// ClassifierFallback means the prefilter returned candidates unfiltered
	ClassifierFallback(reason string, err error)
	FrameAnalyzed(index int, elapsed time.Duration)
	FrameFailed(index int, err error)
	RunCompleted(summary RunSummary)
}

// Nop discards every event
type Nop struct{}

func (Nop) FrameSkipped(int, string, string) {}
func (Nop) SnapshotFailed(int, error) {}
func (Nop) ClassifierFallback(string, error) {}
func (Nop) FrameAnalyzed(int, time.Duration) {}
func (Nop) FrameFailed(int, error) {}
func (Nop) RunCompleted(RunSummary) {}

// OrNop returns o, or a Nop observer when o is nil
func OrNop(o Observer) Observer {
	if o == nil {
		return Nop{}
	}
	return o
}

// LogObserver writes events as slog records
type LogObserver struct {
	logger *slog.Logger
}

// NewLogObserver wraps logger; a nil logger uses slog.Default()
func NewLogObserver(logger *slog.Logger) *LogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogObserver{logger: logger.With("component", "pipeline")}
}

func (o *LogObserver) FrameSkipped(index int, label, reason string) {
	o.logger.Info("frame skipped", "frame", index, "quality", label, "reason", reason)
}

func (o *LogObserver) SnapshotFailed(index int, err error) {
	o.logger.Warn("snapshot unavailable", "frame", index, "error", err)
}

func (o *LogObserver) ClassifierFallback(reason string, err error) {
	if err != nil {
		o.logger.Warn("frame filtering fell back to all frames", "reason", reason, "error", err)
		return
	}
	o.logger.Warn("frame filtering fell back to all frames", "reason", reason)
}

func (o *LogObserver) FrameAnalyzed(index int, elapsed time.Duration) {
	o.logger.Debug("frame analyzed", "frame", index, "elapsed", elapsed)
}

func (o *LogObserver) FrameFailed(index int, err error) {
	o.logger.Error("frame analysis failed", "frame", index, "error", err)
}

func (o *LogObserver) RunCompleted(s RunSummary) {
	o.logger.Info("analysis complete",
		"run", s.RunID,
		"type", s.Type,
		"frames", s.Frames,
		"successful", s.Successful,
		"failed", s.Failed,
		"issues", s.Issues,
		"cross_frame", s.CrossFrame,
		"duration", s.Duration,
	)
}

// Multi fans events out to several observers
type Multi []Observer

func (m Multi) FrameSkipped(index int, label, reason string) {
	for _, o := range m {
		o.FrameSkipped(index, label, reason)
	}
}

func (m Multi) SnapshotFailed(index int, err error) {
	for _, o := range m {
		o.SnapshotFailed(index, err)
	}
}

func (m Multi) ClassifierFallback(reason string, err error) {
	for _, o := range m {
		o.ClassifierFallback(reason, err)
	}
}

func (m Multi) FrameAnalyzed(index int, elapsed time.Duration) {
	for _, o := range m {
		o.FrameAnalyzed(index, elapsed)
	}
}

func (m Multi) FrameFailed(index int, err error) {
	for _, o := range m {
		o.FrameFailed(index, err)
	}
}

func (m Multi) RunCompleted(s RunSummary) {
	for _, o := range m {
		o.RunCompleted(s)
	}
}
