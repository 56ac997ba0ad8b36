package models

import (
	"fmt"
	"path/filepath"
)

// AnalysisType distinguishes uploaded screenshot batches from video runs
type AnalysisType string

const (
	AnalysisMultiImage AnalysisType = "multi_image"
	AnalysisVideo      AnalysisType = "video"
)

// FrameRecord represents one still image under analysis. Index is 1-based and
// equals the frame's position in the batch handed to the orchestrator.
type FrameRecord struct {
	Index     int      `json:"index"`
	Path      string   `json:"path"`
	Timestamp *float64 `json:"timestamp,omitempty"`
}

// Label returns the human readable frame label used in reports
func (f FrameRecord) Label() string {
	if f.Timestamp != nil {
		return fmt.Sprintf("Frame at %.1fs", *f.Timestamp)
	}
	return filepath.Base(f.Path)
}

// Renumber returns copies of frames indexed 1..N in slice order
func Renumber(frames []FrameRecord) []FrameRecord {
	out := make([]FrameRecord, len(frames))
	for i, f := range frames {
		f.Index = i + 1
		out[i] = f
	}
	return out
}

// Snapshot is an embeddable copy of a frame image (a data URL)
type Snapshot struct {
	MediaType string `json:"media_type"`
	DataURL   string `json:"data_url"`
	Size      int64  `json:"size"`
}

// AnalysisContext carries the user's description of who uses the design and what they do
type AnalysisContext struct {
	Users  string `json:"users" yaml:"users"`
	Tasks  string `json:"tasks" yaml:"tasks"`
	Format string `json:"format" yaml:"format"`
}

// VideoInfo holds ffprobe metadata for a video run
type VideoInfo struct {
	Duration float64 `json:"duration"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	FPS      float64 `json:"fps"`
	Codec    string  `json:"codec"`
	FileSize int64   `json:"file_size"`
}
