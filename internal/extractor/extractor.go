package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bdougie/uitraps/internal/models"
)

var (
	ErrFFmpegNotFound    = errors.New("ffmpeg/ffprobe not found in PATH")
	ErrUnsupportedFormat = errors.New("unsupported video format")
	ErrNoFrames          = errors.New("no frames could be extracted from video")
)

// SupportedFormats lists the video container extensions accepted for extraction
var SupportedFormats = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".webm": true,
	".avi":  true,
	".mkv":  true,
}

// Options configures frame extraction
type Options struct {
	FFmpegPath     string
	FFprobePath    string
	SceneThreshold float64
	MinFrames      int
	MaxFrames      int
	Timeout        time.Duration
	// TempDir is the parent for run-scoped frame directories; os.TempDir() when empty
	TempDir string
}

// DefaultOptions mirrors the extraction defaults of the analyzer
func DefaultOptions() Options {
	return Options{
		SceneThreshold: 0.3,
		MinFrames:      3,
		MaxFrames:      20,
		Timeout:        5 * time.Minute,
	}
}

// FFmpeg extracts frames from videos by shelling out to ffmpeg and ffprobe
type FFmpeg struct {
	opts   Options
	logger *slog.Logger
}

// New resolves the ffmpeg and ffprobe binaries and returns an extractor
func New(opts Options, logger *slog.Logger) (*FFmpeg, error) {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultOptions()
	if opts.SceneThreshold <= 0 {
		opts.SceneThreshold = defaults.SceneThreshold
	}
	if opts.MinFrames <= 0 {
		opts.MinFrames = defaults.MinFrames
	}
	if opts.MaxFrames <= 0 {
		opts.MaxFrames = defaults.MaxFrames
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaults.Timeout
	}

	var err error
	if opts.FFmpegPath, err = lookPath(opts.FFmpegPath, "ffmpeg"); err != nil {
		return nil, err
	}
	if opts.FFprobePath, err = lookPath(opts.FFprobePath, "ffprobe"); err != nil {
		return nil, err
	}

	return &FFmpeg{opts: opts, logger: logger.With("component", "extractor")}, nil
}

func lookPath(configured, name string) (string, error) {
	if configured != "" {
		name = configured
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrFFmpegNotFound, name)
	}
	return path, nil
}

// Extraction is a set of extracted frames backed by a run-scoped temp directory
type Extraction struct {
	Dir    string
	Frames []models.FrameRecord
	Info   *models.VideoInfo
}

// Cleanup removes the extracted frames. Errors are swallowed.
func (e *Extraction) Cleanup() {
	if e == nil || e.Dir == "" {
		return
	}
	_ = os.RemoveAll(e.Dir)
}

// Validate checks that the video exists and has a supported container format
func Validate(videoPath string) error {
	// Check if video file exists
	if _, err := os.Stat(videoPath); os.IsNotExist(err) {
		return fmt.Errorf("video file does not exist at path: '%s'", videoPath)
	}
	ext := strings.ToLower(filepath.Ext(videoPath))
	if !SupportedFormats[ext] {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
	return nil
}

// Info reads video metadata with ffprobe
func (f *FFmpeg) Info(ctx context.Context, videoPath string) (*models.VideoInfo, error) {
	cmd := exec.CommandContext(ctx, f.opts.FFprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		videoPath,
	)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("failed to read video: %w", err)
	}
	return parseProbe(output)
}

// ExtractFrames extracts up to maxFrames frames at scene changes. When scene
// detection finds fewer than MinFrames frames it falls back to evenly spaced
// interval frames. Frames are indexed 1..N in extraction order.
func (f *FFmpeg) ExtractFrames(ctx context.Context, videoPath string, maxFrames int) (*Extraction, error) {
	if err := Validate(videoPath); err != nil {
		return nil, err
	}
	if maxFrames <= 0 {
		maxFrames = f.opts.MaxFrames
	}

	info, err := f.Info(ctx, videoPath)
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp(f.opts.TempDir, "uitraps_frames_")
	if err != nil {
		return nil, fmt.Errorf("failed to create frame directory: %w", err)
	}
	extraction := &Extraction{Dir: dir, Info: info}

	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	f.logger.Debug("extracting frames", "video", videoPath, "dir", dir, "threshold", f.opts.SceneThreshold)

	// Extract frames where the scene changes more than the threshold
	cmd := exec.CommandContext(ctx, f.opts.FFmpegPath,
		"-i", videoPath,
		"-vf", fmt.Sprintf("select='gt(scene,%g)',showinfo", f.opts.SceneThreshold),
		"-vsync", "vfr",
		"-frame_pts", "1",
		filepath.Join(dir, "frame_%04d.png"),
		"-y",
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		// scene detection failing is not fatal, the interval fallback below still runs
		f.logger.Warn("scene detection failed", "error", err, "output", tail(string(output), 512))
	}

	files, err := filepath.Glob(filepath.Join(dir, "frame_*.png"))
	if err != nil {
		extraction.Cleanup()
		return nil, err
	}
	sort.Strings(files)

	if len(files) < f.opts.MinFrames {
		extraction.Frames = f.extractIntervalFrames(ctx, videoPath, dir, info.Duration, f.opts.MinFrames)
	} else {
		extraction.Frames = sceneFrames(files, maxFrames, info.Duration)
	}

	if len(extraction.Frames) == 0 {
		extraction.Cleanup()
		return nil, ErrNoFrames
	}

	f.logger.Info("extracted frames", "video", filepath.Base(videoPath), "count", len(extraction.Frames))
	return extraction, nil
}

// sceneFrames estimates a timestamp for each scene frame from its position
func sceneFrames(files []string, maxFrames int, duration float64) []models.FrameRecord {
	total := len(files)
	if len(files) > maxFrames {
		files = files[:maxFrames]
	}
	frames := make([]models.FrameRecord, len(files))
	for i, path := range files {
		ts := float64(i) / float64(max(total, 1)) * duration
		frames[i] = models.FrameRecord{Index: i + 1, Path: path, Timestamp: &ts}
	}
	return frames
}

func (f *FFmpeg) extractIntervalFrames(ctx context.Context, videoPath, dir string, duration float64, count int) []models.FrameRecord {
	interval := duration / float64(count+1)

	var frames []models.FrameRecord
	for i := 1; i <= count; i++ {
		ts := float64(i) * interval
		out := filepath.Join(dir, fmt.Sprintf("interval_%04d.png", i))

		cmd := exec.CommandContext(ctx, f.opts.FFmpegPath,
			"-ss", strconv.FormatFloat(ts, 'f', 3, 64),
			"-i", videoPath,
			"-vframes", "1",
			"-q:v", "2",
			out,
			"-y",
		)
		if output, err := cmd.CombinedOutput(); err != nil {
			f.logger.Warn("interval frame failed", "timestamp", ts, "error", err, "output", tail(string(output), 256))
			continue
		}
		if _, err := os.Stat(out); err != nil {
			continue
		}
		frames = append(frames, models.FrameRecord{Index: len(frames) + 1, Path: out, Timestamp: &ts})
	}
	return frames
}

// ImageFrames builds frame records for uploaded screenshots, indexed in argument order
func ImageFrames(paths []string) []models.FrameRecord {
	frames := make([]models.FrameRecord, len(paths))
	for i, p := range paths {
		frames[i] = models.FrameRecord{Index: i + 1, Path: p}
	}
	return frames
}

type probeOutput struct {
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		RFrameRate string `json:"r_frame_rate"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
		Size     string `json:"size"`
	} `json:"format"`
}

func parseProbe(data []byte) (*models.VideoInfo, error) {
	var probe probeOutput
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	for _, s := range probe.Streams {
		if s.CodecType != "video" {
			continue
		}
		info := &models.VideoInfo{
			Width:  s.Width,
			Height: s.Height,
			FPS:    parseFrameRate(s.RFrameRate),
			Codec:  s.CodecName,
		}
		if info.Codec == "" {
			info.Codec = "unknown"
		}
		info.Duration, _ = strconv.ParseFloat(probe.Format.Duration, 64)
		info.FileSize, _ = strconv.ParseInt(probe.Format.Size, 10, 64)
		return info, nil
	}
	return nil, errors.New("no video stream found in file")
}

// parseFrameRate accepts "30/1" or "29.97"; anything unparsable is 30
func parseFrameRate(s string) float64 {
	if s == "" {
		return 30
	}
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err1 := strconv.ParseFloat(num, 64)
		d, err2 := strconv.ParseFloat(den, 64)
		if err1 != nil || err2 != nil || d <= 0 {
			return 30
		}
		return n / d
	}
	fps, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 30
	}
	return fps
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
