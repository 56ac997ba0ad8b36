package extractor

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/bdougie/uitraps/internal/models"
)

var ErrEmptyImage = errors.New("image file is empty")

var mediaTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
}

// LoadSnapshot reads an image file into an embeddable data URL
func LoadSnapshot(path string) (*models.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image '%s': %w", path, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyImage, path)
	}

	mediaType, ok := mediaTypes[strings.ToLower(filepath.Ext(path))]
	if !ok {
		mediaType = "image/png"
	}

	return &models.Snapshot{
		MediaType: mediaType,
		DataURL:   "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data),
		Size:      int64(len(data)),
	}, nil
}

// SnapshotLoader loads the embeddable snapshot for a frame
type SnapshotLoader func(path string) (*models.Snapshot, error)

// LoadSnapshots loads snapshots for every frame with at most limit reads in
// flight. Frames that fail to load are reported in the error map keyed by
// frame index and are absent from the snapshot map.
func LoadSnapshots(ctx context.Context, frames []models.FrameRecord, load SnapshotLoader, limit int) (map[int]*models.Snapshot, map[int]error) {
	if load == nil {
		load = LoadSnapshot
	}
	if limit <= 0 {
		limit = 4
	}

	var (
		mu        sync.Mutex
		snapshots = make(map[int]*models.Snapshot, len(frames))
		failures  = make(map[int]error)
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, frame := range frames {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				mu.Lock()
				failures[frame.Index] = err
				mu.Unlock()
				return nil
			}
			snap, err := load(frame.Path)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[frame.Index] = err
				return nil
			}
			snapshots[frame.Index] = snap
			return nil
		})
	}
	_ = g.Wait()

	return snapshots, failures
}
