// Package splitter cuts an uploaded source video into fixed-duration
// chunks and records the chunk inventory on the video record.
package splitter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"stream-pipeline/internal/blob"
	"stream-pipeline/internal/ffmpeg"
	"stream-pipeline/internal/logging"
	"stream-pipeline/internal/metrics"
	"stream-pipeline/internal/store"
)

// Splitter downloads a source video, segments it and uploads the
// chunks.
type Splitter struct {
	blobs    blob.Store
	videos   store.VideoStore
	encoder  *ffmpeg.Runner
	scratch  string
	chunkDur time.Duration
}

// New returns a Splitter writing scratch files under scratchDir.
func New(blobs blob.Store, videos store.VideoStore, encoder *ffmpeg.Runner, scratchDir string, chunkDur time.Duration) *Splitter {
	return &Splitter{blobs: blobs, videos: videos, encoder: encoder, scratch: scratchDir, chunkDur: chunkDur}
}

// Split downloads the source at sourcePath, cuts it into fixed-duration
// chunks (the last chunk may be shorter), uploads every chunk and
// writes the inventory plus zeroed per-resolution counters in a single
// record update.
//
// A retry after a partial upload re-derives the full chunk list from
// scratch and overwrites the inventory; duplicate SPLIT_VIDEO tasks for
// the same video are prevented upstream by the dedup registry, not
// here. The scratch directory is removed on every exit path.
func (s *Splitter) Split(ctx context.Context, videoID, projectID, sourcePath string, resolutions []string) error {
	logging.Info("[%s] Starting video split", videoID)

	tempDir := filepath.Join(s.scratch, projectID, videoID, "splitter")
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tempDir); err != nil {
			logging.Warn("[%s] Failed to clean splitter scratch dir: %v", videoID, err)
		}
	}()

	localInput := filepath.Join(tempDir, "input.mp4")
	logging.Info("[%s] Downloading source: %s", videoID, sourcePath)
	if err := s.blobs.DownloadToFile(ctx, sourcePath, localInput); err != nil {
		return fmt.Errorf("download source: %w", err)
	}

	chunkSeconds := int(s.chunkDur.Seconds())
	outputPattern := filepath.Join(tempDir, "chunk_%03d.mp4")
	logging.Info("[%s] Splitting video into %ds chunks", videoID, chunkSeconds)
	if err := s.encoder.Split(ctx, videoID, localInput, outputPattern, chunkSeconds); err != nil {
		return fmt.Errorf("split source: %w", err)
	}

	chunkFiles, err := listChunkFiles(tempDir)
	if err != nil {
		return err
	}
	if len(chunkFiles) == 0 {
		return fmt.Errorf("split produced no chunks for %s", videoID)
	}

	logging.Info("[%s] Uploading %d chunks", videoID, len(chunkFiles))
	chunks := make([]store.Chunk, 0, len(chunkFiles))
	for i, name := range chunkFiles {
		blobPath := fmt.Sprintf("%s/%s/source/%s", projectID, videoID, name)
		if err := s.blobs.UploadFile(ctx, filepath.Join(tempDir, name), blobPath); err != nil {
			return fmt.Errorf("upload chunk %d: %w", i, err)
		}
		// End times are nominal; the last chunk is usually shorter.
		// Playback timing never reads these.
		chunks = append(chunks, store.Chunk{
			Index:       i,
			StartTime:   float64(i) * s.chunkDur.Seconds(),
			EndTime:     float64(i+1) * s.chunkDur.Seconds(),
			StoragePath: blobPath,
		})
	}

	if err := s.videos.SetChunkInventory(ctx, videoID, projectID, chunks, resolutions); err != nil {
		return fmt.Errorf("record chunk inventory: %w", err)
	}

	metrics.VideosSplitTotal.Inc()
	logging.Info("[%s] Split complete. Total chunks: %d", videoID, len(chunks))
	return nil
}

// listChunkFiles returns the chunk files in the scratch dir in name
// order, which is index order given the zero-padded pattern.
func listChunkFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read scratch dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasPrefix(e.Name(), "chunk_") && strings.HasSuffix(e.Name(), ".mp4") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
