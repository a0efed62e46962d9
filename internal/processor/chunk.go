package processor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"stream-pipeline/internal/blob"
	"stream-pipeline/internal/cancel"
	"stream-pipeline/internal/logging"
	"stream-pipeline/internal/metrics"
	"stream-pipeline/internal/resolution"
)

// ProcessChunk downloads one chunk, transcodes it to one resolution and
// uploads the resulting segment. On success it increments the
// per-resolution processed counter by exactly one, as a single atomic
// update at the persistence layer.
//
// Returns cancel.ErrCancelled when the job was cancelled before or
// during the encode; the caller commits such tasks without marking the
// resolution failed. The chunk's scratch directory is removed on every
// exit path.
func (p *Processor) ProcessChunk(ctx context.Context, videoID, projectID, res string, chunkIndex int, chunkPath string) error {
	if p.jobs.IsCancelled(videoID) {
		logging.Info("[%s] Chunk %d/%s skipped: job cancelled", videoID, chunkIndex, res)
		return cancel.ErrCancelled
	}

	tier, err := resolution.Lookup(res)
	if err != nil {
		return err
	}

	tempDir := filepath.Join(p.scratch, projectID, videoID, fmt.Sprintf("chunk_%d_%s", chunkIndex, res))
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tempDir); err != nil {
			logging.Warn("[%s] Failed to clean chunk scratch dir: %v", videoID, err)
		}
	}()

	localChunk := filepath.Join(tempDir, "chunk.mp4")
	if err := p.blobs.DownloadToFile(ctx, chunkPath, localChunk); err != nil {
		return fmt.Errorf("download chunk %d: %w", chunkIndex, err)
	}

	localSegment := filepath.Join(tempDir, "segment.mp4")
	if err := p.encoder.TranscodeChunk(ctx, videoID, localChunk, localSegment, tier); err != nil {
		if errors.Is(err, cancel.ErrCancelled) {
			metrics.ChunkCancellationsTotal.Inc()
			logging.Info("[%s] Chunk %d/%s transcode cancelled", videoID, chunkIndex, res)
			return err
		}
		metrics.ChunkFailuresTotal.WithLabelValues(res).Inc()
		return fmt.Errorf("transcode chunk %d to %s: %w", chunkIndex, res, err)
	}

	segmentPath := blob.SegmentPath(projectID, videoID, res, chunkIndex)
	if err := p.blobs.UploadFile(ctx, localSegment, segmentPath); err != nil {
		metrics.ChunkFailuresTotal.WithLabelValues(res).Inc()
		return fmt.Errorf("upload segment %d: %w", chunkIndex, err)
	}

	if err := p.videos.IncProcessedChunks(ctx, videoID, projectID, res); err != nil {
		return fmt.Errorf("increment processed counter: %w", err)
	}

	metrics.ChunksProcessedTotal.WithLabelValues(res).Inc()
	logging.Info("[%s] Chunk %d/%s processed -> %s", videoID, chunkIndex, res, segmentPath)
	return nil
}
