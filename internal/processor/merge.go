package processor

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"stream-pipeline/internal/blob"
	"stream-pipeline/internal/cancel"
	"stream-pipeline/internal/logging"
	"stream-pipeline/internal/metrics"
	"stream-pipeline/internal/store"
)

// MergeResolution assembles the ordered playlist for a resolution whose
// chunks have all been processed, uploads it and marks the resolution
// completed. The router triggers it when the processed counter reaches
// totalChunks; under redelivery it may run twice, which overwrites the
// same playlist with identical content.
func (p *Processor) MergeResolution(ctx context.Context, videoID, projectID, res string) error {
	if p.jobs.IsCancelled(videoID) {
		logging.Info("[%s] Merge %s skipped: job cancelled", videoID, res)
		return cancel.ErrCancelled
	}

	rec, err := p.videos.Get(ctx, videoID, projectID)
	if err != nil {
		return fmt.Errorf("load video record: %w", err)
	}
	if len(rec.Chunks) == 0 {
		return fmt.Errorf("video %s has no chunk inventory", videoID)
	}
	if got := rec.ProcessedChunks[res]; got < rec.TotalChunks {
		return fmt.Errorf("merge for %s/%s triggered with %d/%d chunks processed",
			videoID, res, got, rec.TotalChunks)
	}

	// Workers finish chunks in arbitrary order; the playlist is ordered
	// by chunk index, not arrival.
	chunks := append([]store.Chunk(nil), rec.Chunks...)
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Index < chunks[j].Index })

	playlist := buildResolutionPlaylist(chunks, p.chunkDur.Seconds())
	playlistPath := blob.ResolutionPlaylistPath(projectID, videoID, res)
	if err := p.blobs.UploadStream(ctx, strings.NewReader(playlist), playlistPath); err != nil {
		return fmt.Errorf("upload resolution playlist: %w", err)
	}

	if err := p.videos.SetResolutionStatus(ctx, videoID, projectID, res, store.StateCompleted); err != nil {
		return fmt.Errorf("mark resolution completed: %w", err)
	}

	metrics.ResolutionsMergedTotal.WithLabelValues(res).Inc()
	logging.Info("[%s] Merged %d chunks for %s -> %s", videoID, len(chunks), res, playlistPath)
	return nil
}
