package processor

import (
	"context"
	"fmt"
	"strings"

	"stream-pipeline/internal/blob"
	"stream-pipeline/internal/logging"
	"stream-pipeline/internal/metrics"
	"stream-pipeline/internal/resolution"
	"stream-pipeline/internal/store"
)

// Finalize rebuilds the master playlist from every completed resolution
// and marks the video playable. It is idempotent and re-entrant: called
// again after another resolution completes, it overwrites the master
// playlist with the larger set and bumps masterPlaylistVersion. With no
// completed resolutions it is a no-op.
func (p *Processor) Finalize(ctx context.Context, videoID, projectID string) error {
	rec, err := p.videos.Get(ctx, videoID, projectID)
	if err != nil {
		return fmt.Errorf("load video record: %w", err)
	}

	// Ladder order keeps availableResolutions stable across finalizes.
	var completed []string
	for _, tier := range resolution.Ladder {
		if rec.ProcessingStatus[tier.Name] == store.StateCompleted {
			completed = append(completed, tier.Name)
		}
	}
	if len(completed) == 0 {
		logging.Info("[%s] Finalize: no completed resolutions yet", videoID)
		return nil
	}

	master := buildMasterPlaylist(completed)
	masterPath := blob.MasterPlaylistPath(projectID, videoID)
	if err := p.blobs.UploadStream(ctx, strings.NewReader(master), masterPath); err != nil {
		return fmt.Errorf("upload master playlist: %w", err)
	}

	if err := p.videos.FinalizeMaster(ctx, videoID, projectID, masterPath, completed); err != nil {
		return fmt.Errorf("record finalize: %w", err)
	}

	// Job lifecycle end for cancellation purposes.
	p.jobs.Clear(videoID)

	metrics.VideosFinalizedTotal.Inc()
	logging.Info("[%s] Finalized master playlist with %d resolutions -> %s", videoID, len(completed), masterPath)
	return nil
}
