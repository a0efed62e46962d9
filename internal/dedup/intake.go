package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"stream-pipeline/internal/broker"
	"stream-pipeline/internal/logging"
	"stream-pipeline/internal/store"
	"stream-pipeline/internal/task"
)

// Intake is the library-level seam the upload API calls once a source
// file has landed in blob storage. It owns the dedup flow: a duplicate
// returns the existing videoID without touching the pipeline; a new
// upload mints a videoID, creates the record, registers the in-flight
// entry and enqueues the SPLIT_VIDEO task. The in-flight entry is
// released once the task is durably queued; from then on the
// recent-uploads lookup suppresses repeats.
type Intake struct {
	registry *Registry
	videos   store.VideoStore
	producer broker.Producer
	topic    string
}

// NewIntake wires an Intake to the pipeline topic.
func NewIntake(registry *Registry, videos store.VideoStore, producer broker.Producer, topic string) *Intake {
	return &Intake{registry: registry, videos: videos, producer: producer, topic: topic}
}

// Accept registers an uploaded source and starts the pipeline for it.
// sourcePath is the blob path of the uploaded bytes. The returned bool
// is true when the upload was a duplicate and no new work was queued.
func (in *Intake) Accept(ctx context.Context, projectID, fileName string, fileSize int64, sourcePath string, resolutions []string) (string, bool, error) {
	if existing, dup, err := in.registry.CheckDuplicate(ctx, projectID, fileName, fileSize); err != nil {
		return "", false, err
	} else if dup {
		return existing, true, nil
	}

	videoID := uuid.NewString()
	rec := &store.VideoRecord{
		VideoID:     videoID,
		ProjectID:   projectID,
		FileName:    fileName,
		FilePath:    sourcePath,
		FileSize:    fileSize,
		UploadTime:  time.Now(),
		Resolutions: resolutions,
	}
	if err := in.videos.Create(ctx, rec); err != nil {
		return "", false, fmt.Errorf("create video record: %w", err)
	}

	in.registry.Register(projectID, fileName, fileSize, videoID)

	payload, err := task.Encode(task.NewSplit(videoID, projectID, sourcePath, resolutions))
	if err != nil {
		in.registry.Fail(projectID, fileName, fileSize)
		return "", false, err
	}
	if err := in.producer.Produce(ctx, in.topic, videoID, payload); err != nil {
		in.registry.Fail(projectID, fileName, fileSize)
		return "", false, fmt.Errorf("enqueue split task: %w", err)
	}

	// The stored record takes over duplicate suppression via the
	// recent-uploads lookup.
	in.registry.Complete(projectID, fileName, fileSize)

	logging.Info("[%s] Accepted upload %s (%d bytes) for project %s", videoID, fileName, fileSize, projectID)
	return videoID, false, nil
}
