package processor

import (
	"time"

	"stream-pipeline/internal/blob"
	"stream-pipeline/internal/cancel"
	"stream-pipeline/internal/ffmpeg"
	"stream-pipeline/internal/store"
)

// Processor executes chunk, merge and finalize work against the blob
// store and video record store.
type Processor struct {
	blobs    blob.Store
	videos   store.VideoStore
	jobs     *cancel.Registry
	encoder  *ffmpeg.Runner
	scratch  string
	chunkDur time.Duration
}

// New wires a Processor.
func New(blobs blob.Store, videos store.VideoStore, jobs *cancel.Registry, encoder *ffmpeg.Runner, scratchDir string, chunkDur time.Duration) *Processor {
	return &Processor{
		blobs:    blobs,
		videos:   videos,
		jobs:     jobs,
		encoder:  encoder,
		scratch:  scratchDir,
		chunkDur: chunkDur,
	}
}
