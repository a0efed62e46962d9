package router

import (
	"context"
	"errors"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"stream-pipeline/internal/broker"
	"stream-pipeline/internal/cancel"
	"stream-pipeline/internal/ffmpeg"
	"stream-pipeline/internal/logging"
	"stream-pipeline/internal/metrics"
	"stream-pipeline/internal/store"
	"stream-pipeline/internal/task"
)

// Splitter is the slice of the split component the router depends on.
type Splitter interface {
	Split(ctx context.Context, videoID, projectID, sourcePath string, resolutions []string) error
}

// Processor is the slice of the chunk/merge/finalize component the
// router depends on.
type Processor interface {
	ProcessChunk(ctx context.Context, videoID, projectID, res string, chunkIndex int, chunkPath string) error
	MergeResolution(ctx context.Context, videoID, projectID, res string) error
	Finalize(ctx context.Context, videoID, projectID string) error
}

// Router dispatches pipeline tasks and owns all side-effecting
// follow-on enqueues.
type Router struct {
	splitter  Splitter
	processor Processor
	videos    store.VideoStore
	jobs      *cancel.Registry
	producer  broker.Producer
	topic     string
	batchSize int

	// chunkTopicFor overrides the destination topic for chunk tasks in
	// the resolution-sharded topology; nil keeps them on the pipeline
	// topic.
	chunkTopicFor func(res string) string
}

// New wires a Router publishing follow-on tasks to topic in batches of
// batchSize.
func New(splitter Splitter, processor Processor, videos store.VideoStore, jobs *cancel.Registry, producer broker.Producer, topic string, batchSize int) *Router {
	return &Router{
		splitter:  splitter,
		processor: processor,
		videos:    videos,
		jobs:      jobs,
		producer:  producer,
		topic:     topic,
		batchSize: batchSize,
	}
}

// RouteChunksByResolution sends PROCESS_CHUNK tasks to the topic named
// by topicFor instead of the pipeline topic. Split and merge tasks stay
// on the pipeline topic.
func (r *Router) RouteChunksByResolution(topicFor func(res string) string) {
	r.chunkTopicFor = topicFor
}

// HandleMessage adapts Handle to the broker consumer callback.
func (r *Router) HandleMessage(ctx context.Context, msg *kafka.Message) broker.Disposition {
	return r.Handle(ctx, msg.Value)
}

// Handle processes one raw task message and reports the offset
// disposition. It never panics the consume loop: every failure path
// resolves to a disposition.
func (r *Router) Handle(ctx context.Context, raw []byte) broker.Disposition {
	t, err := task.Decode(raw)
	if err != nil {
		logging.Warn("Dropping malformed task: %v", err)
		metrics.TasksDroppedTotal.Inc()
		return broker.Commit
	}

	kind := string(t.Kind)
	metrics.TasksConsumedTotal.WithLabelValues(kind).Inc()
	logging.Info("[%s] [%s] Processing task", t.VideoID(), kind)

	// Explicit skip, not silent loss: the task is committed without
	// dispatch so it is never redelivered.
	if r.jobs.IsCancelled(t.VideoID()) {
		logging.Warn("[%s] [%s] Task skipped: job cancelled", t.VideoID(), kind)
		metrics.TasksCommittedTotal.WithLabelValues(kind, "skipped").Inc()
		return broker.Commit
	}

	start := time.Now()
	var disposition broker.Disposition
	switch t.Kind {
	case task.TypeSplitVideo:
		disposition = r.handleSplit(ctx, t.Split)
	case task.TypeProcessChunk:
		disposition = r.handleChunk(ctx, t.Chunk)
	case task.TypeMergeResolution:
		disposition = r.handleMerge(ctx, t.Merge)
	}
	metrics.TaskDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())

	outcome := "ok"
	if disposition == broker.Redeliver {
		outcome = "failed"
	}
	metrics.TasksCommittedTotal.WithLabelValues(kind, outcome).Inc()
	return disposition
}

// handleSplit runs the splitter, then fans out one PROCESS_CHUNK task
// per (chunk x resolution).
func (r *Router) handleSplit(ctx context.Context, t *task.SplitVideo) broker.Disposition {
	if err := r.splitter.Split(ctx, t.VideoID, t.ProjectID, t.FilePath, t.Resolutions); err != nil {
		logging.Error("[%s] Split failed: %v", t.VideoID, err)
		return broker.Redeliver
	}
	if err := r.enqueueChunkTasks(ctx, t); err != nil {
		// Redelivery re-runs the split, which re-derives and overwrites
		// the inventory before enqueueing again.
		logging.Error("[%s] Failed to enqueue chunk tasks: %v", t.VideoID, err)
		return broker.Redeliver
	}
	return broker.Commit
}

func (r *Router) enqueueChunkTasks(ctx context.Context, t *task.SplitVideo) error {
	rec, err := r.videos.Get(ctx, t.VideoID, t.ProjectID)
	if err != nil {
		return err
	}
	if len(rec.Chunks) == 0 {
		return errors.New("no chunk inventory after split")
	}

	total := len(rec.Chunks) * len(t.Resolutions)
	logging.Info("[%s] Queuing %d chunk tasks (%d chunks x %d resolutions)",
		t.VideoID, total, len(rec.Chunks), len(t.Resolutions))

	// Bounded batches respect broker payload/throughput limits when a
	// long video fans out into thousands of tasks.
	queued := 0
	for _, res := range t.Resolutions {
		topic := r.topic
		if r.chunkTopicFor != nil {
			topic = r.chunkTopicFor(res)
		}
		for _, chunk := range rec.Chunks {
			payload, err := task.Encode(task.NewChunk(t.VideoID, t.ProjectID, res, chunk.Index, chunk.StoragePath))
			if err != nil {
				return err
			}
			if err := r.producer.Produce(ctx, topic, t.VideoID, payload); err != nil {
				return err
			}
			queued++
			if queued%r.batchSize == 0 {
				logging.Debug("[%s] Queued %d/%d chunk tasks", t.VideoID, queued, total)
			}
		}
	}
	return nil
}

// handleChunk marks the resolution as processing, runs the chunk
// processor and, when the resolution's processed counter reaches the
// chunk total, enqueues exactly one merge task. The check runs after
// every successful chunk; under redelivery it may fire again, and
// merge tolerates that.
func (r *Router) handleChunk(ctx context.Context, t *task.ProcessChunk) broker.Disposition {
	// Queued to processing on the first chunk; completed and failed
	// states are never overwritten by this transition.
	if err := r.videos.MarkResolutionProcessing(ctx, t.VideoID, t.ProjectID, t.Resolution); err != nil {
		logging.Warn("[%s] Failed to mark %s processing: %v", t.VideoID, t.Resolution, err)
	}

	err := r.processor.ProcessChunk(ctx, t.VideoID, t.ProjectID, t.Resolution, t.ChunkIndex, t.ChunkPath)
	switch {
	case err == nil:
		// fall through to the merge check
	case errors.Is(err, cancel.ErrCancelled):
		logging.Warn("[%s] Chunk %d/%s cancelled", t.VideoID, t.ChunkIndex, t.Resolution)
		return broker.Commit
	default:
		var encodeErr *ffmpeg.EncodeError
		if errors.As(err, &encodeErr) {
			// Encoder failure: record it and commit; replaying the same
			// bytes through the same encoder will not succeed.
			logging.Error("[%s] Chunk %d/%s encode failed: %v", t.VideoID, t.ChunkIndex, t.Resolution, err)
			if serr := r.videos.SetResolutionStatus(ctx, t.VideoID, t.ProjectID, t.Resolution, store.StateFailed); serr != nil {
				logging.Error("[%s] Failed to mark %s failed: %v", t.VideoID, t.Resolution, serr)
			}
			return broker.Commit
		}
		// Transient I/O: leave uncommitted and let the broker redeliver.
		logging.Error("[%s] Chunk %d/%s failed: %v", t.VideoID, t.ChunkIndex, t.Resolution, err)
		return broker.Redeliver
	}

	rec, err := r.videos.Get(ctx, t.VideoID, t.ProjectID)
	if err != nil {
		logging.Error("[%s] Merge check failed: %v", t.VideoID, err)
		return broker.Redeliver
	}
	if rec.TotalChunks > 0 && rec.ProcessedChunks[t.Resolution] >= rec.TotalChunks {
		logging.Info("[%s] All chunks processed for %s, queuing merge", t.VideoID, t.Resolution)
		payload, err := task.Encode(task.NewMerge(t.VideoID, t.ProjectID, t.Resolution))
		if err != nil {
			return broker.Redeliver
		}
		if err := r.producer.Produce(ctx, r.topic, t.VideoID, payload); err != nil {
			logging.Error("[%s] Failed to enqueue merge: %v", t.VideoID, err)
			return broker.Redeliver
		}
	}
	return broker.Commit
}

// handleMerge runs the merger, then unconditionally the finalizer.
func (r *Router) handleMerge(ctx context.Context, t *task.MergeResolution) broker.Disposition {
	if err := r.processor.MergeResolution(ctx, t.VideoID, t.ProjectID, t.Resolution); err != nil {
		if errors.Is(err, cancel.ErrCancelled) {
			logging.Warn("[%s] Merge %s cancelled", t.VideoID, t.Resolution)
			return broker.Commit
		}
		logging.Error("[%s] Merge %s failed: %v", t.VideoID, t.Resolution, err)
		return broker.Redeliver
	}
	if err := r.processor.Finalize(ctx, t.VideoID, t.ProjectID); err != nil {
		// Merge is already durable and re-running it is a safe
		// overwrite, so redelivery just retries the finalize.
		logging.Error("[%s] Finalize failed: %v", t.VideoID, err)
		return broker.Redeliver
	}
	return broker.Commit
}
