package pool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"stream-pipeline/internal/broker"
	"stream-pipeline/internal/logging"
	"stream-pipeline/internal/metrics"
	"stream-pipeline/internal/task"
)

// TopicForResolution names the dedicated topic for one resolution tier.
func TopicForResolution(res string) string {
	return "video-processing-" + res
}

// GroupForResolution names the consumer group for one resolution tier.
func GroupForResolution(res string) string {
	return "video-processor-" + res + "-group"
}

// shard is one resolution's dedicated consumer with its own counters.
type shard struct {
	resolution   string
	consumer     *broker.Consumer
	isProcessing atomic.Bool
	processed    atomic.Int64
	errors       atomic.Int64
	done         chan struct{}
}

// ShardStats is the observable state of one resolution consumer.
type ShardStats struct {
	Resolution     string `json:"resolution"`
	IsProcessing   bool   `json:"isProcessing"`
	ProcessedCount int64  `json:"processedCount"`
	ErrorCount     int64  `json:"errorCount"`
}

// ResolutionManager runs one dedicated consumer per resolution, each on
// its own topic and group, reading from the earliest retained offset so
// it drains any backlog built before it started.
type ResolutionManager struct {
	client      *broker.Client
	handler     broker.Handler
	resolutions []string

	mu     sync.Mutex
	shards map[string]*shard
	cancel context.CancelFunc
}

// NewResolution builds a manager for the given tiers; Start launches it.
func NewResolution(client *broker.Client, handler broker.Handler, resolutions []string) *ResolutionManager {
	return &ResolutionManager{
		client:      client,
		handler:     handler,
		resolutions: resolutions,
		shards:      make(map[string]*shard),
	}
}

// Start creates one consumer per resolution.
func (m *ResolutionManager) Start(ctx context.Context) error {
	runCtx, cancelRun := context.WithCancel(ctx)
	m.cancel = cancelRun

	for _, res := range m.resolutions {
		if err := m.startShard(runCtx, res); err != nil {
			m.Stop()
			return err
		}
	}
	metrics.ActiveConsumers.WithLabelValues("sharded").Set(float64(len(m.resolutions)))
	logging.Info("Started %d resolution-sharded consumers", len(m.resolutions))
	return nil
}

func (m *ResolutionManager) startShard(ctx context.Context, res string) error {
	topic := TopicForResolution(res)
	consumer, err := m.client.NewGroupConsumer(GroupForResolution(res), broker.ConsumerOptions{
		FromBeginning: true,
	})
	if err != nil {
		return fmt.Errorf("shard %s: %w", res, err)
	}
	if err := consumer.Subscribe(topic); err != nil {
		consumer.Close()
		return fmt.Errorf("shard %s: %w", res, err)
	}

	sh := &shard{resolution: res, consumer: consumer, done: make(chan struct{})}
	m.mu.Lock()
	m.shards[res] = sh
	m.mu.Unlock()

	go func() {
		defer close(sh.done)
		consumer.Run(ctx, m.shardHandler(sh))
		consumer.Close()
	}()

	logging.Info("Created consumer for %s (topic %s, group %s)", res, topic, GroupForResolution(res))
	return nil
}

// shardHandler wraps the pipeline handler with the shard's counters and
// the resolution-mismatch guard: a task whose resolution does not match
// the topic it arrived on is logged and skipped, never processed.
func (m *ResolutionManager) shardHandler(sh *shard) broker.Handler {
	return func(ctx context.Context, msg *kafka.Message) broker.Disposition {
		sh.isProcessing.Store(true)
		defer sh.isProcessing.Store(false)

		if res, ok := taskResolution(msg.Value); ok && res != sh.resolution {
			logging.Warn("[%s] Task mismatch: expected %s, got %s. Skipping.", sh.resolution, sh.resolution, res)
			return broker.Commit
		}

		disposition := m.handler(ctx, msg)
		if disposition == broker.Commit {
			sh.processed.Add(1)
		} else {
			sh.errors.Add(1)
			metrics.ConsumerErrorsTotal.WithLabelValues("sharded").Inc()
		}
		return disposition
	}
}

// taskResolution extracts the resolution a task targets, when it has
// one. Malformed payloads are left for the pipeline handler to drop.
func taskResolution(raw []byte) (string, bool) {
	t, err := task.Decode(raw)
	if err != nil {
		return "", false
	}
	switch t.Kind {
	case task.TypeProcessChunk:
		return t.Chunk.Resolution, true
	case task.TypeMergeResolution:
		return t.Merge.Resolution, true
	}
	return "", false
}

// Stats returns the per-resolution counters.
func (m *ResolutionManager) Stats() []ShardStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ShardStats, 0, len(m.shards))
	for _, res := range m.resolutions {
		sh, ok := m.shards[res]
		if !ok {
			continue
		}
		out = append(out, ShardStats{
			Resolution:     res,
			IsProcessing:   sh.isProcessing.Load(),
			ProcessedCount: sh.processed.Load(),
			ErrorCount:     sh.errors.Load(),
		})
	}
	return out
}

// Stop shuts every shard down and waits for their loops to exit.
func (m *ResolutionManager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.mu.Lock()
	shards := m.shards
	m.shards = make(map[string]*shard)
	m.mu.Unlock()

	for _, sh := range shards {
		<-sh.done
	}
	metrics.ActiveConsumers.WithLabelValues("sharded").Set(0)
	logging.Info("Resolution-sharded consumers stopped")
}
