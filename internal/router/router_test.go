package router

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"stream-pipeline/internal/broker"
	"stream-pipeline/internal/cancel"
	"stream-pipeline/internal/ffmpeg"
	"stream-pipeline/internal/store"
	"stream-pipeline/internal/task"
)

type produced struct {
	topic string
	key   string
	value []byte
}

type fakeProducer struct {
	msgs []produced
	err  error
}

func (f *fakeProducer) Produce(_ context.Context, topic, key string, value []byte) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, produced{topic: topic, key: key, value: value})
	return nil
}

// fakeSplitter records Split calls and optionally writes the chunk
// inventory the way the real splitter does.
type fakeSplitter struct {
	videos *store.Memory
	chunks []store.Chunk
	err    error
	calls  int
}

func (f *fakeSplitter) Split(ctx context.Context, videoID, projectID, sourcePath string, resolutions []string) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	return f.videos.SetChunkInventory(ctx, videoID, projectID, f.chunks, resolutions)
}

type fakeProcessor struct {
	chunkErr    error
	mergeErr    error
	finalizeErr error

	chunkCalls    int
	mergeCalls    int
	finalizeCalls int
}

func (f *fakeProcessor) ProcessChunk(_ context.Context, videoID, projectID, res string, chunkIndex int, chunkPath string) error {
	f.chunkCalls++
	return f.chunkErr
}

func (f *fakeProcessor) MergeResolution(_ context.Context, videoID, projectID, res string) error {
	f.mergeCalls++
	return f.mergeErr
}

func (f *fakeProcessor) Finalize(_ context.Context, videoID, projectID string) error {
	f.finalizeCalls++
	return f.finalizeErr
}

type routerFixture struct {
	router    *Router
	videos    *store.Memory
	jobs      *cancel.Registry
	producer  *fakeProducer
	splitter  *fakeSplitter
	processor *fakeProcessor
}

func newFixture(t *testing.T, chunks []store.Chunk, resolutions []string) *routerFixture {
	t.Helper()
	videos := store.NewMemory()
	err := videos.Create(context.Background(), &store.VideoRecord{
		VideoID:     "v1",
		ProjectID:   "p1",
		FileName:    "movie.mp4",
		FileSize:    1024,
		UploadTime:  time.Now(),
		Resolutions: resolutions,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	f := &routerFixture{
		videos:    videos,
		jobs:      cancel.NewRegistry(),
		producer:  &fakeProducer{},
		splitter:  &fakeSplitter{videos: videos, chunks: chunks},
		processor: &fakeProcessor{},
	}
	f.router = New(f.splitter, f.processor, videos, f.jobs, f.producer, "video-tasks", 50)
	return f
}

func encode(t *testing.T, tk *task.Task) []byte {
	t.Helper()
	raw, err := task.Encode(tk)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	return raw
}

func TestHandleMalformedDropped(t *testing.T) {
	f := newFixture(t, nil, []string{"480p"})

	if got := f.router.Handle(context.Background(), []byte(`{"type":"BOGUS"}`)); got != broker.Commit {
		t.Errorf("Expected malformed task committed, got %v", got)
	}
	if f.splitter.calls != 0 || f.processor.chunkCalls != 0 {
		t.Error("Expected no dispatch for malformed task")
	}
}

func TestHandleCancelledSkipped(t *testing.T) {
	f := newFixture(t, nil, []string{"480p"})
	f.jobs.Cancel("v1")

	raw := encode(t, task.NewChunk("v1", "p1", "480p", 0, "p1/v1/source/chunk_000.mp4"))
	if got := f.router.Handle(context.Background(), raw); got != broker.Commit {
		t.Errorf("Expected cancelled task committed, got %v", got)
	}
	if f.processor.chunkCalls != 0 {
		t.Error("Expected cancelled task not dispatched")
	}
}

func TestHandleSplitFansOut(t *testing.T) {
	chunks := []store.Chunk{
		{Index: 0, StoragePath: "p1/v1/source/chunk_000.mp4"},
		{Index: 1, StoragePath: "p1/v1/source/chunk_001.mp4"},
		{Index: 2, StoragePath: "p1/v1/source/chunk_002.mp4"},
	}
	f := newFixture(t, chunks, []string{"480p", "720p"})

	raw := encode(t, task.NewSplit("v1", "p1", "p1/raw/movie.mp4", []string{"480p", "720p"}))
	if got := f.router.Handle(context.Background(), raw); got != broker.Commit {
		t.Errorf("Expected split committed, got %v", got)
	}
	if f.splitter.calls != 1 {
		t.Errorf("Expected 1 split call, got %d", f.splitter.calls)
	}

	if len(f.producer.msgs) != 6 {
		t.Fatalf("Expected 3 chunks x 2 resolutions = 6 tasks, got %d", len(f.producer.msgs))
	}
	perRes := map[string]int{}
	for _, m := range f.producer.msgs {
		if m.topic != "video-tasks" {
			t.Errorf("Expected pipeline topic, got %s", m.topic)
		}
		tk, err := task.Decode(m.value)
		if err != nil {
			t.Fatalf("Enqueued task does not decode: %v", err)
		}
		if tk.Kind != task.TypeProcessChunk {
			t.Fatalf("Expected PROCESS_CHUNK, got %s", tk.Kind)
		}
		perRes[tk.Chunk.Resolution]++
	}
	if perRes["480p"] != 3 || perRes["720p"] != 3 {
		t.Errorf("Expected 3 tasks per resolution, got %v", perRes)
	}
}

func TestHandleSplitShardedRouting(t *testing.T) {
	chunks := []store.Chunk{{Index: 0, StoragePath: "p1/v1/source/chunk_000.mp4"}}
	f := newFixture(t, chunks, []string{"480p", "720p"})
	f.router.RouteChunksByResolution(func(res string) string {
		return "video-processing-" + res
	})

	raw := encode(t, task.NewSplit("v1", "p1", "p1/raw/movie.mp4", []string{"480p", "720p"}))
	if got := f.router.Handle(context.Background(), raw); got != broker.Commit {
		t.Errorf("Expected split committed, got %v", got)
	}

	topics := map[string]int{}
	for _, m := range f.producer.msgs {
		topics[m.topic]++
	}
	if topics["video-processing-480p"] != 1 || topics["video-processing-720p"] != 1 {
		t.Errorf("Expected one chunk task per resolution topic, got %v", topics)
	}
}

func TestHandleSplitFailureRedelivers(t *testing.T) {
	f := newFixture(t, nil, []string{"480p"})
	f.splitter.err = errors.New("download failed")

	raw := encode(t, task.NewSplit("v1", "p1", "p1/raw/movie.mp4", []string{"480p"}))
	if got := f.router.Handle(context.Background(), raw); got != broker.Redeliver {
		t.Errorf("Expected redelivery on split failure, got %v", got)
	}
	if len(f.producer.msgs) != 0 {
		t.Error("Expected no chunk tasks after failed split")
	}
}

func TestHandleChunkBelowTotalNoMerge(t *testing.T) {
	chunks := []store.Chunk{{Index: 0}, {Index: 1}, {Index: 2}}
	f := newFixture(t, chunks, []string{"480p"})
	if err := f.videos.SetChunkInventory(context.Background(), "v1", "p1", chunks, []string{"480p"}); err != nil {
		t.Fatalf("SetChunkInventory failed: %v", err)
	}
	// The real processor increments the counter; mirror that here.
	f.videos.IncProcessedChunks(context.Background(), "v1", "p1", "480p")

	raw := encode(t, task.NewChunk("v1", "p1", "480p", 0, "p1/v1/source/chunk_000.mp4"))
	if got := f.router.Handle(context.Background(), raw); got != broker.Commit {
		t.Errorf("Expected chunk committed, got %v", got)
	}
	if len(f.producer.msgs) != 0 {
		t.Errorf("Expected no merge with 1/3 processed, got %d messages", len(f.producer.msgs))
	}

	rec, _ := f.videos.Get(context.Background(), "v1", "p1")
	if rec.ProcessingStatus["480p"] != store.StateProcessing {
		t.Errorf("Expected 480p processing after first chunk, got %s", rec.ProcessingStatus["480p"])
	}
}

func TestHandleChunkLastEnqueuesOneMerge(t *testing.T) {
	chunks := []store.Chunk{{Index: 0}, {Index: 1}}
	f := newFixture(t, chunks, []string{"480p"})
	if err := f.videos.SetChunkInventory(context.Background(), "v1", "p1", chunks, []string{"480p"}); err != nil {
		t.Fatalf("SetChunkInventory failed: %v", err)
	}
	f.videos.IncProcessedChunks(context.Background(), "v1", "p1", "480p")
	f.videos.IncProcessedChunks(context.Background(), "v1", "p1", "480p")

	raw := encode(t, task.NewChunk("v1", "p1", "480p", 1, "p1/v1/source/chunk_001.mp4"))
	if got := f.router.Handle(context.Background(), raw); got != broker.Commit {
		t.Errorf("Expected chunk committed, got %v", got)
	}

	if len(f.producer.msgs) != 1 {
		t.Fatalf("Expected exactly 1 merge task, got %d", len(f.producer.msgs))
	}
	tk, err := task.Decode(f.producer.msgs[0].value)
	if err != nil {
		t.Fatalf("Merge task does not decode: %v", err)
	}
	if tk.Kind != task.TypeMergeResolution {
		t.Errorf("Expected MERGE_RESOLUTION, got %s", tk.Kind)
	}
	if tk.Merge.Resolution != "480p" {
		t.Errorf("Expected resolution 480p, got %s", tk.Merge.Resolution)
	}
	if f.producer.msgs[0].topic != "video-tasks" {
		t.Errorf("Expected merge on the pipeline topic, got %s", f.producer.msgs[0].topic)
	}
}

func TestHandleChunkEncodeFailureCommitsAndMarksFailed(t *testing.T) {
	chunks := []store.Chunk{{Index: 0}}
	f := newFixture(t, chunks, []string{"480p"})
	if err := f.videos.SetChunkInventory(context.Background(), "v1", "p1", chunks, []string{"480p"}); err != nil {
		t.Fatalf("SetChunkInventory failed: %v", err)
	}
	f.processor.chunkErr = fmt.Errorf("transcode chunk 0 to 480p: %w",
		&ffmpeg.EncodeError{Op: "transcode", Err: errors.New("exit status 1")})

	raw := encode(t, task.NewChunk("v1", "p1", "480p", 0, "p1/v1/source/chunk_000.mp4"))
	if got := f.router.Handle(context.Background(), raw); got != broker.Commit {
		t.Errorf("Expected encoder failure committed, got %v", got)
	}

	rec, _ := f.videos.Get(context.Background(), "v1", "p1")
	if rec.ProcessingStatus["480p"] != store.StateFailed {
		t.Errorf("Expected 480p marked failed, got %s", rec.ProcessingStatus["480p"])
	}
	if len(f.producer.msgs) != 0 {
		t.Error("Expected no merge after encoder failure")
	}
}

func TestHandleChunkTransientFailureRedelivers(t *testing.T) {
	f := newFixture(t, nil, []string{"480p"})
	f.processor.chunkErr = errors.New("download chunk 0: connection reset")

	raw := encode(t, task.NewChunk("v1", "p1", "480p", 0, "p1/v1/source/chunk_000.mp4"))
	if got := f.router.Handle(context.Background(), raw); got != broker.Redeliver {
		t.Errorf("Expected redelivery on transient failure, got %v", got)
	}

	rec, _ := f.videos.Get(context.Background(), "v1", "p1")
	if rec.ProcessingStatus["480p"] == store.StateFailed {
		t.Error("Expected transient failure not to mark the resolution failed")
	}
}

func TestHandleChunkCancelledCommits(t *testing.T) {
	f := newFixture(t, nil, []string{"480p"})
	f.processor.chunkErr = cancel.ErrCancelled

	raw := encode(t, task.NewChunk("v1", "p1", "480p", 0, "p1/v1/source/chunk_000.mp4"))
	if got := f.router.Handle(context.Background(), raw); got != broker.Commit {
		t.Errorf("Expected cancelled chunk committed, got %v", got)
	}
	if len(f.producer.msgs) != 0 {
		t.Error("Expected no merge after cancelled chunk")
	}
}

func TestHandleMergeRunsFinalize(t *testing.T) {
	f := newFixture(t, nil, []string{"480p"})

	raw := encode(t, task.NewMerge("v1", "p1", "480p"))
	if got := f.router.Handle(context.Background(), raw); got != broker.Commit {
		t.Errorf("Expected merge committed, got %v", got)
	}
	if f.processor.mergeCalls != 1 {
		t.Errorf("Expected 1 merge call, got %d", f.processor.mergeCalls)
	}
	if f.processor.finalizeCalls != 1 {
		t.Errorf("Expected 1 finalize call, got %d", f.processor.finalizeCalls)
	}
}

func TestHandleMergeFailureRedelivers(t *testing.T) {
	f := newFixture(t, nil, []string{"480p"})
	f.processor.mergeErr = errors.New("upload failed")

	raw := encode(t, task.NewMerge("v1", "p1", "480p"))
	if got := f.router.Handle(context.Background(), raw); got != broker.Redeliver {
		t.Errorf("Expected redelivery on merge failure, got %v", got)
	}
	if f.processor.finalizeCalls != 0 {
		t.Error("Expected no finalize after failed merge")
	}
}

func TestHandleMergeCancelledCommits(t *testing.T) {
	f := newFixture(t, nil, []string{"480p"})
	f.processor.mergeErr = cancel.ErrCancelled

	raw := encode(t, task.NewMerge("v1", "p1", "480p"))
	if got := f.router.Handle(context.Background(), raw); got != broker.Commit {
		t.Errorf("Expected cancelled merge committed, got %v", got)
	}
}

func TestHandleFinalizeFailureRedelivers(t *testing.T) {
	f := newFixture(t, nil, []string{"480p"})
	f.processor.finalizeErr = errors.New("store unavailable")

	raw := encode(t, task.NewMerge("v1", "p1", "480p"))
	if got := f.router.Handle(context.Background(), raw); got != broker.Redeliver {
		t.Errorf("Expected redelivery on finalize failure, got %v", got)
	}
}
