package dedup

import (
	"context"
	"errors"
	"testing"
	"time"

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

func TestIntakeAcceptNewUpload(t *testing.T) {
	ctx := context.Background()
	videos := store.NewMemory()
	reg := NewRegistry(videos, 30*time.Minute)
	defer reg.Close()
	prod := &fakeProducer{}
	in := NewIntake(reg, videos, prod, "video-tasks")

	videoID, dup, err := in.Accept(ctx, "p1", "movie.mp4", 1024, "p1/raw/movie.mp4", []string{"480p", "720p"})
	if err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	if dup {
		t.Error("Expected first upload not to be a duplicate")
	}
	if videoID == "" {
		t.Fatal("Expected a videoID")
	}

	rec, err := videos.Get(ctx, videoID, "p1")
	if err != nil {
		t.Fatalf("Expected record created: %v", err)
	}
	if rec.FileName != "movie.mp4" || rec.FileSize != 1024 {
		t.Errorf("Record fields wrong: %+v", rec)
	}

	if len(prod.msgs) != 1 {
		t.Fatalf("Expected 1 enqueued task, got %d", len(prod.msgs))
	}
	if prod.msgs[0].topic != "video-tasks" {
		t.Errorf("Expected topic video-tasks, got %s", prod.msgs[0].topic)
	}
	tk, err := task.Decode(prod.msgs[0].value)
	if err != nil {
		t.Fatalf("Enqueued task does not decode: %v", err)
	}
	if tk.Kind != task.TypeSplitVideo {
		t.Errorf("Expected SPLIT_VIDEO, got %s", tk.Kind)
	}
	if tk.Split.FilePath != "p1/raw/movie.mp4" {
		t.Errorf("Expected source path forwarded, got %s", tk.Split.FilePath)
	}
	if len(tk.Split.Resolutions) != 2 {
		t.Errorf("Expected 2 resolutions, got %d", len(tk.Split.Resolutions))
	}

	// The in-flight entry is released once the task is queued; the
	// stored record takes over duplicate suppression.
	if got := len(reg.Stats()); got != 0 {
		t.Errorf("Expected no in-flight entry after successful accept, got %d", got)
	}
}

func TestIntakeAcceptDuplicate(t *testing.T) {
	ctx := context.Background()
	videos := store.NewMemory()
	reg := NewRegistry(videos, 30*time.Minute)
	defer reg.Close()
	prod := &fakeProducer{}
	in := NewIntake(reg, videos, prod, "video-tasks")

	first, _, err := in.Accept(ctx, "p1", "movie.mp4", 1024, "p1/raw/movie.mp4", []string{"480p"})
	if err != nil {
		t.Fatalf("Accept failed: %v", err)
	}

	second, dup, err := in.Accept(ctx, "p1", "movie.mp4", 1024, "p1/raw/movie.mp4", []string{"480p"})
	if err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	if !dup {
		t.Error("Expected second upload flagged as duplicate")
	}
	if second != first {
		t.Errorf("Expected existing videoID %s, got %s", first, second)
	}
	if len(prod.msgs) != 1 {
		t.Errorf("Expected no new task for duplicate, got %d total", len(prod.msgs))
	}
}

func TestIntakeAcceptEnqueueFailure(t *testing.T) {
	ctx := context.Background()
	videos := store.NewMemory()
	reg := NewRegistry(videos, 30*time.Minute)
	defer reg.Close()
	prod := &fakeProducer{err: errors.New("broker down")}
	in := NewIntake(reg, videos, prod, "video-tasks")

	if _, _, err := in.Accept(ctx, "p1", "movie.mp4", 1024, "p1/raw/movie.mp4", []string{"480p"}); err == nil {
		t.Fatal("Expected error when enqueue fails")
	}

	// The in-flight entry is released on failure.
	if got := len(reg.Stats()); got != 0 {
		t.Errorf("Expected failed intake not to leave an in-flight entry, got %d", got)
	}
}
