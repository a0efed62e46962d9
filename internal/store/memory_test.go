package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestRecord() *VideoRecord {
	return &VideoRecord{
		VideoID:     "v1",
		ProjectID:   "p1",
		FileName:    "movie.mp4",
		FilePath:    "p1/v1/source.mp4",
		FileSize:    1024,
		UploadTime:  time.Now(),
		Resolutions: []string{"480p", "720p"},
	}
}

func TestMemoryCreateAndGet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if err := m.Create(ctx, newTestRecord()); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := m.Create(ctx, newTestRecord()); err == nil {
		t.Error("Expected error creating duplicate record")
	}

	rec, err := m.Get(ctx, "v1", "p1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if rec.FileName != "movie.mp4" {
		t.Errorf("Expected FileName=movie.mp4, got %s", rec.FileName)
	}

	if _, err := m.Get(ctx, "missing", "p1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := m.Get(ctx, "v1", "other-project"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for wrong project, got %v", err)
	}
}

func TestMemoryGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if err := m.Create(ctx, newTestRecord()); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := m.SetChunkInventory(ctx, "v1", "p1", []Chunk{{Index: 0}}, []string{"480p"}); err != nil {
		t.Fatalf("SetChunkInventory failed: %v", err)
	}

	rec, _ := m.Get(ctx, "v1", "p1")
	rec.ProcessedChunks["480p"] = 99
	rec.Chunks[0].Index = 42

	again, _ := m.Get(ctx, "v1", "p1")
	if again.ProcessedChunks["480p"] != 0 {
		t.Errorf("Expected stored counter untouched, got %d", again.ProcessedChunks["480p"])
	}
	if again.Chunks[0].Index != 0 {
		t.Errorf("Expected stored chunk untouched, got index %d", again.Chunks[0].Index)
	}
}

func TestMemoryChunkInventory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if err := m.Create(ctx, newTestRecord()); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	chunks := []Chunk{
		{Index: 0, StartTime: 0, EndTime: 60, StoragePath: "p1/v1/source/chunk_000.mp4"},
		{Index: 1, StartTime: 60, EndTime: 120, StoragePath: "p1/v1/source/chunk_001.mp4"},
	}
	if err := m.SetChunkInventory(ctx, "v1", "p1", chunks, []string{"480p", "720p"}); err != nil {
		t.Fatalf("SetChunkInventory failed: %v", err)
	}

	rec, _ := m.Get(ctx, "v1", "p1")
	if rec.TotalChunks != 2 {
		t.Errorf("Expected TotalChunks=2, got %d", rec.TotalChunks)
	}
	if len(rec.Chunks) != 2 {
		t.Errorf("Expected 2 chunks, got %d", len(rec.Chunks))
	}
	for _, res := range []string{"480p", "720p"} {
		if got, ok := rec.ProcessedChunks[res]; !ok || got != 0 {
			t.Errorf("Expected zeroed counter for %s, got %d (present=%v)", res, got, ok)
		}
		if rec.ProcessingStatus[res] != StateQueued {
			t.Errorf("Expected %s queued, got %s", res, rec.ProcessingStatus[res])
		}
	}
}

func TestMemoryIncProcessedChunks(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if err := m.Create(ctx, newTestRecord()); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := m.SetChunkInventory(ctx, "v1", "p1", []Chunk{{Index: 0}, {Index: 1}, {Index: 2}}, []string{"480p"}); err != nil {
		t.Fatalf("SetChunkInventory failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := m.IncProcessedChunks(ctx, "v1", "p1", "480p"); err != nil {
			t.Fatalf("IncProcessedChunks failed: %v", err)
		}
		rec, _ := m.Get(ctx, "v1", "p1")
		if rec.ProcessedChunks["480p"] != i+1 {
			t.Errorf("Expected counter=%d after %d increments, got %d", i+1, i+1, rec.ProcessedChunks["480p"])
		}
	}

	if err := m.IncProcessedChunks(ctx, "missing", "p1", "480p"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestMemoryIncProcessedChunksCappedAtTotal(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if err := m.Create(ctx, newTestRecord()); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := m.SetChunkInventory(ctx, "v1", "p1", []Chunk{{Index: 0}, {Index: 1}}, []string{"480p"}); err != nil {
		t.Fatalf("SetChunkInventory failed: %v", err)
	}

	// One chunk is redelivered, so the increment arrives three times
	// for two chunks. The counter must never exceed the total.
	for i := 0; i < 3; i++ {
		if err := m.IncProcessedChunks(ctx, "v1", "p1", "480p"); err != nil {
			t.Fatalf("IncProcessedChunks failed: %v", err)
		}
	}
	rec, _ := m.Get(ctx, "v1", "p1")
	if rec.ProcessedChunks["480p"] != 2 {
		t.Errorf("Expected counter capped at totalChunks=2, got %d", rec.ProcessedChunks["480p"])
	}
}

func TestMemoryMarkResolutionProcessing(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if err := m.Create(ctx, newTestRecord()); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := m.SetChunkInventory(ctx, "v1", "p1", []Chunk{{Index: 0}}, []string{"480p"}); err != nil {
		t.Fatalf("SetChunkInventory failed: %v", err)
	}

	if err := m.MarkResolutionProcessing(ctx, "v1", "p1", "480p"); err != nil {
		t.Fatalf("MarkResolutionProcessing failed: %v", err)
	}
	rec, _ := m.Get(ctx, "v1", "p1")
	if rec.ProcessingStatus["480p"] != StateProcessing {
		t.Errorf("Expected 480p processing, got %s", rec.ProcessingStatus["480p"])
	}

	// A redelivered chunk must not knock a terminal state back.
	if err := m.SetResolutionStatus(ctx, "v1", "p1", "480p", StateCompleted); err != nil {
		t.Fatalf("SetResolutionStatus failed: %v", err)
	}
	if err := m.MarkResolutionProcessing(ctx, "v1", "p1", "480p"); err != nil {
		t.Fatalf("MarkResolutionProcessing failed: %v", err)
	}
	rec, _ = m.Get(ctx, "v1", "p1")
	if rec.ProcessingStatus["480p"] != StateCompleted {
		t.Errorf("Expected 480p still completed, got %s", rec.ProcessingStatus["480p"])
	}

	if err := m.MarkResolutionProcessing(ctx, "missing", "p1", "480p"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestMemoryFinalizeMaster(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if err := m.Create(ctx, newTestRecord()); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := m.FinalizeMaster(ctx, "v1", "p1", "p1/v1/master.m3u8", []string{"480p"}); err != nil {
		t.Fatalf("FinalizeMaster failed: %v", err)
	}
	rec, _ := m.Get(ctx, "v1", "p1")
	if !rec.IsPlayable || !rec.Converted {
		t.Error("Expected record playable and converted after finalize")
	}
	if rec.MasterPlaylistPath != "p1/v1/master.m3u8" {
		t.Errorf("Expected master path recorded, got %s", rec.MasterPlaylistPath)
	}
	if rec.MasterPlaylistVersion != 1 {
		t.Errorf("Expected version=1, got %d", rec.MasterPlaylistVersion)
	}

	// A later finalize with more resolutions bumps the version again.
	if err := m.FinalizeMaster(ctx, "v1", "p1", "p1/v1/master.m3u8", []string{"480p", "720p"}); err != nil {
		t.Fatalf("Second FinalizeMaster failed: %v", err)
	}
	rec, _ = m.Get(ctx, "v1", "p1")
	if rec.MasterPlaylistVersion != 2 {
		t.Errorf("Expected version=2, got %d", rec.MasterPlaylistVersion)
	}
	if len(rec.AvailableResolutions) != 2 {
		t.Errorf("Expected 2 available resolutions, got %d", len(rec.AvailableResolutions))
	}
}

func TestMemoryFindRecentUpload(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	old := newTestRecord()
	old.VideoID = "old"
	old.UploadTime = time.Now().Add(-2 * time.Hour)
	if err := m.Create(ctx, old); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	recent := newTestRecord()
	recent.VideoID = "recent"
	recent.UploadTime = time.Now().Add(-5 * time.Minute)
	if err := m.Create(ctx, recent); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := m.FindRecentUpload(ctx, "p1", "movie.mp4", 1024, time.Now().Add(-30*time.Minute))
	if err != nil {
		t.Fatalf("FindRecentUpload failed: %v", err)
	}
	if got.VideoID != "recent" {
		t.Errorf("Expected newest matching record, got %s", got.VideoID)
	}

	// Outside the window only the old record matches, and it is too old.
	if _, err := m.FindRecentUpload(ctx, "p1", "movie.mp4", 1024, time.Now().Add(-time.Minute)); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for stale uploads, got %v", err)
	}
	// Different fingerprint fields never match.
	if _, err := m.FindRecentUpload(ctx, "p1", "movie.mp4", 2048, time.Now().Add(-30*time.Minute)); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for different size, got %v", err)
	}
}

func TestMemorySetResolutionStatus(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if err := m.Create(ctx, newTestRecord()); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := m.SetResolutionStatus(ctx, "v1", "p1", "720p", StateFailed); err != nil {
		t.Fatalf("SetResolutionStatus failed: %v", err)
	}
	rec, _ := m.Get(ctx, "v1", "p1")
	if rec.ProcessingStatus["720p"] != StateFailed {
		t.Errorf("Expected 720p failed, got %s", rec.ProcessingStatus["720p"])
	}
}
