package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Memory is an in-process VideoStore for tests and single-node
// development. Increment and finalize hold the store lock for the whole
// update, giving the same atomicity the Mongo operators provide.
type Memory struct {
	mu   sync.Mutex
	recs map[string]*VideoRecord
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{recs: make(map[string]*VideoRecord)}
}

func memKey(videoID, projectID string) string {
	return projectID + "/" + videoID
}

// Create inserts a new record.
func (m *Memory) Create(_ context.Context, rec *VideoRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := memKey(rec.VideoID, rec.ProjectID)
	if _, ok := m.recs[k]; ok {
		return fmt.Errorf("video %s already exists", rec.VideoID)
	}
	cp := *rec
	m.recs[k] = &cp
	return nil
}

// Get returns a copy of the record for the key, or ErrNotFound.
func (m *Memory) Get(_ context.Context, videoID, projectID string) (*VideoRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[memKey(videoID, projectID)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	cp.Chunks = append([]Chunk(nil), rec.Chunks...)
	cp.ProcessedChunks = copyIntMap(rec.ProcessedChunks)
	cp.ProcessingStatus = copyStateMap(rec.ProcessingStatus)
	cp.AvailableResolutions = append([]string(nil), rec.AvailableResolutions...)
	return &cp, nil
}

// SetChunkInventory writes the inventory and zeroed counters in one step.
func (m *Memory) SetChunkInventory(_ context.Context, videoID, projectID string, chunks []Chunk, resolutions []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[memKey(videoID, projectID)]
	if !ok {
		return ErrNotFound
	}
	rec.TotalChunks = len(chunks)
	rec.Chunks = append([]Chunk(nil), chunks...)
	rec.ProcessedChunks = make(map[string]int, len(resolutions))
	rec.ProcessingStatus = make(map[string]State, len(resolutions))
	for _, r := range resolutions {
		rec.ProcessedChunks[r] = 0
		rec.ProcessingStatus[r] = StateQueued
	}
	return nil
}

// IncProcessedChunks atomically adds 1 to processedChunks[res]. The
// counter is capped at totalChunks; a redelivered chunk no-ops.
func (m *Memory) IncProcessedChunks(_ context.Context, videoID, projectID, res string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[memKey(videoID, projectID)]
	if !ok {
		return ErrNotFound
	}
	if rec.ProcessedChunks == nil {
		rec.ProcessedChunks = make(map[string]int)
	}
	if rec.ProcessedChunks[res] >= rec.TotalChunks {
		return nil
	}
	rec.ProcessedChunks[res]++
	return nil
}

// MarkResolutionProcessing flips processingStatus[res] from queued to
// processing; any other current state is left untouched.
func (m *Memory) MarkResolutionProcessing(_ context.Context, videoID, projectID, res string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[memKey(videoID, projectID)]
	if !ok {
		return ErrNotFound
	}
	if rec.ProcessingStatus[res] == StateQueued {
		rec.ProcessingStatus[res] = StateProcessing
	}
	return nil
}

// SetResolutionStatus updates processingStatus[res].
func (m *Memory) SetResolutionStatus(_ context.Context, videoID, projectID, res string, s State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[memKey(videoID, projectID)]
	if !ok {
		return ErrNotFound
	}
	if rec.ProcessingStatus == nil {
		rec.ProcessingStatus = make(map[string]State)
	}
	rec.ProcessingStatus[res] = s
	return nil
}

// FinalizeMaster records a finalize pass in one step.
func (m *Memory) FinalizeMaster(_ context.Context, videoID, projectID, masterPath string, available []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[memKey(videoID, projectID)]
	if !ok {
		return ErrNotFound
	}
	rec.AvailableResolutions = append([]string(nil), available...)
	rec.MasterPlaylistPath = masterPath
	rec.IsPlayable = true
	rec.Converted = true
	rec.MasterPlaylistVersion++
	return nil
}

// FindRecentUpload returns the newest matching record uploaded at or
// after since.
func (m *Memory) FindRecentUpload(_ context.Context, projectID, fileName string, fileSize int64, since time.Time) (*VideoRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var newest *VideoRecord
	for _, rec := range m.recs {
		if rec.ProjectID != projectID || rec.FileName != fileName || rec.FileSize != fileSize {
			continue
		}
		if rec.UploadTime.Before(since) {
			continue
		}
		if newest == nil || rec.UploadTime.After(newest.UploadTime) {
			newest = rec
		}
	}
	if newest == nil {
		return nil, ErrNotFound
	}
	cp := *newest
	return &cp, nil
}

func copyIntMap(in map[string]int) map[string]int {
	if in == nil {
		return nil
	}
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyStateMap(in map[string]State) map[string]State {
	if in == nil {
		return nil
	}
	out := make(map[string]State, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
