package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"stream-pipeline/internal/logging"
	"stream-pipeline/internal/metrics"
	"stream-pipeline/internal/store"
)

const sweepInterval = 5 * time.Minute

// entry tracks one in-flight upload.
type entry struct {
	videoID      string
	fileName     string
	registeredAt time.Time
}

// Registry maps upload fingerprints to in-flight videoIDs with
// TTL-based expiry.
type Registry struct {
	videos store.VideoStore
	ttl    time.Duration

	mu       sync.Mutex
	inFlight map[string]entry

	stop chan struct{}
	once sync.Once
}

// NewRegistry returns a registry with the given TTL and starts the
// background staleness sweep.
func NewRegistry(videos store.VideoStore, ttl time.Duration) *Registry {
	r := &Registry{
		videos:   videos,
		ttl:      ttl,
		inFlight: make(map[string]entry),
		stop:     make(chan struct{}),
	}
	go r.sweepLoop()
	return r
}

// fingerprint hashes the identity of an upload.
func fingerprint(projectID, fileName string, fileSize int64) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s:%s:%d", projectID, fileName, fileSize))
	return hex.EncodeToString(sum[:])
}

// CheckDuplicate returns the videoID of an in-flight or recently
// completed upload with the same fingerprint, if one exists.
func (r *Registry) CheckDuplicate(ctx context.Context, projectID, fileName string, fileSize int64) (string, bool, error) {
	key := fingerprint(projectID, fileName, fileSize)

	r.mu.Lock()
	e, ok := r.inFlight[key]
	r.mu.Unlock()
	if ok {
		logging.Warn("Duplicate upload (in-flight): %s for project %s -> %s", fileName, projectID, e.videoID)
		metrics.DedupHitsTotal.Inc()
		return e.videoID, true, nil
	}

	// Fall back to recent uploads that finished on another instance.
	rec, err := r.videos.FindRecentUpload(ctx, projectID, fileName, fileSize, time.Now().Add(-r.ttl))
	if errors.Is(err, store.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("recent-upload lookup: %w", err)
	}
	logging.Warn("Duplicate upload (recent): %s for project %s -> %s", fileName, projectID, rec.VideoID)
	metrics.DedupHitsTotal.Inc()
	return rec.VideoID, true, nil
}

// Register records an upload as in-progress.
func (r *Registry) Register(projectID, fileName string, fileSize int64, videoID string) {
	key := fingerprint(projectID, fileName, fileSize)
	r.mu.Lock()
	r.inFlight[key] = entry{videoID: videoID, fileName: fileName, registeredAt: time.Now()}
	size := len(r.inFlight)
	r.mu.Unlock()
	metrics.DedupInFlight.Set(float64(size))
	logging.Info("Registered in-flight upload: %s (%s) for project %s", fileName, videoID, projectID)
}

// Complete removes a finished upload from tracking.
func (r *Registry) Complete(projectID, fileName string, fileSize int64) {
	r.remove(projectID, fileName, fileSize, "completed")
}

// Fail removes a failed upload from tracking so a retry is not
// suppressed.
func (r *Registry) Fail(projectID, fileName string, fileSize int64) {
	r.remove(projectID, fileName, fileSize, "failed")
}

func (r *Registry) remove(projectID, fileName string, fileSize int64, reason string) {
	key := fingerprint(projectID, fileName, fileSize)
	r.mu.Lock()
	_, ok := r.inFlight[key]
	delete(r.inFlight, key)
	size := len(r.inFlight)
	r.mu.Unlock()
	metrics.DedupInFlight.Set(float64(size))
	if ok {
		logging.Info("Upload %s: %s for project %s", reason, fileName, projectID)
	}
}

// EntryStat describes one tracked upload for the stats surface.
type EntryStat struct {
	VideoID    string `json:"videoID"`
	FileName   string `json:"fileName"`
	AgeSeconds int64  `json:"ageSeconds"`
}

// Stats returns the in-flight count and per-entry ages.
func (r *Registry) Stats() []EntryStat {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EntryStat, 0, len(r.inFlight))
	for _, e := range r.inFlight {
		out = append(out, EntryStat{
			VideoID:    e.videoID,
			FileName:   e.fileName,
			AgeSeconds: int64(time.Since(e.registeredAt).Seconds()),
		})
	}
	return out
}

// Close stops the background sweep.
func (r *Registry) Close() {
	r.once.Do(func() { close(r.stop) })
}

func (r *Registry) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.sweep()
		case <-r.stop:
			return
		}
	}
}

// sweep drops entries older than the TTL. A stale entry means the
// upload path crashed between Register and Complete/Fail.
func (r *Registry) sweep() {
	now := time.Now()
	r.mu.Lock()
	var cleaned int
	for key, e := range r.inFlight {
		if now.Sub(e.registeredAt) > r.ttl {
			delete(r.inFlight, key)
			cleaned++
			logging.Warn("Cleaned up stale in-flight upload: %s (%s)", e.fileName, e.videoID)
		}
	}
	size := len(r.inFlight)
	r.mu.Unlock()
	metrics.DedupInFlight.Set(float64(size))
	if cleaned > 0 {
		logging.Info("Cleaned up %d stale in-flight uploads", cleaned)
	}
}
