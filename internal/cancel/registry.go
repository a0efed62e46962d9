package cancel

import (
	"errors"
	"os/exec"
	"sync"

	"stream-pipeline/internal/logging"
	"stream-pipeline/internal/metrics"
)

// ErrCancelled is returned by pipeline steps that were aborted by a
// cancellation request, distinguishing them from genuine failures.
var ErrCancelled = errors.New("job cancelled")

// Registry is a process-wide map of videoID to cancellation state plus
// the live encoder subprocess handles for that job.
type Registry struct {
	mu        sync.Mutex
	cancelled map[string]bool
	procs     map[string][]*exec.Cmd
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		cancelled: make(map[string]bool),
		procs:     make(map[string][]*exec.Cmd),
	}
}

// Cancel marks the video as cancelled and kills every registered
// subprocess for it.
func (r *Registry) Cancel(videoID string) {
	r.mu.Lock()
	r.cancelled[videoID] = true
	procs := append([]*exec.Cmd(nil), r.procs[videoID]...)
	r.mu.Unlock()

	metrics.CancellationsTotal.Inc()
	logging.Info("[%s] Cancellation requested (%d live processes)", videoID, len(procs))

	for _, cmd := range procs {
		if cmd.Process != nil {
			if err := cmd.Process.Kill(); err != nil {
				logging.Warn("[%s] Failed to kill pid %d: %v", videoID, cmd.Process.Pid, err)
			}
		}
	}
}

// IsCancelled reports whether the video has a pending cancellation.
func (r *Registry) IsCancelled(videoID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled[videoID]
}

// RegisterProcess records a live subprocess for the video. If the video
// is already cancelled the process is killed immediately and
// ErrCancelled returned, closing the race between cancel and spawn.
func (r *Registry) RegisterProcess(videoID string, cmd *exec.Cmd) error {
	r.mu.Lock()
	if r.cancelled[videoID] {
		r.mu.Unlock()
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
		return ErrCancelled
	}
	r.procs[videoID] = append(r.procs[videoID], cmd)
	r.mu.Unlock()
	return nil
}

// UnregisterProcess removes a subprocess handle after it exits.
func (r *Registry) UnregisterProcess(videoID string, cmd *exec.Cmd) {
	r.mu.Lock()
	defer r.mu.Unlock()
	live := r.procs[videoID]
	for i, c := range live {
		if c == cmd {
			r.procs[videoID] = append(live[:i], live[i+1:]...)
			break
		}
	}
	if len(r.procs[videoID]) == 0 {
		delete(r.procs, videoID)
	}
}

// Clear removes all state for the video. Called when its processing
// terminates, whether by finalize or by cancellation.
func (r *Registry) Clear(videoID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cancelled, videoID)
	delete(r.procs, videoID)
}

// LiveProcesses returns the number of registered subprocesses for the
// video.
func (r *Registry) LiveProcesses(videoID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.procs[videoID])
}
