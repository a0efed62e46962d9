package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stream-pipeline/internal/cancel"
	"stream-pipeline/internal/dedup"
	"stream-pipeline/internal/logging"
	"stream-pipeline/internal/middleware"
	"stream-pipeline/internal/store"
)

// StatsFunc reports the active consumer topology's stats; the payload
// shape depends on which pool manager is running.
type StatsFunc func(ctx context.Context) (interface{}, error)

// Server is the admin HTTP surface.
type Server struct {
	jobs        *cancel.Registry
	uploads     *dedup.Registry
	intake      *dedup.Intake
	videos      store.VideoStore
	resolutions []string
	stats       StatsFunc
	srv         *http.Server
}

// New builds the admin server on the given port. resolutions is the
// ladder applied to submissions that do not name their own.
func New(port string, jobs *cancel.Registry, uploads *dedup.Registry, intake *dedup.Intake, videos store.VideoStore, resolutions []string, stats StatsFunc) *Server {
	s := &Server{
		jobs:        jobs,
		uploads:     uploads,
		intake:      intake,
		videos:      videos,
		resolutions: resolutions,
		stats:       stats,
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.HealthCheck).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	r.HandleFunc("/videos", s.SubmitVideo).Methods("POST")
	r.HandleFunc("/videos/{videoID}", s.VideoStatus).Methods("GET")
	r.HandleFunc("/admin/videos/{videoID}/cancel", s.CancelVideo).Methods("POST")
	r.HandleFunc("/admin/stats", s.Stats).Methods("GET")
	r.HandleFunc("/admin/dedup", s.DedupStats).Methods("GET")

	s.srv = &http.Server{
		Addr:         ":" + port,
		Handler:      middleware.Logger(r),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// ListenAndServe blocks serving the admin surface.
func (s *Server) ListenAndServe() error {
	logging.Info("Admin server listening on %s", s.srv.Addr)
	return s.srv.ListenAndServe()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// HealthResponse is the /healthz payload.
type HealthResponse struct {
	Status       string `json:"status"`
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`
}

// HealthCheck reports liveness.
func (s *Server) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:       "healthy",
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),
	})
}

// SubmitRequest describes an uploaded source file whose bytes already
// sit at SourcePath in blob storage.
type SubmitRequest struct {
	ProjectID   string   `json:"projectId"`
	FileName    string   `json:"fileName"`
	FileSize    int64    `json:"fileSize"`
	SourcePath  string   `json:"sourcePath"`
	Resolutions []string `json:"resolutions,omitempty"`
}

// SubmitVideo starts the pipeline for an uploaded source file. A
// duplicate submission returns the existing videoID with 200 instead
// of queueing new work.
func (s *Server) SubmitVideo(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ProjectID == "" || req.FileName == "" || req.SourcePath == "" || req.FileSize <= 0 {
		http.Error(w, "projectId, fileName, fileSize and sourcePath are required", http.StatusBadRequest)
		return
	}
	resolutions := req.Resolutions
	if len(resolutions) == 0 {
		resolutions = s.resolutions
	}

	videoID, duplicate, err := s.intake.Accept(r.Context(), req.ProjectID, req.FileName, req.FileSize, req.SourcePath, resolutions)
	if err != nil {
		logging.Error("Submission failed for %s/%s: %v", req.ProjectID, req.FileName, err)
		http.Error(w, "submission failed", http.StatusInternalServerError)
		return
	}

	status := http.StatusAccepted
	if duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]interface{}{
		"videoId":   videoID,
		"duplicate": duplicate,
	})
}

// VideoStatus returns the stored record for a video. Records are keyed
// by (videoID, projectID) so the project must be named on the query.
func (s *Server) VideoStatus(w http.ResponseWriter, r *http.Request) {
	videoID := mux.Vars(r)["videoID"]
	projectID := r.URL.Query().Get("projectId")
	if projectID == "" {
		http.Error(w, "projectId query parameter is required", http.StatusBadRequest)
		return
	}
	rec, err := s.videos.Get(r.Context(), videoID, projectID)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "video not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logging.Error("Status lookup failed for %s: %v", videoID, err)
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// CancelVideo requests cancellation of all processing for a video. The
// cancel flag short-circuits pending tasks and any live encoder
// subprocess for the job is killed immediately.
func (s *Server) CancelVideo(w http.ResponseWriter, r *http.Request) {
	videoID := mux.Vars(r)["videoID"]
	if videoID == "" {
		http.Error(w, "missing videoID", http.StatusBadRequest)
		return
	}
	s.jobs.Cancel(videoID)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"videoID": videoID,
		"status":  "cancellation requested",
	})
}

// Stats reports the active consumer topology's metrics.
func (s *Server) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.stats(r.Context())
	if err != nil {
		logging.Error("Stats query failed: %v", err)
		http.Error(w, "stats unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// DedupStats reports the in-flight upload registry.
func (s *Server) DedupStats(w http.ResponseWriter, _ *http.Request) {
	entries := s.uploads.Stats()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"inFlightCount": len(entries),
		"uploads":       entries,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("Failed to encode response: %v", err)
	}
}
