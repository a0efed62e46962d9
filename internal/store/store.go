package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no record matches the (videoID, projectID) key.
var ErrNotFound = errors.New("video record not found")

// State is the processing state of one resolution.
type State string

const (
	// StateQueued means no chunk for the resolution has started yet.
	StateQueued State = "queued"
	// StateProcessing means at least one chunk is being transcoded.
	StateProcessing State = "processing"
	// StateCompleted means the resolution playlist has been assembled.
	StateCompleted State = "completed"
	// StateFailed means a chunk transcode failed for the resolution.
	StateFailed State = "failed"
)

// Chunk is one fixed-duration slice of the source video. The inventory
// is written once by the splitter and immutable thereafter.
type Chunk struct {
	Index       int     `bson:"index" json:"index"`
	StartTime   float64 `bson:"startTime" json:"startTime"`
	EndTime     float64 `bson:"endTime" json:"endTime"`
	StoragePath string  `bson:"storagePath" json:"storagePath"`
}

// VideoRecord is the durable record for one uploaded video.
type VideoRecord struct {
	VideoID   string `bson:"videoID" json:"videoID"`
	ProjectID string `bson:"projectID" json:"projectID"`
	FileName  string `bson:"fileName" json:"fileName"`
	FilePath  string `bson:"filePath" json:"filePath"`
	FileSize  int64  `bson:"fileSize" json:"fileSize"`

	UploadTime  time.Time `bson:"uploadTime" json:"uploadTime"`
	Resolutions []string  `bson:"resolutions" json:"resolutions"`

	TotalChunks      int              `bson:"totalChunks" json:"totalChunks"`
	Chunks           []Chunk          `bson:"chunks" json:"chunks"`
	ProcessedChunks  map[string]int   `bson:"processedChunks" json:"processedChunks"`
	ProcessingStatus map[string]State `bson:"processingStatus" json:"processingStatus"`

	AvailableResolutions  []string `bson:"availableResolutions" json:"availableResolutions"`
	MasterPlaylistPath    string   `bson:"masterFilePath" json:"masterFilePath"`
	MasterPlaylistVersion int      `bson:"masterPlaylistVersion" json:"masterPlaylistVersion"`
	IsPlayable            bool     `bson:"isPlayable" json:"isPlayable"`
	Converted             bool     `bson:"converted" json:"converted"`
}

// VideoStore is the collaborator interface to the video record store.
// All operations are keyed by (videoID, projectID); no multi-document
// transactions are required.
type VideoStore interface {
	// Create inserts a new record.
	Create(ctx context.Context, rec *VideoRecord) error

	// Get returns the record for the key, or ErrNotFound.
	Get(ctx context.Context, videoID, projectID string) (*VideoRecord, error)

	// SetChunkInventory writes totalChunks, the chunk list and zeroed
	// per-resolution counters in a single update, so chunks never exist
	// without their counters.
	SetChunkInventory(ctx context.Context, videoID, projectID string, chunks []Chunk, resolutions []string) error

	// IncProcessedChunks adds 1 to processedChunks[res] as a single
	// conditional update: the increment only applies while the counter
	// is below totalChunks, so redelivered chunks never overshoot the
	// total. The caller re-reads the record to evaluate the merge
	// trigger.
	IncProcessedChunks(ctx context.Context, videoID, projectID, res string) error

	// MarkResolutionProcessing transitions processingStatus[res] from
	// queued to processing. Any other current state is left untouched.
	MarkResolutionProcessing(ctx context.Context, videoID, projectID, res string) error

	// SetResolutionStatus updates processingStatus[res].
	SetResolutionStatus(ctx context.Context, videoID, projectID, res string, s State) error

	// FinalizeMaster records a finalize pass: availableResolutions,
	// masterPlaylistPath, isPlayable=true, converted=true and a
	// masterPlaylistVersion increment, all in one update.
	FinalizeMaster(ctx context.Context, videoID, projectID, masterPath string, available []string) error

	// FindRecentUpload returns the newest record matching the upload
	// fingerprint with uploadTime at or after the cutoff, or ErrNotFound.
	FindRecentUpload(ctx context.Context, projectID, fileName string, fileSize int64, since time.Time) (*VideoRecord, error)
}
