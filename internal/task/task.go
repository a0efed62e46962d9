package task

import (
	"encoding/json"
	"fmt"
)

// Type tags a task message on the wire.
type Type string

const (
	// TypeSplitVideo cuts an uploaded source into fixed-duration chunks.
	TypeSplitVideo Type = "SPLIT_VIDEO"
	// TypeProcessChunk transcodes one chunk to one resolution.
	TypeProcessChunk Type = "PROCESS_CHUNK"
	// TypeMergeResolution assembles the playlist for a completed resolution.
	TypeMergeResolution Type = "MERGE_RESOLUTION"
)

// SplitVideo is the payload for TypeSplitVideo.
type SplitVideo struct {
	VideoID     string   `json:"videoID"`
	ProjectID   string   `json:"projectID"`
	FilePath    string   `json:"filePath"`
	Resolutions []string `json:"resolutions"`
}

// ProcessChunk is the payload for TypeProcessChunk.
type ProcessChunk struct {
	VideoID    string `json:"videoID"`
	ProjectID  string `json:"projectID"`
	Resolution string `json:"resolution"`
	ChunkIndex int    `json:"chunkIndex"`
	ChunkPath  string `json:"chunkPath"`
}

// MergeResolution is the payload for TypeMergeResolution.
type MergeResolution struct {
	VideoID    string `json:"videoID"`
	ProjectID  string `json:"projectID"`
	Resolution string `json:"resolution"`
}

// Task is the decoded form of one broker message. Exactly one of the
// payload fields is non-nil, matching Kind.
type Task struct {
	Kind  Type
	Split *SplitVideo
	Chunk *ProcessChunk
	Merge *MergeResolution
}

// VideoID returns the video the task operates on. A task never carries
// authority beyond this scope.
func (t *Task) VideoID() string {
	switch t.Kind {
	case TypeSplitVideo:
		return t.Split.VideoID
	case TypeProcessChunk:
		return t.Chunk.VideoID
	case TypeMergeResolution:
		return t.Merge.VideoID
	}
	return ""
}

// envelope is the wire shape: a type tag plus the union of all payload
// fields. Decode validates per-kind requirements after unmarshalling.
type envelope struct {
	Type Type `json:"type"`

	VideoID     string   `json:"videoID"`
	ProjectID   string   `json:"projectID"`
	FilePath    string   `json:"filePath,omitempty"`
	Resolutions []string `json:"resolutions,omitempty"`
	Resolution  string   `json:"resolution,omitempty"`
	ChunkIndex  int      `json:"chunkIndex,omitempty"`
	ChunkPath   string   `json:"chunkPath,omitempty"`
}

// Decode parses a raw broker message into a Task. It returns an error
// for unknown types or payloads missing required fields; callers treat
// such messages as malformed and drop them.
func Decode(raw []byte) (*Task, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("unmarshal task: %w", err)
	}

	if env.VideoID == "" || env.ProjectID == "" {
		return nil, fmt.Errorf("task %q missing videoID/projectID", env.Type)
	}

	switch env.Type {
	case TypeSplitVideo:
		if env.FilePath == "" || len(env.Resolutions) == 0 {
			return nil, fmt.Errorf("SPLIT_VIDEO missing filePath or resolutions")
		}
		return &Task{Kind: TypeSplitVideo, Split: &SplitVideo{
			VideoID:     env.VideoID,
			ProjectID:   env.ProjectID,
			FilePath:    env.FilePath,
			Resolutions: env.Resolutions,
		}}, nil

	case TypeProcessChunk:
		if env.Resolution == "" || env.ChunkPath == "" || env.ChunkIndex < 0 {
			return nil, fmt.Errorf("PROCESS_CHUNK missing resolution/chunkPath or negative index")
		}
		return &Task{Kind: TypeProcessChunk, Chunk: &ProcessChunk{
			VideoID:    env.VideoID,
			ProjectID:  env.ProjectID,
			Resolution: env.Resolution,
			ChunkIndex: env.ChunkIndex,
			ChunkPath:  env.ChunkPath,
		}}, nil

	case TypeMergeResolution:
		if env.Resolution == "" {
			return nil, fmt.Errorf("MERGE_RESOLUTION missing resolution")
		}
		return &Task{Kind: TypeMergeResolution, Merge: &MergeResolution{
			VideoID:    env.VideoID,
			ProjectID:  env.ProjectID,
			Resolution: env.Resolution,
		}}, nil

	default:
		return nil, fmt.Errorf("unknown task type %q", env.Type)
	}
}

// Encode serializes a Task for the broker.
func Encode(t *Task) ([]byte, error) {
	env := envelope{Type: t.Kind}
	switch t.Kind {
	case TypeSplitVideo:
		env.VideoID = t.Split.VideoID
		env.ProjectID = t.Split.ProjectID
		env.FilePath = t.Split.FilePath
		env.Resolutions = t.Split.Resolutions
	case TypeProcessChunk:
		env.VideoID = t.Chunk.VideoID
		env.ProjectID = t.Chunk.ProjectID
		env.Resolution = t.Chunk.Resolution
		env.ChunkIndex = t.Chunk.ChunkIndex
		env.ChunkPath = t.Chunk.ChunkPath
	case TypeMergeResolution:
		env.VideoID = t.Merge.VideoID
		env.ProjectID = t.Merge.ProjectID
		env.Resolution = t.Merge.Resolution
	default:
		return nil, fmt.Errorf("unknown task type %q", t.Kind)
	}
	return json.Marshal(env)
}

// NewSplit builds a SPLIT_VIDEO task.
func NewSplit(videoID, projectID, filePath string, resolutions []string) *Task {
	return &Task{Kind: TypeSplitVideo, Split: &SplitVideo{
		VideoID:     videoID,
		ProjectID:   projectID,
		FilePath:    filePath,
		Resolutions: resolutions,
	}}
}

// NewChunk builds a PROCESS_CHUNK task.
func NewChunk(videoID, projectID, res string, index int, chunkPath string) *Task {
	return &Task{Kind: TypeProcessChunk, Chunk: &ProcessChunk{
		VideoID:    videoID,
		ProjectID:  projectID,
		Resolution: res,
		ChunkIndex: index,
		ChunkPath:  chunkPath,
	}}
}

// NewMerge builds a MERGE_RESOLUTION task.
func NewMerge(videoID, projectID, res string) *Task {
	return &Task{Kind: TypeMergeResolution, Merge: &MergeResolution{
		VideoID:    videoID,
		ProjectID:  projectID,
		Resolution: res,
	}}
}
