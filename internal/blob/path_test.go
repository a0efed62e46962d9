package blob

import "testing"

func TestBlobPaths(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"source chunk", SourceChunkPath("p1", "v1", 7), "p1/v1/source/chunk_007.mp4"},
		{"source chunk padding", SourceChunkPath("p1", "v1", 123), "p1/v1/source/chunk_123.mp4"},
		{"segment", SegmentPath("p1", "v1", "480p", 0), "p1/v1/480p/segments/segment_0"},
		{"segment high index", SegmentPath("p1", "v1", "1080p", 42), "p1/v1/1080p/segments/segment_42"},
		{"resolution playlist", ResolutionPlaylistPath("p1", "v1", "720p"), "p1/v1/720p/output.m3u8"},
		{"master playlist", MasterPlaylistPath("p1", "v1"), "p1/v1/master.m3u8"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, tt.got)
			}
		})
	}
}
