package processor

import (
	"strings"
	"testing"

	"stream-pipeline/internal/store"
)

func TestBuildResolutionPlaylist(t *testing.T) {
	chunks := []store.Chunk{{Index: 0}, {Index: 1}, {Index: 2}}
	got := buildResolutionPlaylist(chunks, 60)

	want := "#EXTM3U\n" +
		"#EXT-X-VERSION:3\n" +
		"#EXT-X-TARGETDURATION:61\n" +
		"#EXT-X-MEDIA-SEQUENCE:0\n" +
		"#EXT-X-PLAYLIST-TYPE:VOD\n" +
		"#EXTINF:60.000,\n" +
		"segments/segment_0\n" +
		"#EXTINF:60.000,\n" +
		"segments/segment_1\n" +
		"#EXTINF:60.000,\n" +
		"segments/segment_2\n" +
		"#EXT-X-ENDLIST\n"

	if got != want {
		t.Errorf("Playlist mismatch.\nGot:\n%s\nWant:\n%s", got, want)
	}
}

func TestBuildResolutionPlaylistDeterministic(t *testing.T) {
	chunks := []store.Chunk{{Index: 0}, {Index: 1}}
	a := buildResolutionPlaylist(chunks, 60)
	b := buildResolutionPlaylist(chunks, 60)
	if a != b {
		t.Error("Expected identical inputs to render identical playlists")
	}
}

func TestBuildMasterPlaylist(t *testing.T) {
	// Completion order must not leak into the output.
	got := buildMasterPlaylist([]string{"1080p", "240p", "720p"})

	lines := strings.Split(strings.TrimRight(got, "\n"), "\n")
	if lines[0] != "#EXTM3U" {
		t.Errorf("Expected #EXTM3U header, got %s", lines[0])
	}
	want := []string{
		"#EXT-X-STREAM-INF:BANDWIDTH=300000,RESOLUTION=426x240",
		"240p/output.m3u8",
		"#EXT-X-STREAM-INF:BANDWIDTH=900000,RESOLUTION=1280x720",
		"720p/output.m3u8",
		"#EXT-X-STREAM-INF:BANDWIDTH=2500000,RESOLUTION=1920x1080",
		"1080p/output.m3u8",
	}
	if len(lines) != len(want)+1 {
		t.Fatalf("Expected %d lines, got %d:\n%s", len(want)+1, len(lines), got)
	}
	for i, w := range want {
		if lines[i+1] != w {
			t.Errorf("Line %d: expected %q, got %q", i+1, w, lines[i+1])
		}
	}
}

func TestBuildMasterPlaylistEmpty(t *testing.T) {
	got := buildMasterPlaylist(nil)
	if got != "#EXTM3U\n" {
		t.Errorf("Expected bare header, got %q", got)
	}
}
