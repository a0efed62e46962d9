package processor

import (
	"fmt"
	"strings"

	"stream-pipeline/internal/resolution"
	"stream-pipeline/internal/store"
)

// buildResolutionPlaylist renders the media playlist for one
// resolution: every segment in chunk-index order, each with the nominal
// chunk duration. The same chunk state always renders byte-identical
// content, which makes merge re-runs safe overwrites.
func buildResolutionPlaylist(chunks []store.Chunk, chunkSeconds float64) string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")
	fmt.Fprintf(&b, "#EXT-X-TARGETDURATION:%d\n", int(chunkSeconds)+1)
	b.WriteString("#EXT-X-MEDIA-SEQUENCE:0\n")
	b.WriteString("#EXT-X-PLAYLIST-TYPE:VOD\n")

	for _, c := range chunks {
		// Durations are nominal; the last chunk is usually shorter.
		fmt.Fprintf(&b, "#EXTINF:%.3f,\n", chunkSeconds)
		fmt.Fprintf(&b, "segments/segment_%d\n", c.Index)
	}
	b.WriteString("#EXT-X-ENDLIST\n")
	return b.String()
}

// buildMasterPlaylist renders the adaptive master playlist referencing
// one media playlist per completed resolution, in ladder order.
func buildMasterPlaylist(completed []string) string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")

	set := make(map[string]bool, len(completed))
	for _, r := range completed {
		set[r] = true
	}
	// Ladder order keeps output stable regardless of completion order.
	for _, tier := range resolution.Ladder {
		if !set[tier.Name] {
			continue
		}
		fmt.Fprintf(&b, "#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%dx%d\n",
			tier.Bandwidth, tier.Width, tier.Height)
		fmt.Fprintf(&b, "%s/output.m3u8\n", tier.Name)
	}
	return b.String()
}
