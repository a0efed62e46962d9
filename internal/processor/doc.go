// Package processor implements the per-chunk transcode, the
// per-resolution merge and the master-playlist finalize steps of the
// pipeline.
//
// Chunks for one resolution are transcoded by independent workers in
// arbitrary order; the merge restores order by chunk index at assembly
// time. Merge and finalize are safe to run more than once: both rebuild
// and overwrite their playlists from current record state, which is
// what at-least-once task delivery requires.
package processor
