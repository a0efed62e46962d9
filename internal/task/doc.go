// Package task defines the broker-carried task messages for the
// transcoding pipeline.
//
// A task is a closed tagged union over three kinds: SPLIT_VIDEO,
// PROCESS_CHUNK and MERGE_RESOLUTION. Messages are decoded exactly once
// at the consumer boundary; everything past that point works with the
// typed payload for its kind.
package task
