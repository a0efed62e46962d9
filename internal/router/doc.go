// Package router is the orchestration core of the pipeline.
//
// It consumes task messages from the pipeline topic, dispatches them to
// the splitter and processor by kind, enqueues follow-on tasks (the
// chunk fan-out after a split, the merge after the last chunk of a
// resolution) and controls offset commits:
//
//   - handled or deliberately skipped tasks are committed
//   - malformed payloads are dropped (committed) and never fatal
//   - encoder failures mark the resolution failed and are committed
//   - transient I/O failures stay uncommitted for broker redelivery
//
// Every handler tolerates redelivery: segment uploads overwrite, the
// processed counter is an atomic increment, merge and finalize rebuild
// their playlists from current state.
package router
