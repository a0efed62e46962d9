// Package store persists video job records.
//
// The canonical implementation is backed by MongoDB; Memory provides the
// same contract in-process for tests and single-node development. The
// per-resolution processed-chunk counter is incremented with a single
// atomic update at the persistence layer, never read-modify-write,
// because chunks for one resolution are processed by concurrent workers.
package store
