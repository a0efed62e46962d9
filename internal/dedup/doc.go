// Package dedup suppresses duplicate uploads.
//
// Two uploads with the same (projectID, fileName, fileSize) fingerprint
// within the TTL window resolve to the same videoID and trigger the
// pipeline only once. The registry tracks in-flight uploads in memory
// and falls back to a recent-uploads query against the record store for
// uploads that completed on another instance.
package dedup
