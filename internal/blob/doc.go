// Package blob provides durable object storage for source chunks,
// transcoded segments and playlists, backed by any S3-compatible
// service.
//
// The pipeline's blob layout is a read-compatibility contract:
//
//	{projectID}/{videoID}/source/chunk_{i}
//	{projectID}/{videoID}/{resolution}/segments/segment_{i}
//	{projectID}/{videoID}/{resolution}/output.m3u8
//	{projectID}/{videoID}/master.m3u8
package blob
