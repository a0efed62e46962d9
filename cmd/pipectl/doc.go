// Command pipectl is an operator CLI for the transcoding pipeline.
//
// It supports the following operations:
//   - submit: Upload a local video file and start the pipeline for it
//   - status: Print the stored record for a video
//   - cancel: Request cancellation of a running job via the admin API
//
// Usage:
//
//	pipectl <command> [flags]
//
// Commands:
//
//	submit  Upload a source file to blob storage, register it with the
//	        dedup registry and enqueue the split task. A duplicate of a
//	        recent upload prints the existing video ID and queues
//	        nothing.
//
//	status  Fetch and print the video record as JSON, including chunk
//	        counters and per-resolution processing state.
//
//	cancel  Ask the running pipeline instance to cancel a job. The
//	        instance is addressed with ADMIN_URL (default
//	        http://localhost:8080).
//
// Connection settings are read from the environment, with the same
// variables the pipeline itself uses (KAFKA_BROKERS, S3_BUCKET,
// MONGO_URI and so on). A local .env file is honored.
package main
