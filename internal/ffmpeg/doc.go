// Package ffmpeg runs the external encoder as a subprocess.
//
// Every invocation is bounded by a hard wall-clock timeout and is
// registered with the cancellation registry while it runs, so an
// external cancel can kill it. A kill attributable to cancellation is
// reported as cancel.ErrCancelled rather than a generic failure.
package ffmpeg
