package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"stream-pipeline/internal/cancel"
	"stream-pipeline/internal/logging"
	"stream-pipeline/internal/metrics"
	"stream-pipeline/internal/resolution"
)

// stderrTail bounds how much encoder output is carried in errors.
const stderrTail = 512

// EncodeError marks a subprocess failure (non-zero exit or timeout), as
// opposed to transient I/O trouble around the encode. The task router
// commits tasks that fail this way instead of relying on redelivery.
type EncodeError struct {
	Op  string
	Err error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("ffmpeg %s failed: %v", e.Op, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// Runner invokes ffmpeg with cancellation and timeout handling.
type Runner struct {
	binary   string
	timeout  time.Duration
	registry *cancel.Registry
}

// NewRunner returns a Runner using the given hard wall-clock timeout
// per invocation.
func NewRunner(timeout time.Duration, registry *cancel.Registry) *Runner {
	return &Runner{binary: "ffmpeg", timeout: timeout, registry: registry}
}

// Split cuts input into fixed-duration chunks written to outputPattern
// (an ffmpeg segment pattern such as chunk_%03d.mp4). Stream copy, no
// re-encode.
func (r *Runner) Split(ctx context.Context, videoID, input, outputPattern string, segmentSeconds int) error {
	args := []string{
		"-i", input,
		"-c", "copy",
		"-map", "0",
		"-segment_time", strconv.Itoa(segmentSeconds),
		"-f", "segment",
		"-reset_timestamps", "1",
		outputPattern,
	}
	return r.run(ctx, videoID, "split", args)
}

// TranscodeChunk encodes one chunk to one resolution tier, writing an
// mp4 segment to output.
func (r *Runner) TranscodeChunk(ctx context.Context, videoID, input, output string, tier resolution.Tier) error {
	args := []string{
		"-i", input,
		"-vf", fmt.Sprintf("scale=%d:%d", tier.Width, tier.Height),
		"-c:v", "libx264",
		"-b:v", tier.Bitrate,
		"-c:a", "aac",
		"-movflags", "+faststart",
		"-y",
		output,
	}
	return r.run(ctx, videoID, "transcode", args)
}

// run executes one ffmpeg invocation. The subprocess is registered
// under videoID for its whole lifetime and force-killed when the
// timeout expires.
func (r *Runner) run(ctx context.Context, videoID, operation string, args []string) error {
	runCtx, cancelRun := context.WithTimeout(ctx, r.timeout)
	defer cancelRun()

	cmd := exec.CommandContext(runCtx, r.binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	logging.Debug("[%s] ffmpeg %s starting", videoID, operation)
	start := time.Now()

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg %s: %w", operation, err)
	}
	if err := r.registry.RegisterProcess(videoID, cmd); err != nil {
		// Cancelled between dispatch and spawn; the registry already
		// killed the process, but it still must be reaped.
		cmd.Wait()
		return err
	}
	defer r.registry.UnregisterProcess(videoID, cmd)

	err := cmd.Wait()
	metrics.EncodeDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())

	if err == nil {
		logging.Debug("[%s] ffmpeg %s finished in %s", videoID, operation, time.Since(start).Round(time.Millisecond))
		return nil
	}

	// Cancellation wins over timeout when both raced the kill.
	if r.registry.IsCancelled(videoID) {
		return cancel.ErrCancelled
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return &EncodeError{Op: operation, Err: fmt.Errorf("timed out after %s", r.timeout)}
	}
	return &EncodeError{Op: operation, Err: fmt.Errorf("%w: %s", err, tail(stderr.Bytes()))}
}

func tail(b []byte) string {
	if len(b) > stderrTail {
		b = b[len(b)-stderrTail:]
	}
	return string(bytes.TrimSpace(b))
}
