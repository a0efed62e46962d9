// Package cancel tracks cancellation requests and live encoder
// subprocesses per video job.
//
// Cancellation is cooperative: workers poll IsCancelled at the entry to
// each unit of work, and a cancel request also kills any registered
// subprocess so cancellation latency is bounded by subprocess kill
// time, not queue drain time.
package cancel
