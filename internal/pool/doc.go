// Package pool manages the broker consumers that drive the pipeline.
//
// Two mutually exclusive topologies are provided. AdaptiveManager keeps
// a homogeneous pool of consumers on the pipeline topic, scaling the
// pool one consumer at a time against estimated group lag.
// ResolutionManager runs one dedicated consumer per resolution topic,
// each with its own consumer group and throughput/error counters.
package pool
