// Package admin exposes the pipeline's operational surface over HTTP:
// health, Prometheus metrics, job cancellation and consumer/dedup
// stats. The upload and streaming APIs live in a separate service; this
// surface carries no credentials and is meant for operators.
package admin
