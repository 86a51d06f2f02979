// Package metrics exposes Prometheus collectors for producer cycles,
// blob publication, integrity checks, and restores, plus the HTTP
// handler that serves them.
package metrics
