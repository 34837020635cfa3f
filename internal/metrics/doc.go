// Package metrics defines the observability hooks of the build engine and the repository
// synchronizer.
//
// Components receive a Recorder and default to NoopRecorder, so metrics collection needs no
// nil checks at call sites. The CLI swaps in a PrometheusRecorder when metrics.enabled is set
// and serves its registry with HTTPHandler.
package metrics
