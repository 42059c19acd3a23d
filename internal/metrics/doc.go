// Package metrics provides observability hooks for build and cache metrics.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so metrics collection never requires nil checks at call
// sites and costs nothing when disabled. Watch mode activates the
// Prometheus implementation and serves it over HTTP.
package metrics
