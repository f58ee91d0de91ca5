// Package metrics records deployment and extraction metrics.
//
// Components receive a Recorder and default to NoopRecorder, so metrics
// never need nil checks. The CLI swaps in a PrometheusRecorder when
// metrics.textfile is configured and writes the registry to that file in the
// Prometheus text format after each command, ready for node_exporter's
// textfile collector.
package metrics
