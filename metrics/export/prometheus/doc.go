// Package prometheus exposes authcore engine metrics to Prometheus.
//
// [NewCollector] returns a prometheus.Collector that reads
// [authcore.Engine.MetricsSnapshot] on each scrape. Counter names follow
// authcore_*_total and latency histograms are authcore_*_latency_seconds.
// Nothing is registered on the default registry; register the collector
// yourself or mount [Handler].
package prometheus
