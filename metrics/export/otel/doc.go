// Package otel publishes authcore engine metrics through OpenTelemetry.
//
// [NewExporter] registers one Int64ObservableCounter per engine counter and,
// for each latency histogram, a cumulative bucket gauge keyed by an "le"
// attribute plus a count gauge. A single callback reads
// [authcore.Engine.MetricsSnapshot] on each collection.
//
// The caller owns the MeterProvider.
package otel
