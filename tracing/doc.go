// Package tracing is a thin wrapper around OpenTelemetry so the engine can
// emit spans for workflow and step execution without the rest of the
// code-base depending on the upstream API directly.
package tracing
