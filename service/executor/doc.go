// Package executor runs a single workflow step: predicate check, parameter
// mapping, timed invocation of the bound operation, retry with exponential
// backoff, error-policy resolution, session-state update and progress
// emission. It is the glue layer between the workflow model and the
// operation dispatcher.
package executor
