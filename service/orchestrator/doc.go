// Package orchestrator drives a workflow end to end: it derives step groups
// from the configuration, runs group members through the step executor
// (concurrently for parallel groups), aggregates outcomes into a single
// execution result, triggers rollback on fatal failure and exposes a run
// handle supporting cooperative abort.
package orchestrator
