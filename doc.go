// Package stepflow provides an embeddable, in-process workflow orchestration
// engine.
//
// A workflow is an ordered pipeline of named steps, optionally grouped into
// parallel units, where each step delegates to an external operation and
// carries its own retry, timeout and error-escalation policy. The engine
// layers are:
//
//   - orchestrator – drives step groups end to end and aggregates outcomes
//   - executor     – runs one step: predicate, mapping, timed invoke, retry
//   - registry     – tracks in-flight runs, metrics, abort and history
//   - progress     – publish/subscribe distribution of step-level updates
//
// End-users typically interact via the high-level Service façade exposed by
// the root package:
//
//	srv := stepflow.New()
//	rt := srv.Runtime()
//	rt.Start(ctx)
//	config, _ := rt.LoadWorkflow(ctx, "deploy.yaml")
//	result, err := rt.ExecuteWorkflow(ctx, config, "session-1", params)
//
// For more details see the README and individual sub-packages.
package stepflow
