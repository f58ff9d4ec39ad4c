// Package registry tracks in-flight workflow runs across all sessions. Each
// registration is observed until its future settles; settled records move
// into a bounded, time-limited history and feed the aggregate metrics and
// status summary queries. Abort is cooperative via the run's cancel token.
package registry
