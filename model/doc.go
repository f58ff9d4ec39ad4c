// Package model defines the declarative workflow vocabulary: steps, their
// retry/timeout/escalation policies and the workflow configuration that
// arranges steps into sequential and parallel groups. Configurations are
// immutable once handed to the engine; the runtime packages never mutate
// them.
package model
