// Package progress distributes step-level progress events to any number of
// observers. Delivery is best-effort, at-least-once to local subscribers;
// the reporter never blocks step execution and a faulty listener cannot stall
// delivery to the others.
package progress
