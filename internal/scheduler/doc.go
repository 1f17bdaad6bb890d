// Package scheduler implements durable, restart-surviving execution of
// one-off and recurring jobs. Job definitions live in the relational store
// and every firing is recorded in an append-only execution log.
//
// Target functions are resolved from an explicit registry built at
// startup: a job referencing an unregistered function name is rejected at
// registration time rather than failing at fire time.
//
// Failure policy is fail-stop: a one-off job that errors is terminally
// failed, and a recurring job that errors is halted (no retry, no backoff)
// until an operator resumes it explicitly.
package scheduler
