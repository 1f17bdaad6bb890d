// Package task implements the asynchronous task runtime: a bounded worker
// pool for blocking callables and a manager that tracks every submitted
// task through its status state machine with wait/no-wait submission,
// timeouts, best-effort cancellation, terminal-task cleanup, and a
// coordinated graceful shutdown.
//
// Work is submitted as one of two explicit variants: cooperative work runs
// in its own goroutine and is expected to honor context cancellation;
// blocking work is routed through the worker pool and, once dispatched,
// can no longer be interrupted — cancellation and timeouts then only stop
// the waiter, not the underlying execution.
package task
