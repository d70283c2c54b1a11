// Package writequeue provides the sharded FIFO executor behind the SDK's
// fire-and-forget writes (comment submission, access-log appends). Order is
// preserved per key while different keys run in parallel; recoverable backend
// failures are retried with exponential backoff.
//
// Callers must not invoke Submit concurrently for the same key: per-key FIFO
// ordering relies on that external serialization.
package writequeue

import "context"

// Job is a unit of work executed by an Executor.
type Job interface {
	Run(ctx context.Context) error
}

// JobFunc adapts a function to a Job.
type JobFunc func(ctx context.Context) error

// Run implements Job.
func (f JobFunc) Run(ctx context.Context) error { return f(ctx) }
