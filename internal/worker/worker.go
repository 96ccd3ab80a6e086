// Package worker defines the unit of work a spawned worker process runs
// and the default implementation backed by a job process.
package worker

import "context"

// Worker performs the job and returns its completion status. The status
// is the process exit status when err is nil. A non-nil err means the
// run failed; it may be a composite produced by errors.Join.
type Worker interface {
	Run(ctx context.Context, pipeIn, pipeOut string) (int, error)
}

// Func adapts an ordinary function to the Worker interface.
type Func func(ctx context.Context, pipeIn, pipeOut string) (int, error)

// Run calls f(ctx, pipeIn, pipeOut).
func (f Func) Run(ctx context.Context, pipeIn, pipeOut string) (int, error) {
	return f(ctx, pipeIn, pipeOut)
}
