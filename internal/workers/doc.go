/*
Package workers sizes and runs background work.

Count and the ForCPU, ForIO and ForMixed helpers derive a worker count from
GOMAXPROCS, which the Go runtime sets from the container CPU limit, rather
than from runtime.NumCPU, which reports the host. The SCAN_WORKERS
environment variable overrides the computed value:

	// Thumbnail generation reads, decodes and writes: mixed workload.
	concurrency := workers.ForMixed(8)

Pool runs submitted jobs on a fixed number of goroutines with a bounded
queue. Each job gets an id and a completion channel, so work started from a
request handler is decoupled from the request lifecycle:

	job, err := pool.Submit("full-scan:photos", func(ctx context.Context) error {
		return scan(ctx)
	})
	if err != nil {
		return err // queue full or pool closed
	}
	err = job.Wait(ctx)

Closing the pool cancels the context passed to running jobs and fails every
job still queued with ErrPoolClosed.
*/
package workers
