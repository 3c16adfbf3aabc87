package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"library-indexer/internal/logging"
)

var (
	// ErrPoolClosed is returned for jobs submitted to, or still queued in, a
	// closed pool.
	ErrPoolClosed = errors.New("worker pool closed")

	// ErrQueueFull is returned by Submit when the queue has no room.
	ErrQueueFull = errors.New("worker pool queue full")
)

// Task is a unit of background work.
type Task func(ctx context.Context) error

// Job is a submitted task.
type Job struct {
	ID   string
	Name string

	task Task
	done chan error
}

// Done returns a channel that receives the task result once.
func (j *Job) Done() <-chan error { return j.done }

// Wait blocks until the job finishes or ctx ends.
func (j *Job) Wait(ctx context.Context) error {
	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pool executes jobs on a fixed set of goroutines.
type Pool struct {
	ctx    context.Context
	cancel context.CancelFunc
	queue  chan *Job
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewPool starts size workers reading from a queue of queueSize jobs.
func NewPool(size, queueSize int) *Pool {
	if size < 1 {
		size = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		ctx:    ctx,
		cancel: cancel,
		queue:  make(chan *Job, queueSize),
	}

	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker()
	}
	return p
}

// Submit queues task. It never blocks.
func (p *Pool) Submit(name string, task Task) (*Job, error) {
	job := &Job{
		ID:   uuid.NewString(),
		Name: name,
		task: task,
		done: make(chan error, 1),
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, ErrPoolClosed
	}
	select {
	case p.queue <- job:
		return job, nil
	default:
		return nil, ErrQueueFull
	}
}

// Close stops the pool, cancelling running jobs and failing queued ones.
// It waits for the workers to exit.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.cancel()
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for job := range p.queue {
		if p.ctx.Err() != nil {
			job.done <- ErrPoolClosed
			continue
		}
		job.done <- p.run(job)
	}
}

func (p *Pool) run(job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("Job %s (%s) panicked: %v", job.Name, job.ID, r)
			err = fmt.Errorf("job %s panicked: %v", job.Name, r)
		}
	}()
	return job.task(p.ctx)
}
