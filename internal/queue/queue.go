// Package queue runs inbox work on a bounded channel with a fixed worker
// pool. Producers never block: a full queue drops the job and reports it.
package queue

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Job is one unit of inbox work.
type Job struct {
	ID       string
	Source   string
	Work     func(context.Context) error
	OnFinish func(error)
}

// Stats exposes current queue metrics.
type Stats struct {
	Length      int
	Capacity    int
	WorkerCount int
	Processed   uint64
	Failed      uint64
	Dropped     uint64
}

// Queue is a bounded job queue with a fixed worker pool and a per-job
// timeout.
type Queue struct {
	jobs        chan Job
	workerCount int
	timeout     time.Duration

	mu      sync.RWMutex
	started bool
	stopped bool
	wg      sync.WaitGroup

	processed uint64
	failed    uint64
	dropped   uint64
}

func New(capacity, workerCount int, timeout time.Duration) *Queue {
	return &Queue{
		jobs:        make(chan Job, capacity),
		workerCount: workerCount,
		timeout:     timeout,
	}
}

// Start launches the worker pool. Calling Start twice is a no-op.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.mu.Unlock()
	for i := 0; i < q.workerCount; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
}

// Enqueue queues a job without blocking. It returns false when the queue
// is full or not started; the drop is counted and logged.
func (q *Queue) Enqueue(j Job) bool {
	q.mu.RLock()
	accepting := q.started && !q.stopped
	q.mu.RUnlock()
	if !accepting {
		log.Printf("queue not accepting jobs, dropping %s", j.ID)
		atomic.AddUint64(&q.dropped, 1)
		return false
	}
	select {
	case q.jobs <- j:
		return true
	default:
		log.Printf("queue full, dropping job %s", j.ID)
		atomic.AddUint64(&q.dropped, 1)
		return false
	}
}

// Stop closes the queue and waits for workers to drain until ctx is done.
// Stopping twice is a no-op.
func (q *Queue) Stop(ctx context.Context) {
	q.mu.Lock()
	if !q.started || q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	close(q.jobs)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (q *Queue) Stats() Stats {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return Stats{
		Length:      len(q.jobs),
		Capacity:    cap(q.jobs),
		WorkerCount: q.workerCount,
		Processed:   atomic.LoadUint64(&q.processed),
		Failed:      atomic.LoadUint64(&q.failed),
		Dropped:     atomic.LoadUint64(&q.dropped),
	}
}

// Healthy reports whether the worker pool is running.
func (q *Queue) Healthy() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.started && !q.stopped
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q.jobs:
			if !ok {
				return
			}
			q.run(ctx, j)
		}
	}
}

func (q *Queue) run(ctx context.Context, j Job) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("job %s panic recovered: %v", j.ID, r)
			atomic.AddUint64(&q.failed, 1)
		}
	}()

	jobCtx, cancel := context.WithTimeout(ctx, q.timeout)
	err := j.Work(jobCtx)
	cancel()
	if j.OnFinish != nil {
		j.OnFinish(err)
	}
	atomic.AddUint64(&q.processed, 1)
	status := "ok"
	if err != nil {
		atomic.AddUint64(&q.failed, 1)
		status = err.Error()
	}
	log.Printf("job_source=%s job=%s duration_ms=%d status=%s", j.Source, j.ID, time.Since(start).Milliseconds(), status)
}
