package hub

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Writer best-effort background persistence. Jobs run one at a time in
// submission order, each at most once with no retry. A full queue drops the
// job. Failures are logged and never reach the session loop.
type Writer struct {
	jobs    chan writeJob
	timeout time.Duration

	mu     sync.RWMutex
	closed bool

	pending sync.WaitGroup
	done    chan struct{}
	once    sync.Once

	dropped atomic.Int64
	failed  atomic.Int64
}

type writeJob struct {
	name string
	fn   func(ctx context.Context) error
}

// NewWriter queue 크기와 job 별 timeout으로 Writer 시작
func NewWriter(queueSize int, timeout time.Duration) *Writer {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	w := &Writer{
		jobs:    make(chan writeJob, queueSize),
		timeout: timeout,
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

// Submit enqueues fn. Returns false when the job was dropped.
func (w *Writer) Submit(name string, fn func(ctx context.Context) error) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		w.dropped.Add(1)
		log.Printf("[Writer] Dropped %s: writer closed", name)
		return false
	}

	w.pending.Add(1)
	select {
	case w.jobs <- writeJob{name: name, fn: fn}:
		return true
	default:
		w.pending.Done()
		w.dropped.Add(1)
		log.Printf("[Writer] ⚠️ Dropped %s: queue full (%d)", name, cap(w.jobs))
		return false
	}
}

// Wait blocks until every job submitted so far has run.
func (w *Writer) Wait() {
	w.pending.Wait()
}

// Close stops accepting jobs and drains the queue.
func (w *Writer) Close() {
	w.once.Do(func() {
		w.mu.Lock()
		w.closed = true
		close(w.jobs)
		w.mu.Unlock()
	})
	<-w.done
}

// Stats dropped / failed job counts
func (w *Writer) Stats() (dropped, failed int64) {
	return w.dropped.Load(), w.failed.Load()
}

func (w *Writer) run() {
	defer close(w.done)
	for job := range w.jobs {
		w.exec(job)
	}
}

func (w *Writer) exec(job writeJob) {
	defer w.pending.Done()
	defer func() {
		if r := recover(); r != nil {
			w.failed.Add(1)
			log.Printf("[Writer] Panic in %s: %v", job.name, r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	if err := job.fn(ctx); err != nil {
		w.failed.Add(1)
		log.Printf("[Writer] %s failed: %v", job.name, err)
	}
}
