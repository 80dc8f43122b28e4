package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Persistence operation names, used as log fields and metric labels
const (
	opFetchNextItem = "fetch_next_item"
	opGetBidder     = "get_bidder"
	opRecordBid     = "record_bid"
	opResolveSale   = "resolve_sale"
	opResolveUnsold = "resolve_unsold"
	opAdjustBudget  = "adjust_budget"
	opReleaseItem   = "release_item"
	opSaveSummary   = "save_summary"
)

type persistJob struct {
	op   string
	run  func(ctx context.Context) error
	done chan struct{} // set on flush barriers only
}

// persistQueue runs store writes in submission order on a single worker so the
// engine never blocks on the store while holding its lock. The queue is
// unbounded; a write is dropped only after close.
type persistQueue struct {
	timeout time.Duration
	metrics MetricsCollector

	mu     sync.Mutex
	jobs   []persistJob
	closed bool

	wake    chan struct{}
	stopped chan struct{}
}

func newPersistQueue(timeout time.Duration, metrics MetricsCollector) *persistQueue {
	q := &persistQueue{
		timeout: timeout,
		metrics: metrics,
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
	go q.worker()
	return q
}

// enqueue schedules a write. It never blocks.
func (q *persistQueue) enqueue(op string, run func(ctx context.Context) error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		log.Warn().Str("op", op).Msg("persistence queue closed, dropping write")
		return
	}
	q.jobs = append(q.jobs, persistJob{op: op, run: run})
	q.mu.Unlock()
	q.signal()
}

// flush waits until every write enqueued before the call has run
func (q *persistQueue) flush(ctx context.Context) error {
	done := make(chan struct{})

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return q.wait(ctx)
	}
	q.jobs = append(q.jobs, persistJob{op: "flush", done: done})
	q.mu.Unlock()
	q.signal()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close stops accepting writes and waits for the backlog to drain
func (q *persistQueue) close(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
	return q.wait(ctx)
}

func (q *persistQueue) wait(ctx context.Context) error {
	select {
	case <-q.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *persistQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *persistQueue) worker() {
	defer close(q.stopped)

	for {
		q.mu.Lock()
		if len(q.jobs) == 0 {
			closed := q.closed
			q.mu.Unlock()
			if closed {
				log.Debug().Msg("persistence queue drained")
				return
			}
			<-q.wake
			continue
		}
		job := q.jobs[0]
		q.jobs[0] = persistJob{}
		q.jobs = q.jobs[1:]
		q.mu.Unlock()

		if job.done != nil {
			close(job.done)
			continue
		}
		q.execute(job)
	}
}

func (q *persistQueue) execute(job persistJob) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	start := time.Now()
	err := job.run(ctx)
	q.metrics.RecordPersistDuration(job.op, err == nil, time.Since(start))
	if err != nil {
		log.Error().
			Err(persistenceError(job.op, err)).
			Str("op", job.op).
			Msg("persistence write failed")
		q.metrics.RecordPersistenceFailure(job.op)
	}
}
