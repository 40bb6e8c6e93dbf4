package interpreter

import (
	"context"
	"sync"

	"github.com/v0xg/stepdroid/internal/metrics"
	"github.com/v0xg/stepdroid/internal/workflow"
)

// Runner executes one workflow on a session; *Interpreter satisfies it.
type Runner interface {
	Run(ctx context.Context, session *Session, wf *workflow.Workflow) (*Report, error)
}

// Result is delivered once per submitted workflow.
type Result struct {
	Report *Report
	Err    error
}

type job struct {
	session  *Session
	workflow *workflow.Workflow
	result   chan<- Result
}

// Queue feeds workflows to a single worker so that only one run ever
// touches the device at a time.
type Queue struct {
	mu     sync.Mutex
	closed bool
	queue  chan job
	runner Runner
	wg     sync.WaitGroup
}

// NewQueue starts the worker. capacity bounds how many runs may wait.
func NewQueue(ctx context.Context, runner Runner, capacity int) *Queue {
	q := &Queue{queue: make(chan job, capacity), runner: runner}
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		q.run(ctx)
	}()
	return q
}

func (q *Queue) run(ctx context.Context) {
	for {
		select {
		case j, ok := <-q.queue:
			if !ok {
				return
			}
			metrics.QueueDepth.Set(float64(len(q.queue)))
			report, err := q.runner.Run(ctx, j.session, j.workflow)
			j.result <- Result{Report: report, Err: err}
		case <-ctx.Done():
			return
		}
	}
}

// Submit enqueues wf on a new session without blocking. It returns false
// when the queue is full or drained. The result channel is buffered and
// receives exactly one value once the run ends.
func (q *Queue) Submit(wf *workflow.Workflow) (*Session, <-chan Result, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, nil, false
	}
	session := NewSession()
	result := make(chan Result, 1)
	select {
	case q.queue <- job{session: session, workflow: wf, result: result}:
		metrics.QueueDepth.Set(float64(len(q.queue)))
		return session, result, true
	default:
		return nil, nil, false
	}
}

// Drain stops accepting work, lets queued runs finish and waits for the worker.
func (q *Queue) Drain() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.queue)
	}
	q.mu.Unlock()
	q.wg.Wait()
}

// Len returns how many runs are waiting.
func (q *Queue) Len() int {
	return len(q.queue)
}
