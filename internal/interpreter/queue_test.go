package interpreter

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/v0xg/stepdroid/internal/workflow"
)

// serialRunner fails the test if two runs overlap.
type serialRunner struct {
	inFlight atomic.Int32
	overlap  atomic.Bool
	mu       sync.Mutex
	order    []string
}

func (r *serialRunner) Run(_ context.Context, s *Session, wf *workflow.Workflow) (*Report, error) {
	if r.inFlight.Add(1) > 1 {
		r.overlap.Store(true)
	}
	defer r.inFlight.Add(-1)
	time.Sleep(5 * time.Millisecond)
	r.mu.Lock()
	r.order = append(r.order, wf.ID)
	r.mu.Unlock()
	return &Report{SessionID: s.ID, WorkflowID: wf.ID, State: StateCompleted}, nil
}

func TestQueueRunsOneAtATime(t *testing.T) {
	runner := &serialRunner{}
	q := NewQueue(context.Background(), runner, 8)

	var results []<-chan Result
	var sessions []*Session
	for _, id := range []string{"one", "two", "three"} {
		s, ch, ok := q.Submit(&workflow.Workflow{ID: id})
		require.True(t, ok)
		sessions = append(sessions, s)
		results = append(results, ch)
	}
	for i, ch := range results {
		res := <-ch
		require.NoError(t, res.Err)
		assert.Equal(t, sessions[i].ID, res.Report.SessionID)
	}
	q.Drain()

	assert.False(t, runner.overlap.Load())
	assert.Equal(t, []string{"one", "two", "three"}, runner.order)
	assert.Zero(t, q.Len())
}

func TestQueueRejectsAfterDrain(t *testing.T) {
	q := NewQueue(context.Background(), &serialRunner{}, 1)
	q.Drain()
	q.Drain()
	_, _, ok := q.Submit(&workflow.Workflow{ID: "late"})
	assert.False(t, ok)
}

func TestQueueWorkerExitsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q := NewQueue(ctx, &serialRunner{}, 1)
	cancel()
	q.wg.Wait()
}

func TestQueueWithInterpreter(t *testing.T) {
	h := newHarness(Options{})
	q := NewQueue(context.Background(), h.interp, 2)
	defer q.Drain()

	_, ch, ok := q.Submit(&workflow.Workflow{ID: "wf", Steps: []workflow.Step{tap("A")}})
	require.True(t, ok)
	res := <-ch
	require.NoError(t, res.Err)
	assert.Equal(t, StateCompleted, res.Report.State)

	_, ch, ok = q.Submit(&workflow.Workflow{ID: "bad"})
	require.True(t, ok)
	res = <-ch
	assert.Nil(t, res.Report)
	var cfgErr *workflow.ConfigError
	assert.ErrorAs(t, res.Err, &cfgErr)
}
