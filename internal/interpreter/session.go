package interpreter

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/v0xg/stepdroid/internal/executor"
)

// State is the lifecycle of one automation session
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateStopped   State = "stopped"
)

// ErrSessionBusy is returned when a session is already driving a workflow.
var ErrSessionBusy = errors.New("session already running")

// Session tracks one device session. One session runs one workflow at a time.
type Session struct {
	ID string

	mu            sync.Mutex
	state         State
	current       string
	last          *executor.ExecuteResult
	started       time.Time
	finished      time.Time
	cancel        context.CancelFunc
	stopRequested bool
}

// NewSession creates an idle session with a fresh id.
func NewSession() *Session {
	return &Session{ID: uuid.NewString(), state: StateIdle}
}

// SessionInfo is a point-in-time copy of a session.
type SessionInfo struct {
	ID          string                  `json:"id"`
	State       State                   `json:"state"`
	CurrentStep string                  `json:"currentStep,omitempty"`
	LastResult  *executor.ExecuteResult `json:"lastResult,omitempty"`
	Started     time.Time               `json:"started"`
	Finished    time.Time               `json:"finished"`
}

func (s *Session) Info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionInfo{
		ID:          s.ID,
		State:       s.state,
		CurrentStep: s.current,
		LastResult:  s.last,
		Started:     s.started,
		Finished:    s.finished,
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stop asks the running workflow to halt at the next suspension point.
// Stopping a session that has not started yet makes its run stop at once.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopRequested = true
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Session) begin(ctx context.Context) (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateRunning {
		return nil, ErrSessionBusy
	}
	ctx, cancel := context.WithCancel(ctx)
	if s.stopRequested {
		cancel()
	}
	s.cancel = cancel
	s.state = StateRunning
	s.current = ""
	s.last = nil
	s.started = time.Now()
	s.finished = time.Time{}
	return ctx, nil
}

func (s *Session) enter(stepID string) {
	s.mu.Lock()
	s.current = stepID
	s.mu.Unlock()
}

func (s *Session) record(r *executor.ExecuteResult) {
	s.mu.Lock()
	s.last = r
	s.mu.Unlock()
}

func (s *Session) end(state State) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.state = state
	s.finished = time.Now()
	s.stopRequested = false
	return s.finished
}
