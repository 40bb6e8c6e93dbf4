package executor

import (
	"fmt"

	"github.com/v0xg/stepdroid/internal/action"
)

// ExecuteResult is the outcome of one dispatched action
type ExecuteResult struct {
	Success         bool     `json:"success"`
	Message         string   `json:"message,omitempty"`
	PageChanged     *bool    `json:"pageChanged,omitempty"`
	SimilarityScore *float64 `json:"similarityScore,omitempty"`
}

func succeeded(msg string) *ExecuteResult {
	return &ExecuteResult{Success: true, Message: msg}
}

func failed(err error) *ExecuteResult {
	return &ExecuteResult{Success: false, Message: err.Error()}
}

// ParamError means a descriptor lacks a field its verb requires
type ParamError struct {
	Verb    action.Verb
	Missing string
}

func (e *ParamError) Error() string {
	if e.Verb == "" {
		return "missing action"
	}
	return fmt.Sprintf("%s requires %s", e.Verb, e.Missing)
}

// DispatchError means the surface could not carry out an action
type DispatchError struct {
	Verb   action.Verb
	Reason string
	Err    error
}

func (e *DispatchError) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *DispatchError) Unwrap() error { return e.Err }

func dispatchErr(verb action.Verb, reason string, err error) *DispatchError {
	return &DispatchError{Verb: verb, Reason: reason, Err: err}
}

// ToAbsolute maps a normalized [0,1000] point onto a surface of the given
// size. Out-of-range input is not clamped.
func ToAbsolute(p action.Point, width, height int) (float64, float64) {
	return p.X / 1000 * float64(width), p.Y / 1000 * float64(height)
}
