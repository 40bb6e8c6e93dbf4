package workflow

import (
	"fmt"
	"strings"

	"github.com/v0xg/stepdroid/internal/condition"
)

// ConfigError lists every problem found while validating a workflow.
// It is the only error that stops a run before any step executes.
type ConfigError struct {
	Workflow string
	Problems []string
}

func (e *ConfigError) Error() string {
	name := e.Workflow
	if name == "" {
		name = "(unnamed)"
	}
	return fmt.Sprintf("workflow %s: validation errors:\n  - %s", name, strings.Join(e.Problems, "\n  - "))
}

// Graph is a validated workflow with id lookup.
type Graph struct {
	wf    *Workflow
	index map[string]int
}

// NewGraph validates wf and indexes its steps. Checks:
//   - at least one step
//   - step ids present and unique
//   - onSuccess/onFailure reference existing steps
//   - condition type and operator are known, retryCount >= 0
func NewGraph(wf *Workflow) (*Graph, error) {
	if wf == nil {
		return nil, &ConfigError{Problems: []string{"workflow is nil"}}
	}
	var errs []string
	index := make(map[string]int, len(wf.Steps))

	if len(wf.Steps) == 0 {
		errs = append(errs, "steps must not be empty")
	}
	for i := range wf.Steps {
		s := &wf.Steps[i]
		if s.ID == "" {
			errs = append(errs, fmt.Sprintf("steps[%d]: id is required", i))
			continue
		}
		if prev, ok := index[s.ID]; ok {
			errs = append(errs, fmt.Sprintf("duplicate step id %q (steps[%d] and steps[%d])", s.ID, prev, i))
			continue
		}
		index[s.ID] = i
	}

	for i := range wf.Steps {
		s := &wf.Steps[i]
		loc := s.ID
		if loc == "" {
			loc = fmt.Sprintf("steps[%d]", i)
		}
		if s.OnSuccess != "" {
			if _, ok := index[s.OnSuccess]; !ok {
				errs = append(errs, fmt.Sprintf("step %s: onSuccess references unknown step %q", loc, s.OnSuccess))
			}
		}
		if s.OnFailure != "" {
			if _, ok := index[s.OnFailure]; !ok {
				errs = append(errs, fmt.Sprintf("step %s: onFailure references unknown step %q", loc, s.OnFailure))
			}
		}
		if s.Parameters.WaitTime < 0 {
			errs = append(errs, fmt.Sprintf("step %s: waitTime must be >= 0", loc))
		}
		if c := s.Condition; c != nil {
			if !condition.Type(c.Type).Valid() {
				errs = append(errs, fmt.Sprintf("step %s: unknown condition type %q", loc, c.Type))
			}
			if !c.Op().Valid() {
				errs = append(errs, fmt.Sprintf("step %s: unknown operator %q", loc, c.Operator))
			}
			if c.RetryCount < 0 {
				errs = append(errs, fmt.Sprintf("step %s: retryCount must be >= 0", loc))
			}
		}
	}

	if len(errs) > 0 {
		return nil, &ConfigError{Workflow: wf.ID, Problems: errs}
	}
	return &Graph{wf: wf, index: index}, nil
}

// Validate reports whether wf would build a Graph.
func Validate(wf *Workflow) error {
	_, err := NewGraph(wf)
	return err
}

func (g *Graph) Workflow() *Workflow { return g.wf }

func (g *Graph) Len() int { return len(g.wf.Steps) }

// First returns the entry step.
func (g *Graph) First() *Step { return &g.wf.Steps[0] }

// Step looks up a step by id.
func (g *Graph) Step(id string) (*Step, bool) {
	i, ok := g.index[id]
	if !ok {
		return nil, false
	}
	return &g.wf.Steps[i], true
}

// Index returns the list position of id, or -1.
func (g *Graph) Index(id string) int {
	if i, ok := g.index[id]; ok {
		return i
	}
	return -1
}

// Next returns the sequential successor of id, or nil at the end of the list.
func (g *Graph) Next(id string) *Step {
	i, ok := g.index[id]
	if !ok || i+1 >= len(g.wf.Steps) {
		return nil
	}
	return &g.wf.Steps[i+1]
}
