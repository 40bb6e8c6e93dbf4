// Package workflow holds the step graph that drives a device session: the
// model as authored in YAML or JSON, validation into a Graph, file loading
// with hot reload, built-in templates and the line-per-step text format.
package workflow

import (
	"strings"
	"time"

	"github.com/v0xg/stepdroid/internal/condition"
)

// Workflow is an ordered list of steps. The interpreter only reads it.
type Workflow struct {
	ID          string   `yaml:"id" json:"id"`
	Title       string   `yaml:"title" json:"title"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Category    string   `yaml:"category,omitempty" json:"category,omitempty"`
	Tags        []string `yaml:"tags,omitempty" json:"tags,omitempty"`
	Steps       []Step   `yaml:"steps" json:"steps"`
}

// Step is one instruction plus its branch rules. An empty OnSuccess or
// OnFailure means "no branch target": fall through to the next step.
type Step struct {
	ID          string     `yaml:"id" json:"id"`
	Name        string     `yaml:"name" json:"name"`
	Description string     `yaml:"description,omitempty" json:"description,omitempty"`
	Parameters  Parameters `yaml:"parameters,omitempty" json:"parameters,omitempty"`
	Condition   *Condition `yaml:"condition,omitempty" json:"condition,omitempty"`
	OnSuccess   string     `yaml:"onSuccess,omitempty" json:"onSuccess,omitempty"`
	OnFailure   string     `yaml:"onFailure,omitempty" json:"onFailure,omitempty"`
	Optional    bool       `yaml:"isOptional,omitempty" json:"isOptional,omitempty"`
	Enabled     *bool      `yaml:"isEnabled,omitempty" json:"isEnabled,omitempty"`
}

// IsEnabled defaults to true when the field is omitted.
func (s *Step) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// Instruction is the text handed to the action engine: the description,
// or the name when no description was written.
func (s *Step) Instruction() string {
	if d := strings.TrimSpace(s.Description); d != "" {
		return d
	}
	return strings.TrimSpace(s.Name)
}

// Parameters tune a step's execution.
type Parameters struct {
	// WaitTime is the settle delay after the action, in milliseconds.
	WaitTime int64 `yaml:"waitTime,omitempty" json:"waitTime,omitempty"`
}

// Wait returns WaitTime as a duration, floored at zero.
func (p Parameters) Wait() time.Duration {
	if p.WaitTime <= 0 {
		return 0
	}
	return time.Duration(p.WaitTime) * time.Millisecond
}

// Condition is checked after a step's action to pick the branch.
// OnTrue and OnFalse are notes for authors; they do not affect control flow.
type Condition struct {
	Type          string  `yaml:"type" json:"type"`
	Target        string  `yaml:"target" json:"target"`
	Operator      string  `yaml:"operator,omitempty" json:"operator,omitempty"`
	ExpectedValue *string `yaml:"expectedValue,omitempty" json:"expectedValue,omitempty"`
	OnTrue        string  `yaml:"onTrue,omitempty" json:"onTrue,omitempty"`
	OnFalse       string  `yaml:"onFalse,omitempty" json:"onFalse,omitempty"`
	// Timeout is in seconds, RetryDelay in milliseconds.
	Timeout    *float64 `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	RetryCount int      `yaml:"retryCount,omitempty" json:"retryCount,omitempty"`
	RetryDelay *int64   `yaml:"retryDelay,omitempty" json:"retryDelay,omitempty"`
}

// Op returns the operator, defaulting to equals.
func (c *Condition) Op() condition.Operator {
	if c.Operator == "" {
		return condition.OpEquals
	}
	return condition.Operator(c.Operator)
}

// Spec converts the authored condition into an evaluator spec.
func (c *Condition) Spec() condition.Spec {
	s := condition.Spec{
		Type:     condition.Type(c.Type),
		Target:   c.Target,
		Operator: c.Op(),
		Expected: c.ExpectedValue,
		Retries:  c.RetryCount,
	}
	if c.Timeout != nil && *c.Timeout > 0 {
		s.Timeout = time.Duration(*c.Timeout * float64(time.Second))
	}
	if c.RetryDelay != nil && *c.RetryDelay > 0 {
		s.RetryDelay = time.Duration(*c.RetryDelay) * time.Millisecond
	}
	return s
}
