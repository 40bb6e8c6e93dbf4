package condition

import (
	"fmt"
	"strings"
)

// Type selects which surface query a condition runs
type Type string

const (
	ElementExists    Type = "element_exists"
	TextContains     Type = "text_contains"
	AppActive        Type = "app_active"
	NetworkConnected Type = "network_connected"
)

func (t Type) Valid() bool {
	switch t {
	case ElementExists, TextContains, AppActive, NetworkConnected:
		return true
	}
	return false
}

// Operator compares an observed value with an expected one
type Operator string

const (
	OpEquals      Operator = "equals"
	OpContains    Operator = "contains"
	OpStartsWith  Operator = "startsWith"
	OpEndsWith    Operator = "endsWith"
	OpNotEquals   Operator = "not_equals"
	OpNotContains Operator = "not_contains"
	OpExists      Operator = "exists"
	OpNotExists   Operator = "not_exists"
)

func (o Operator) Valid() bool {
	switch o {
	case OpEquals, OpContains, OpStartsWith, OpEndsWith, OpNotEquals, OpNotContains, OpExists, OpNotExists:
		return true
	}
	return false
}

// Negated reports whether the operator succeeds on absence.
func (o Operator) Negated() bool {
	return o == OpNotEquals || o == OpNotContains || o == OpNotExists
}

// Compare applies a string operator. exists/not_exists behave like
// contains/not_contains here; callers with a presence signal handle them first.
func Compare(op Operator, subject, expected string) (bool, error) {
	switch op {
	case OpEquals:
		return subject == expected, nil
	case OpNotEquals:
		return subject != expected, nil
	case OpContains, OpExists:
		return strings.Contains(subject, expected), nil
	case OpNotContains, OpNotExists:
		return !strings.Contains(subject, expected), nil
	case OpStartsWith:
		return strings.HasPrefix(subject, expected), nil
	case OpEndsWith:
		return strings.HasSuffix(subject, expected), nil
	default:
		return false, fmt.Errorf("unknown operator: %s", op)
	}
}
