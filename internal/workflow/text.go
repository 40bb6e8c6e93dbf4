package workflow

import (
	"bufio"
	"fmt"
	"strings"
)

// DefaultTextWait is the settle delay given to steps built from plain text.
const DefaultTextWait = 1000

// FromText builds a sequential workflow from one instruction per line.
// Blank lines are dropped; steps are numbered step_1..step_N.
func FromText(id, title, text string) (*Workflow, error) {
	wf := &Workflow{ID: id, Title: title}
	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		wf.Steps = append(wf.Steps, Step{
			ID:         fmt.Sprintf("step_%d", len(wf.Steps)+1),
			Name:       line,
			Parameters: Parameters{WaitTime: DefaultTextWait},
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read steps: %w", err)
	}
	if err := Validate(wf); err != nil {
		return nil, err
	}
	return wf, nil
}
