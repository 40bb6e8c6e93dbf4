package workflow

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/v0xg/stepdroid/internal/condition"
)

const sample = `
id: demo
title: Demo
steps:
  - id: a
    name: Open settings
    condition:
      type: app_active
      target: Settings
    onFailure: c
  - id: b
    name: Tap Wi-Fi
    isEnabled: false
  - id: c
    name: Go home
    parameters:
      waitTime: 300
`

func TestDecode(t *testing.T) {
	wf, err := Decode([]byte(sample))
	require.NoError(t, err)
	assert.Equal(t, "demo", wf.ID)
	require.Len(t, wf.Steps, 3)
	assert.True(t, wf.Steps[0].IsEnabled())
	assert.False(t, wf.Steps[1].IsEnabled())
	assert.Equal(t, 300*time.Millisecond, wf.Steps[2].Parameters.Wait())
	assert.Equal(t, condition.OpEquals, wf.Steps[0].Condition.Op())
}

func TestDecodeJSON(t *testing.T) {
	wf, err := Decode([]byte(`{"id":"j","title":"J","steps":[{"id":"s1","name":"Home","isOptional":true}]}`))
	require.NoError(t, err)
	assert.True(t, wf.Steps[0].Optional)
}

func TestGraphAggregatesProblems(t *testing.T) {
	neg := &Workflow{ID: "bad", Steps: []Step{
		{ID: "a", OnSuccess: "missing"},
		{ID: "a"},
		{Name: "no id"},
		{ID: "d", OnFailure: "nowhere", Condition: &Condition{Type: "battery_low", Operator: "matches", RetryCount: -1}},
	}}
	_, err := NewGraph(neg)
	require.Error(t, err)

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "bad", cfgErr.Workflow)
	want := []string{
		`duplicate step id "a" (steps[0] and steps[1])`,
		"steps[2]: id is required",
		`step a: onSuccess references unknown step "missing"`,
		`step d: onFailure references unknown step "nowhere"`,
		`step d: unknown condition type "battery_low"`,
		`step d: unknown operator "matches"`,
		"step d: retryCount must be >= 0",
	}
	if diff := cmp.Diff(want, cfgErr.Problems); diff != "" {
		t.Errorf("problems mismatch (-want +got):\n%s", diff)
	}
	assert.Contains(t, err.Error(), "workflow bad: validation errors:\n  - ")
}

func TestGraphRejectsEmpty(t *testing.T) {
	_, err := NewGraph(&Workflow{ID: "empty"})
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, []string{"steps must not be empty"}, cfgErr.Problems)

	_, err = NewGraph(nil)
	assert.Error(t, err)
}

func TestGraphNavigation(t *testing.T) {
	wf, err := Decode([]byte(sample))
	require.NoError(t, err)
	g, err := NewGraph(wf)
	require.NoError(t, err)

	assert.Equal(t, 3, g.Len())
	assert.Equal(t, "a", g.First().ID)
	assert.Equal(t, "b", g.Next("a").ID)
	assert.Nil(t, g.Next("c"))
	assert.Nil(t, g.Next("zzz"))
	s, ok := g.Step("c")
	require.True(t, ok)
	assert.Equal(t, "Go home", s.Name)
	_, ok = g.Step("zzz")
	assert.False(t, ok)
	assert.Equal(t, 1, g.Index("b"))
	assert.Equal(t, -1, g.Index("zzz"))
	assert.Same(t, wf, g.Workflow())
}

func TestConditionSpec(t *testing.T) {
	timeout := 2.5
	delay := int64(200)
	want := "on"
	c := &Condition{Type: "network_connected", Operator: "not_equals", ExpectedValue: &want, Timeout: &timeout, RetryCount: 3, RetryDelay: &delay}

	got := c.Spec()
	assert.Equal(t, condition.Spec{
		Type:       condition.NetworkConnected,
		Operator:   condition.OpNotEquals,
		Expected:   &want,
		Timeout:    2500 * time.Millisecond,
		Retries:    3,
		RetryDelay: 200 * time.Millisecond,
	}, got)

	zero := (&Condition{Type: "text_contains", Target: "x"}).Spec()
	assert.Zero(t, zero.Timeout)
	assert.Zero(t, zero.RetryDelay)
}

func TestInstruction(t *testing.T) {
	assert.Equal(t, "tap the button", (&Step{Name: "Tap", Description: " tap the button "}).Instruction())
	assert.Equal(t, "Tap", (&Step{Name: " Tap "}).Instruction())
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.ErrorContains(t, err, "read workflow")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("steps: [a, b"), 0o644))
	_, err = Load(bad)
	assert.ErrorContains(t, err, "parse workflow")

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("id: x\nsteps:\n  - id: a\n    onSuccess: b\n"), 0o644))
	_, err = Load(invalid)
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestLoaderReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wf.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	l, err := NewLoader(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "demo", l.Workflow().ID)

	var got []string
	var failures int
	l.OnChange(func(wf *Workflow) { got = append(got, wf.ID) })
	l.OnError(func(error) { failures++ })

	require.NoError(t, os.WriteFile(path, []byte("id: v2\nsteps:\n  - id: only\n    name: Back\n"), 0o644))
	wf, err := l.Reload()
	require.NoError(t, err)
	assert.Equal(t, "v2", wf.ID)
	assert.Equal(t, []string{"v2"}, got)

	require.NoError(t, os.WriteFile(path, []byte("id: v3\nsteps: []\n"), 0o644))
	_, err = l.Reload()
	assert.Error(t, err)
	assert.Equal(t, 1, failures)
	assert.Equal(t, "v2", l.Workflow().ID, "invalid reload keeps the previous version")
}

func TestLoaderWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wf.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
	l, err := NewLoader(path, nil)
	require.NoError(t, err)

	var mu sync.Mutex
	var seen []string
	l.OnChange(func(wf *Workflow) {
		mu.Lock()
		seen = append(seen, wf.ID)
		mu.Unlock()
	})
	stop, err := l.Watch()
	require.NoError(t, err)
	defer stop()

	require.NoError(t, os.WriteFile(path, []byte("id: watched\nsteps:\n  - id: s\n    name: Home\n"), 0o644))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, id := range seen {
			if id == "watched" {
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, "watched", l.Workflow().ID)
}

func TestTemplates(t *testing.T) {
	all := Templates()
	require.Len(t, all, 2)
	assert.Equal(t, "app_launch", all[0].ID)
	assert.Equal(t, "attendance_check", all[1].ID)

	att, ok := TemplateByID("attendance_check")
	require.True(t, ok)
	assert.Len(t, att.Steps, 18)
	g, err := NewGraph(att)
	require.NoError(t, err)
	s9, _ := g.Step("step_9")
	assert.True(t, s9.Optional)
	assert.Equal(t, condition.OpExists, s9.Condition.Op())

	_, ok = TemplateByID("nope")
	assert.False(t, ok)

	assert.Len(t, TemplatesByCategory("Attendance"), 1)
	assert.Empty(t, TemplatesByCategory("attendance"))

	found := SearchTemplates("LAUNCH")
	require.Len(t, found, 1)
	assert.Equal(t, "app_launch", found[0].ID)
	assert.Len(t, SearchTemplates("check"), 1)
	assert.Empty(t, SearchTemplates("payroll"))
}

func TestInstantiateCopies(t *testing.T) {
	wf, err := Instantiate("app_launch")
	require.NoError(t, err)
	wf.Steps[1].Condition.Target = "Settings"
	wf.Tags[0] = "changed"

	orig, _ := TemplateByID("app_launch")
	assert.Equal(t, "Target app", orig.Steps[1].Condition.Target)
	assert.Equal(t, "launch", orig.Tags[0])

	_, err = Instantiate("nope")
	assert.Error(t, err)
}

func TestFromText(t *testing.T) {
	wf, err := FromText("t", "Morning", "Open WeChat\n\n  Tap Discover  \nGo back\n")
	require.NoError(t, err)
	ids := make([]string, 0, len(wf.Steps))
	for _, s := range wf.Steps {
		ids = append(ids, s.ID)
		assert.Equal(t, int64(DefaultTextWait), s.Parameters.WaitTime)
	}
	assert.Equal(t, []string{"step_1", "step_2", "step_3"}, ids)
	assert.Equal(t, "Tap Discover", wf.Steps[1].Instruction())

	_, err = FromText("t", "Empty", "\n  \n")
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}
