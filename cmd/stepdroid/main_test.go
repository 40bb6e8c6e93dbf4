package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/v0xg/stepdroid/internal/config"
	"github.com/v0xg/stepdroid/internal/device/devicetest"
	"github.com/v0xg/stepdroid/internal/interpreter"
	"github.com/v0xg/stepdroid/internal/workflow"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestParseCommand(t *testing.T) {
	out, err := execute(t, "", "parse", `Sure. do(action="Tap", element=[500,300])`)
	require.NoError(t, err)
	assert.Equal(t, "repair", gjson.Get(out, "stage").Str)
	assert.Equal(t, "do", gjson.Get(out, "action._metadata").Str)
	assert.Equal(t, "Tap", gjson.Get(out, "action.action").Str)
	assert.Equal(t, int64(300), gjson.Get(out, "action.element.1").Int())
}

func TestParseCommandStdin(t *testing.T) {
	out, err := execute(t, `{"_metadata":"finish","message":"done"}`, "parse", "-")
	require.NoError(t, err)
	assert.Equal(t, "direct", gjson.Get(out, "stage").Str)
	assert.Equal(t, "done", gjson.Get(out, "action.message").Str)

	_, err = execute(t, "", "parse", "nothing to see")
	assert.ErrorContains(t, err, "no action found")
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte(`
id: demo
title: Demo
steps:
  - id: a
    name: Go home
    description: do(action="Home")
`), 0o644))
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte(`
id: broken
steps:
  - id: a
    name: Go home
    onFailure: nowhere
`), 0o644))

	out, err := execute(t, "", "validate", good)
	require.NoError(t, err)
	assert.Equal(t, "✓ demo: 1 steps\n", out)

	_, err = execute(t, "", "validate", bad)
	assert.ErrorContains(t, err, "nowhere")
}

func TestTemplatesCommand(t *testing.T) {
	out, err := execute(t, "", "templates")
	require.NoError(t, err)
	assert.Contains(t, out, "app_launch")
	assert.Contains(t, out, "attendance_check")

	out, err = execute(t, "", "templates", "--tag", "beacon", "--json")
	require.NoError(t, err)
	ids := gjson.Get(out, "#.id").Array()
	require.Len(t, ids, 1)
	assert.Equal(t, "attendance_check", ids[0].Str)

	out, err = execute(t, "", "templates", "app_launch")
	require.NoError(t, err)
	assert.Equal(t, "app_launch", gjson.Get(out, "id").Str)

	_, err = execute(t, "", "templates", "missing")
	assert.Error(t, err)
}

func TestResolveWorkflow(t *testing.T) {
	wf, err := resolveWorkflow("app_launch")
	require.NoError(t, err)
	assert.Equal(t, "app_launch", wf.ID)

	path := filepath.Join(t.TempDir(), "steps.txt")
	require.NoError(t, os.WriteFile(path, []byte("Open Settings\n\nGo back\n"), 0o644))
	textFormat = true
	t.Cleanup(func() { textFormat = false })
	wf, err = resolveWorkflow(path)
	require.NoError(t, err)
	require.Len(t, wf.Steps, 2)
	assert.Equal(t, "step_2", wf.Steps[1].ID)

	_, err = resolveWorkflow("no-such-thing")
	assert.ErrorContains(t, err, "neither a workflow file nor a template")
}

func TestConfiguredAppsLaunch(t *testing.T) {
	prev := cfg
	t.Cleanup(func() { cfg = prev })
	cfg = config.Default()
	cfg.Device.Apps = []config.AppConfig{{ID: "wiki", URL: "https://en.wikipedia.org"}}
	cfg.Engine.LaunchSettle = 0
	cfg.Engine.Settle = 0
	cfg.Engine.VerifyDelay = 0

	surface := devicetest.New()
	surface.Installed["wiki"] = true
	surface.Installed["https://example.com"] = true
	surface.Installed["com.tencent.mm"] = true

	interp, err := newInterpreter(surface, nil)
	require.NoError(t, err)

	wf, err := workflow.Decode([]byte(`
id: apps
steps:
  - id: wiki
    name: Open the wiki
    description: do(action="Launch", app="wiki")
    condition:
      type: app_active
      target: wiki
    onFailure: fail
  - id: url
    name: Open a page
    description: do(action="Launch", app="https://example.com")
    onFailure: fail
  - id: wechat
    name: Open WeChat
    description: do(action="Launch", app="微信")
    onFailure: fail
    onSuccess: done
  - id: fail
    name: Give up
    description: finish(message="failed")
  - id: done
    name: Done
    description: finish(message="ok")
`))
	require.NoError(t, err)

	r, err := interp.Run(context.Background(), interpreter.NewSession(), wf)
	require.NoError(t, err)
	assert.Equal(t, interpreter.StateCompleted, r.State)
	assert.Equal(t, []string{"wiki", "url", "wechat", "done"}, r.Visited())
	assert.Equal(t, []string{"launch wiki", "launch https://example.com", "launch com.tencent.mm"}, surface.Calls())
	require.NotNil(t, r.Steps[0].Condition)
	assert.True(t, *r.Steps[0].Condition)
}
