package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/flowforge/pkg/models"
	"github.com/dukex/flowforge/pkg/workflow"
)

const signupYAML = `
name: Signup follow-up
slug: signup
canvas:
  nodes:
    - id: start
      type: manual_trigger
    - id: greet
      type: set_variable
      config:
        name: greeting
        value: "welcome {{input.email}}"
  edges:
    - source: start
      target: greet
---
name: Broken loop
slug: broken
status: paused
canvas:
  nodes:
    - id: a
      type: log
    - id: b
      type: log
  edges:
    - {source: a, target: b}
`

func runCLI(t *testing.T, dataDir string, args ...string) (string, error) {
	t.Helper()

	var out, errOut bytes.Buffer

	app := NewApp()
	app.Writer = &out
	app.ErrWriter = &errOut

	argv := append([]string{"flowforge", "--database-url", "file://" + dataDir, "--log-level", "error"}, args...)
	err := app.Run(context.Background(), argv)

	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestDecodeWorkflows(t *testing.T) {
	workflows, err := decodeWorkflows(strings.NewReader(signupYAML))
	require.NoError(t, err)
	require.Len(t, workflows, 2)

	assert.Equal(t, "signup", workflows[0].Slug)
	require.Len(t, workflows[0].Canvas.Nodes, 2)
	assert.Equal(t, "welcome {{input.email}}", workflows[0].Canvas.Nodes[1].Config["value"])
	assert.Equal(t, models.WorkflowStatusPaused, workflows[1].Status)
	assert.Equal(t, "b", workflows[1].Canvas.Edges[0].Target)

	fromJSON, err := decodeWorkflows(strings.NewReader(`{"name":"Json flow","slug":"json","canvas":{"nodes":[]}}`))
	require.NoError(t, err)
	assert.Equal(t, "json", fromJSON[0].Slug)

	_, err = decodeWorkflows(strings.NewReader(""))
	require.Error(t, err)

	_, err = decodeWorkflows(strings.NewReader("- just\n- a list\n"))
	require.Error(t, err)
}

func TestCLI_ImportRunScheduleProcess(t *testing.T) {
	dataDir := t.TempDir()
	file := writeFile(t, "flows.yaml", signupYAML)

	out, err := runCLI(t, dataDir, "import", file)
	require.NoError(t, err)
	assert.Contains(t, out, "imported signup (version 1)")
	assert.Contains(t, out, "imported broken (version 1)")

	out, err = runCLI(t, dataDir, "import", file)
	require.NoError(t, err)
	assert.Contains(t, out, "imported signup (version 2)")

	out, err = runCLI(t, dataDir, "workflows", "list", "--status", "paused")
	require.NoError(t, err)
	assert.Contains(t, out, "broken\tpaused")
	assert.NotContains(t, out, "signup")

	out, err = runCLI(t, dataDir, "run", "--input", `{"email":"ada@example.com"}`, "signup")
	require.NoError(t, err)

	var result workflow.ExecuteResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.True(t, result.Success)
	assert.Equal(t, "welcome ada@example.com", result.Output["greeting"])

	out, err = runCLI(t, dataDir, "schedule", "--input", `{"email":"lin@example.com"}`, "--max-retries", "1", "signup")
	require.NoError(t, err)

	var job models.WorkflowJob
	require.NoError(t, json.Unmarshal([]byte(out), &job))
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Equal(t, 1, job.MaxRetries)

	out, err = runCLI(t, dataDir, "jobs", "process")
	require.NoError(t, err)
	assert.Contains(t, out, "processed 1 job(s)")

	out, err = runCLI(t, dataDir, "jobs", "list", "--status", "completed")
	require.NoError(t, err)
	assert.Contains(t, out, job.JobID)
}

func TestCLI_Errors(t *testing.T) {
	dataDir := t.TempDir()

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"run without slug", []string{"run"}, "missing argument: slug"},
		{"run unknown workflow", []string{"run", "nope"}, "workflow not found"},
		{"run with bad input", []string{"run", "--input", "[1]", "nope"}, "input must be a JSON object"},
		{"schedule with bad time", []string{"schedule", "--at", "tomorrow", "nope"}, "invalid --at"},
		{"import without files", []string{"import"}, "missing argument: file"},
		{"import missing file", []string{"import", filepath.Join(dataDir, "absent.yaml")}, "absent.yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, dataDir, tt.args...)
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestCLI_Validate(t *testing.T) {
	dataDir := t.TempDir()

	good := writeFile(t, "good.yaml", signupYAML)
	out, err := runCLI(t, dataDir, "validate", good)
	require.NoError(t, err)
	assert.Contains(t, out, "signup ok")

	unknownKind := writeFile(t, "unknown.yaml", `
name: Unknown kinds
slug: unknown
canvas:
  nodes:
    - id: mystery
      type: teleport
`)
	out, err = runCLI(t, dataDir, "validate", unknownKind)
	require.NoError(t, err)
	assert.Contains(t, out, `unknown kind "teleport"`)

	cyclic := writeFile(t, "cyclic.yaml", `
name: Cyclic
slug: cyclic
canvas:
  nodes: [{id: a, type: log}, {id: b, type: log}]
  edges: [{source: a, target: b}, {source: b, target: a}]
`)
	_, err = runCLI(t, dataDir, "validate", cyclic)
	require.ErrorContains(t, err, "cycle")
}
