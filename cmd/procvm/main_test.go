package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

var approvalYAML = filepath.Join("testdata", "approval.yaml")

func TestVersionCommand(t *testing.T) {
	originalVersion := version
	t.Cleanup(func() { version = originalVersion })
	version = "1.2.3"

	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "procvm 1.2.3")
}

func TestValidateCommand(t *testing.T) {
	out, err := execute(t, "validate", approvalYAML)
	require.NoError(t, err)
	assert.Contains(t, out, `ok (process "approval", 3 activities)`)

	_, err = execute(t, "validate", filepath.Join("testdata", "missing.yaml"))
	assert.Error(t, err)
}

func TestRunCommand_StopsAtWait(t *testing.T) {
	out, err := execute(t, "run", approvalYAML, "--var", "amount=21", "--json")
	require.NoError(t, err)

	var summary runSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.False(t, summary.Ended)
	assert.Equal(t, []string{"review"}, summary.Waiting)
	assert.Equal(t, float64(42), summary.Variables["limit"])
	assert.Equal(t, "approval", summary.Definition)
	assert.Len(t, summary.ActivityInstances, 3, "process, prepare and review")
}

func TestRunCommand_AutoSignal(t *testing.T) {
	out, err := execute(t, "run", approvalYAML, "--var", "amount=1", "--auto-signal")
	require.NoError(t, err)
	assert.Contains(t, out, ": ended")
	assert.Contains(t, out, "limit = 2")
	assert.NotContains(t, out, "waiting in")
}

func TestRunCommand_Metrics(t *testing.T) {
	out, err := execute(t, "run", approvalYAML, "--var", "amount=1", "--metrics")
	require.NoError(t, err)
	assert.Contains(t, out, `procvm_operations_total{operation="process-start"} 1`)
	assert.Contains(t, out, "procvm_activity_instances_started_total 3")
}

func TestRunCommand_Errors(t *testing.T) {
	_, err := execute(t, "run", approvalYAML, "--var", "broken")
	assert.ErrorContains(t, err, "want name=value")

	_, err = execute(t, "run", approvalYAML, "--history", "postgres://x")
	assert.ErrorContains(t, err, "unsupported history location")

	_, err = execute(t, "run", approvalYAML)
	assert.Error(t, err, "amount is undefined for the output mapping")
}

func TestHistoryCommand_SQLite(t *testing.T) {
	location := "sqlite:" + filepath.Join(t.TempDir(), "history.db")

	out, err := execute(t, "run", approvalYAML, "--history", location, "--var", "amount=5", "--auto-signal", "--json")
	require.NoError(t, err)
	var summary runSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	require.True(t, summary.Ended)

	out, err = execute(t, "history", summary.ProcessInstanceID, "--history", location, "--variables")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.True(t, strings.HasPrefix(lines[0], "ACTIVITY"))
	assert.Contains(t, out, "review")
	assert.Contains(t, out, "VARIABLE")
	assert.Contains(t, out, "limit")

	_, err = execute(t, "history", "unknown", "--history", location)
	assert.ErrorContains(t, err, "no history")
}

func TestParseVars(t *testing.T) {
	vars, err := parseVars([]string{"n=42", "ok=true", "name=acme", "ratio=0.5", "empty="})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"n":     42,
		"ok":    true,
		"name":  "acme",
		"ratio": 0.5,
		"empty": nil,
	}, vars)

	_, err = parseVars([]string{"=1"})
	assert.Error(t, err)
}
