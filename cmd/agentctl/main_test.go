package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.toml")
	body := `state_root = "` + filepath.ToSlash(filepath.Join(dir, "state")) + `"
profile = "adaptive"

[governance]
require_approval_for_publish = false
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o644))
	return cfgPath
}

func TestRunNoArgsReturnsUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(nil, &stdout, &stderr)
	assert.Equal(t, exitUsage, code)
}

func TestRunUnknownVerbReturnsUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"frobnicate"}, &stdout, &stderr)
	assert.Equal(t, exitUsage, code)
}

func TestRunHelp(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"help"}, &stdout, &stderr)
	assert.Equal(t, exitOK, code)
	assert.Contains(t, stdout.String(), "agentctl - agent kernel operator interface")
}

func TestRunSubmitMissingTextIsUsageError(t *testing.T) {
	cfgPath := writeTestConfig(t)
	var stdout, stderr bytes.Buffer
	code := run([]string{"submit", "--config", cfgPath}, &stdout, &stderr)
	assert.Equal(t, exitUsage, code)
}

func TestRunSubmitDryRun(t *testing.T) {
	cfgPath := writeTestConfig(t)
	var stdout, stderr bytes.Buffer
	code := run([]string{
		"submit", "--config", cfgPath, "--dry-run",
		"--text", "Please build a presentation on quarterly growth",
	}, &stdout, &stderr)
	require.Equal(t, exitOK, code, "stderr: %s", stderr.String())

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &out))
	assert.Equal(t, true, out["dry_run"])
	assert.NotEmpty(t, out["task_kind"])
}

func TestRunServicesList(t *testing.T) {
	cfgPath := writeTestConfig(t)
	var stdout, stderr bytes.Buffer
	code := run([]string{"services", "list", "--config", cfgPath}, &stdout, &stderr)
	require.Equal(t, exitOK, code, "stderr: %s", stderr.String())

	var rows []map[string]interface{}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &rows))
	assert.NotEmpty(t, rows)
}

func TestRunStatusUnknownRunIsPending(t *testing.T) {
	cfgPath := writeTestConfig(t)
	var stdout, stderr bytes.Buffer
	code := run([]string{"status", "--run", "does-not-exist", "--config", cfgPath}, &stdout, &stderr)
	require.Equal(t, exitOK, code, "stderr: %s", stderr.String())

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &out))
	assert.Equal(t, "pending", out["status"])
}

func TestRunFeedbackAddAndStats(t *testing.T) {
	cfgPath := writeTestConfig(t)

	var addOut, addErr bytes.Buffer
	code := run([]string{
		"feedback", "add", "--config", cfgPath,
		"--run", "run-1", "--rating", "1", "--note", "looked right",
	}, &addOut, &addErr)
	require.Equal(t, exitOK, code, "stderr: %s", addErr.String())

	var statsOut, statsErr bytes.Buffer
	code = run([]string{"feedback", "stats", "--config", cfgPath}, &statsOut, &statsErr)
	require.Equal(t, exitOK, code, "stderr: %s", statsErr.String())

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(statsOut.Bytes(), &out))
	assert.Equal(t, float64(1), out["count"])
	assert.Equal(t, float64(1), out["average_rating"])
}

func TestRunPipelineMissingFileIsMissingInput(t *testing.T) {
	cfgPath := writeTestConfig(t)
	var stdout, stderr bytes.Buffer
	code := run([]string{"pipeline", "--config", cfgPath, "no-such-file.yaml"}, &stdout, &stderr)
	assert.Equal(t, exitMissingInput, code)
}
