package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passingScenario = `
name: high
description: "values above 80 match"
rule: ">80"
events:
  - value: 1
  - value: 90
expect: [false, true]
`

const failingScenario = `
name: wrong
description: "expects a match that never happens"
rule: ">80"
events:
  - value: 1
expect: [true]
`

func TestTest_AllPass(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "high.yaml", passingScenario)

	out, _, err := executeCommand(t, "", "test", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ high")
	assert.Contains(t, out, "Test Summary: 1 passed, 0 failed, 1 total")
}

func TestTest_Failure(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "high.yaml", passingScenario)
	writeFile(t, dir, "wrong.yaml", failingScenario)

	out, _, err := executeCommand(t, "", "test", dir, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 1, resp.Data.Passed)
	assert.Equal(t, 1, resp.Data.Failed)
	require.Len(t, resp.Data.Scenarios, 2)
	assert.Equal(t, "wrong", resp.Data.Scenarios[1].Name)
	assert.NotEmpty(t, resp.Data.Scenarios[1].Errors)
}

func TestTest_Filter(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "high.yaml", passingScenario)
	writeFile(t, dir, "wrong.yaml", failingScenario)

	out, _, err := executeCommand(t, "", "test", dir, "--filter", "hi*")
	require.NoError(t, err)
	assert.Contains(t, out, "1 total")
}

func TestTest_GoldenUpdateAndCompare(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "high.yaml", passingScenario)

	out, _, err := executeCommand(t, "", "test", dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ high (golden updated)")

	golden := filepath.Join(dir, "golden", "high.golden")
	data, err := os.ReadFile(golden)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"scenario":"high"`)

	_, _, err = executeCommand(t, "", "test", dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(golden, []byte("{}"), 0o644))
	out, _, err = executeCommand(t, "", "test", dir)
	require.Error(t, err)
	assert.Contains(t, out, "trace does not match golden file")
}

func TestTest_CompileErrorScenario(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.yaml", `
name: bad_chain
description: "sum must be followed by meet"
rule: "filter(>3).sum()"
compile_error: {phase: chain, code: C303}
`)

	out, _, err := executeCommand(t, "", "test", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ bad_chain")
}

func TestTest_NoScenarios(t *testing.T) {
	out, _, err := executeCommand(t, "", "test", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestTest_MissingDir(t *testing.T) {
	_, _, err := executeCommand(t, "", "test", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
