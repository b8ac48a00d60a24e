package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile_Success(t *testing.T) {
	out, _, err := executeCommand(t, "", "compile", "count!(>4, 3)")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Compiled: count!(>4, 3)")
	assert.Contains(t, out, "State cells:")
}

func TestCompile_AST(t *testing.T) {
	out, _, err := executeCommand(t, "", "compile", "filter(>3).sum().meet(>10)", "--ast")
	require.NoError(t, err)
	assert.Contains(t, out, "AST:")
	assert.Contains(t, out, "filter")
}

func TestCompile_FromFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "rule.px", "<1, 2>\n")

	out, _, err := executeCommand(t, "", "compile", "-f", path)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Compiled: <1, 2>")
}

func TestCompile_JSON(t *testing.T) {
	out, _, err := executeCommand(t, "", "compile", "count(>4, 3)", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Source string `json:"source"`
			Cells  []struct {
				Key  string `json:"key"`
				Kind string `json:"kind"`
			} `json:"cells"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "count(>4, 3)", resp.Data.Source)
	assert.NotEmpty(t, resp.Data.Cells)
}

func TestCompile_SyntaxErrorRendersCaret(t *testing.T) {
	out, _, err := executeCommand(t, "", "compile", "filter(>3,")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗")
	assert.Contains(t, out, "syntax error")
	assert.Contains(t, out, "^")
}

func TestCompile_ChainErrorJSON(t *testing.T) {
	out, _, err := executeCommand(t, "", "compile", "filter(>3).sum()", "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "C303", resp.Error.Code)

	details, ok := resp.Error.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "chain", details["phase"])
}

func TestCompile_NoSource(t *testing.T) {
	_, _, err := executeCommand(t, "", "compile")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCompile_SourceAndFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "rule.px", ">3")

	_, _, err := executeCommand(t, "", "compile", ">4", "-f", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
