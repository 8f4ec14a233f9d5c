package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Valid(t *testing.T) {
	stdout, _, err := execute(t, "validate", missionDefs)
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓ Definitions valid: 2 container(s), 3 command(s)")
}

func TestValidate_ValidJSON(t *testing.T) {
	stdout, _, err := execute(t, "--format", "json", "validate", missionDefs)
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, 1, resp.Data.Files)
	assert.Empty(t, resp.Data.Errors)
}

func TestValidate_Warnings(t *testing.T) {
	stdout, _, err := execute(t, "validate", "testdata/warning.cue")
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓ Definitions valid")
	assert.Contains(t, stdout, `warning: /SC/state: duplicate enumeration label "OFF"`)
}

func TestValidate_StrictFlag(t *testing.T) {
	stdout, _, err := execute(t, "validate", "testdata/warning.cue", "--strict")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "✗ Validation failed")
	assert.Contains(t, stdout, "E301")
}

func TestValidate_StrictFromConfig(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "mdbgen.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("strict = true\n"), 0o644))

	stdout, _, err := execute(t, "--config", cfgPath, "--format", "json", "validate", "testdata/warning.cue")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeWarning, resp.Error.Code)
}

func TestValidate_DefinitionErrors(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		wantCode string
		wantPos  bool
	}{
		{"overlap", "testdata/overlap.cue", ErrCodeOverlap, false},
		{"length entry", "testdata/length.cue", ErrCodeLengthEntry, false},
		{"syntax", "testdata/syntax.cue", "E006", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdout, _, err := execute(t, "validate", tt.path)
			require.Error(t, err)
			assert.Equal(t, ExitFailure, GetExitCode(err))
			assert.Contains(t, stdout, "✗ Validation failed")
			assert.Contains(t, stdout, tt.wantCode+":")
			if tt.wantPos {
				assert.Contains(t, stdout, tt.path+":")
			}
		})
	}
}

func TestValidate_UnknownType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "defs.cue")
	defs := `space_system: SC: {
	parameters: p: type: "u9"
}
`
	require.NoError(t, os.WriteFile(path, []byte(defs), 0o644))

	stdout, _, err := execute(t, "--format", "json", "validate", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Data ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	require.Len(t, resp.Data.Errors, 1)
	assert.False(t, resp.Data.Valid)
}

func TestValidate_MissingPath(t *testing.T) {
	stdout, _, err := execute(t, "validate", "/nonexistent/definitions")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout, "Error [E005]")
}
