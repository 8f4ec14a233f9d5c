package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, FormatXTCE, cfg.Format)
	assert.Positive(t, cfg.Workers())
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "mdbgen.yaml", `
format: json
indent: "    "
top_comment: generated
parallelism: 4
strict: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Config{
		Format:      FormatJSON,
		Indent:      "    ",
		TopComment:  "generated",
		Parallelism: 4,
		Strict:      true,
	}, cfg)
	assert.Equal(t, 4, cfg.Workers())
}

func TestLoad_TOML(t *testing.T) {
	path := writeFile(t, "mdbgen.toml", `
format = "cbor"
schema_location = "http://www.omg.org/spec/XTCE/20180204 SpaceSystem.xsd"
output = "out.cbor"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, FormatCBOR, cfg.Format)
	assert.Equal(t, "out.cbor", cfg.Output)
	assert.Equal(t, "  ", cfg.Indent, "unset keys keep their defaults")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "mdbgen.yml", "format: json\nparallelism: 2\n")
	t.Setenv("MDBGEN_FORMAT", "xtce")
	t.Setenv("MDBGEN_STRICT", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, FormatXTCE, cfg.Format)
	assert.True(t, cfg.Strict)
	assert.Equal(t, 2, cfg.Parallelism)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		content  string
		contains string
	}{
		{"unknown yaml key", "c.yaml", "colour: red\n", "colour"},
		{"unknown toml key", "c.toml", "colour = \"red\"\n", `unknown key "colour"`},
		{"unsupported extension", "c.ini", "format=json\n", "unsupported extension"},
		{"unknown format", "c.yaml", "format: pdf\n", `unknown format "pdf"`},
		{"negative parallelism", "c.toml", "parallelism = -1\n", "must not be negative"},
		{"bad indent", "c.yaml", "indent: xx\n", "indent"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.file, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestLoad_BadEnv(t *testing.T) {
	t.Setenv("MDBGEN_PARALLELISM", "many")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
