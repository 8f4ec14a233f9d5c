// Package config holds generator settings. Values come from defaults,
// then an optional YAML or TOML file, then MDBGEN_* environment
// variables; command-line flags are applied last by the CLI.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Document formats accepted by Config.Format.
const (
	FormatXTCE = "xtce"
	FormatJSON = "json"
	FormatCBOR = "cbor"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "MDBGEN_"

// Config is the generator configuration.
type Config struct {
	// Format of the compiled document: xtce, json or cbor.
	Format string `yaml:"format" toml:"format" env:"FORMAT"`
	// Indent used by the XTCE and JSON renderings. Empty means compact.
	Indent         string `yaml:"indent" toml:"indent" env:"INDENT"`
	TopComment     string `yaml:"top_comment" toml:"top_comment" env:"TOP_COMMENT"`
	SchemaLocation string `yaml:"schema_location" toml:"schema_location" env:"SCHEMA_LOCATION"`
	// Parallelism bounds concurrent layout resolution. Zero means one
	// worker per CPU.
	Parallelism int `yaml:"parallelism" toml:"parallelism" env:"PARALLELISM"`
	// Strict turns tree warnings into failures.
	Strict bool   `yaml:"strict" toml:"strict" env:"STRICT"`
	Output string `yaml:"output" toml:"output" env:"OUTPUT"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Format: FormatXTCE,
		Indent: "  ",
	}
}

// Load reads the file at path over the defaults, then applies MDBGEN_*
// environment variables. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("load config %s: %w", path, err)
		}
	case ".toml":
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return fmt.Errorf("load config %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("load config %s: unknown key %q", path, undecoded[0].String())
		}
	default:
		return fmt.Errorf("load config %s: unsupported extension (want .yaml, .yml or .toml)", path)
	}
	return nil
}

// Validate rejects unknown formats and negative parallelism.
func (c Config) Validate() error {
	switch c.Format {
	case FormatXTCE, FormatJSON, FormatCBOR:
	default:
		return fmt.Errorf("config: unknown format %q (want xtce, json or cbor)", c.Format)
	}
	if c.Parallelism < 0 {
		return fmt.Errorf("config: parallelism must not be negative, got %d", c.Parallelism)
	}
	if strings.Trim(c.Indent, " \t") != "" {
		return fmt.Errorf("config: indent may only contain spaces and tabs")
	}
	return nil
}

// Workers returns the effective layout parallelism.
func (c Config) Workers() int {
	if c.Parallelism == 0 {
		return runtime.GOMAXPROCS(0)
	}
	return c.Parallelism
}
