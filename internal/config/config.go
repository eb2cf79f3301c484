// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package config handles the optional daemon configuration file. The
// rule files are not configuration; they are state, owned by the store.
package config

import (
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/zclconf/go-cty/cty"

	"grimm.is/midimind/internal/errors"
	"grimm.is/midimind/internal/logging"
)

// DefaultPath is where the daemon looks when no -config flag is given.
const DefaultPath = "/etc/midimind/midimind.hcl"

// Config is the daemon configuration. Everything is optional; the zero
// value runs a fully functional daemon. The STATE_DIRECTORY and
// RUNTIME_DIRECTORY environment variables override the directory fields.
type Config struct {
	LogLevel  string `hcl:"log_level,optional"`
	LogFormat string `hcl:"log_format,optional"`

	StateDir   string `hcl:"state_dir,optional"`
	RuntimeDir string `hcl:"runtime_dir,optional"`

	// MetricsListen enables the metrics/health HTTP listener when set,
	// e.g. "127.0.0.1:9143".
	MetricsListen string `hcl:"metrics_listen,optional"`

	Syslog *logging.SyslogConfig `hcl:"syslog,block"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		LogLevel:  logging.LevelInfo,
		LogFormat: "text",
	}
}

// evalContext exposes the built-in path defaults to expressions in the
// file, so overrides can be written relative to them.
func evalContext() *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"default_state_dir":   cty.StringVal("/var/lib/midimind"),
			"default_runtime_dir": cty.StringVal("/run/midimind"),
		},
	}
}

// Load reads the configuration file at path. A missing file is not an
// error: the defaults are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if err := hclsimple.DecodeFile(path, evalContext(), cfg); err != nil {
		return nil, errors.Wrapf(err, errors.KindValidation, "failed to decode config %s", path)
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = logging.LevelInfo
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	return cfg, nil
}

// LoadBytes parses configuration from memory, for tests and validation.
func LoadBytes(filename string, src []byte) (*Config, error) {
	cfg := Default()
	if err := hclsimple.Decode(filename, src, evalContext(), cfg); err != nil {
		return nil, errors.Wrapf(err, errors.KindValidation, "failed to decode config %s", filename)
	}
	return cfg, nil
}
