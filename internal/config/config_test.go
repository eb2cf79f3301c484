// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/midimind.hcl")
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.MetricsListen)
	assert.Nil(t, cfg.Syslog)
}

func TestLoadBytes(t *testing.T) {
	src := []byte(`
log_level      = "debug"
log_format     = "json"
metrics_listen = "127.0.0.1:9143"

syslog {
  enabled = true
  host    = "logs.example.net"
}
`)
	cfg, err := LoadBytes("midimind.hcl", src)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "127.0.0.1:9143", cfg.MetricsListen)
	require.NotNil(t, cfg.Syslog)
	assert.True(t, cfg.Syslog.Enabled)
	assert.Equal(t, "logs.example.net", cfg.Syslog.Host)
}

func TestPathVariables(t *testing.T) {
	src := []byte(`state_dir = "${default_state_dir}/test"` + "\n")
	cfg, err := LoadBytes("midimind.hcl", src)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/midimind/test", cfg.StateDir)
}

func TestBadConfigIsAnError(t *testing.T) {
	_, err := LoadBytes("midimind.hcl", []byte(`log_level = `))
	assert.Error(t, err)
}
