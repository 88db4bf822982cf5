package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrisnestrud/PlayPalace11/packet"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 15*time.Second, cfg.AuthorizeTimeout)
	assert.Equal(t, 5*time.Second, cfg.JoinTimeout)
	assert.Equal(t, packet.DefaultProtocolVersion, cfg.ProtocolVersion)
	assert.False(t, cfg.DebugPackets)
}

func TestParse(t *testing.T) {
	t.Setenv("PP_TEST_ROOT", "/srv/palace")
	cfg, err := Parse([]byte(`
data_dir: ${PP_TEST_ROOT}/data
log_level: debug
log_format: json
debug_packets: true
authorize_timeout: 30s
protocol_version:
  major: 11
  minor: 2
  patch: 1
`))
	require.NoError(t, err)
	assert.Equal(t, "/srv/palace/data", cfg.DataDir)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.DebugPackets)
	assert.Equal(t, 30*time.Second, cfg.AuthorizeTimeout)
	assert.Equal(t, 5*time.Second, cfg.JoinTimeout, "unset keys keep defaults")
	assert.Equal(t, packet.ProtocolVersion{Major: 11, Minor: 2, Patch: 1}, cfg.ProtocolVersion)
	assert.Equal(t, "/srv/palace/data/profile.db", cfg.ProfilePath())
	assert.Equal(t, "/srv/palace/data/master.key", cfg.KeyPath())
}

func TestExpandVarsDefault(t *testing.T) {
	cfg, err := Parse([]byte("data_dir: ${PP_TEST_UNSET_VAR:-/tmp/fallback}\n"))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/fallback", cfg.DataDir)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad level", "log_level: loud", "log_level"},
		{"bad format", "log_format: xml", "log_format"},
		{"zero timeout", "authorize_timeout: 0s", "authorize_timeout"},
		{"negative join", "join_timeout: -1s", "join_timeout"},
		{"negative version", "protocol_version: {major: -1}", "protocol_version"},
		{"empty data dir", `data_dir: ""`, "data_dir"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseMalformed(t *testing.T) {
	_, err := Parse([]byte("authorize_timeout: [1, 2"))
	require.Error(t, err)
}

func TestLoad(t *testing.T) {
	t.Run("no file", func(t *testing.T) {
		t.Setenv(EnvVar, "")
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("env var", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "palace.yaml")
		require.NoError(t, os.WriteFile(path, []byte("log_level: warn\n"), 0o600))
		t.Setenv(EnvVar, path)
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "warn", cfg.LogLevel)
	})

	t.Run("flag wins over env", func(t *testing.T) {
		dir := t.TempDir()
		flagPath := filepath.Join(dir, "flag.yaml")
		require.NoError(t, os.WriteFile(flagPath, []byte("log_level: error\n"), 0o600))
		t.Setenv(EnvVar, filepath.Join(dir, "missing.yaml"))
		cfg, err := Load(flagPath)
		require.NoError(t, err)
		assert.Equal(t, "error", cfg.LogLevel)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestLogger(t *testing.T) {
	cfg := Default()
	cfg.LogFormat = "json"
	cfg.LogLevel = "warn"

	var buf bytes.Buffer
	logger, err := cfg.Logger(&buf)
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("shown", "server_id", "s1")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"server_id":"s1"`)
}
