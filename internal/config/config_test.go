package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		App:          AppConfig{Environment: "development", DataPath: "/var/lib/toollender"},
		Logger:       LoggerConfig{Level: "info"},
		Remote:       RemoteConfig{Backend: BackendHTTP, URL: "http://docstore:8090"},
		Connectivity: ConnectivityConfig{Source: SourceAuto, ProbeInterval: time.Second},
		Sync:         SyncConfig{RefreshTimeout: time.Second},
		Blob:         BlobConfig{MaxBytes: 1024},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown environment", func(c *Config) { c.App.Environment = "test" }},
		{"environment is case sensitive", func(c *Config) { c.App.Environment = "PRODUCTION" }},
		{"empty environment", func(c *Config) { c.App.Environment = "" }},
		{"bad log level", func(c *Config) { c.Logger.Level = "trace" }},
		{"bad backend", func(c *Config) { c.Remote.Backend = "grpc" }},
		{"bad remote url", func(c *Config) { c.Remote.URL = "docstore" }},
		{"bad connectivity source", func(c *Config) { c.Connectivity.Source = "wifi" }},
		{"zero probe interval", func(c *Config) { c.Connectivity.ProbeInterval = 0 }},
		{"zero refresh timeout", func(c *Config) { c.Sync.RefreshTimeout = 0 }},
		{"empty data path", func(c *Config) { c.App.DataPath = "" }},
		{"zero blob size", func(c *Config) { c.Blob.MaxBytes = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_EmbeddedIgnoresURL(t *testing.T) {
	cfg := validConfig()
	cfg.Remote.Backend = BackendEmbedded
	cfg.Remote.URL = ""

	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_DefaultsDeriveFromDataPath(t *testing.T) {
	for _, key := range []string{"ENV", "LOG_LEVEL", "CACHE_PATH", "BLOB_PATH", "SEARCH_PATH", "REMOTE_URL", "REMOTE_BACKEND", "SERVER_PORT", "SERVER_PUBLIC_URL"} {
		t.Setenv(key, "")
	}
	dir := t.TempDir()

	cfg, err := LoadConfig([]string{"-data-path", dir, "-env-file", filepath.Join(dir, "missing.env")})
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.App.Environment)
	assert.Equal(t, filepath.Join(dir, "cache"), cfg.Cache.Path)
	assert.Equal(t, filepath.Join(dir, "blobs"), cfg.Blob.Path)
	assert.Equal(t, filepath.Join(dir, "auth.key"), cfg.Auth.KeyPath)
	assert.Equal(t, "127.0.0.1:8090", cfg.Connectivity.ProbeAddress)
	assert.Equal(t, "http://localhost:8080", cfg.Server.PublicURL)
	assert.Equal(t, 20*time.Second, cfg.Sync.RefreshTimeout)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
}

func TestLoadConfig_FlagBeatsEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("REMOTE_TIMEOUT", "3s")
	dir := t.TempDir()

	cfg, err := LoadConfig([]string{"-data-path", dir, "-log-level", "debug", "-env-file", filepath.Join(dir, "none")})
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, 3*time.Second, cfg.Remote.Timeout)
}

func TestLoadConfig_InvalidDuration(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadConfig([]string{"-data-path", dir, "-refresh-timeout", "soon", "-env-file", filepath.Join(dir, "none")})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "SYNC_REFRESH_TIMEOUT")
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := expandPath("", "/default")
	require.NoError(t, err)
	assert.Equal(t, "/default", got)

	got, err = expandPath("~/tools", "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "tools"), got)

	got, err = expandPath("/srv/tools/../cache", "")
	require.NoError(t, err)
	assert.Equal(t, "/srv/cache", got)

	got, err = expandPath("relative", "")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got))
}

func TestProbeAddressFromURL(t *testing.T) {
	assert.Equal(t, "docs.example.org:443", probeAddressFromURL("https://docs.example.org/base"))
	assert.Equal(t, "10.0.0.2:80", probeAddressFromURL("http://10.0.0.2"))
	assert.Equal(t, "db:8090", probeAddressFromURL("http://db:8090"))
	assert.Empty(t, probeAddressFromURL("::bad"))
}

func TestGetConfigValue_Precedence(t *testing.T) {
	t.Setenv("TEST_CONFIG_KEY", "env-value")

	assert.Equal(t, "flag-value", getConfigValue("flag-value", "TEST_CONFIG_KEY", "default"))
	assert.Equal(t, "env-value", getConfigValue("", "TEST_CONFIG_KEY", "default"))
	assert.Equal(t, "default", getConfigValue("", "TEST_CONFIG_MISSING", "default"))
}

func TestLoadEnvFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	content := `# comment
TL_QUOTED="some value"

  TL_SPACED  =  spaced out
TL_KEEP=from-file
`
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o600))

	t.Setenv("TL_QUOTED", "")
	t.Setenv("TL_SPACED", "")
	t.Setenv("TL_KEEP", "from-env")

	require.NoError(t, loadEnvFile(envFile))

	assert.Equal(t, "some value", os.Getenv("TL_QUOTED"))
	assert.Equal(t, "spaced out", os.Getenv("TL_SPACED"))
	assert.Equal(t, "from-env", os.Getenv("TL_KEEP"))
}

func TestLoadEnvFile_InvalidFormat(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("OK=1\nNOT A PAIR\n"), 0o600))

	err := loadEnvFile(envFile)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format at line 2")
}
