// Package config loads configuration for the edge server and the docstore from
// flags, environment variables and an optional .env file.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Remote backends.
const (
	BackendHTTP     = "http"
	BackendEmbedded = "embedded"
)

// Connectivity sources.
const (
	SourceAuto           = "auto"
	SourceNetworkManager = "networkmanager"
	SourceProbe          = "probe"
	SourceNone           = "none"
)

// Config holds the application configuration.
type Config struct {
	App          AppConfig
	Logger       LoggerConfig
	Server       ServerConfig
	Cache        CacheConfig
	Remote       RemoteConfig
	Connectivity ConnectivityConfig
	Sync         SyncConfig
	Auth         AuthConfig
	Blob         BlobConfig
	Search       SearchConfig
	DocStore     DocStoreConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
	DataPath    string // root for every on-disk path that is not set explicitly
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// ServerConfig configures the edge HTTP API.
type ServerConfig struct {
	Port         string
	PublicURL    string // base for blob URLs handed to clients
	CORSOrigins  []string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// CacheConfig configures the local Badger store.
type CacheConfig struct {
	Path string
}

// RemoteConfig selects and configures the remote document store.
type RemoteConfig struct {
	Backend string // http or embedded
	URL     string
	APIKey  string
	Timeout time.Duration
}

// ConnectivityConfig configures reachability monitoring.
type ConnectivityConfig struct {
	Source        string
	ProbeAddress  string // host:port; derived from Remote.URL when empty
	ProbeInterval time.Duration
}

// SyncConfig configures background refreshes.
type SyncConfig struct {
	RefreshTimeout time.Duration
	ShutdownGrace  time.Duration
}

// AuthConfig configures token issuance.
type AuthConfig struct {
	KeyPath       string // PASETO v4 local key, created on first start
	TokenDuration time.Duration
	SignInRate    float64 // attempts per second per client
	SignInBurst   int
}

// BlobConfig configures image storage.
type BlobConfig struct {
	Path     string
	MaxBytes int64
}

// SearchConfig configures the tool search index.
type SearchConfig struct {
	Path string
}

// DocStoreConfig configures cmd/docstore.
type DocStoreConfig struct {
	Port     string
	DBPath   string
	APIKey   string
	MaxConns int // concurrent connections accepted; 0 means unlimited
}

// LoadConfig loads configuration with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values.
func LoadConfig(args []string) (*Config, error) {
	fs := flag.NewFlagSet("toollender", flag.ContinueOnError)

	env := fs.String("env", "", "Environment (development, staging, production)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	dataPath := fs.String("data-path", "", "Base directory for local data")
	envFile := fs.String("env-file", ".env", "Path to .env file")

	port := fs.String("port", "", "Edge server port (default: 8080)")
	publicURL := fs.String("public-url", "", "Public base URL of the edge server")
	corsOrigins := fs.String("cors-origins", "", "Comma separated allowed CORS origins")

	cachePath := fs.String("cache-path", "", "Local cache directory")

	remoteBackend := fs.String("remote-backend", "", "Remote store backend (http, embedded)")
	remoteURL := fs.String("remote-url", "", "Docstore base URL")
	remoteAPIKey := fs.String("remote-api-key", "", "Docstore API key")
	remoteTimeout := fs.String("remote-timeout", "", "Remote request timeout (default: 10s)")

	connSource := fs.String("connectivity", "", "Connectivity source (auto, networkmanager, probe, none)")
	probeAddr := fs.String("probe-address", "", "host:port probed for reachability")
	probeInterval := fs.String("probe-interval", "", "Probe interval (default: 15s)")

	refreshTimeout := fs.String("refresh-timeout", "", "Background refresh timeout (default: 20s)")

	docPort := fs.String("docstore-port", "", "Docstore port (default: 8090)")
	docDB := fs.String("docstore-db", "", "Docstore SQLite file")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	// Missing .env is fine.
	_ = loadEnvFile(*envFile)

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
			DataPath:    getConfigValue(*dataPath, "DATA_PATH", ""),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Server: ServerConfig{
			Port:        getConfigValue(*port, "SERVER_PORT", "8080"),
			PublicURL:   getConfigValue(*publicURL, "SERVER_PUBLIC_URL", ""),
			CORSOrigins: splitList(getConfigValue(*corsOrigins, "CORS_ORIGINS", "*")),
		},
		Cache: CacheConfig{
			Path: getConfigValue(*cachePath, "CACHE_PATH", ""),
		},
		Remote: RemoteConfig{
			Backend: getConfigValue(*remoteBackend, "REMOTE_BACKEND", BackendHTTP),
			URL:     getConfigValue(*remoteURL, "REMOTE_URL", "http://127.0.0.1:8090"),
			APIKey:  getConfigValue(*remoteAPIKey, "REMOTE_API_KEY", ""),
		},
		Connectivity: ConnectivityConfig{
			Source:       getConfigValue(*connSource, "CONNECTIVITY_SOURCE", SourceAuto),
			ProbeAddress: getConfigValue(*probeAddr, "CONNECTIVITY_PROBE_ADDRESS", ""),
		},
		Auth: AuthConfig{
			KeyPath:     getConfigValue("", "AUTH_KEY_PATH", ""),
			SignInRate:  getFloatConfigValue("", "AUTH_SIGNIN_RATE", 0.2),
			SignInBurst: getIntConfigValue("", "AUTH_SIGNIN_BURST", 5),
		},
		Blob: BlobConfig{
			Path:     getConfigValue("", "BLOB_PATH", ""),
			MaxBytes: int64(getIntConfigValue("", "BLOB_MAX_BYTES", 8<<20)),
		},
		Search: SearchConfig{
			Path: getConfigValue("", "SEARCH_PATH", ""),
		},
		DocStore: DocStoreConfig{
			Port:     getConfigValue(*docPort, "DOCSTORE_PORT", "8090"),
			DBPath:   getConfigValue(*docDB, "DOCSTORE_DB", ""),
			APIKey:   getConfigValue("", "DOCSTORE_API_KEY", ""),
			MaxConns: getIntConfigValue("", "DOCSTORE_MAX_CONNS", 256),
		},
	}

	durations := []struct {
		flagValue, envKey, def string
		dst                    *time.Duration
	}{
		{"", "SERVER_READ_TIMEOUT", "15s", &cfg.Server.ReadTimeout},
		{"", "SERVER_WRITE_TIMEOUT", "0s", &cfg.Server.WriteTimeout}, // SSE streams stay open
		{"", "SERVER_IDLE_TIMEOUT", "60s", &cfg.Server.IdleTimeout},
		{*remoteTimeout, "REMOTE_TIMEOUT", "10s", &cfg.Remote.Timeout},
		{*probeInterval, "CONNECTIVITY_PROBE_INTERVAL", "15s", &cfg.Connectivity.ProbeInterval},
		{*refreshTimeout, "SYNC_REFRESH_TIMEOUT", "20s", &cfg.Sync.RefreshTimeout},
		{"", "SYNC_SHUTDOWN_GRACE", "5s", &cfg.Sync.ShutdownGrace},
		{"", "AUTH_TOKEN_DURATION", "720h", &cfg.Auth.TokenDuration},
	}
	for _, d := range durations {
		raw := getConfigValue(d.flagValue, d.envKey, d.def)
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", d.envKey, raw, err)
		}
		*d.dst = parsed
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, fmt.Errorf("expand paths: %w", err)
	}
	if cfg.Connectivity.ProbeAddress == "" {
		cfg.Connectivity.ProbeAddress = probeAddressFromURL(cfg.Remote.URL)
	}
	if cfg.Server.PublicURL == "" {
		cfg.Server.PublicURL = "http://localhost:" + cfg.Server.Port
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks that all config values are usable.
func (c *Config) Validate() error {
	switch c.App.Environment {
	case "development", "staging", "production":
	case "":
		return errors.New("ENV is required")
	default:
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	switch strings.ToLower(c.Logger.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	switch c.Remote.Backend {
	case BackendHTTP:
		if _, err := url.ParseRequestURI(c.Remote.URL); err != nil {
			return fmt.Errorf("invalid remote url %q: %w", c.Remote.URL, err)
		}
	case BackendEmbedded:
	default:
		return fmt.Errorf("invalid remote backend: %s (must be http or embedded)", c.Remote.Backend)
	}

	switch c.Connectivity.Source {
	case SourceAuto, SourceNetworkManager, SourceProbe, SourceNone:
	default:
		return fmt.Errorf("invalid connectivity source: %s", c.Connectivity.Source)
	}
	if c.Connectivity.ProbeInterval <= 0 {
		return errors.New("probe interval must be positive")
	}

	if c.Sync.RefreshTimeout <= 0 {
		return errors.New("refresh timeout must be positive")
	}
	if c.App.DataPath == "" {
		return errors.New("data path cannot be empty after expansion")
	}
	if c.Blob.MaxBytes <= 0 {
		return errors.New("blob max bytes must be positive")
	}
	return nil
}

// expandPaths resolves DataPath and derives every unset path beneath it.
func (c *Config) expandPaths() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	if c.App.DataPath, err = expandPath(c.App.DataPath, filepath.Join(home, ".toollender")); err != nil {
		return err
	}

	paths := []struct {
		dst *string
		def string
	}{
		{&c.Cache.Path, "cache"},
		{&c.Blob.Path, "blobs"},
		{&c.Search.Path, "search"},
		{&c.Auth.KeyPath, "auth.key"},
		{&c.DocStore.DBPath, "docstore.db"},
	}
	for _, p := range paths {
		if *p.dst, err = expandPath(*p.dst, filepath.Join(c.App.DataPath, p.def)); err != nil {
			return err
		}
	}
	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty, defaultPath is returned as is.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}
	if !filepath.IsAbs(path) {
		abs, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = abs
	}
	return filepath.Clean(path), nil
}

func probeAddressFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	if u.Port() != "" {
		return u.Host
	}
	port := "80"
	if u.Scheme == "https" {
		port = "443"
	}
	return net.JoinHostPort(u.Hostname(), port)
}

func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}

func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	raw := getConfigValue(flagValue, envKey, "")
	n, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return n
}

func getFloatConfigValue(flagValue, envKey string, defaultValue float64) float64 {
	raw := getConfigValue(flagValue, envKey, "")
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return defaultValue
	}
	return f
}

// loadEnvFile loads KEY=value lines from path. Variables already present in
// the environment are left alone.
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- path comes from the operator
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}
