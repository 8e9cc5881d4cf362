package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// FileEnv names the environment variable holding an optional TOML config path.
const FileEnv = "HOSTKIT_CONFIG"

// Config holds all host configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Storage   StorageConfig   `toml:"storage"`
	Logging   LogConfig       `toml:"logging"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
	Updater   UpdaterConfig   `toml:"updater"`
	Window    WindowConfig    `toml:"window"`

	// IsDev marks a development build. Auto-update is disabled in dev.
	IsDev bool `envconfig:"HOST_IS_DEV" toml:"is_dev"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port    string `envconfig:"PORT" toml:"port"`
	Host    string `envconfig:"HOST" toml:"host"`
	Enabled bool   `envconfig:"SERVER_ENABLED" toml:"enabled"`
}

// StorageConfig holds storage engine configuration.
type StorageConfig struct {
	Dir         string `envconfig:"STORAGE_DIR" toml:"dir"`
	Parallelism int    `envconfig:"STORAGE_PARALLELISM" toml:"parallelism"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level         string `envconfig:"LOG_LEVEL" toml:"level"`
	Development   bool   `envconfig:"LOG_DEV" toml:"development"`
	ToFile        bool   `envconfig:"LOG_TO_FILE" toml:"to_file"`
	Dir           string `envconfig:"LOG_DIR" toml:"dir"`
	RetentionDays int    `envconfig:"LOG_RETENTION_DAYS" toml:"retention_days"`
	FileHeader    bool   `envconfig:"LOG_FILE_HEADER" toml:"file_header"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" toml:"requests_per_second"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" toml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" toml:"enabled"`
}

// UpdaterConfig holds auto-update configuration.
type UpdaterConfig struct {
	FeedURL        string `envconfig:"UPDATE_FEED_URL" toml:"feed_url"`
	CurrentVersion string `envconfig:"APP_VERSION" toml:"current_version"`
	DownloadDir    string `envconfig:"UPDATE_DOWNLOAD_DIR" toml:"download_dir"`
	AutoDownload   bool   `envconfig:"UPDATE_AUTO_DOWNLOAD" toml:"auto_download"`
}

// WindowConfig holds window registry configuration.
type WindowConfig struct {
	StartURL string `envconfig:"WINDOW_START_URL" toml:"start_url"`
}

// Load builds configuration in three layers: defaults, then the TOML file at
// path (or $HOSTKIT_CONFIG when path is empty), then environment variables.
// Only variables that are set override the lower layers.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(FileEnv)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads configuration or returns the defaults on any error.
func LoadOrDefault() *Config {
	cfg, err := Load("")
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	base, err := os.UserConfigDir()
	if err != nil {
		base = os.TempDir()
	}
	root := filepath.Join(base, "hostkit")

	return &Config{
		Server: ServerConfig{
			Port:    "8000",
			Host:    "127.0.0.1",
			Enabled: true,
		},
		Storage: StorageConfig{
			Dir:         filepath.Join(root, "storage"),
			Parallelism: 8,
		},
		Logging: LogConfig{
			Level:         "info",
			Development:   false,
			ToFile:        false,
			Dir:           filepath.Join(root, "logs"),
			RetentionDays: 30,
			FileHeader:    true,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Updater: UpdaterConfig{
			CurrentVersion: "0.0.0",
			DownloadDir:    filepath.Join(root, "updates"),
		},
		Window: WindowConfig{
			StartURL: "http://localhost:3000",
		},
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	port, err := strconv.Atoi(c.Server.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid port %q", c.Server.Port)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error", "dpanic", "panic", "fatal":
	default:
		return fmt.Errorf("invalid log level %q", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return fmt.Errorf("invalid log retention %d days", c.Logging.RetentionDays)
	}
	if c.Storage.Parallelism < 1 {
		return fmt.Errorf("invalid storage parallelism %d", c.Storage.Parallelism)
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond < 1 || c.RateLimit.Burst < 1) {
		return fmt.Errorf("invalid rate limit %d rps, burst %d", c.RateLimit.RequestsPerSecond, c.RateLimit.Burst)
	}
	return nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}
