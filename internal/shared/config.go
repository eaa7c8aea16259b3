package shared

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Source      SourceConfig      `toml:"source"`
	Destination DestinationConfig `toml:"destination"`
	Database    DatabaseConfig    `toml:"database"`
	Transfer    TransferConfig    `toml:"transfer"`
	Server      ServerConfig      `toml:"server"`
	Lock        LockConfig        `toml:"lock"`
	Log         LogConfig         `toml:"log"`
	Telemetry   TelemetryConfig   `toml:"telemetry"`
}

// SourceConfig contains YouTube Data API settings.
type SourceConfig struct {
	APIKey         string   `toml:"api_key"`
	ChannelID      string   `toml:"channel_id"`
	BaseURL        string   `toml:"base_url"`
	PageSize       int      `toml:"page_size"`
	RateLimit      float64  `toml:"rate_limit"`
	Downloader     string   `toml:"downloader"`
	DownloaderArgs []string `toml:"downloader_args"`
}

// DestinationConfig contains PeerTube instance credentials and the transfer mode.
type DestinationConfig struct {
	Instance  string  `toml:"instance"`
	Username  string  `toml:"username"`
	Password  string  `toml:"password"`
	ChannelID string  `toml:"channel_id"`
	Mode      string  `toml:"mode"`
	RateLimit float64 `toml:"rate_limit"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// TransferConfig controls the worker pool and the retry policy.
type TransferConfig struct {
	Workers        int      `toml:"workers"`
	ItemLimit      int      `toml:"item_limit"`
	MaxAttempts    int      `toml:"max_attempts"`
	InitialBackoff Duration `toml:"initial_backoff"`
	MaxBackoff     Duration `toml:"max_backoff"`
	StagingDir     string   `toml:"staging_dir"`
	KeepStaged     bool     `toml:"keep_staged"`
	RetryFailed    bool     `toml:"retry_failed"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// LockConfig configures the per-item transfer lock.
//
// An empty RedisURL keeps locks inside the process.
type LockConfig struct {
	RedisURL string   `toml:"redis_url"`
	TTL      Duration `toml:"ttl"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// TelemetryConfig controls OpenTelemetry traces and metrics.
//
// Exporter is "stdout" or "none"; with "none" metrics are still collected for the run summary.
type TelemetryConfig struct {
	Enabled     bool   `toml:"enabled"`
	Exporter    string `toml:"exporter"`
	ServiceName string `toml:"service_name"`
}

// Duration wraps [time.Duration] so it can be written as "30s" in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: duration %q: %v", ErrInvalidConfig, string(text), err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements [encoding.TextMarshaler].
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Addr returns the host:port pair the HTTP server listens on.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks the fields a migration run cannot do without.
func (c *Config) Validate() error {
	var missing []string
	if c.Source.APIKey == "" {
		missing = append(missing, "source.api_key")
	}
	if c.Destination.Instance == "" {
		missing = append(missing, "destination.instance")
	}
	if c.Destination.Username == "" || c.Destination.Password == "" {
		missing = append(missing, "destination.username/password")
	}
	if c.Destination.ChannelID == "" {
		missing = append(missing, "destination.channel_id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingConfig, strings.Join(missing, ", "))
	}

	switch c.Destination.Mode {
	case "upload", "import":
	default:
		return fmt.Errorf("%w: destination.mode must be upload or import, got %q", ErrInvalidConfig, c.Destination.Mode)
	}

	if c.Transfer.Workers < 1 {
		return fmt.Errorf("%w: transfer.workers must be at least 1", ErrInvalidConfig)
	}
	if c.Transfer.MaxAttempts < 1 {
		return fmt.Errorf("%w: transfer.max_attempts must be at least 1", ErrInvalidConfig)
	}

	return nil
}
