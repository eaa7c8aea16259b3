package shared

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.Database.Path != "./yt2pt.db" {
			t.Errorf("expected database path ./yt2pt.db, got %s", config.Database.Path)
		}

		if config.Server.Port != 3000 {
			t.Errorf("expected server port 3000, got %d", config.Server.Port)
		}

		if config.Destination.Mode != "upload" {
			t.Errorf("expected destination mode upload, got %s", config.Destination.Mode)
		}

		if config.Transfer.Workers != 2 {
			t.Errorf("expected 2 workers, got %d", config.Transfer.Workers)
		}

		if config.Transfer.MaxBackoff.Duration != 30*time.Second {
			t.Errorf("expected max backoff 30s, got %s", config.Transfer.MaxBackoff)
		}

		if config.Source.PageSize != 50 {
			t.Errorf("expected page size 50, got %d", config.Source.PageSize)
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		info, err := os.Stat(configPath)
		if err != nil {
			t.Fatalf("config file should exist: %v", err)
		}
		if info.Mode().Perm() != 0600 {
			t.Errorf("expected config permissions 0600, got %v", info.Mode().Perm())
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}

		if config.Database.Path != DefaultConfig().Database.Path {
			t.Errorf("created config database path doesn't match default")
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("creating config file again should fail")
		}
	})

	t.Run("LoadConfig keeps defaults for missing keys", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		content := `
[destination]
instance = "https://tube.example.org"
mode = "import"

[transfer]
workers = 4
initial_backoff = "250ms"
`
		if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if config.Destination.Instance != "https://tube.example.org" {
			t.Errorf("expected instance override, got %s", config.Destination.Instance)
		}
		if config.Destination.Mode != "import" {
			t.Errorf("expected import mode, got %s", config.Destination.Mode)
		}
		if config.Transfer.Workers != 4 {
			t.Errorf("expected 4 workers, got %d", config.Transfer.Workers)
		}
		if config.Transfer.InitialBackoff.Duration != 250*time.Millisecond {
			t.Errorf("expected 250ms initial backoff, got %s", config.Transfer.InitialBackoff)
		}
		if config.Transfer.MaxAttempts != 3 {
			t.Errorf("expected default max attempts 3, got %d", config.Transfer.MaxAttempts)
		}
		if config.Server.Port != 3000 {
			t.Errorf("expected default port 3000, got %d", config.Server.Port)
		}
	})

	t.Run("LoadConfig rejects bad durations", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")
		if err := os.WriteFile(configPath, []byte("[transfer]\nmax_backoff = \"soon\"\n"), 0644); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		if _, err := LoadConfig(configPath); err == nil {
			t.Error("expected error for invalid duration")
		}
	})

	t.Run("LoadConfig missing file", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
			t.Error("expected error for missing config file")
		}
	})

	t.Run("Addr", func(t *testing.T) {
		s := ServerConfig{Host: "0.0.0.0", Port: 8081}
		if got := s.Addr(); got != "0.0.0.0:8081" {
			t.Errorf("Addr() = %q", got)
		}
	})
}

func TestConfigValidate(t *testing.T) {
	valid := func() *Config {
		c := DefaultConfig()
		c.Source.APIKey = "key"
		c.Destination.Instance = "https://tube.example.org"
		c.Destination.Username = "root"
		c.Destination.Password = "secret"
		c.Destination.ChannelID = "3"
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing api key", mutate: func(c *Config) { c.Source.APIKey = "" }, wantErr: ErrMissingConfig},
		{name: "missing instance", mutate: func(c *Config) { c.Destination.Instance = "" }, wantErr: ErrMissingConfig},
		{name: "missing password", mutate: func(c *Config) { c.Destination.Password = "" }, wantErr: ErrMissingConfig},
		{name: "missing channel", mutate: func(c *Config) { c.Destination.ChannelID = "" }, wantErr: ErrMissingConfig},
		{name: "unknown mode", mutate: func(c *Config) { c.Destination.Mode = "mirror" }, wantErr: ErrInvalidConfig},
		{name: "zero workers", mutate: func(c *Config) { c.Transfer.Workers = 0 }, wantErr: ErrInvalidConfig},
		{name: "zero attempts", mutate: func(c *Config) { c.Transfer.MaxAttempts = 0 }, wantErr: ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}
