package shared

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{name: "short", in: "hello", n: 10, want: "hello"},
		{name: "exact", in: "hello", n: 5, want: "hello"},
		{name: "cut", in: "hello world", n: 6, want: "hello…"},
		{name: "runes", in: "héllo wörld", n: 4, want: "hél…"},
		{name: "one", in: "hello", n: 1, want: "…"},
		{name: "disabled", in: "hello", n: 0, want: "hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Truncate(tt.in, tt.n); got != tt.want {
				t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
			}
		})
	}
}

func TestSetLogLevelString(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf)

	if err := SetLogLevelString(logger, "DEBUG"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if logger.GetLevel() != log.DebugLevel {
		t.Errorf("expected debug level, got %v", logger.GetLevel())
	}

	if err := SetLogLevelString(logger, "chatty"); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
	if logger.GetLevel() != log.DebugLevel {
		t.Error("unknown level should leave the logger untouched")
	}

	if err := SetLogLevelString(logger, ""); err != nil {
		t.Errorf("empty level should be ignored, got %v", err)
	}
}

func TestWithLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := WithLogger(NewLogger(&buf), "item", "abc123")
	logger.Info("transfer started")

	if !strings.Contains(buf.String(), "item=abc123") {
		t.Errorf("expected key-value pair in output, got %q", buf.String())
	}
}

func TestNewFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "tui.log")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	logger.Info("run started")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected log file, got %v", err)
	}
	if !strings.Contains(string(data), "run started") {
		t.Errorf("expected message in log file, got %q", data)
	}
}

func TestGenerateID(t *testing.T) {
	a, b := GenerateID(), GenerateID()
	if a == b {
		t.Error("expected distinct IDs")
	}
	if len(a) != 36 {
		t.Errorf("expected uuid string, got %q", a)
	}
}

func TestEnv(t *testing.T) {
	t.Run("LoadEnvFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".env")
		content := "# comment\nexport YT2PT_TEST_A=\"alpha\"\nYT2PT_TEST_B='beta'\nnot a pair\nYT2PT_TEST_C=gamma\n"
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatalf("failed to write env file: %v", err)
		}
		t.Setenv("YT2PT_TEST_C", "preset")
		t.Cleanup(func() {
			os.Unsetenv("YT2PT_TEST_A")
			os.Unsetenv("YT2PT_TEST_B")
		})

		if err := LoadEnvFile(path); err != nil {
			t.Fatalf("LoadEnvFile failed: %v", err)
		}

		if got := os.Getenv("YT2PT_TEST_A"); got != "alpha" {
			t.Errorf("expected alpha, got %q", got)
		}
		if got := os.Getenv("YT2PT_TEST_B"); got != "beta" {
			t.Errorf("expected beta, got %q", got)
		}
		if got := os.Getenv("YT2PT_TEST_C"); got != "preset" {
			t.Errorf("existing variable should win, got %q", got)
		}
	})

	t.Run("LoadEnvFile missing file", func(t *testing.T) {
		if err := LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")); err != nil {
			t.Errorf("missing env file should not error, got %v", err)
		}
	})

	t.Run("ApplyEnv", func(t *testing.T) {
		t.Setenv("YOUTUBE_API_KEY", "env-key")
		t.Setenv("PEERTUBE_INSTANCE", "https://env.example.org")
		t.Setenv("YT2PT_DATABASE", "/tmp/env.db")

		c := DefaultConfig()
		c.Source.APIKey = "file-key"
		c.ApplyEnv()

		if c.Source.APIKey != "env-key" {
			t.Errorf("expected env api key, got %q", c.Source.APIKey)
		}
		if c.Destination.Instance != "https://env.example.org" {
			t.Errorf("expected env instance, got %q", c.Destination.Instance)
		}
		if c.Database.Path != "/tmp/env.db" {
			t.Errorf("expected env database path, got %q", c.Database.Path)
		}
	})
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestErrorClassification(t *testing.T) {
	var _ net.Error = timeoutErr{}

	tests := []struct {
		name      string
		err       error
		transient bool
		fatal     bool
	}{
		{name: "nil", err: nil},
		{name: "server error", err: NewStatusError(503, []byte("busy")), transient: true},
		{name: "rate limited", err: NewStatusError(429, nil), transient: true},
		{name: "request timeout", err: NewStatusError(408, nil), transient: true},
		{name: "bad request", err: NewStatusError(400, []byte("bad")), transient: false},
		{name: "wrapped status", err: fmt.Errorf("%w: %w", ErrRemoteTransfer, NewStatusError(422, nil)), transient: false},
		{name: "network", err: fmt.Errorf("dial: %w", timeoutErr{}), transient: true},
		{name: "remote transfer", err: fmt.Errorf("%w: stream closed", ErrRemoteTransfer), transient: true},
		{name: "rejected", err: fmt.Errorf("%w: duplicate", ErrRejected), transient: false},
		{name: "canceled", err: fmt.Errorf("%w: %w", ErrRemoteTransfer, context.Canceled), transient: false},
		{name: "storage", err: fmt.Errorf("%w: disk full", ErrStorage), fatal: true},
		{name: "auth", err: ErrAuth, fatal: true},
		{name: "catalog", err: fmt.Errorf("%w: 500", ErrRemoteFetch), fatal: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.transient {
				t.Errorf("IsTransient() = %v, want %v", got, tt.transient)
			}
			if got := IsFatal(tt.err); got != tt.fatal {
				t.Errorf("IsFatal() = %v, want %v", got, tt.fatal)
			}
		})
	}
}

func TestStatusError(t *testing.T) {
	long := strings.Repeat("x", 2048)
	err := NewStatusError(401, []byte(long))

	if len(err.Body) != 512 {
		t.Errorf("expected body truncated to 512 bytes, got %d", len(err.Body))
	}
	if !IsUnauthorized(fmt.Errorf("wrapped: %w", err)) {
		t.Error("expected wrapped 401 to be unauthorized")
	}
	if IsUnauthorized(NewStatusError(403, nil)) {
		t.Error("403 should not be unauthorized")
	}
	if got := NewStatusError(500, nil).Error(); got != "unexpected status 500" {
		t.Errorf("Error() = %q", got)
	}
}
