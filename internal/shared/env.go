package shared

import (
	"bufio"
	"os"
	"strings"
)

// envOverrides maps environment variables onto config fields.
//
// Names follow the ones the migration scripts were historically run with.
var envOverrides = map[string]func(*Config, string){
	"YOUTUBE_API_KEY":     func(c *Config, v string) { c.Source.APIKey = v },
	"YOUTUBE_CHANNEL_ID":  func(c *Config, v string) { c.Source.ChannelID = v },
	"PEERTUBE_INSTANCE":   func(c *Config, v string) { c.Destination.Instance = v },
	"PEERTUBE_USERNAME":   func(c *Config, v string) { c.Destination.Username = v },
	"PEERTUBE_PASSWORD":   func(c *Config, v string) { c.Destination.Password = v },
	"PEERTUBE_CHANNEL_ID": func(c *Config, v string) { c.Destination.ChannelID = v },
	"YT2PT_DATABASE":      func(c *Config, v string) { c.Database.Path = v },
	"YT2PT_REDIS_URL":     func(c *Config, v string) { c.Lock.RedisURL = v },
}

// ApplyEnv overrides config values with any of the supported environment variables that are set.
func (c *Config) ApplyEnv() {
	for key, apply := range envOverrides {
		if v := os.Getenv(key); v != "" {
			apply(c, v)
		}
	}
}

// LoadEnvFile sets environment variables from a dotenv style file.
//
// Variables already present in the environment win. A missing file is not an error.
func LoadEnvFile(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		i := strings.Index(line, "=")
		if i <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:i])
		value := strings.Trim(strings.TrimSpace(line[i+1:]), `"'`)
		if _, set := os.LookupEnv(key); !set {
			if err := os.Setenv(key, value); err != nil {
				return err
			}
		}
	}
	return scanner.Err()
}
