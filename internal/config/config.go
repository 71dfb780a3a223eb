// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all client configuration.
type Config struct {
	// ServerURL is the http(s) base of the agent backend; the websocket
	// scheme is derived from it.
	ServerURL string
	// ProjectID is the session handle. May be supplied via flag instead.
	ProjectID string

	HeartbeatTimeout   time.Duration
	ReconnectDelay     time.Duration
	FastReconnectDelay time.Duration
	DialTimeout        time.Duration

	Transcript TranscriptConfig
}

// TranscriptConfig controls the optional SQLite transcript recorder.
type TranscriptConfig struct {
	Enabled   bool
	DBPath    string
	QueueSize int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("TRANSCRIPT_QUEUE_SIZE", 256)
	if queueSize <= 0 {
		queueSize = 256
	}

	cfg := &Config{
		ServerURL:          getEnv("AGENT_SERVER_URL", "http://localhost:8000"),
		ProjectID:          getEnv("AGENT_PROJECT_ID", ""),
		HeartbeatTimeout:   getEnvDuration("AGENT_HEARTBEAT_TIMEOUT", 45*time.Second),
		ReconnectDelay:     getEnvDuration("AGENT_RECONNECT_DELAY", 5*time.Second),
		FastReconnectDelay: getEnvDuration("AGENT_FAST_RECONNECT_DELAY", time.Second),
		DialTimeout:        getEnvDuration("AGENT_DIAL_TIMEOUT", 10*time.Second),
		Transcript: TranscriptConfig{
			Enabled:   getEnvBool("TRANSCRIPT_ENABLED", false),
			DBPath:    getEnv("TRANSCRIPT_DB_PATH", "./data/transcript.db"),
			QueueSize: queueSize,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set. ProjectID
// is validated by the caller after flag overrides.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("AGENT_SERVER_URL cannot be empty")
	}
	if c.HeartbeatTimeout <= 0 {
		return fmt.Errorf("AGENT_HEARTBEAT_TIMEOUT must be > 0")
	}
	if c.ReconnectDelay <= 0 {
		return fmt.Errorf("AGENT_RECONNECT_DELAY must be > 0")
	}
	if c.FastReconnectDelay <= 0 {
		return fmt.Errorf("AGENT_FAST_RECONNECT_DELAY must be > 0")
	}
	if c.DialTimeout <= 0 {
		return fmt.Errorf("AGENT_DIAL_TIMEOUT must be > 0")
	}
	if c.Transcript.Enabled && c.Transcript.DBPath == "" {
		return fmt.Errorf("TRANSCRIPT_DB_PATH cannot be empty when transcripts are enabled")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
