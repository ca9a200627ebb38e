package notify

import (
	"time"

	"iriclient/internal/config"
)

// Delivery defaults. These rarely need tuning.
const (
	defaultMaxAttempts      = 4
	defaultInitialBackoff   = 100 * time.Millisecond
	defaultMaxBackoff       = 5 * time.Second
	defaultBreakerThreshold = 5
	defaultBreakerCooldown  = 30 * time.Second
	defaultSource           = "iri-cli"
)

// Config holds configuration for the event notifier.
type Config struct {
	URL         string        // receiver endpoint
	SigningKey  string        // HMAC key, empty disables signing
	Source      string        // CloudEvents source (default: iri-cli)
	BufferSize  int           // pending events buffer (default: 100)
	Workers     int           // delivery goroutines (default: 1, keeps events in order)
	HTTPTimeout time.Duration // per-request timeout (default: 10s)
	MaxAttempts int           // delivery attempts per event (default: 4)
}

// LoadConfigFromEnv loads notifier tuning from environment variables. URL
// and SigningKey come from the job configuration.
func LoadConfigFromEnv() Config {
	cfg := Config{
		Source:      config.GetEnv("IRI_NOTIFY_SOURCE", defaultSource),
		BufferSize:  config.GetIntEnv("IRI_NOTIFY_BUFFER_SIZE", 100),
		Workers:     config.GetIntEnv("IRI_NOTIFY_WORKERS", 1),
		HTTPTimeout: config.GetDurationEnv("IRI_NOTIFY_HTTP_TIMEOUT", 10*time.Second),
		MaxAttempts: config.GetIntEnv("IRI_NOTIFY_MAX_ATTEMPTS", defaultMaxAttempts),
	}
	return cfg.withDefaults()
}

// withDefaults fills in zero values with defaults.
func (c Config) withDefaults() Config {
	if c.Source == "" {
		c.Source = defaultSource
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 100
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 10 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	return c
}
