package job

import (
	"strings"
	"time"

	"iriclient/internal/config"
)

// Defaults for the job driver.
const (
	DefaultResourceID      = "b3af92a7-cf5f-42cf-a4be-6f6554a779e3" // Perlmutter compute nodes
	DefaultPollInterval    = 5 * time.Second
	DefaultMaxAttempts     = 60
	DefaultLaunchOperation = "launchJob"
	DefaultStatusOperation = "getJob"
	DefaultCancelOperation = "cancelJob"
	DefaultJobIDField      = "id"
)

// Config holds the settings of one job run.
type Config struct {
	ResourceID string

	PollInterval time.Duration // fixed delay between poll attempts
	MaxAttempts  int           // poll budget
	Policy       PollPolicy

	LaunchOperation string
	StatusOperation string
	CancelOperation string
	JobIDField      string

	// CancelOnInterrupt sends the cancel operation for a submitted job when
	// the caller cancels the run.
	CancelOnInterrupt bool

	CallbackURL string // optional CloudEvents receiver
	CallbackKey string // HMAC key for callback signatures
}

// LoadConfigFromEnv loads job configuration from environment variables.
func LoadConfigFromEnv() Config {
	cfg := Config{
		ResourceID:        config.GetEnv("IRI_RESOURCE_ID", DefaultResourceID),
		PollInterval:      time.Duration(config.GetIntEnv("IRI_POLL_INTERVAL_SECONDS", int(DefaultPollInterval/time.Second))) * time.Second,
		MaxAttempts:       config.GetIntEnv("IRI_MAX_POLLS", DefaultMaxAttempts),
		Policy:            PollPolicy{FatalStatusCodes: fatalStatusFromEnv()},
		CancelOnInterrupt: config.GetBoolEnv("IRI_CANCEL_ON_INTERRUPT", false),
		CallbackURL:       config.GetEnv("IRI_JOB_CALLBACK_URL", ""),
		CallbackKey:       config.GetEnv("IRI_JOB_CALLBACK_KEY", ""),
	}
	if cfg.CallbackKey == "" {
		cfg.CallbackKey = config.GetSecretFile(config.GetEnv("IRI_JOB_CALLBACK_KEY_FILE", ""))
	}
	return cfg.WithDefaults()
}

// fatalStatusFromEnv reads IRI_POLL_FATAL_STATUS. "none" makes every poll
// failure transient.
func fatalStatusFromEnv() []int {
	if strings.EqualFold(strings.TrimSpace(config.GetEnv("IRI_POLL_FATAL_STATUS", "")), "none") {
		return []int{}
	}
	return config.GetIntListEnv("IRI_POLL_FATAL_STATUS", DefaultPollPolicy().FatalStatusCodes)
}

// WithDefaults fills in zero values. A nil fatal status list gets the
// default policy; an empty non-nil list is kept.
func (c Config) WithDefaults() Config {
	if c.ResourceID == "" {
		c.ResourceID = DefaultResourceID
	}
	if c.PollInterval < 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.Policy.FatalStatusCodes == nil {
		c.Policy = DefaultPollPolicy()
	}
	if c.LaunchOperation == "" {
		c.LaunchOperation = DefaultLaunchOperation
	}
	if c.StatusOperation == "" {
		c.StatusOperation = DefaultStatusOperation
	}
	if c.CancelOperation == "" {
		c.CancelOperation = DefaultCancelOperation
	}
	if c.JobIDField == "" {
		c.JobIDField = DefaultJobIDField
	}
	return c
}
