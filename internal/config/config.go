// Package config provides configuration loading from environment variables.
package config

import (
	"time"
)

// Client holds the connection settings shared by every command.
type Client struct {
	BaseURL     string
	AccessToken string
	CatalogPath string // YAML catalog; empty uses the bundled one

	Timeout   time.Duration
	RateLimit float64 // requests per second, 0 disables
	RateBurst int

	BreakerThreshold int // consecutive transport failures, 0 disables the breaker
	BreakerCooldown  time.Duration

	ClientIDFile   string
	PrivateKeyFile string
	TokenURL       string
}

// LoadClient loads client configuration from environment variables. The
// access token is taken from IRI_ACCESS_TOKEN, or read from the file named
// by IRI_ACCESS_TOKEN_FILE.
func LoadClient() Client {
	token := GetEnv("IRI_ACCESS_TOKEN", "")
	if token == "" {
		token = GetSecretFile(GetEnv("IRI_ACCESS_TOKEN_FILE", ""))
	}
	return Client{
		BaseURL:          GetEnv("IRI_BASE_URL", ""),
		AccessToken:      token,
		CatalogPath:      GetEnv("IRI_CATALOG", ""),
		Timeout:          GetDurationEnv("IRI_TIMEOUT", 30*time.Second),
		RateLimit:        GetFloatEnv("IRI_RATE_LIMIT", 0),
		RateBurst:        GetIntEnv("IRI_RATE_BURST", 1),
		BreakerThreshold: GetIntEnv("IRI_BREAKER_THRESHOLD", 0),
		BreakerCooldown:  GetDurationEnv("IRI_BREAKER_COOLDOWN", 30*time.Second),
		ClientIDFile:     GetEnv("IRI_CLIENT_ID_FILE", ".auth/clientid.txt"),
		PrivateKeyFile:   GetEnv("IRI_PRIVATE_KEY_FILE", ".auth/priv_key.pem"),
		TokenURL:         GetEnv("IRI_TOKEN_URL", "https://oidc.nersc.gov/c2id/token"),
	}
}
