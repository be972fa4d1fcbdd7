// Package config centralizes all runtime configuration for the bridge.
// Values are sourced from environment variables, optionally pre-loaded from a
// .env file by the entry point.
package config

import (
	"errors"
	"os"
	"strconv"
	"sync"
	"time"

	"e2bridge/pkg/utils"
)

const (
	// AppName identifies the service in logs and status responses.
	AppName = "e2bridge"
	// AppVersion is the service version reported by /status.
	AppVersion = "1.0.0"
)

// Config contains the full configuration of the bridge.
type Config struct {
	// MasterAPIKey guards the inbound API. Empty disables client
	// authentication.
	MasterAPIKey string
	// ClerkCookie is the browser session cookie presented to the Clerk
	// token endpoint.
	ClerkCookie string
	// ClerkSessionID selects the Clerk session whose tokens are minted.
	ClerkSessionID string
	// ClerkOrganizationID scopes minted tokens to an organization.
	ClerkOrganizationID string
	// DefaultModel is the upstream adapter used when a request names none.
	DefaultModel string
	// KnownModels is the set advertised by /v1/models.
	KnownModels []string
	// RequestTimeout bounds outbound HTTP calls.
	RequestTimeout time.Duration
	// Port is the inbound listen port.
	Port string
}

var (
	config     *Config
	configOnce sync.Once
)

// Get returns the singleton configuration, loading it from the environment
// on first call.
func Get() *Config {
	configOnce.Do(func() {
		config = FromEnv()
	})
	return config
}

// FromEnv builds a fresh configuration from the current environment.
func FromEnv() *Config {
	timeoutSecs := 300
	if raw := os.Getenv("API_REQUEST_TIMEOUT"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			timeoutSecs = parsed
		}
	}

	knownModels := utils.SplitCSV(utils.GetEnvWithDefault("KNOWN_MODELS", "ClaudeSonnet4_5,GPT5"))

	return &Config{
		MasterAPIKey:        os.Getenv("API_MASTER_KEY"),
		ClerkCookie:         os.Getenv("CLERK_COOKIE"),
		ClerkSessionID:      os.Getenv("CLERK_SESSION_ID"),
		ClerkOrganizationID: os.Getenv("CLERK_ORGANIZATION_ID"),
		DefaultModel:        utils.GetEnvWithDefault("DEFAULT_MODEL", "ClaudeSonnet4_5"),
		KnownModels:         knownModels,
		RequestTimeout:      time.Duration(timeoutSecs) * time.Second,
		Port:                utils.GetEnvWithDefault("PORT", "8080"),
	}
}

// Validate reports whether the configuration is sufficient to reach the
// upstream API. The Clerk credential triple has no usable default.
func (c *Config) Validate() error {
	if c.ClerkCookie == "" {
		return errors.New("CLERK_COOKIE must be set")
	}
	if c.ClerkSessionID == "" {
		return errors.New("CLERK_SESSION_ID must be set")
	}
	if c.ClerkOrganizationID == "" {
		return errors.New("CLERK_ORGANIZATION_ID must be set")
	}
	return nil
}
