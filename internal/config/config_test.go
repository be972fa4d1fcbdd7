package config

import (
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"API_MASTER_KEY", "CLERK_COOKIE", "CLERK_SESSION_ID", "CLERK_ORGANIZATION_ID",
		"DEFAULT_MODEL", "KNOWN_MODELS", "API_REQUEST_TIMEOUT", "PORT",
	} {
		t.Setenv(name, "")
	}
}

func TestFromEnvDefaults(t *testing.T) {
	clearEnv(t)

	cfg := FromEnv()

	if cfg.DefaultModel != "ClaudeSonnet4_5" {
		t.Errorf("DefaultModel = %q, want ClaudeSonnet4_5", cfg.DefaultModel)
	}
	if len(cfg.KnownModels) != 2 || cfg.KnownModels[0] != "ClaudeSonnet4_5" || cfg.KnownModels[1] != "GPT5" {
		t.Errorf("KnownModels = %v, want default pair", cfg.KnownModels)
	}
	if cfg.RequestTimeout != 300*time.Second {
		t.Errorf("RequestTimeout = %v, want 300s", cfg.RequestTimeout)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("API_MASTER_KEY", "master")
	t.Setenv("CLERK_COOKIE", "cookie")
	t.Setenv("CLERK_SESSION_ID", "sess")
	t.Setenv("CLERK_ORGANIZATION_ID", "org")
	t.Setenv("DEFAULT_MODEL", "GPT5")
	t.Setenv("KNOWN_MODELS", "GPT5, ClaudeSonnet4_5 ,Custom")
	t.Setenv("API_REQUEST_TIMEOUT", "60")
	t.Setenv("PORT", "9090")

	cfg := FromEnv()

	if cfg.MasterAPIKey != "master" || cfg.ClerkCookie != "cookie" ||
		cfg.ClerkSessionID != "sess" || cfg.ClerkOrganizationID != "org" {
		t.Errorf("credential fields not loaded: %+v", cfg)
	}
	if cfg.DefaultModel != "GPT5" {
		t.Errorf("DefaultModel = %q, want GPT5", cfg.DefaultModel)
	}
	if len(cfg.KnownModels) != 3 || cfg.KnownModels[2] != "Custom" {
		t.Errorf("KnownModels = %v, want trimmed triple", cfg.KnownModels)
	}
	if cfg.RequestTimeout != time.Minute {
		t.Errorf("RequestTimeout = %v, want 1m", cfg.RequestTimeout)
	}
	if cfg.Port != "9090" {
		t.Errorf("Port = %q, want 9090", cfg.Port)
	}
}

func TestFromEnvIgnoresBadTimeout(t *testing.T) {
	clearEnv(t)
	t.Setenv("API_REQUEST_TIMEOUT", "not-a-number")

	if cfg := FromEnv(); cfg.RequestTimeout != 300*time.Second {
		t.Errorf("RequestTimeout = %v, want default on parse failure", cfg.RequestTimeout)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "complete", mutate: func(*Config) {}, wantErr: false},
		{name: "missing cookie", mutate: func(c *Config) { c.ClerkCookie = "" }, wantErr: true},
		{name: "missing session", mutate: func(c *Config) { c.ClerkSessionID = "" }, wantErr: true},
		{name: "missing organization", mutate: func(c *Config) { c.ClerkOrganizationID = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				ClerkCookie:         "cookie",
				ClerkSessionID:      "sess",
				ClerkOrganizationID: "org",
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
