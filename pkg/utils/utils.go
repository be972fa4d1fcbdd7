// Package utils provides helper functionality shared across the bridge:
// environment lookups, secret masking and server-sent-event writing.
package utils

import (
	"os"
	"strings"
)

// GetEnvWithDefault retrieves an environment variable or returns a default
// value if not set.
func GetEnvWithDefault(name, defaultValue string) string {
	value := os.Getenv(name)
	if value == "" {
		return defaultValue
	}
	return value
}

// MaskToken returns a token safe for logging: the first and last four
// characters with the middle elided. Short tokens are fully masked.
func MaskToken(token string) string {
	if len(token) <= 8 {
		return strings.Repeat("*", len(token))
	}
	return token[:4] + "..." + token[len(token)-4:]
}

// SplitCSV splits a comma-separated environment value into trimmed,
// non-empty entries.
func SplitCSV(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
