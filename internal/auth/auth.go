// Package auth covers both sides of the bridge's authentication: validation
// of the master API key presented by clients, and ownership of the Clerk
// session credential used to mint short-lived upstream access tokens.
package auth

import (
	"os"
	"strings"
)

// VerifyMasterKey checks a client-presented key against the configured
// master key.
//
// An empty master key disables inbound authentication entirely; the bridge
// is then open, which is the expected mode for a local personal deployment.
// Setting DISABLE_AUTH to "true" or "1" has the same effect regardless of
// configuration.
func VerifyMasterKey(masterKey, presented string) bool {
	if disable := os.Getenv("DISABLE_AUTH"); disable == "true" || disable == "1" {
		return true
	}
	if masterKey == "" {
		return true
	}
	return presented == masterKey
}

// BearerToken extracts the credential from an Authorization header value.
// It accepts the standard "Bearer <token>" form as well as a bare token,
// mirroring what OpenAI client libraries actually send.
func BearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")), true
	}
	if strings.HasPrefix(header, "Bearer: ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer: ")), true
	}
	return header, true
}
