package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"e2bridge/internal/config"
	"e2bridge/pkg/utils"
)

const (
	// clerkTokenURLTemplate is the Clerk endpoint minting session JWTs.
	clerkTokenURLTemplate = "https://clerk.cto.new/v1/client/sessions/%s/tokens?__clerk_api_version=2025-04-10"

	// upstreamOrigin is required by Clerk's CORS checks.
	upstreamOrigin = "https://cto.new"

	// refreshSkew refreshes tokens slightly before their stated expiry so
	// that in-flight upstream calls never carry an expired token.
	refreshSkew = 30 * time.Second

	// fallbackTokenLifetime is assumed when a minted JWT carries no exp
	// claim. Clerk session tokens are minute-scale.
	fallbackTokenLifetime = 45 * time.Second
)

// AuthError reports that the identity provider rejected the stored session
// credential. It is terminal for the request that triggered the refresh.
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("clerk token refresh failed (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("clerk token refresh failed: %s", e.Message)
}

// Credential is the short-lived access token for the upstream API together
// with the subject it was minted for. The subject doubles as the token query
// parameter of the upstream WebSocket endpoint.
type Credential struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
}

func (c Credential) valid() bool {
	return c.Token != "" && time.Until(c.ExpiresAt) > refreshSkew
}

// Store owns the Clerk session credential and the JWT derived from it.
// There is exactly one shared upstream identity; all requests draw their
// token from the same store.
type Store struct {
	// TokenURL is the Clerk token endpoint. Overridable for tests.
	TokenURL string

	cookie         string
	organizationID string
	httpClient     *http.Client

	mu      sync.RWMutex
	current Credential

	group singleflight.Group
}

// NewStore builds a credential store from the configured Clerk session
// triple. No network call is made until a token is first requested.
func NewStore(cfg *config.Config) *Store {
	return &Store{
		TokenURL:       fmt.Sprintf(clerkTokenURLTemplate, cfg.ClerkSessionID),
		cookie:         strings.TrimSpace(cfg.ClerkCookie),
		organizationID: strings.TrimSpace(cfg.ClerkOrganizationID),
		httpClient:     &http.Client{Timeout: cfg.RequestTimeout},
	}
}

// Token returns the cached credential if it has not expired, performing a
// blocking refresh otherwise.
func (s *Store) Token(ctx context.Context) (Credential, error) {
	s.mu.RLock()
	cred := s.current
	s.mu.RUnlock()

	if cred.valid() {
		return cred, nil
	}
	return s.Refresh(ctx)
}

// Refresh mints a new JWT from the Clerk session. Concurrent callers are
// collapsed onto a single in-flight refresh and all observe its result.
// On failure the cached credential is cleared and an *AuthError returned.
func (s *Store) Refresh(ctx context.Context) (Credential, error) {
	v, err, _ := s.group.Do("refresh", func() (interface{}, error) {
		// The refresh is detached from the triggering request's context
		// so that waiters sharing this flight do not fail when the first
		// caller disconnects. The HTTP client timeout still bounds it.
		return s.refresh()
	})
	if err != nil {
		return Credential{}, err
	}
	select {
	case <-ctx.Done():
		return Credential{}, ctx.Err()
	default:
	}
	return v.(Credential), nil
}

func (s *Store) refresh() (Credential, error) {
	log.Info("requesting new session token from clerk")

	form := url.Values{"organization_id": {s.organizationID}}
	req, err := http.NewRequest(http.MethodPost, s.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Credential{}, err
	}
	req.Header.Set("Cookie", s.cookie)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Origin", upstreamOrigin)
	req.Header.Set("Referer", upstreamOrigin+"/")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.clear()
		return Credential{}, &AuthError{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		s.clear()
		return Credential{}, &AuthError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	var tokenResp struct {
		JWT string `json:"jwt"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		s.clear()
		return Credential{}, &AuthError{Message: "decoding token response: " + err.Error()}
	}
	if tokenResp.JWT == "" {
		s.clear()
		return Credential{}, &AuthError{Message: "missing jwt field in token response"}
	}

	cred := credentialFromJWT(tokenResp.JWT)

	s.mu.Lock()
	s.current = cred
	s.mu.Unlock()

	log.Infof("obtained session token %s for user %s, expires %s",
		utils.MaskToken(cred.Token), cred.UserID, cred.ExpiresAt.Format(time.RFC3339))
	return cred, nil
}

func (s *Store) clear() {
	s.mu.Lock()
	s.current = Credential{}
	s.mu.Unlock()
}

// credentialFromJWT derives expiry and subject from the minted token. The
// payload is decoded without signature verification: the bridge is the party
// the token was issued to, not its verifier.
func credentialFromJWT(raw string) Credential {
	cred := Credential{
		Token:     raw,
		ExpiresAt: time.Now().Add(fallbackTokenLifetime),
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		log.Warnf("could not decode session token claims: %v", err)
		return cred
	}

	cred.UserID = claims.Subject
	if claims.ExpiresAt != nil {
		cred.ExpiresAt = claims.ExpiresAt.Time
	}
	return cred
}
