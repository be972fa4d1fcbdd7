// Package upstream implements the EngineLabs chat protocol: a trigger POST
// that enqueues a prompt on a conversation thread, followed by a WebSocket
// read of the thread's buffer stream carrying incremental reply content.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"e2bridge/internal/auth"
)

const (
	defaultChatURL   = "https://api.enginelabs.ai/engine-agent/chat"
	defaultStreamURL = "wss://api.enginelabs.ai/engine-agent/chat-histories/%s/buffer/stream"
	upstreamOrigin   = "https://cto.new"
	handshakeTimeout = 30 * time.Second
	errorBodyReadCap = 4096
)

// ErrUnauthorized marks an upstream rejection of the current access token.
// Callers are expected to refresh the credential and retry exactly once.
var ErrUnauthorized = errors.New("upstream rejected the access token")

// APIError is a non-success response from the EngineLabs API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.StatusCode, e.Body)
}

// Unwrap maps authentication rejections onto ErrUnauthorized so callers can
// match them with errors.Is.
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden {
		return ErrUnauthorized
	}
	return nil
}

// Turn is one prompt addressed to an upstream conversation thread.
type Turn struct {
	// ThreadID is the upstream chat history id the prompt belongs to.
	ThreadID string
	// Prompt is the text of the latest user message.
	Prompt string
	// Model is the upstream adapter name.
	Model string
}

// Client talks to the EngineLabs chat API.
type Client struct {
	// ChatURL is the trigger endpoint. Overridable for tests.
	ChatURL string
	// StreamURL is a printf template taking the thread id. Overridable
	// for tests.
	StreamURL string

	httpClient *http.Client
	dialer     *websocket.Dialer
}

// NewClient builds an upstream client with the given per-call timeout for
// the trigger request. The WebSocket read is bounded by the caller's context
// instead.
func NewClient(timeout time.Duration) *Client {
	return &Client{
		ChatURL:    defaultChatURL,
		StreamURL:  defaultStreamURL,
		httpClient: &http.Client{Timeout: timeout},
		dialer:     &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
	}
}

type triggerRequest struct {
	Prompt        string `json:"prompt"`
	ChatHistoryID string `json:"chatHistoryId"`
	AdapterName   string `json:"adapterName"`
}

// Send enqueues the prompt on the thread and opens the buffer stream. The
// returned Stream is lazy, finite and non-restartable; cancelling ctx
// abandons the upstream read.
//
// A 401 or 403 from the trigger endpoint is returned as an *APIError that
// matches ErrUnauthorized; any other non-2xx status is a plain *APIError.
func (c *Client) Send(ctx context.Context, cred auth.Credential, turn Turn) (*Stream, error) {
	if err := c.trigger(ctx, cred, turn); err != nil {
		return nil, err
	}
	return c.openStream(ctx, cred, turn.ThreadID)
}

func (c *Client) trigger(ctx context.Context, cred auth.Credential, turn Turn) error {
	body, err := json.Marshal(triggerRequest{
		Prompt:        turn.Prompt,
		ChatHistoryID: turn.ThreadID,
		AdapterName:   turn.Model,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ChatURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+cred.Token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", upstreamOrigin)
	req.Header.Set("Referer", upstreamOrigin+"/"+turn.ThreadID)

	log.Debugf("triggering upstream chat on thread %s with model %s", turn.ThreadID, turn.Model)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upstream trigger request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadCap))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	return nil
}

func (c *Client) openStream(ctx context.Context, cred auth.Credential, threadID string) (*Stream, error) {
	streamURL := fmt.Sprintf(c.StreamURL, threadID) + "?token=" + url.QueryEscape(cred.UserID)

	header := http.Header{}
	header.Set("Origin", upstreamOrigin)

	conn, resp, err := c.dialer.DialContext(ctx, streamURL, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, &APIError{StatusCode: resp.StatusCode, Body: "buffer stream handshake rejected"}
		}
		return nil, fmt.Errorf("dialing buffer stream: %w", err)
	}

	log.Debugf("buffer stream connected for thread %s", threadID)
	return newStream(ctx, conn), nil
}
