package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"e2bridge/internal/auth"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func updateFrame(t *testing.T, content string) []byte {
	t.Helper()
	buffer, err := json.Marshal(map[string]interface{}{
		"type": "chat",
		"chat": map[string]string{"content": content},
	})
	if err != nil {
		t.Fatalf("marshaling buffer: %v", err)
	}
	frame, err := json.Marshal(map[string]interface{}{
		"type":   "update",
		"buffer": string(buffer),
	})
	if err != nil {
		t.Fatalf("marshaling frame: %v", err)
	}
	return frame
}

func stateFrame(t *testing.T, inProgress bool) []byte {
	t.Helper()
	frame, err := json.Marshal(map[string]interface{}{
		"type":  "state",
		"state": map[string]bool{"inProgress": inProgress},
	})
	if err != nil {
		t.Fatalf("marshaling state frame: %v", err)
	}
	return frame
}

// newBufferStreamServer serves one WebSocket connection per request,
// emitting the given deltas followed by a terminal state frame.
func newBufferStreamServer(t *testing.T, deltas []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrading test connection: %v", err)
			return
		}
		defer conn.Close()

		for _, delta := range deltas {
			if err := conn.WriteMessage(websocket.TextMessage, updateFrame(t, delta)); err != nil {
				return
			}
		}
		conn.WriteMessage(websocket.TextMessage, stateFrame(t, false))
	}))
}

func wsTemplate(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/engine-agent/chat-histories/%s/buffer/stream"
}

func testCred() auth.Credential {
	return auth.Credential{Token: "jwt-token", UserID: "user_123", ExpiresAt: time.Now().Add(time.Minute)}
}

func TestSendStreamsDeltas(t *testing.T) {
	deltas := []string{"Hello", ", ", "world"}

	var triggered atomic.Int32
	trigger := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		triggered.Add(1)
		if got := r.Header.Get("Authorization"); got != "Bearer jwt-token" {
			t.Errorf("unexpected Authorization header %q", got)
		}
		var body triggerRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decoding trigger body: %v", err)
		}
		if body.Prompt != "hi" || body.ChatHistoryID != "thread-1" || body.AdapterName != "ClaudeSonnet4_5" {
			t.Errorf("unexpected trigger payload %+v", body)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer trigger.Close()

	ws := newBufferStreamServer(t, deltas)
	defer ws.Close()

	client := NewClient(5 * time.Second)
	client.ChatURL = trigger.URL
	client.StreamURL = wsTemplate(ws)

	stream, err := client.Send(context.Background(), testCred(), Turn{
		ThreadID: "thread-1",
		Prompt:   "hi",
		Model:    "ClaudeSonnet4_5",
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	defer stream.Close()

	var got []string
	for delta := range stream.Events() {
		got = append(got, delta)
	}
	if err := stream.Err(); err != nil {
		t.Fatalf("stream ended with error: %v", err)
	}

	if strings.Join(got, "") != "Hello, world" {
		t.Errorf("streamed content = %q, want %q", strings.Join(got, ""), "Hello, world")
	}
	if n := triggered.Load(); n != 1 {
		t.Errorf("trigger endpoint called %d times, want 1", n)
	}
}

func TestSendSkipsNonChatBuffers(t *testing.T) {
	trigger := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer trigger.Close()

	ws := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		// Tool buffer, malformed buffer, then a real delta.
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"update","buffer":"{\"type\":\"tool\"}"}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"update","buffer":"not json"}`))
		conn.WriteMessage(websocket.TextMessage, updateFrame(t, "ok"))
		conn.WriteMessage(websocket.TextMessage, stateFrame(t, false))
	}))
	defer ws.Close()

	client := NewClient(5 * time.Second)
	client.ChatURL = trigger.URL
	client.StreamURL = wsTemplate(ws)

	stream, err := client.Send(context.Background(), testCred(), Turn{ThreadID: "t", Prompt: "p", Model: "m"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	defer stream.Close()

	var got []string
	for delta := range stream.Events() {
		got = append(got, delta)
	}
	if len(got) != 1 || got[0] != "ok" {
		t.Errorf("streamed deltas = %v, want [ok]", got)
	}
}

func TestSendUnauthorized(t *testing.T) {
	tests := []struct {
		name   string
		status int
		isAuth bool
	}{
		{name: "401 maps to ErrUnauthorized", status: http.StatusUnauthorized, isAuth: true},
		{name: "403 maps to ErrUnauthorized", status: http.StatusForbidden, isAuth: true},
		{name: "500 is a plain APIError", status: http.StatusInternalServerError, isAuth: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trigger := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "denied", tt.status)
			}))
			defer trigger.Close()

			client := NewClient(5 * time.Second)
			client.ChatURL = trigger.URL

			_, err := client.Send(context.Background(), testCred(), Turn{ThreadID: "t", Prompt: "p", Model: "m"})
			if err == nil {
				t.Fatal("Send() expected error, got nil")
			}
			if errors.Is(err, ErrUnauthorized) != tt.isAuth {
				t.Errorf("errors.Is(err, ErrUnauthorized) = %v, want %v (err: %v)", !tt.isAuth, tt.isAuth, err)
			}
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("Send() error = %T, want *APIError", err)
			}
			if apiErr.StatusCode != tt.status {
				t.Errorf("APIError status = %d, want %d", apiErr.StatusCode, tt.status)
			}
		})
	}
}

func TestStreamCancellationAbandonsRead(t *testing.T) {
	trigger := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer trigger.Close()

	serverDone := make(chan struct{})
	ws := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer close(serverDone)
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, updateFrame(t, "first"))
		// Hold the stream open; the client is expected to walk away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer ws.Close()

	client := NewClient(5 * time.Second)
	client.ChatURL = trigger.URL
	client.StreamURL = wsTemplate(ws)

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := client.Send(ctx, testCred(), Turn{ThreadID: "t", Prompt: "p", Model: "m"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	defer stream.Close()

	select {
	case first := <-stream.Events():
		if first != "first" {
			t.Fatalf("first delta = %q, want first", first)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for first delta")
	}

	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, open := <-stream.Events():
			if !open {
				if !errors.Is(stream.Err(), context.Canceled) {
					t.Errorf("stream.Err() = %v, want context.Canceled", stream.Err())
				}
				// The server read loop must observe the closed connection.
				select {
				case <-serverDone:
				case <-time.After(2 * time.Second):
					t.Error("upstream connection was not closed on cancellation")
				}
				return
			}
		case <-deadline:
			t.Fatal("stream did not terminate after cancellation")
		}
	}
}
