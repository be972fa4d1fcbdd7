package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"e2bridge/internal/auth"
	"e2bridge/internal/cache"
	"e2bridge/internal/upstream"
	"e2bridge/pkg/models"
	"e2bridge/pkg/utils"
)

func (a *App) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "invalid_request_error")
		return
	}
	if !a.authorize(w, r) {
		return
	}

	var req models.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), "invalid_request_error")
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages must not be empty", "invalid_request_error")
		return
	}

	model := req.Model
	if model == "" {
		model = a.cfg.DefaultModel
	}
	prompt := req.Messages[len(req.Messages)-1].Content

	threadID := a.resolveThread(&req)

	ctx := r.Context()
	stream, err := a.callUpstream(ctx, upstream.Turn{ThreadID: threadID, Prompt: prompt, Model: model})
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	defer stream.Close()

	requestID := "chatcmpl-" + uuid.NewString()

	if req.Stream {
		a.streamResponse(w, requestID, model, threadID, &req, stream)
		return
	}
	a.bufferResponse(w, requestID, model, threadID, &req, stream)
}

// resolveThread maps the request onto an upstream thread. A client-supplied
// conversation id pins the thread directly; otherwise the message history
// (everything before the prompt) is fingerprinted, so a follow-up turn that
// replays the previous exchange lands on the same thread.
func (a *App) resolveThread(req *models.ChatCompletionRequest) string {
	key := conversationKey(req)
	if threadID, ok := a.conversations.Resolve(key); ok {
		log.Infof("reusing upstream thread %s", threadID)
		return threadID
	}

	threadID := uuid.NewString()
	a.conversations.Record(key, threadID)
	log.Infof("created upstream thread %s", threadID)
	return threadID
}

// recordNextTurn stores the key the follow-up turn will present: the current
// messages plus the assistant reply just produced. Without this the next
// turn's history would never match a recorded fingerprint.
func (a *App) recordNextTurn(req *models.ChatCompletionRequest, threadID, assistantReply string) {
	if req.ConversationID != "" {
		return // the pinned key already maps to the thread
	}
	next := append(append([]models.ChatMessage{}, req.Messages...), models.ChatMessage{
		Role:    "assistant",
		Content: assistantReply,
	})
	a.conversations.Record(cache.Fingerprint(next), threadID)
}

func conversationKey(req *models.ChatCompletionRequest) string {
	if req.ConversationID != "" {
		return "id:" + req.ConversationID
	}
	return cache.Fingerprint(req.Messages[:len(req.Messages)-1])
}

// callUpstream performs the upstream send, refreshing the credential and
// retrying exactly once when the token is rejected. A second rejection is
// returned to the caller as-is.
func (a *App) callUpstream(ctx context.Context, turn upstream.Turn) (*upstream.Stream, error) {
	cred, err := a.creds.Token(ctx)
	if err != nil {
		return nil, err
	}

	stream, err := a.upstream.Send(ctx, cred, turn)
	if err == nil || !errors.Is(err, upstream.ErrUnauthorized) {
		return stream, err
	}

	log.Warn("upstream rejected access token, refreshing and retrying once")
	cred, err = a.creds.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	return a.upstream.Send(ctx, cred, turn)
}

func writeUpstreamError(w http.ResponseWriter, err error) {
	var authErr *auth.AuthError
	switch {
	case errors.As(err, &authErr):
		writeError(w, http.StatusBadGateway, "failed to authenticate with upstream: "+authErr.Message, "upstream_auth_error")
	case errors.Is(err, upstream.ErrUnauthorized):
		writeError(w, http.StatusBadGateway, "upstream rejected credentials after refresh", "upstream_auth_error")
	default:
		writeError(w, http.StatusBadGateway, "upstream request failed: "+err.Error(), "upstream_error")
	}
	log.Errorf("upstream call failed: %v", err)
}

func (a *App) streamResponse(w http.ResponseWriter, requestID, model, threadID string, req *models.ChatCompletionRequest, stream *upstream.Stream) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported", "internal_error")
		return
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	created := time.Now().Unix()

	// Opening chunk announcing the assistant role.
	utils.SendSSEChunk(w, flusher, models.NewChatCompletionChunk(requestID, model, created, models.ChunkDelta{Role: "assistant"}, nil))

	var reply strings.Builder
	for delta := range stream.Events() {
		reply.WriteString(delta)
		utils.SendSSEChunk(w, flusher, models.NewChatCompletionChunk(requestID, model, created, models.ChunkDelta{Content: delta}, nil))
	}

	if err := stream.Err(); err != nil && !errors.Is(err, context.Canceled) {
		log.Errorf("buffer stream ended with error: %v", err)
		utils.SendSSEChunk(w, flusher, models.NewChatCompletionChunk(requestID, model, created, models.ChunkDelta{Content: "\n[upstream stream error: " + err.Error() + "]"}, nil))
	}

	stop := "stop"
	utils.SendSSEChunk(w, flusher, models.NewChatCompletionChunk(requestID, model, created, models.ChunkDelta{}, &stop))
	utils.SendSSEDone(w, flusher)

	if stream.Err() == nil {
		a.recordNextTurn(req, threadID, reply.String())
	}
}

func (a *App) bufferResponse(w http.ResponseWriter, requestID, model, threadID string, req *models.ChatCompletionRequest, stream *upstream.Stream) {
	var reply strings.Builder
	for delta := range stream.Events() {
		reply.WriteString(delta)
	}

	if err := stream.Err(); err != nil {
		writeUpstreamError(w, err)
		return
	}

	a.recordNextTurn(req, threadID, reply.String())

	completion := models.NewChatCompletion(requestID, model, reply.String(), time.Now().Unix())
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(completion)
}
