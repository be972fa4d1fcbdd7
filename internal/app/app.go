// Package app wires the HTTP surface of the bridge: the OpenAI-compatible
// chat completions endpoint, the model listing and a liveness probe.
package app

import (
	"encoding/json"
	"net/http"
	"time"

	"e2bridge/internal/auth"
	"e2bridge/internal/cache"
	"e2bridge/internal/config"
	"e2bridge/internal/upstream"
	"e2bridge/pkg/models"
)

// App holds the router and the collaborators behind the chat endpoint.
type App struct {
	Router *http.ServeMux

	cfg           *config.Config
	creds         *auth.Store
	upstream      *upstream.Client
	conversations *cache.ConversationCache
}

// New creates the application with its credential store, upstream client
// and conversation cache.
func New(cfg *config.Config) *App {
	a := &App{
		Router:        http.NewServeMux(),
		cfg:           cfg,
		creds:         auth.NewStore(cfg),
		upstream:      upstream.NewClient(cfg.RequestTimeout),
		conversations: cache.NewConversationCache(cache.DefaultMaxSize, cache.DefaultTTL),
	}
	a.initializeRoutes()
	return a
}

func (a *App) initializeRoutes() {
	a.Router.HandleFunc("/v1/chat/completions", a.handleChatCompletions)
	a.Router.HandleFunc("/v1/models", a.handleListModels)
	a.Router.HandleFunc("/status", a.handleStatus)
}

// Creds exposes the credential store for startup checks.
func (a *App) Creds() *auth.Store {
	return a.creds
}

// authorize validates the client's master API key. It writes the error
// response itself and reports whether the request may proceed.
func (a *App) authorize(w http.ResponseWriter, r *http.Request) bool {
	key, _ := auth.BearerToken(r.Header.Get("Authorization"))
	if !auth.VerifyMasterKey(a.cfg.MasterAPIKey, key) {
		writeError(w, http.StatusUnauthorized, "invalid or missing master API key", "authentication_error")
		return false
	}
	return true
}

func (a *App) handleListModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "invalid_request_error")
		return
	}
	if !a.authorize(w, r) {
		return
	}

	now := time.Now().Unix()
	list := models.ModelList{Object: "list"}
	for _, name := range a.cfg.KnownModels {
		list.Data = append(list.Data, models.Model{
			ID:      name,
			Object:  "model",
			Created: now,
			OwnedBy: config.AppName,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(list)
}

func (a *App) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"name":    config.AppName,
		"version": config.AppVersion,
	})
}

func writeError(w http.ResponseWriter, status int, message, errType string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(models.ErrorResponse{
		Error: models.ErrorDetail{Message: message, Type: errType},
	})
}
