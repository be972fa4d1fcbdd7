// Package main documents the e2bridge service, an OpenAI-compatible proxy
// in front of the EngineLabs (cto.new) conversational API.
//
// # Endpoints
//
// The bridge exposes a minimal OpenAI-style surface:
//
//   - POST /v1/chat/completions: chat requests with `{model, messages[],
//     stream?}`. Responses are a single chat.completion object, or a
//     server-sent-event stream of chat.completion.chunk deltas terminated
//     by `data: [DONE]` when `stream` is true.
//
//   - GET /v1/models: the configured adapter names in OpenAI list format.
//
//   - GET /status: liveness probe with service name and version.
//
// # Authentication
//
// Inbound requests carry the master API key as a bearer token; the key is
// configured via API_MASTER_KEY and, when unset, authentication is open.
//
// Outbound, the bridge authenticates against Clerk using a browser session
// triple (cookie, session id, organization id) and mints short-lived JWTs
// from it. Tokens are cached until close to expiry; a refresh is performed
// at most once concurrently and a rejected token triggers exactly one
// refresh-and-retry cycle before the failure is surfaced to the client.
//
// # Upstream protocol
//
// Each turn is delivered as a trigger POST carrying the prompt, the thread
// id (chatHistoryId) and the adapter name, followed by a WebSocket read of
// the thread's buffer stream. Conversation continuity is kept by
// fingerprinting message history and mapping it to thread ids in a bounded
// LRU cache; clients may instead pin a thread with a `conversation_id`
// request field.
//
// # Environment Variables
//
//   - API_MASTER_KEY: key required from clients (empty disables auth)
//   - CLERK_COOKIE: Clerk browser session cookie
//   - CLERK_SESSION_ID: Clerk session whose tokens are minted
//   - CLERK_ORGANIZATION_ID: organization scope for minted tokens
//   - DEFAULT_MODEL: adapter used when a request names none
//   - KNOWN_MODELS: comma-separated list advertised by /v1/models
//   - API_REQUEST_TIMEOUT: outbound HTTP timeout in seconds
//   - PORT: inbound listen port
//   - DISABLE_AUTH: "true"/"1" bypasses client authentication
//
// For CLI flags, run the binary with --help.
package main
