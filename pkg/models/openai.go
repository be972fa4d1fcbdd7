// Package models defines the OpenAI-compatible wire types exchanged with
// clients of the bridge.
package models

// ChatMessage is a single message in a chat conversation.
type ChatMessage struct {
	// Role is one of "system", "user" or "assistant".
	Role string `json:"role"`
	// Content is the text of the message.
	Content string `json:"content"`
}

// ChatCompletionRequest is the request body accepted by /v1/chat/completions.
type ChatCompletionRequest struct {
	// Model is the upstream adapter name (e.g. "ClaudeSonnet4_5").
	Model string `json:"model,omitempty"`
	// Messages is the conversation so far; the last entry is the prompt.
	Messages []ChatMessage `json:"messages"`
	// Stream selects server-sent-event delivery when true.
	Stream bool `json:"stream,omitempty"`
	// ConversationID optionally pins the request to a conversation,
	// bypassing history fingerprinting.
	ConversationID string `json:"conversation_id,omitempty"`
}

// ChatCompletionChoice is one alternative answer in a completion response.
type ChatCompletionChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// ChatCompletion is the non-streaming response object.
type ChatCompletion struct {
	ID      string                 `json:"id"`
	Object  string                 `json:"object"`
	Created int64                  `json:"created"`
	Model   string                 `json:"model"`
	Choices []ChatCompletionChoice `json:"choices"`
}

// ChunkDelta carries the incremental part of a streamed message.
type ChunkDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// ChunkChoice is one alternative in a streamed chunk.
type ChunkChoice struct {
	Index        int        `json:"index"`
	Delta        ChunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

// ChatCompletionChunk is a single server-sent event in a streamed response.
type ChatCompletionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
}

// NewChatCompletion assembles a complete single-choice response.
func NewChatCompletion(id, model, content string, created int64) ChatCompletion {
	return ChatCompletion{
		ID:      id,
		Object:  "chat.completion",
		Created: created,
		Model:   model,
		Choices: []ChatCompletionChoice{
			{
				Message:      ChatMessage{Role: "assistant", Content: content},
				FinishReason: "stop",
			},
		},
	}
}

// NewChatCompletionChunk assembles a single-choice streaming chunk. A nil
// finishReason marks an intermediate chunk.
func NewChatCompletionChunk(id, model string, created int64, delta ChunkDelta, finishReason *string) ChatCompletionChunk {
	return ChatCompletionChunk{
		ID:      id,
		Object:  "chat.completion.chunk",
		Created: created,
		Model:   model,
		Choices: []ChunkChoice{
			{Delta: delta, FinishReason: finishReason},
		},
	}
}

// Model describes one entry in the /v1/models listing.
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// ModelList is the response body of /v1/models.
type ModelList struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}

// ErrorDetail is the inner error object of an OpenAI-style error response.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// ErrorResponse is the OpenAI-style error envelope returned to clients.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}
