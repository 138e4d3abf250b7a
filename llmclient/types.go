// Package llmclient defines the unified LLM provider adapter interface
// used by the Scoring Router and Guided-Prompt Engine, grounded on
// llm/provider.go's Provider interface, trimmed to the synthesis-only
// surface this gateway needs (no tool-calling, no multimodal).
package llmclient

import (
	"context"
	"time"
)

// Message is one turn in a chat-style completion request.
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// Request is a synthesis call to one model on one provider.
type Request struct {
	TraceID     string
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float32
	Timeout     time.Duration
}

// Response is a completed, non-streaming synthesis result.
type Response struct {
	Provider         string
	Model            string
	Content          string
	PromptTokens     int
	CompletionTokens int
}

// Chunk is one piece of a streaming synthesis response.
type Chunk struct {
	Delta        string
	FinishReason string
	Err          error
}

// Provider is the adapter every concrete LLM backend implements.
type Provider interface {
	// Name returns the provider's catalog ID (e.g. "openai", "local_stub").
	Name() string

	// Complete runs a single non-streaming completion.
	Complete(ctx context.Context, req Request) (Response, error)

	// Stream runs a completion and emits Chunks on the returned channel.
	// The channel is closed after a terminal Chunk (non-empty
	// FinishReason or non-nil Err).
	Stream(ctx context.Context, req Request) (<-chan Chunk, error)

	// HealthCheck performs a lightweight liveness probe.
	HealthCheck(ctx context.Context) error
}
