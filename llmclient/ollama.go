package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// OllamaProvider adapts a local Ollama server's /api/chat endpoint,
// grounded on the raw-HTTP-client adapter idiom used by the teacher's
// Claude/Gemini providers (providers/anthropic/provider.go,
// llm/providers/gemini/provider.go) for backends with no official SDK.
type OllamaProvider struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewOllamaProvider creates an adapter pointed at a local Ollama server.
func NewOllamaProvider(baseURL string, logger *zap.Logger) *OllamaProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OllamaProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 60 * time.Second},
		logger:  logger.With(zap.String("provider", "ollama_local")),
	}
}

func (p *OllamaProvider) Name() string { return "ollama_local" }

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
}

type ollamaChatResponse struct {
	Message ollamaChatMessage `json:"message"`
	Done    bool              `json:"done"`
}

func toOllamaMessages(msgs []Message) []ollamaChatMessage {
	out := make([]ollamaChatMessage, len(msgs))
	for i, m := range msgs {
		out[i] = ollamaChatMessage{Role: m.Role, Content: m.Content}
	}
	return out
}

func (p *OllamaProvider) Complete(ctx context.Context, req Request) (Response, error) {
	body, err := json.Marshal(ollamaChatRequest{Model: req.Model, Messages: toOllamaMessages(req.Messages), Stream: false})
	if err != nil {
		return Response{}, fmt.Errorf("ollama marshal: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("ollama request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("ollama call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Response{}, fmt.Errorf("ollama call: status=%d", resp.StatusCode)
	}

	var out ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Response{}, fmt.Errorf("ollama decode: %w", err)
	}
	return Response{Provider: p.Name(), Model: req.Model, Content: out.Message.Content}, nil
}

func (p *OllamaProvider) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	body, err := json.Marshal(ollamaChatRequest{Model: req.Model, Messages: toOllamaMessages(req.Messages), Stream: true})
	if err != nil {
		return nil, fmt.Errorf("ollama marshal: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollama request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama call: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("ollama call: status=%d", resp.StatusCode)
	}

	ch := make(chan Chunk, 16)
	go func() {
		defer close(ch)
		defer resp.Body.Close()
		dec := json.NewDecoder(resp.Body)
		for {
			var line ollamaChatResponse
			if err := dec.Decode(&line); err != nil {
				return
			}
			if line.Message.Content != "" {
				ch <- Chunk{Delta: line.Message.Content}
			}
			if line.Done {
				ch <- Chunk{FinishReason: "stop"}
				return
			}
		}
	}()
	return ch, nil
}

func (p *OllamaProvider) HealthCheck(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("ollama health check: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama health check: status=%d", resp.StatusCode)
	}
	return nil
}
