package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// GeminiProvider adapts Google's Gemini API, grounded on
// llm/providers/gemini/provider.go's adapter shape but calling the
// official google.golang.org/genai SDK directly.
type GeminiProvider struct {
	client *genai.Client
	logger *zap.Logger
}

// NewGeminiProvider creates a Gemini adapter.
func NewGeminiProvider(ctx context.Context, apiKey string, logger *zap.Logger) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("gemini client init: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GeminiProvider{client: client, logger: logger.With(zap.String("provider", "gemini"))}, nil
}

func (p *GeminiProvider) Name() string { return "gemini" }

func toGeminiContents(msgs []Message) ([]*genai.Content, string) {
	var system string
	var contents []*genai.Content
	for _, m := range msgs {
		if m.Role == "system" {
			system = m.Content
			continue
		}
		role := genai.RoleUser
		if m.Role == "assistant" {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{Role: role, Parts: []*genai.Part{genai.NewPartFromText(m.Content)}})
	}
	return contents, system
}

func geminiConfig(req Request, system string) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature > 0 {
		t := req.Temperature
		cfg.Temperature = &t
	}
	if system != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(system)}}
	}
	return cfg
}

func (p *GeminiProvider) Complete(ctx context.Context, req Request) (Response, error) {
	contents, system := toGeminiContents(req.Messages)
	resp, err := p.client.Models.GenerateContent(ctx, req.Model, contents, geminiConfig(req, system))
	if err != nil {
		return Response{}, fmt.Errorf("gemini completion: %w", err)
	}
	return Response{
		Provider:         p.Name(),
		Model:            req.Model,
		Content:          resp.Text(),
		PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
		CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
	}, nil
}

func (p *GeminiProvider) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	contents, system := toGeminiContents(req.Messages)
	iter := p.client.Models.GenerateContentStream(ctx, req.Model, contents, geminiConfig(req, system))
	ch := make(chan Chunk, 16)

	go func() {
		defer close(ch)
		for resp, err := range iter {
			if err != nil {
				ch <- Chunk{Err: fmt.Errorf("gemini stream: %w", err)}
				return
			}
			if text := resp.Text(); text != "" {
				ch <- Chunk{Delta: text}
			}
		}
		ch <- Chunk{FinishReason: "stop"}
	}()

	return ch, nil
}

func (p *GeminiProvider) HealthCheck(ctx context.Context) error {
	contents := []*genai.Content{{Role: genai.RoleUser, Parts: []*genai.Part{genai.NewPartFromText("ping")}}}
	_, err := p.client.Models.GenerateContent(ctx, "gemini-2.0-flash", contents, &genai.GenerateContentConfig{MaxOutputTokens: 1})
	if err != nil {
		return fmt.Errorf("gemini health check: %w", err)
	}
	return nil
}
