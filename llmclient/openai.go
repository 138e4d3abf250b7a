package llmclient

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"
)

// OpenAIProvider adapts the OpenAI chat-completions API, grounded on
// llm/providers/openai/provider.go's adapter shape but calling the
// official SDK directly instead of the teacher's hand-rolled HTTP client.
type OpenAIProvider struct {
	client *openai.Client
	logger *zap.Logger
}

// NewOpenAIProvider creates an OpenAI adapter. baseURL may be empty to
// use the default API endpoint (set for OpenAI-compatible gateways).
func NewOpenAIProvider(apiKey, baseURL string, logger *zap.Logger) *OpenAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAIProvider{client: &client, logger: logger.With(zap.String("provider", "openai"))}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func toOpenAIMessages(msgs []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (Response, error) {
	params := openai.ChatCompletionNewParams{
		Model:    req.Model,
		Messages: toOpenAIMessages(req.Messages),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(float64(req.Temperature))
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Response{}, fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, fmt.Errorf("openai completion: empty choices")
	}
	return Response{
		Provider:         p.Name(),
		Model:            resp.Model,
		Content:          resp.Choices[0].Message.Content,
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
	}, nil
}

func (p *OpenAIProvider) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	params := openai.ChatCompletionNewParams{
		Model:    req.Model,
		Messages: toOpenAIMessages(req.Messages),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(float64(req.Temperature))
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	ch := make(chan Chunk, 16)

	go func() {
		defer close(ch)
		for stream.Next() {
			evt := stream.Current()
			if len(evt.Choices) == 0 {
				continue
			}
			choice := evt.Choices[0]
			if choice.Delta.Content != "" {
				ch <- Chunk{Delta: choice.Delta.Content}
			}
			if choice.FinishReason != "" {
				ch <- Chunk{FinishReason: choice.FinishReason}
			}
		}
		if err := stream.Err(); err != nil {
			ch <- Chunk{Err: fmt.Errorf("openai stream: %w", err)}
		}
	}()

	return ch, nil
}

func (p *OpenAIProvider) HealthCheck(ctx context.Context) error {
	_, err := p.client.Models.List(ctx)
	if err != nil {
		return fmt.Errorf("openai health check: %w", err)
	}
	return nil
}
