package llmclient

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
)

// AnthropicProvider adapts the Claude Messages API, grounded on
// providers/anthropic/provider.go's ClaudeProvider but calling the
// official SDK directly instead of a hand-rolled HTTP client.
type AnthropicProvider struct {
	client *anthropic.Client
	logger *zap.Logger
}

// NewAnthropicProvider creates an Anthropic adapter.
func NewAnthropicProvider(apiKey string, logger *zap.Logger) *AnthropicProvider {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnthropicProvider{client: &client, logger: logger.With(zap.String("provider", "anthropic"))}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func toAnthropicParams(req Request) anthropic.MessageNewParams {
	var system string
	var messages []anthropic.MessageParam
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			system = m.Content
		case "assistant":
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
		Messages:  messages,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	return params
}

func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (Response, error) {
	msg, err := p.client.Messages.New(ctx, toAnthropicParams(req))
	if err != nil {
		return Response{}, fmt.Errorf("anthropic completion: %w", err)
	}

	var content string
	for _, block := range msg.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}

	return Response{
		Provider:         p.Name(),
		Model:            string(msg.Model),
		Content:          content,
		PromptTokens:     int(msg.Usage.InputTokens),
		CompletionTokens: int(msg.Usage.OutputTokens),
	}, nil
}

func (p *AnthropicProvider) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	stream := p.client.Messages.NewStreaming(ctx, toAnthropicParams(req))
	ch := make(chan Chunk, 16)

	go func() {
		defer close(ch)
		for stream.Next() {
			evt := stream.Current()
			switch delta := evt.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				if delta.Delta.Text != "" {
					ch <- Chunk{Delta: delta.Delta.Text}
				}
			case anthropic.MessageStopEvent:
				ch <- Chunk{FinishReason: "stop"}
			}
		}
		if err := stream.Err(); err != nil {
			ch <- Chunk{Err: fmt.Errorf("anthropic stream: %w", err)}
		}
	}()

	return ch, nil
}

func (p *AnthropicProvider) HealthCheck(ctx context.Context) error {
	_, err := p.client.Models.List(ctx, anthropic.ModelListParams{})
	if err != nil {
		return fmt.Errorf("anthropic health check: %w", err)
	}
	return nil
}
