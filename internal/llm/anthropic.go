package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider implements Provider for Claude and Anthropic-compatible
// APIs (vendors like Kimi expose the same message format behind a custom
// base URL).
type AnthropicProvider struct {
	client      *anthropic.Client
	name        string // provider name ("anthropic" unless overridden)
	model       string
	maxTokens   int
	temperature float64
}

// AnthropicConfig holds construction parameters for the Anthropic adapter.
type AnthropicConfig struct {
	APIKey      string
	Model       string
	BaseURL     string // optional — Anthropic-compatible endpoint override
	Name        string // optional — provider label for compat endpoints
	MaxTokens   int
	Temperature float64
}

// NewAnthropic creates an Anthropic provider.
func NewAnthropic(cfg AnthropicConfig) *AnthropicProvider {
	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	client := anthropic.NewClient(opts...)

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	return &AnthropicProvider{
		client:      &client,
		name:        cfg.Name,
		model:       cfg.Model,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
	}
}

func (p *AnthropicProvider) Name() string {
	if p.name != "" {
		return p.name
	}
	return "anthropic"
}

// SendMessage sends the conversation and returns the normalized response.
//
// Uses streaming under the hood to avoid SDK timeouts on large context
// requests; chunks are accumulated and returned as one result.
func (p *AnthropicProvider) SendMessage(ctx context.Context, messages []Message, tools []ToolDefinition) (*CompletionResponse, error) {
	params := p.buildParams(messages, tools)

	stream := p.client.Messages.NewStreaming(ctx, params,
		option.WithRequestTimeout(10*time.Minute),
	)
	defer stream.Close()

	message := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return nil, &ProviderError{
				Provider: p.Name(),
				Message:  fmt.Sprintf("stream accumulate: %v", err),
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, &ProviderError{
			Provider: p.Name(),
			Message:  err.Error(),
		}
	}

	var content string
	var toolCalls []ToolCall
	for _, block := range message.Content {
		switch v := block.AsAny().(type) {
		case anthropic.TextBlock:
			content += v.Text
		case anthropic.ToolUseBlock:
			inputJSON, _ := json.Marshal(v.Input)
			toolCalls = append(toolCalls, ToolCall{
				ID:    v.ID,
				Name:  v.Name,
				Input: inputJSON,
			})
		}
	}

	return &CompletionResponse{
		Content:    content,
		Model:      string(message.Model),
		StopReason: normalizeStopReason(string(message.StopReason)),
		ToolCalls:  toolCalls,
		Usage: &Usage{
			InputTokens:  int(message.Usage.InputTokens),
			OutputTokens: int(message.Usage.OutputTokens),
		},
	}, nil
}

// StreamMessage implements StreamingProvider. The Anthropic SDK delivers
// server-sent events, but tool input arrives as partial JSON fragments, so
// the adapter accumulates the full message first and synthesizes the chunk
// sequence from the final result.
func (p *AnthropicProvider) StreamMessage(ctx context.Context, messages []Message, tools []ToolDefinition) (<-chan StreamChunk, error) {
	return SynthesizeStream(ctx, p, messages, tools), nil
}

func (p *AnthropicProvider) buildParams(messages []Message, tools []ToolDefinition) anthropic.MessageNewParams {
	// Anthropic takes the system prompt as a top-level field, not as a
	// message in the array.
	system, rest := splitSystem(messages)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(p.maxTokens),
		Messages:  anthropicMessages(rest),
		Tools:     anthropicTools(tools),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if p.temperature > 0 {
		params.Temperature = anthropic.Float(p.temperature)
	}
	return params
}

func anthropicMessages(messages []Message) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	for _, m := range messages {
		// Empty turns stay in the log but are kept off the wire; the
		// API rejects empty text blocks.
		if m.Content == "" {
			continue
		}
		switch m.Role {
		case RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return out
}

// anthropicTools translates the shared tool schema into Anthropic's
// {name, description, input_schema} shape. Pure and stateless: the same
// input always yields the same output.
func anthropicTools(tools []ToolDefinition) []anthropic.ToolUnionParam {
	var out []anthropic.ToolUnionParam
	for _, t := range tools {
		props := make(map[string]interface{}, len(t.InputSchema))
		for k, v := range t.InputSchema {
			props[k] = v
		}
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: props,
					Required:   t.Required,
				},
			},
		})
	}
	return out
}
