package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements Provider against OpenAI's chat completion API
// and any compatible endpoint (OpenRouter, Ollama, vLLM) via a base URL
// override.
type OpenAIProvider struct {
	client      *openai.Client
	name        string
	model       string
	maxTokens   int
	temperature float64
}

// OpenAIConfig holds construction parameters for the OpenAI adapter.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	BaseURL     string // optional — compatible endpoint override
	Name        string // optional — provider label for compat endpoints
	MaxTokens   int
	Temperature float64
}

// NewOpenAI creates an OpenAI-compatible provider.
func NewOpenAI(cfg OpenAIConfig) *OpenAIProvider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIProvider{
		client:      openai.NewClientWithConfig(clientCfg),
		name:        cfg.Name,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}
}

func (p *OpenAIProvider) Name() string {
	if p.name != "" {
		return p.name
	}
	return "openai"
}

// SendMessage sends the conversation and returns the normalized response.
func (p *OpenAIProvider) SendMessage(ctx context.Context, messages []Message, tools []ToolDefinition) (*CompletionResponse, error) {
	resp, err := p.client.CreateChatCompletion(ctx, p.buildRequest(messages, tools))
	if err != nil {
		return nil, p.wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &ProviderError{
			Provider: p.Name(),
			Message:  "no choices in response",
		}
	}

	choice := resp.Choices[0]

	var toolCalls []ToolCall
	for _, tc := range choice.Message.ToolCalls {
		toolCalls = append(toolCalls, ToolCall{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: json.RawMessage(tc.Function.Arguments),
		})
	}

	return &CompletionResponse{
		Content:    choice.Message.Content,
		Model:      resp.Model,
		StopReason: normalizeFinishReason(choice.FinishReason),
		ToolCalls:  toolCalls,
		Usage: &Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

// StreamMessage implements StreamingProvider with true incremental
// delivery: text deltas are emitted as they arrive, tool calls are
// assembled from argument fragments keyed by index and emitted once
// complete.
func (p *OpenAIProvider) StreamMessage(ctx context.Context, messages []Message, tools []ToolDefinition) (<-chan StreamChunk, error) {
	req := p.buildRequest(messages, tools)
	req.Stream = true

	stream, err := p.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, p.wrapError(err)
	}

	out := make(chan StreamChunk, 16)
	go func() {
		defer close(out)
		defer stream.Close()

		var content string
		finish := StopEndTurn
		toolCallsByIndex := make(map[int]*ToolCall)
		argsByIndex := make(map[int]string)

		for {
			chunk, err := stream.Recv()
			if err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				emit(ctx, out, StreamChunk{Type: ChunkError, Err: p.wrapError(err)})
				return
			}
			if len(chunk.Choices) == 0 {
				continue
			}

			choice := chunk.Choices[0]
			delta := choice.Delta

			if delta.Content != "" {
				content += delta.Content
				if !emit(ctx, out, StreamChunk{Type: ChunkText, Text: delta.Content}) {
					return
				}
			}

			// Tool call arguments arrive as JSON fragments spread across
			// chunks; each fragment carries the index of the call it
			// belongs to.
			for _, tc := range delta.ToolCalls {
				if tc.Index == nil {
					continue
				}
				idx := *tc.Index
				call, ok := toolCallsByIndex[idx]
				if !ok {
					call = &ToolCall{}
					toolCallsByIndex[idx] = call
				}
				if tc.ID != "" {
					call.ID = tc.ID
				}
				if tc.Function.Name != "" {
					call.Name = tc.Function.Name
				}
				argsByIndex[idx] += tc.Function.Arguments
			}

			if choice.FinishReason != "" {
				finish = normalizeFinishReason(choice.FinishReason)
			}
		}

		indices := make([]int, 0, len(toolCallsByIndex))
		for idx := range toolCallsByIndex {
			indices = append(indices, idx)
		}
		sort.Ints(indices)

		var toolCalls []ToolCall
		for _, idx := range indices {
			call := toolCallsByIndex[idx]
			if call.ID == "" {
				call.ID = uuid.NewString()
			}
			call.Input = json.RawMessage(argsByIndex[idx])
			toolCalls = append(toolCalls, *call)
			if !emit(ctx, out, StreamChunk{Type: ChunkToolUse, ToolCall: call}) {
				return
			}
		}

		if len(toolCalls) > 0 && finish == StopEndTurn {
			finish = StopToolUse
		}

		emit(ctx, out, StreamChunk{Type: ChunkDone, Response: &CompletionResponse{
			Content:    content,
			Model:      p.model,
			StopReason: finish,
			ToolCalls:  toolCalls,
		}})
	}()

	return out, nil
}

func (p *OpenAIProvider) buildRequest(messages []Message, tools []ToolDefinition) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:    p.model,
		Messages: openaiMessages(messages),
	}
	if p.maxTokens > 0 {
		req.MaxTokens = p.maxTokens
	}
	if p.temperature > 0 {
		req.Temperature = float32(p.temperature)
	}
	if len(tools) > 0 {
		req.Tools = openaiTools(tools)
		req.ToolChoice = "auto"
	}
	return req
}

func (p *OpenAIProvider) wrapError(err error) error {
	perr := &ProviderError{
		Provider: p.Name(),
		Message:  err.Error(),
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		perr.StatusCode = apiErr.HTTPStatusCode
		perr.Message = fmt.Sprintf("%v", apiErr.Message)
	}
	return perr
}

func openaiMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	return out
}

// openaiTools translates the shared tool schema into OpenAI's function
// calling shape. Pure and stateless: the same input always yields the
// same output.
func openaiTools(tools []ToolDefinition) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		params := map[string]interface{}{
			"type":       "object",
			"properties": t.InputSchema,
		}
		if len(t.Required) > 0 {
			params["required"] = t.Required
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return out
}

// normalizeFinishReason maps OpenAI finish reasons onto the shared stop
// reason enum. Anything unrecognized maps to StopError so the caller
// halts rather than misreading the response.
func normalizeFinishReason(reason openai.FinishReason) StopReason {
	switch reason {
	case openai.FinishReasonStop:
		return StopEndTurn
	case openai.FinishReasonToolCalls, openai.FinishReasonFunctionCall:
		return StopToolUse
	case openai.FinishReasonLength:
		return StopMaxTokens
	default:
		return StopError
	}
}
