// Package llm provides the provider abstraction that normalizes
// heterogeneous LLM vendor APIs into one request/response model.
package llm

import "context"

// Role values for conversation messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single chat message.
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// StopReason is the normalized reason a generation turn ended.
type StopReason string

const (
	StopEndTurn      StopReason = "end_turn"
	StopToolUse      StopReason = "tool_use"
	StopMaxTokens    StopReason = "max_tokens"
	StopStopSequence StopReason = "stop_sequence"
	// StopError is the fallback for any vendor stop signal outside the
	// known four. Unrecognized reasons must never default to end_turn.
	StopError StopReason = "error"
)

// Usage holds normalized token accounting for one completion.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// CompletionResponse is the normalized result of one LLM call.
// Ephemeral — the agent folds it into a message and token counters.
type CompletionResponse struct {
	Content    string     `json:"content"`
	Model      string     `json:"model"`
	StopReason StopReason `json:"stop_reason"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	Usage      *Usage     `json:"usage,omitempty"` // nil when the vendor reports none
}

// Provider is the interface every vendor adapter implements.
type Provider interface {
	// Name returns the provider identifier (e.g., "anthropic", "openai").
	Name() string

	// SendMessage sends the full conversation plus an optional tool list
	// and returns the normalized response. Transport and vendor errors are
	// wrapped in *ProviderError and returned — this is the one boundary in
	// the system where an error propagates upward; the agent loop converts
	// it into an error event.
	SendMessage(ctx context.Context, messages []Message, tools []ToolDefinition) (*CompletionResponse, error)
}

// StreamingProvider is implemented by providers that can deliver a
// completion as an ordered, finite chunk sequence. Callers must not
// assume true incrementality: adapters without native streaming may
// synthesize the sequence from a single full completion.
type StreamingProvider interface {
	Provider

	// StreamMessage returns a channel that yields text and tool_use chunks
	// in order, terminated by exactly one done or error chunk. The channel
	// is closed after the terminal chunk.
	StreamMessage(ctx context.Context, messages []Message, tools []ToolDefinition) (<-chan StreamChunk, error)
}

// StreamChunk is one element of a streamed completion.
type StreamChunk struct {
	Type     ChunkType           `json:"type"`
	Text     string              `json:"text,omitempty"`
	ToolCall *ToolCall           `json:"tool_call,omitempty"`
	Response *CompletionResponse `json:"-"` // set on done chunks
	Err      error               `json:"-"` // set on error chunks
}

// ChunkType tags a stream chunk.
type ChunkType string

const (
	ChunkText    ChunkType = "text"
	ChunkToolUse ChunkType = "tool_use"
	ChunkDone    ChunkType = "done"
	ChunkError   ChunkType = "error"
)

// ProviderError represents an LLM provider failure — transport, auth,
// rate limit, or a malformed response.
type ProviderError struct {
	Provider   string
	Message    string
	StatusCode int
}

func (e *ProviderError) Error() string {
	if e.Provider != "" {
		return e.Provider + ": " + e.Message
	}
	return e.Message
}

// normalizeStopReason maps an Anthropic-style stop reason string onto the
// shared enum. Anything unrecognized maps to StopError.
func normalizeStopReason(vendor string) StopReason {
	switch vendor {
	case "end_turn":
		return StopEndTurn
	case "tool_use":
		return StopToolUse
	case "max_tokens":
		return StopMaxTokens
	case "stop_sequence":
		return StopStopSequence
	default:
		return StopError
	}
}

// splitSystem separates system-role messages from the rest of the
// conversation. Vendors that take the system prompt as a top-level field
// (Anthropic) need the extraction; multiple system messages are joined
// with blank lines in log order.
func splitSystem(messages []Message) (system string, rest []Message) {
	rest = make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}
