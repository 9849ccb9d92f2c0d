package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/sashabaranov/go-openai"
)

func TestNormalizeStopReason(t *testing.T) {
	tests := []struct {
		vendor string
		want   StopReason
	}{
		{"end_turn", StopEndTurn},
		{"tool_use", StopToolUse},
		{"max_tokens", StopMaxTokens},
		{"stop_sequence", StopStopSequence},
		{"refusal", StopError},
		{"pause_turn", StopError},
		{"", StopError},
	}
	for _, tt := range tests {
		if got := normalizeStopReason(tt.vendor); got != tt.want {
			t.Errorf("normalizeStopReason(%q) = %q, want %q", tt.vendor, got, tt.want)
		}
	}
}

func TestNormalizeFinishReason(t *testing.T) {
	tests := []struct {
		reason openai.FinishReason
		want   StopReason
	}{
		{openai.FinishReasonStop, StopEndTurn},
		{openai.FinishReasonToolCalls, StopToolUse},
		{openai.FinishReasonFunctionCall, StopToolUse},
		{openai.FinishReasonLength, StopMaxTokens},
		{openai.FinishReasonContentFilter, StopError},
		{openai.FinishReason("weird_new_reason"), StopError},
	}
	for _, tt := range tests {
		if got := normalizeFinishReason(tt.reason); got != tt.want {
			t.Errorf("normalizeFinishReason(%q) = %q, want %q", tt.reason, got, tt.want)
		}
	}
}

func TestSplitSystem(t *testing.T) {
	messages := []Message{
		{Role: RoleSystem, Content: "you are helpful"},
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
	}

	system, rest := splitSystem(messages)
	if system != "you are helpful" {
		t.Errorf("system = %q", system)
	}
	if len(rest) != 2 {
		t.Fatalf("rest has %d messages, want 2", len(rest))
	}
	if rest[0].Role != RoleUser || rest[1].Role != RoleAssistant {
		t.Errorf("rest roles = %q, %q", rest[0].Role, rest[1].Role)
	}
}

func TestSplitSystemNone(t *testing.T) {
	messages := []Message{{Role: RoleUser, Content: "hi"}}
	system, rest := splitSystem(messages)
	if system != "" {
		t.Errorf("system = %q, want empty", system)
	}
	if len(rest) != 1 {
		t.Errorf("rest has %d messages, want 1", len(rest))
	}
}

func TestProviderErrorFormat(t *testing.T) {
	err := &ProviderError{Provider: "anthropic", Message: "overloaded", StatusCode: 529}
	if got := err.Error(); got != "anthropic: overloaded" {
		t.Errorf("Error() = %q", got)
	}
}

func TestToolCallInputMap(t *testing.T) {
	call := ToolCall{Input: json.RawMessage(`{"command":"ls","timeout":5}`)}
	m, err := call.InputMap()
	if err != nil {
		t.Fatalf("InputMap: %v", err)
	}
	if m["command"] != "ls" {
		t.Errorf("command = %v", m["command"])
	}

	empty := ToolCall{}
	m, err = empty.InputMap()
	if err != nil {
		t.Fatalf("InputMap on empty input: %v", err)
	}
	if len(m) != 0 {
		t.Errorf("empty input produced %d keys", len(m))
	}
}

func testTools() []ToolDefinition {
	return []ToolDefinition{
		{
			Name:        "shell",
			Description: "run a shell command",
			InputSchema: map[string]interface{}{
				"command": map[string]interface{}{"type": "string"},
			},
			Required: []string{"command"},
		},
		{
			Name:        "read_file",
			Description: "read a file",
			InputSchema: map[string]interface{}{
				"path": map[string]interface{}{"type": "string"},
			},
			Required: []string{"path"},
		},
	}
}

// Translation must be pure: calling it twice on the same definitions has
// to produce identical output.
func TestToolTranslationIdempotent(t *testing.T) {
	defs := testTools()

	a1, err := json.Marshal(anthropicTools(defs))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	a2, _ := json.Marshal(anthropicTools(defs))
	if string(a1) != string(a2) {
		t.Error("anthropic translation not deterministic")
	}

	o1, err := json.Marshal(openaiTools(defs))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	o2, _ := json.Marshal(openaiTools(defs))
	if string(o1) != string(o2) {
		t.Error("openai translation not deterministic")
	}
}

func TestOpenAIToolsShape(t *testing.T) {
	out := openaiTools(testTools())
	if len(out) != 2 {
		t.Fatalf("got %d tools, want 2", len(out))
	}
	if out[0].Type != openai.ToolTypeFunction {
		t.Errorf("type = %q", out[0].Type)
	}
	params, ok := out[0].Function.Parameters.(map[string]interface{})
	if !ok {
		t.Fatalf("parameters is %T", out[0].Function.Parameters)
	}
	if params["type"] != "object" {
		t.Errorf("schema type = %v", params["type"])
	}
	req, ok := params["required"].([]string)
	if !ok || len(req) != 1 || req[0] != "command" {
		t.Errorf("required = %v", params["required"])
	}
}

// The tool loop appends an empty assistant message after pure tool-use
// turns; those must not reach the wire as empty text blocks, which the
// API rejects.
func TestAnthropicParamsSkipEmptyTurns(t *testing.T) {
	p := NewAnthropic(AnthropicConfig{APIKey: "k", Model: "claude-sonnet-4-5"})

	params := p.buildParams([]Message{
		{Role: RoleSystem, Content: "You are helpful."},
		{Role: RoleUser, Content: "run the tool"},
		{Role: RoleAssistant, Content: ""},
		{Role: RoleUser, Content: "Tool echo result:\nx"},
	}, nil)

	if len(params.Messages) != 2 {
		t.Fatalf("got %d wire messages, want 2 (empty assistant turn dropped)", len(params.Messages))
	}
	data, err := json.Marshal(params.Messages)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(data), `"text":""`) {
		t.Errorf("payload contains an empty text block: %s", data)
	}
}

type scriptedProvider struct {
	name      string
	responses []*CompletionResponse
	errs      []error
	calls     int
}

func (s *scriptedProvider) Name() string { return s.name }

func (s *scriptedProvider) SendMessage(ctx context.Context, messages []Message, tools []ToolDefinition) (*CompletionResponse, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i >= len(s.responses) {
		return nil, &ProviderError{Provider: s.name, Message: "script exhausted"}
	}
	return s.responses[i], nil
}

func TestSynthesizeStreamOrdering(t *testing.T) {
	p := &scriptedProvider{
		name: "mock",
		responses: []*CompletionResponse{{
			Content:    "running it",
			StopReason: StopToolUse,
			ToolCalls: []ToolCall{
				{ID: "t1", Name: "shell", Input: json.RawMessage(`{"command":"ls"}`)},
			},
		}},
	}

	ch := SynthesizeStream(context.Background(), p, []Message{{Role: RoleUser, Content: "go"}}, nil)

	var types []ChunkType
	var final *CompletionResponse
	for chunk := range ch {
		types = append(types, chunk.Type)
		if chunk.Type == ChunkDone {
			final = chunk.Response
		}
	}

	want := []ChunkType{ChunkText, ChunkToolUse, ChunkDone}
	if len(types) != len(want) {
		t.Fatalf("got %d chunks %v, want %v", len(types), types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("chunk %d = %q, want %q", i, types[i], want[i])
		}
	}
	if final == nil || final.StopReason != StopToolUse {
		t.Errorf("final response = %+v", final)
	}
}

func TestSynthesizeStreamError(t *testing.T) {
	p := &scriptedProvider{
		name: "mock",
		errs: []error{&ProviderError{Provider: "mock", Message: "boom"}},
	}

	ch := SynthesizeStream(context.Background(), p, nil, nil)

	var chunks []StreamChunk
	for chunk := range ch {
		chunks = append(chunks, chunk)
	}
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if chunks[0].Type != ChunkError || chunks[0].Err == nil {
		t.Errorf("chunk = %+v", chunks[0])
	}
}

func TestRetryableClassification(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{&ProviderError{StatusCode: 429}, true},
		{&ProviderError{StatusCode: 500}, true},
		{&ProviderError{StatusCode: 503}, true},
		{&ProviderError{StatusCode: 0}, true},
		{&ProviderError{StatusCode: 400}, false},
		{&ProviderError{StatusCode: 401}, false},
		{errors.New("plain"), false},
	}
	for _, tt := range tests {
		if got := retryable(tt.err); got != tt.want {
			t.Errorf("retryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestWithRetryPassthrough(t *testing.T) {
	p := &scriptedProvider{name: "mock"}
	if got := WithRetry(p, RetryPolicy{MaxAttempts: 1}, nil); got != Provider(p) {
		t.Error("MaxAttempts=1 should return the provider unchanged")
	}
}

func TestWithRetryRecovers(t *testing.T) {
	p := &scriptedProvider{
		name: "mock",
		errs: []error{&ProviderError{Provider: "mock", Message: "overloaded", StatusCode: 529}, nil},
		responses: []*CompletionResponse{
			nil,
			{Content: "ok", StopReason: StopEndTurn},
		},
	}

	wrapped := WithRetry(p, RetryPolicy{MaxAttempts: 3, InitialInterval: 1, MaxInterval: 1}, nil)
	resp, err := wrapped.SendMessage(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("content = %q", resp.Content)
	}
	if p.calls != 2 {
		t.Errorf("calls = %d, want 2", p.calls)
	}
}

type scriptedStreamProvider struct {
	scriptedProvider
	streamErrs  []error
	streamCalls int
}

func (s *scriptedStreamProvider) StreamMessage(ctx context.Context, messages []Message, tools []ToolDefinition) (<-chan StreamChunk, error) {
	i := s.streamCalls
	s.streamCalls++
	if i < len(s.streamErrs) && s.streamErrs[i] != nil {
		return nil, s.streamErrs[i]
	}
	return SynthesizeStream(ctx, &s.scriptedProvider, messages, tools), nil
}

// Wrapping a streaming provider must not erase the streaming interface.
func TestWithRetryPreservesStreaming(t *testing.T) {
	p := &scriptedStreamProvider{
		scriptedProvider: scriptedProvider{
			name: "mock",
			responses: []*CompletionResponse{
				{Content: "ok", StopReason: StopEndTurn},
			},
		},
		streamErrs: []error{&ProviderError{Provider: "mock", Message: "overloaded", StatusCode: 529}},
	}

	wrapped := WithRetry(p, RetryPolicy{MaxAttempts: 3, InitialInterval: 1, MaxInterval: 1}, nil)
	sp, ok := wrapped.(StreamingProvider)
	if !ok {
		t.Fatal("wrapped streaming provider lost StreamingProvider")
	}

	ch, err := sp.StreamMessage(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("StreamMessage: %v", err)
	}
	var final *CompletionResponse
	for chunk := range ch {
		if chunk.Type == ChunkDone {
			final = chunk.Response
		}
	}
	if final == nil || final.Content != "ok" {
		t.Errorf("final = %+v", final)
	}
	if p.streamCalls != 2 {
		t.Errorf("stream calls = %d, want 2", p.streamCalls)
	}
}

func TestWithRetryNonStreamingStaysPlain(t *testing.T) {
	p := &scriptedProvider{name: "mock"}
	wrapped := WithRetry(p, RetryPolicy{MaxAttempts: 3, InitialInterval: 1, MaxInterval: 1}, nil)
	if _, ok := wrapped.(StreamingProvider); ok {
		t.Error("wrapper advertises streaming the inner provider lacks")
	}
}

func TestWithRetryPermanent(t *testing.T) {
	p := &scriptedProvider{
		name: "mock",
		errs: []error{&ProviderError{Provider: "mock", Message: "bad request", StatusCode: 400}},
	}

	wrapped := WithRetry(p, RetryPolicy{MaxAttempts: 3, InitialInterval: 1, MaxInterval: 1}, nil)
	_, err := wrapped.SendMessage(context.Background(), nil, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if p.calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry on 4xx)", p.calls)
	}
}
