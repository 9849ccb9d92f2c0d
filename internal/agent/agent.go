package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/quill-labs/quill/internal/llm"
	"github.com/quill-labs/quill/internal/tool"
)

const defaultMaxIterations = 10

// Config holds agent construction parameters.
type Config struct {
	SystemPrompt  string
	MaxIterations int
	WorkDir       string
	// EventBuffer is the event channel capacity. A slow consumer
	// blocks the loop once the buffer fills; it never loses events.
	EventBuffer int
	// Stream emits llm_chunk events as provider text arrives, when the
	// provider supports streaming.
	Stream bool
}

// Agent owns one conversation and drives the tool loop over it. The
// agent persists across Run calls so the conversation continues; each
// Run is a fresh traversal of the loop.
//
// One Run may be active at a time. A second concurrent Run fails
// immediately with an error event rather than interleaving appends.
type Agent struct {
	provider llm.Provider
	registry *tool.Registry
	logger   *slog.Logger
	store    *ContextStore

	maxIterations int
	eventBuffer   int
	stream        bool

	mu           sync.Mutex
	running      bool
	state        RunState
	systemPrompt string
	messages     []llm.Message
	iteration    int
	usage        TokenUsage
}

// New creates an agent. The message log starts with the system prompt
// when one is configured.
func New(provider llm.Provider, registry *tool.Registry, cfg Config, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	maxIter := cfg.MaxIterations
	if maxIter <= 0 {
		maxIter = defaultMaxIterations
	}
	buffer := cfg.EventBuffer
	if buffer <= 0 {
		buffer = 64
	}

	a := &Agent{
		provider:      provider,
		registry:      registry,
		logger:        logger,
		store:         NewContextStore(cfg.WorkDir),
		maxIterations: maxIter,
		eventBuffer:   buffer,
		stream:        cfg.Stream,
		state:         StateIdle,
		systemPrompt:  cfg.SystemPrompt,
	}
	if cfg.SystemPrompt != "" {
		a.messages = append(a.messages, llm.Message{Role: llm.RoleSystem, Content: cfg.SystemPrompt})
	}
	return a
}

// Run appends the user message and drives the loop until a terminal
// event. The returned channel carries every progress event of this run
// and closes after the terminal event.
//
// Canceling ctx stops the producer promptly; the consumer may also
// just stop reading, in which case the producer exits on the next
// emit once ctx is canceled.
func (a *Agent) Run(ctx context.Context, userMessage string) <-chan Event {
	events := make(chan Event, a.eventBuffer)

	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		go func() {
			defer close(events)
			emit(ctx, events, Event{
				Type:      EventError,
				Error:     "a run is already in progress",
				Timestamp: time.Now(),
			})
		}()
		return events
	}
	a.running = true
	a.state = StateRunning
	a.iteration = 0
	a.mu.Unlock()

	go func() {
		defer close(events)
		defer func() {
			a.mu.Lock()
			a.running = false
			a.mu.Unlock()
		}()
		a.loop(ctx, userMessage, events)
	}()

	return events
}

func (a *Agent) loop(ctx context.Context, userMessage string, events chan<- Event) {
	a.append(llm.Message{Role: llm.RoleUser, Content: userMessage})

	for a.currentIteration() < a.maxIterations {
		iter := a.advanceIteration()
		if !emit(ctx, events, Event{Type: EventIteration, Iteration: iter, Timestamp: time.Now()}) {
			return
		}
		if !emit(ctx, events, Event{Type: EventLLMStart, Iteration: iter, Timestamp: time.Now()}) {
			return
		}

		a.logger.Debug("provider call",
			"provider", a.provider.Name(),
			"iteration", iter,
			"messages", a.messageCount())

		resp, err := a.complete(ctx, iter, events)
		if err != nil {
			// The provider call is the only error boundary in the
			// loop; tools report failure as data.
			a.logger.Error("provider call failed", "iteration", iter, "error", err)
			a.setState(StateError)
			emit(ctx, events, Event{
				Type:      EventError,
				Iteration: iter,
				Error:     err.Error(),
				Timestamp: time.Now(),
			})
			return
		}

		if resp.Usage != nil {
			a.addUsage(resp.Usage.InputTokens, resp.Usage.OutputTokens)
		}

		// Empty assistant turns are valid history when the turn was
		// pure tool use.
		a.append(llm.Message{Role: llm.RoleAssistant, Content: resp.Content})
		if resp.Content != "" {
			if !emit(ctx, events, Event{
				Type:      EventLLMResponse,
				Iteration: iter,
				Content:   resp.Content,
				Timestamp: time.Now(),
			}) {
				return
			}
		}

		if len(resp.ToolCalls) > 0 {
			if !a.runTools(ctx, iter, resp.ToolCalls, events) {
				return
			}
			continue
		}

		switch resp.StopReason {
		case llm.StopEndTurn, llm.StopStopSequence:
			a.setState(StateDone)
			emit(ctx, events, Event{
				Type:      EventDone,
				Iteration: iter,
				Content:   resp.Content,
				Timestamp: time.Now(),
			})
			return
		case llm.StopMaxTokens:
			a.logger.Warn("response truncated at max tokens, continuing", "iteration", iter)
			continue
		default:
			// Covers StopError and anything a future provider maps
			// outside the enum. Halting beats silently burning
			// iterations on a response we cannot interpret.
			a.setState(StateError)
			emit(ctx, events, Event{
				Type:      EventError,
				Iteration: iter,
				Error:     fmt.Sprintf("unhandled stop reason %q", resp.StopReason),
				Timestamp: time.Now(),
			})
			return
		}
	}

	// Every break path returns above, so reaching here means the cap
	// was hit without a terminal event.
	a.setState(StateMaxIterations)
	emit(ctx, events, Event{
		Type:      EventMaxIterations,
		Iteration: a.currentIteration(),
		Timestamp: time.Now(),
	})
}

// complete performs one provider call. With streaming enabled and a
// capable provider it forwards text fragments as llm_chunk events and
// returns the final accumulated response from the done chunk.
func (a *Agent) complete(ctx context.Context, iter int, events chan<- Event) (*llm.CompletionResponse, error) {
	messages := a.snapshot()
	tools := a.registry.Definitions()

	sp, ok := a.provider.(llm.StreamingProvider)
	if !a.stream || !ok {
		return a.provider.SendMessage(ctx, messages, tools)
	}

	chunks, err := sp.StreamMessage(ctx, messages, tools)
	if err != nil {
		return nil, err
	}
	for chunk := range chunks {
		switch chunk.Type {
		case llm.ChunkText:
			if !emit(ctx, events, Event{
				Type:      EventLLMChunk,
				Iteration: iter,
				Content:   chunk.Text,
				Timestamp: time.Now(),
			}) {
				return nil, ctx.Err()
			}
		case llm.ChunkDone:
			return chunk.Response, nil
		case llm.ChunkError:
			if chunk.Err != nil {
				return nil, chunk.Err
			}
			return nil, &llm.ProviderError{Provider: a.provider.Name(), Message: "stream error"}
		}
	}
	return nil, &llm.ProviderError{
		Provider: a.provider.Name(),
		Message:  "stream ended without a terminal chunk",
	}
}

// runTools executes the calls strictly in order and feeds each outcome
// back into the log as a user-role message. Returns false when the
// context died mid-batch.
func (a *Agent) runTools(ctx context.Context, iter int, calls []llm.ToolCall, events chan<- Event) bool {
	for _, call := range calls {
		if !emit(ctx, events, Event{
			Type:      EventToolStart,
			Iteration: iter,
			ToolName:  call.Name,
			ToolID:    call.ID,
			Timestamp: time.Now(),
		}) {
			return false
		}

		result := a.registry.Execute(ctx, call)

		a.logger.Debug("tool executed",
			"tool", call.Name,
			"success", result.Success,
			"output_len", len(result.Output))

		if !emit(ctx, events, Event{
			Type:      EventToolResult,
			Iteration: iter,
			ToolName:  call.Name,
			ToolID:    call.ID,
			Result:    &result,
			Timestamp: time.Now(),
		}) {
			return false
		}

		a.append(llm.Message{Role: llm.RoleUser, Content: formatToolResult(call.Name, result)})
	}
	return true
}

// formatToolResult renders a tool outcome as the text the model sees
// next turn.
func formatToolResult(name string, r tool.Result) string {
	if r.Success {
		return fmt.Sprintf("Tool %s result:\n%s", name, r.Output)
	}
	msg := fmt.Sprintf("Tool %s failed: %s", name, r.Error)
	if r.Output != "" {
		msg += "\n" + r.Output
	}
	return msg
}

// Reset restores the log to just the system prompt and zeroes the
// counters. Configuration (tools, prompt text, iteration cap) is
// untouched.
func (a *Agent) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = nil
	if a.systemPrompt != "" {
		a.messages = append(a.messages, llm.Message{Role: llm.RoleSystem, Content: a.systemPrompt})
	}
	a.iteration = 0
	a.usage = TokenUsage{}
	a.state = StateIdle
	a.store.Clear()
}

// SetSystemPrompt replaces the system prompt and rewrites the first
// log entry to match. Mid-conversation prompt changes rewrite history
// rather than appending.
func (a *Agent) SetSystemPrompt(text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.systemPrompt = text
	if len(a.messages) > 0 && a.messages[0].Role == llm.RoleSystem {
		a.messages[0].Content = text
	} else {
		a.messages = append([]llm.Message{{Role: llm.RoleSystem, Content: text}}, a.messages...)
	}
}

// AddSkillToPrompt appends skill text to the system prompt, rewriting
// the first log entry like SetSystemPrompt.
func (a *Agent) AddSkillToPrompt(text string) {
	a.mu.Lock()
	prompt := a.systemPrompt
	a.mu.Unlock()
	if prompt == "" {
		a.SetSystemPrompt(text)
		return
	}
	a.SetSystemPrompt(prompt + "\n\n" + text)
}

// Context returns the agent's ambient key-value store.
func (a *Agent) Context() *ContextStore { return a.store }

// Messages returns a copy of the message log.
func (a *Agent) Messages() []llm.Message {
	return a.snapshot()
}

// TokenUsage returns the accumulated token counts.
func (a *Agent) TokenUsage() TokenUsage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.usage
}

// State returns a read-only progress snapshot.
func (a *Agent) State() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Snapshot{
		State:          a.state,
		IterationCount: a.iteration,
		MessageCount:   len(a.messages),
		Usage:          a.usage,
	}
}

// LoadHistory replaces the conversation log, keeping the configured
// system prompt at index 0. Used to resume a persisted session.
func (a *Agent) LoadHistory(messages []llm.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = nil
	if a.systemPrompt != "" {
		a.messages = append(a.messages, llm.Message{Role: llm.RoleSystem, Content: a.systemPrompt})
	}
	for _, m := range messages {
		if m.Role == llm.RoleSystem {
			continue
		}
		a.messages = append(a.messages, m)
	}
}

func (a *Agent) append(m llm.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = append(a.messages, m)
}

func (a *Agent) snapshot() []llm.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]llm.Message, len(a.messages))
	copy(out, a.messages)
	return out
}

func (a *Agent) messageCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.messages)
}

func (a *Agent) currentIteration() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.iteration
}

func (a *Agent) advanceIteration() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.iteration++
	return a.iteration
}

func (a *Agent) addUsage(input, output int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.usage.InputTokens += input
	a.usage.OutputTokens += output
}

func (a *Agent) setState(s RunState) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = s
}

// emit sends an event unless the context is canceled first. Returns
// false when the producer should stop.
func emit(ctx context.Context, events chan<- Event, e Event) bool {
	select {
	case events <- e:
		return true
	case <-ctx.Done():
		return false
	}
}
