// Package agent drives the iterate, call, execute loop that turns a
// user message into a finished conversation turn.
package agent

import (
	"time"

	"github.com/quill-labs/quill/internal/tool"
)

// EventType discriminates the progress events a run emits.
type EventType string

const (
	// EventIteration marks the start of a loop pass; Iteration carries
	// the 1-based pass number.
	EventIteration EventType = "iteration"
	// EventLLMStart fires just before a provider call.
	EventLLMStart EventType = "llm_start"
	// EventLLMResponse carries non-empty assistant text.
	EventLLMResponse EventType = "llm_response"
	// EventLLMChunk carries one streamed text fragment. Only emitted
	// when streaming is enabled; the full text still arrives as
	// llm_response afterward.
	EventLLMChunk EventType = "llm_chunk"
	// EventToolStart fires before each tool execution.
	EventToolStart EventType = "tool_start"
	// EventToolResult carries the outcome of a tool execution.
	EventToolResult EventType = "tool_result"
	// EventDone is the natural-completion terminal event.
	EventDone EventType = "done"
	// EventError is the failure terminal event.
	EventError EventType = "error"
	// EventMaxIterations is the iteration-cap terminal event. Hitting
	// the cap is a policy stop, not a failure.
	EventMaxIterations EventType = "max_iterations"
)

// Event is one progress notification from a run. Only the fields
// relevant to the Type are populated. Events are ephemeral; the message
// log, not the event stream, is the durable record.
type Event struct {
	Type      EventType
	Iteration int
	Content   string       // llm_response, done
	Error     string       // error
	ToolName  string       // tool_start, tool_result
	ToolID    string       // tool_start, tool_result
	Result    *tool.Result // tool_result
	Timestamp time.Time
}

// Terminal reports whether the event ends a run.
func (e Event) Terminal() bool {
	switch e.Type {
	case EventDone, EventError, EventMaxIterations:
		return true
	}
	return false
}
