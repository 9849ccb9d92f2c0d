package llm

import (
	"encoding/json"
)

// ToolDefinition describes a tool the LLM can call. InputSchema maps
// property names to JSON-schema fragments (e.g., {"type": "string",
// "description": ...}); Required lists the property names that must be
// present in a call's input.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
	Required    []string               `json:"required,omitempty"`
}

// ToolCall represents the LLM requesting a tool execution. The ID is
// provider-assigned and must be preserved through to the matching result
// so consumers can correlate start/finish.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// InputMap decodes the call's input into a generic map. An empty or
// absent input decodes to an empty map rather than an error.
func (c ToolCall) InputMap() (map[string]interface{}, error) {
	out := map[string]interface{}{}
	if len(c.Input) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(c.Input, &out); err != nil {
		return nil, err
	}
	return out, nil
}
