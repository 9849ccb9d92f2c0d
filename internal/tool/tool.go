// Package tool defines the executable tool contract and the registry
// that dispatches model-requested tool calls.
package tool

import (
	"context"
	"fmt"

	"github.com/quill-labs/quill/internal/llm"
)

// Result is the uniform outcome of a tool execution. Failures are data,
// not errors: Execute never propagates an error to the caller.
type Result struct {
	Success  bool                   `json:"success"`
	Output   string                 `json:"output"`
	Error    string                 `json:"error,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Ok builds a successful result.
func Ok(output string) Result {
	return Result{Success: true, Output: output}
}

// Fail builds a failed result with the given message.
func Fail(format string, args ...interface{}) Result {
	return Result{Success: false, Error: fmt.Sprintf(format, args...)}
}

// Tool is an executable capability exposed to the model.
//
// Execute receives validated input and must return a Result in all
// cases; implementations report their own failures through the Result
// rather than panicking or returning an error.
type Tool interface {
	Definition() llm.ToolDefinition
	Execute(ctx context.Context, input map[string]interface{}) Result
}
