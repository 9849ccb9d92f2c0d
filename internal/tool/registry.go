package tool

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/quill-labs/quill/internal/llm"
)

// Registry holds the tools available to an agent and dispatches tool
// calls by name.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:  make(map[string]Tool),
		logger: logger,
	}
}

// Register adds a tool. Registering a name twice is an error.
func (r *Registry) Register(t Tool) error {
	name := t.Definition().Name
	if name == "" {
		return fmt.Errorf("tool has empty name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.tools[name] = t
	r.logger.Debug("tool registered", "tool", name)
	return nil
}

// RegisterAll registers tools in order, stopping at the first failure.
func (r *Registry) RegisterAll(tools ...Tool) error {
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the tool with the given name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Has reports whether a tool with the given name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Names returns registered tool names, sorted alphabetically.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns the wire definitions of all registered tools,
// ordered by name so the payload sent to the model is stable.
func (r *Registry) Definitions() []llm.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]llm.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, t.Definition())
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Execute runs one tool call and always returns a Result. Unknown
// tools, malformed or schema-invalid input, and execution panics all
// surface as failed Results, never as errors or panics: the agent loop
// feeds whatever comes back to the model and keeps going.
func (r *Registry) Execute(ctx context.Context, call llm.ToolCall) (result Result) {
	t, ok := r.Get(call.Name)
	if !ok {
		return Fail("unknown tool: %s (available: %v)", call.Name, r.Names())
	}

	input, err := call.InputMap()
	if err != nil {
		return Fail("invalid input for %s: %v", call.Name, err)
	}

	if err := validateInput(t.Definition(), input); err != nil {
		return Fail("input validation for %s: %v", call.Name, err)
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool panicked", "tool", call.Name, "panic", rec)
			result = Fail("tool %s panicked: %v", call.Name, rec)
		}
	}()

	return t.Execute(ctx, input)
}

// ExecuteAll runs the calls in order and returns results in the same
// order. Results pair with calls by position.
func (r *Registry) ExecuteAll(ctx context.Context, calls []llm.ToolCall) []Result {
	results := make([]Result, len(calls))
	for i, call := range calls {
		results[i] = r.Execute(ctx, call)
	}
	return results
}

// ExecuteConcurrent runs the calls in parallel with at most limit in
// flight and returns results in call order. Tools that touch shared
// state should not be mixed into a concurrent batch.
func (r *Registry) ExecuteConcurrent(ctx context.Context, calls []llm.ToolCall, limit int) []Result {
	results := make([]Result, len(calls))
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, call := range calls {
		g.Go(func() error {
			results[i] = r.Execute(ctx, call)
			return nil
		})
	}
	g.Wait()
	return results
}

// validateInput checks required fields and rough types against the
// tool's declared schema. Only the checks needed to keep tools from
// seeing garbage; full JSON Schema validation is the provider's job.
func validateInput(def llm.ToolDefinition, input map[string]interface{}) error {
	for _, field := range def.Required {
		if _, ok := input[field]; !ok {
			return fmt.Errorf("missing required field %q", field)
		}
	}
	for field, value := range input {
		spec, ok := def.InputSchema[field].(map[string]interface{})
		if !ok {
			continue
		}
		declared, _ := spec["type"].(string)
		if declared == "" {
			continue
		}
		if err := checkType(field, declared, value); err != nil {
			return err
		}
	}
	return nil
}

func checkType(field, declared string, value interface{}) error {
	if value == nil {
		return nil
	}
	ok := true
	switch declared {
	case "string":
		_, ok = value.(string)
	case "number", "integer":
		// JSON numbers decode as float64.
		_, ok = value.(float64)
	case "boolean":
		_, ok = value.(bool)
	case "array":
		_, ok = value.([]interface{})
	case "object":
		_, ok = value.(map[string]interface{})
	}
	if !ok {
		return fmt.Errorf("field %q: expected %s, got %T", field, declared, value)
	}
	return nil
}
