package tool

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/quill-labs/quill/internal/llm"
)

type fakeTool struct {
	name     string
	required []string
	schema   map[string]interface{}
	execute  func(ctx context.Context, input map[string]interface{}) Result
}

func (f *fakeTool) Definition() llm.ToolDefinition {
	schema := f.schema
	if schema == nil {
		schema = map[string]interface{}{}
	}
	return llm.ToolDefinition{
		Name:        f.name,
		Description: "test tool",
		InputSchema: schema,
		Required:    f.required,
	}
}

func (f *fakeTool) Execute(ctx context.Context, input map[string]interface{}) Result {
	if f.execute != nil {
		return f.execute(ctx, input)
	}
	return Ok("done")
}

func TestRegisterDuplicate(t *testing.T) {
	r := NewRegistry(nil)
	if err := r.Register(&fakeTool{name: "echo"}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := r.Register(&fakeTool{name: "echo"}); err == nil {
		t.Fatal("expected error on duplicate registration")
	}
}

func TestRegisterEmptyName(t *testing.T) {
	r := NewRegistry(nil)
	if err := r.Register(&fakeTool{name: ""}); err == nil {
		t.Fatal("expected error on empty name")
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	r := NewRegistry(nil)
	res := r.Execute(context.Background(), llm.ToolCall{ID: "1", Name: "nope"})
	if res.Success {
		t.Fatal("unknown tool should fail")
	}
	if !strings.Contains(res.Error, "unknown tool") {
		t.Errorf("error = %q", res.Error)
	}
}

func TestExecuteMalformedInput(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(&fakeTool{name: "echo"})

	res := r.Execute(context.Background(), llm.ToolCall{
		ID:    "1",
		Name:  "echo",
		Input: json.RawMessage(`{"broken`),
	})
	if res.Success {
		t.Fatal("malformed input should fail")
	}
	if !strings.Contains(res.Error, "invalid input") {
		t.Errorf("error = %q", res.Error)
	}
}

func TestExecuteMissingRequired(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(&fakeTool{
		name:     "echo",
		required: []string{"text"},
		schema: map[string]interface{}{
			"text": map[string]interface{}{"type": "string"},
		},
	})

	res := r.Execute(context.Background(), llm.ToolCall{
		ID:    "1",
		Name:  "echo",
		Input: json.RawMessage(`{}`),
	})
	if res.Success {
		t.Fatal("missing required field should fail")
	}
	if !strings.Contains(res.Error, "text") {
		t.Errorf("error = %q", res.Error)
	}
}

func TestExecuteWrongType(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(&fakeTool{
		name: "echo",
		schema: map[string]interface{}{
			"count": map[string]interface{}{"type": "number"},
		},
	})

	res := r.Execute(context.Background(), llm.ToolCall{
		ID:    "1",
		Name:  "echo",
		Input: json.RawMessage(`{"count":"three"}`),
	})
	if res.Success {
		t.Fatal("wrong type should fail")
	}
}

func TestExecuteRecoversPanic(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(&fakeTool{
		name: "bomb",
		execute: func(ctx context.Context, input map[string]interface{}) Result {
			panic("kaboom")
		},
	})

	res := r.Execute(context.Background(), llm.ToolCall{ID: "1", Name: "bomb"})
	if res.Success {
		t.Fatal("panicking tool should report failure")
	}
	if !strings.Contains(res.Error, "kaboom") {
		t.Errorf("error = %q", res.Error)
	}
}

func TestExecuteAllOrdering(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(&fakeTool{
		name: "echo",
		schema: map[string]interface{}{
			"text": map[string]interface{}{"type": "string"},
		},
		execute: func(ctx context.Context, input map[string]interface{}) Result {
			text, _ := input["text"].(string)
			return Ok(text)
		},
	})

	calls := []llm.ToolCall{
		{ID: "1", Name: "echo", Input: json.RawMessage(`{"text":"a"}`)},
		{ID: "2", Name: "missing"},
		{ID: "3", Name: "echo", Input: json.RawMessage(`{"text":"c"}`)},
	}
	results := r.ExecuteAll(context.Background(), calls)
	if len(results) != 3 {
		t.Fatalf("got %d results", len(results))
	}
	if results[0].Output != "a" || results[2].Output != "c" {
		t.Errorf("results out of order: %+v", results)
	}
	if results[1].Success {
		t.Error("middle call should have failed")
	}
}

func TestExecuteConcurrentOrdering(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(&fakeTool{
		name: "echo",
		schema: map[string]interface{}{
			"text": map[string]interface{}{"type": "string"},
		},
		execute: func(ctx context.Context, input map[string]interface{}) Result {
			text, _ := input["text"].(string)
			return Ok(text)
		},
	})

	var calls []llm.ToolCall
	want := []string{"a", "b", "c", "d", "e"}
	for _, s := range want {
		calls = append(calls, llm.ToolCall{
			ID: s, Name: "echo",
			Input: json.RawMessage(`{"text":"` + s + `"}`),
		})
	}

	results := r.ExecuteConcurrent(context.Background(), calls, 2)
	for i, s := range want {
		if results[i].Output != s {
			t.Errorf("result %d = %q, want %q", i, results[i].Output, s)
		}
	}
}

func TestDefinitionsSorted(t *testing.T) {
	r := NewRegistry(nil)
	r.RegisterAll(&fakeTool{name: "zeta"}, &fakeTool{name: "alpha"}, &fakeTool{name: "mid"})

	defs := r.Definitions()
	if len(defs) != 3 {
		t.Fatalf("got %d definitions", len(defs))
	}
	if defs[0].Name != "alpha" || defs[1].Name != "mid" || defs[2].Name != "zeta" {
		t.Errorf("order: %s, %s, %s", defs[0].Name, defs[1].Name, defs[2].Name)
	}
}
