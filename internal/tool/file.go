package tool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/quill-labs/quill/internal/llm"
)

const maxFileBytes = 512 * 1024

// ReadFileTool reads a file from disk.
type ReadFileTool struct{}

func NewReadFile() *ReadFileTool { return &ReadFileTool{} }

func (t *ReadFileTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "read_file",
		Description: "Read the contents of a file at the given path.",
		InputSchema: map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Path of the file to read",
			},
		},
		Required: []string{"path"},
	}
}

func (t *ReadFileTool) Execute(ctx context.Context, input map[string]interface{}) Result {
	path, _ := input["path"].(string)
	if path == "" {
		return Fail("path is empty")
	}

	info, err := os.Stat(path)
	if err != nil {
		return Fail("stat %s: %v", path, err)
	}
	if info.IsDir() {
		return Fail("%s is a directory", path)
	}
	if info.Size() > maxFileBytes {
		return Fail("%s is %d bytes, exceeds the %d byte limit", path, info.Size(), maxFileBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Fail("read %s: %v", path, err)
	}
	if !utf8.Valid(data) {
		return Fail("%s is not valid UTF-8 text", path)
	}

	return Result{
		Success: true,
		Output:  string(data),
		Metadata: map[string]interface{}{
			"path":  path,
			"bytes": len(data),
		},
	}
}

// WriteFileTool writes content to a file, creating parent directories
// as needed.
type WriteFileTool struct{}

func NewWriteFile() *WriteFileTool { return &WriteFileTool{} }

func (t *WriteFileTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "write_file",
		Description: "Write content to a file, creating it and any missing parent directories. Overwrites existing content unless append is true.",
		InputSchema: map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Path of the file to write",
			},
			"content": map[string]interface{}{
				"type":        "string",
				"description": "Content to write",
			},
			"append": map[string]interface{}{
				"type":        "boolean",
				"description": "Append instead of overwrite",
			},
		},
		Required: []string{"path", "content"},
	}
}

func (t *WriteFileTool) Execute(ctx context.Context, input map[string]interface{}) Result {
	path, _ := input["path"].(string)
	if path == "" {
		return Fail("path is empty")
	}
	content, _ := input["content"].(string)

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Fail("create directory %s: %v", dir, err)
		}
	}

	if appendMode, _ := input["append"].(bool); appendMode {
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return Fail("open %s: %v", path, err)
		}
		defer f.Close()
		if _, err := f.WriteString(content); err != nil {
			return Fail("append to %s: %v", path, err)
		}
	} else if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return Fail("write %s: %v", path, err)
	}

	return Result{
		Success: true,
		Output:  fmt.Sprintf("wrote %d bytes to %s", len(content), path),
		Metadata: map[string]interface{}{
			"path":  path,
			"bytes": len(content),
		},
	}
}
