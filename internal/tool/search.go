package tool

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/quill-labs/quill/internal/llm"
)

const maxSearchMatches = 100

// SearchTool scans files under a root directory for lines matching a
// regular expression.
type SearchTool struct {
	logger *slog.Logger
}

func NewSearch(logger *slog.Logger) *SearchTool {
	if logger == nil {
		logger = slog.Default()
	}
	return &SearchTool{logger: logger}
}

func (t *SearchTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "search",
		Description: "Search file contents under a directory for lines matching a regular expression. Returns file:line:text matches.",
		InputSchema: map[string]interface{}{
			"pattern": map[string]interface{}{
				"type":        "string",
				"description": "Go regular expression to match against each line",
			},
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Directory to search (default current directory)",
			},
			"glob": map[string]interface{}{
				"type":        "string",
				"description": "Only search files whose base name matches this glob, e.g. *.go",
			},
		},
		Required: []string{"pattern"},
	}
}

func (t *SearchTool) Execute(ctx context.Context, input map[string]interface{}) Result {
	pattern, _ := input["pattern"].(string)
	if pattern == "" {
		return Fail("pattern is empty")
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Fail("invalid pattern: %v", err)
	}

	root, _ := input["path"].(string)
	if root == "" {
		root = "."
	}
	glob, _ := input["glob"].(string)

	var matches []string
	truncated := false

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries are skipped, not fatal.
			t.logger.Debug("search skip", "path", path, "error", err)
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if name := d.Name(); name != "." && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if glob != "" {
			if ok, _ := filepath.Match(glob, d.Name()); !ok {
				return nil
			}
		}

		found, err := t.scanFile(path, re, &matches)
		if err != nil {
			t.logger.Debug("search skip", "path", path, "error", err)
			return nil
		}
		if found && len(matches) >= maxSearchMatches {
			truncated = true
			return filepath.SkipAll
		}
		return nil
	})
	if walkErr != nil && walkErr != ctx.Err() {
		return Fail("search %s: %v", root, walkErr)
	}
	if ctx.Err() != nil {
		return Fail("search canceled: %v", ctx.Err())
	}

	if len(matches) == 0 {
		return Ok("no matches")
	}

	output := strings.Join(matches, "\n")
	if truncated {
		output += fmt.Sprintf("\n[truncated at %d matches]", maxSearchMatches)
	}
	return Result{
		Success: true,
		Output:  output,
		Metadata: map[string]interface{}{
			"matches":   len(matches),
			"truncated": truncated,
		},
	}
}

func (t *SearchTool) scanFile(path string, re *regexp.Regexp, matches *[]string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	found := false
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		// Binary files show up as lines with NUL bytes; skip the file.
		if strings.ContainsRune(line, '\x00') {
			return found, nil
		}
		if re.MatchString(line) {
			*matches = append(*matches, fmt.Sprintf("%s:%d:%s", path, lineNo, line))
			found = true
			if len(*matches) >= maxSearchMatches {
				return found, nil
			}
		}
	}
	return found, scanner.Err()
}
