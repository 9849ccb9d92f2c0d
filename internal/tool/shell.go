package tool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/quill-labs/quill/internal/llm"
)

const (
	defaultShellTimeout = 30 * time.Second
	maxShellTimeout     = 10 * time.Minute
	killGracePeriod     = 5 * time.Second
	maxOutputBytes      = 16 * 1024
)

// ShellTool runs a command through the system shell with a hard
// timeout. On timeout the process gets SIGTERM, then SIGKILL if it
// ignores the grace period.
type ShellTool struct {
	workDir string
}

// NewShell creates a shell tool. Commands run in workDir when set,
// otherwise in the process working directory.
func NewShell(workDir string) *ShellTool {
	return &ShellTool{workDir: workDir}
}

func (s *ShellTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "shell",
		Description: "Execute a shell command and return its stdout, stderr, and exit code. Commands are killed after the timeout expires.",
		InputSchema: map[string]interface{}{
			"command": map[string]interface{}{
				"type":        "string",
				"description": "The command to execute",
			},
			"timeout": map[string]interface{}{
				"type":        "number",
				"description": "Timeout in seconds (default 30, max 600)",
			},
			"working_dir": map[string]interface{}{
				"type":        "string",
				"description": "Directory to run the command in",
			},
		},
		Required: []string{"command"},
	}
}

func (s *ShellTool) Execute(ctx context.Context, input map[string]interface{}) Result {
	command, _ := input["command"].(string)
	if strings.TrimSpace(command) == "" {
		return Fail("command is empty")
	}

	timeout := defaultShellTimeout
	if secs, ok := input["timeout"].(float64); ok && secs > 0 {
		timeout = time.Duration(secs * float64(time.Second))
		if timeout > maxShellTimeout {
			timeout = maxShellTimeout
		}
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := shellCommand(execCtx, command)
	if dir, ok := input["working_dir"].(string); ok && dir != "" {
		cmd.Dir = dir
	} else if s.workDir != "" {
		cmd.Dir = s.workDir
	}

	// Ask nicely first; the runtime sends SIGKILL after WaitDelay if
	// the process lingers.
	cmd.Cancel = func() error {
		if runtime.GOOS == "windows" {
			return cmd.Process.Kill()
		}
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = killGracePeriod

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	timedOut := errors.Is(execCtx.Err(), context.DeadlineExceeded)

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else if !timedOut {
			return Fail("command failed to start: %v", err)
		} else {
			exitCode = -1
		}
	}

	result := Result{
		Success: err == nil && !timedOut,
		Output:  formatShellOutput(stdout.String(), stderr.String(), exitCode, timedOut),
		Metadata: map[string]interface{}{
			"exit_code":   exitCode,
			"duration_ms": elapsed.Milliseconds(),
			"timed_out":   timedOut,
		},
	}
	if timedOut {
		result.Error = fmt.Sprintf("command timed out after %s", timeout)
	} else if err != nil {
		result.Error = fmt.Sprintf("exit code %d", exitCode)
	}
	return result
}

func shellCommand(ctx context.Context, command string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.CommandContext(ctx, "powershell", "-NoProfile", "-Command", command)
	}
	return exec.CommandContext(ctx, "/bin/sh", "-c", command)
}

// formatShellOutput renders the captured streams into one text block
// for the model, truncating each stream at maxOutputBytes.
func formatShellOutput(stdout, stderr string, exitCode int, timedOut bool) string {
	var b strings.Builder
	if stdout != "" {
		b.WriteString(truncate(stdout, maxOutputBytes))
	}
	if stderr != "" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("stderr:\n")
		b.WriteString(truncate(stderr, maxOutputBytes))
	}
	if timedOut {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("[command timed out]")
	}
	if b.Len() == 0 {
		return fmt.Sprintf("(no output, exit code %d)", exitCode)
	}
	return b.String()
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "\n[output truncated]"
}
