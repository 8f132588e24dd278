package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"
)

func init() {
	Register(&shellTool{}, "Shell", true)
}

const (
	defaultShellTimeout = 30 * time.Second
	maxShellTimeout     = 10 * time.Minute
	maxShellOutput      = 100_000
)

// shellTool runs a command via os/exec, capturing stdout/stderr with
// truncation and a configurable timeout.
type shellTool struct{}

func (shellTool) Name() string        { return "shell" }
func (shellTool) Description() string { return "Execute a shell command and return its output." }

func (shellTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "The shell command to execute",
			},
			"timeout": map[string]any{
				"type":        "integer",
				"description": "Optional timeout in seconds (default 30, max 600)",
			},
			"workingDir": map[string]any{
				"type":        "string",
				"description": "Directory to run the command in; must be inside the artifacts directory",
			},
		},
		"required": []string{"command"},
	}
}

func (shellTool) Execute(ctx context.Context, toolCtx *Context, input map[string]any) (string, error) {
	command, _ := input["command"].(string)
	if command == "" {
		return "", fmt.Errorf("shell: command is required")
	}

	timeout := resolveShellTimeout(input["timeout"])
	workDir := toolCtx.ArtifactsDir
	if rel, ok := input["workingDir"].(string); ok && rel != "" {
		resolved, err := resolveArtifactPath(toolCtx.ArtifactsDir, rel)
		if err != nil {
			return "", err
		}
		workDir = resolved
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	toolCtx.Emit.Progress(fmt.Sprintf("running: %s", command))

	cmd := exec.CommandContext(runCtx, "bash", "-c", command)
	cmd.Dir = workDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	output := combineOutput(stdout.String(), stderr.String())

	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("shell: command timed out after %v: %s", timeout, output)
		}
		return "", fmt.Errorf("shell: command failed: %w: %s", err, output)
	}

	toolCtx.Emit.Completed("command finished")
	if output == "" {
		return "(no output)", nil
	}
	return output, nil
}

func resolveShellTimeout(raw any) time.Duration {
	seconds, ok := asInt(raw)
	if !ok || seconds <= 0 {
		return defaultShellTimeout
	}
	return min(time.Duration(seconds)*time.Second, maxShellTimeout)
}

func combineOutput(stdout, stderr string) string {
	stdout = truncate(stdout)
	stderr = truncate(stderr)
	switch {
	case stderr == "":
		return stdout
	case stdout == "":
		return "STDERR:\n" + stderr
	default:
		return stdout + "\nSTDERR:\n" + stderr
	}
}

func truncate(s string) string {
	if len(s) > maxShellOutput {
		return s[:maxShellOutput] + "\n... [output truncated]"
	}
	return s
}

// asInt coerces a JSON-decoded numeric value (float64 or int) to int.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
