package tools

import (
	"context"
	"fmt"
	"os"
	"strings"
)

func init() {
	Register(&readFileTool{}, "Read File", true)
	Register(&writeFileTool{}, "Write File", true)
}

// readFileTool and writeFileTool confine all I/O to the artifacts
// directory, using the same filepath.Rel containment check as the shell
// tool's workingDir guard.

type readFileTool struct{}

func (readFileTool) Name() string        { return "readFile" }
func (readFileTool) Description() string { return "Read a file from the artifacts directory." }

func (readFileTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Path relative to the artifacts directory",
			},
		},
		"required": []string{"path"},
	}
}

func (readFileTool) Execute(_ context.Context, toolCtx *Context, input map[string]any) (string, error) {
	relPath, _ := input["path"].(string)
	if relPath == "" {
		return "", fmt.Errorf("readFile: path is required")
	}
	path, err := resolveArtifactPath(toolCtx.ArtifactsDir, relPath)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("readFile: %w", err)
	}
	toolCtx.Emit.Completed(fmt.Sprintf("read %s", relPath))
	return string(data), nil
}

type writeFileTool struct{}

func (writeFileTool) Name() string        { return "writeFile" }
func (writeFileTool) Description() string { return "Write a file into the artifacts directory." }

func (writeFileTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Path relative to the artifacts directory",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "Content to write",
			},
		},
		"required": []string{"path", "content"},
	}
}

func (writeFileTool) Execute(_ context.Context, toolCtx *Context, input map[string]any) (string, error) {
	relPath, _ := input["path"].(string)
	if relPath == "" {
		return "", fmt.Errorf("writeFile: path is required")
	}
	content, _ := input["content"].(string)

	path, err := resolveArtifactPath(toolCtx.ArtifactsDir, relPath)
	if err != nil {
		return "", err
	}
	toolCtx.Emit.Progress(fmt.Sprintf("writing %s", relPath))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("writeFile: %w", err)
	}
	toolCtx.Emit.Completed(fmt.Sprintf("wrote %s (%d bytes)", relPath, len(content)))
	return fmt.Sprintf("wrote %d bytes to %s", len(content), relPath), nil
}

// ResolveDependencies implements DependencyResolver for writeFile: it sets
// "content" (replacing any planned value) to each dependency's string
// result (or the "content" field of an object result) in dependency-list
// order, joined with newlines.
func (writeFileTool) ResolveDependencies(input map[string]any, deps []DependencyResult) (map[string]any, error) {
	out := cloneInput(input)
	if len(deps) == 0 {
		return out, nil
	}
	parts := make([]string, len(deps))
	for i, d := range deps {
		parts[i] = contentOf(d.Result)
	}
	out["content"] = strings.Join(parts, "\n")
	return out, nil
}

// contentOf extracts writeFile's dependency content: a string result
// passes through, an object result contributes its "content" field,
// anything else is stringified as JSON.
func contentOf(v any) string {
	if m, ok := v.(map[string]any); ok {
		if c, ok := m["content"].(string); ok {
			return c
		}
	}
	return StringifyResult(v)
}

func cloneInput(input map[string]any) map[string]any {
	out := make(map[string]any, len(input))
	for k, v := range input {
		out[k] = v
	}
	return out
}
