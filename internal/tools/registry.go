// Package tools implements the engine's built-in tools behind a
// self-registering Registry, mirroring internal/agent/tool_registry.go's
// init()-based pattern.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Tool is one callable unit of executor work: a shell command, a file
// operation, an HTTP call, an email send, or a webhook post.
type Tool interface {
	Name() string
	Description() string
	InputSchema() map[string]any
	Execute(ctx context.Context, toolCtx *Context, input map[string]any) (string, error)
}

// DependencyResolver is implemented by tools whose input parameters are
// partly derived from upstream task results rather than the LLM's plan
// JSON. The executor dispatches into this by tool name instead of
// hard-coding per-tool knowledge inline.
type DependencyResolver interface {
	ResolveDependencies(input map[string]any, dependencyResults []DependencyResult) (map[string]any, error)
}

// DependencyResult is one upstream task's contribution to a downstream
// task's input, in dependency-list order. Result holds whatever the
// upstream task produced: a string for most tools, or arbitrary JSON
// (e.g. a decoded array or object) for tools whose output isn't plain text.
type DependencyResult struct {
	TaskID string
	Result any
}

// StringifyResult renders a dependency result as text: strings pass
// through unchanged, everything else round-trips through JSON.
func StringifyResult(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// registration pairs a Tool with its compiled input-schema validator.
type registration struct {
	tool     Tool
	schema   *jsonschema.Schema
	label    string
	enabled  bool
}

var (
	mu       sync.RWMutex
	registry = map[string]registration{}
)

// Register adds tool to the global registry, compiling its InputSchema.
// Called from each built-in tool's init(); panics on a schema that fails
// to compile, since that is a programmer error caught at process start.
func Register(tool Tool, label string, defaultEnabled bool) {
	compiler := jsonschema.NewCompiler()
	res := fmt.Sprintf("dagplan://tools/%s.json", tool.Name())
	schemaBytes, err := json.Marshal(tool.InputSchema())
	if err != nil {
		panic(fmt.Sprintf("tools: marshal schema for %q: %v", tool.Name(), err))
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaBytes))
	if err != nil {
		panic(fmt.Sprintf("tools: unmarshal schema for %q: %v", tool.Name(), err))
	}
	if err := compiler.AddResource(res, doc); err != nil {
		panic(fmt.Sprintf("tools: compile schema for %q: %v", tool.Name(), err))
	}
	schema, err := compiler.Compile(res)
	if err != nil {
		panic(fmt.Sprintf("tools: compile schema for %q: %v", tool.Name(), err))
	}

	mu.Lock()
	defer mu.Unlock()
	registry[tool.Name()] = registration{tool: tool, schema: schema, label: label, enabled: defaultEnabled}
}

// Get returns the named tool, or false if it isn't registered.
func Get(name string) (Tool, bool) {
	mu.RLock()
	defer mu.RUnlock()
	reg, ok := registry[name]
	if !ok {
		return nil, false
	}
	return reg.tool, true
}

// Names returns the sorted names of every registered tool.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// IsRegistered reports whether name identifies a registered tool.
func IsRegistered(name string) bool {
	mu.RLock()
	defer mu.RUnlock()
	_, ok := registry[name]
	return ok
}

// Validate checks input against the named tool's compiled InputSchema.
func Validate(name string, input map[string]any) error {
	mu.RLock()
	reg, ok := registry[name]
	mu.RUnlock()
	if !ok {
		return fmt.Errorf("tools: unknown tool %q", name)
	}
	if err := reg.schema.Validate(input); err != nil {
		return fmt.Errorf("tools: invalid input for %q: %w", name, err)
	}
	return nil
}

// Execute validates input against the tool's schema, resolves its
// DependencyResolver if it implements one, and runs it.
func Execute(ctx context.Context, toolCtx *Context, name string, input map[string]any, deps []DependencyResult) (string, error) {
	tool, ok := Get(name)
	if !ok {
		return "", fmt.Errorf("tools: unknown tool %q", name)
	}

	resolved := input
	if resolver, ok := tool.(DependencyResolver); ok && len(deps) > 0 {
		var err error
		resolved, err = resolver.ResolveDependencies(input, deps)
		if err != nil {
			return "", fmt.Errorf("tools: resolve dependencies for %q: %w", name, err)
		}
	}

	if err := Validate(name, resolved); err != nil {
		return "", err
	}
	return tool.Execute(ctx, toolCtx, resolved)
}
