package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShellExecuteOutput(t *testing.T) {
	tc := NewContext(context.Background(), nil, nil, "exec-1", "sub-1", t.TempDir(), nil)
	out, err := (shellTool{}).Execute(context.Background(), tc, map[string]any{"command": "echo hello"})
	require.NoError(t, err)
	assert.Contains(t, out, "hello")
}

func TestShellExecuteRequiresCommand(t *testing.T) {
	tc := NewContext(context.Background(), nil, nil, "exec-1", "sub-1", t.TempDir(), nil)
	_, err := (shellTool{}).Execute(context.Background(), tc, map[string]any{})
	require.Error(t, err)
}

func TestShellExecuteWorkingDirEscapeRejected(t *testing.T) {
	tc := NewContext(context.Background(), nil, nil, "exec-1", "sub-1", t.TempDir(), nil)
	_, err := (shellTool{}).Execute(context.Background(), tc, map[string]any{
		"command":    "pwd",
		"workingDir": "../../etc",
	})
	require.Error(t, err)
}

func TestResolveShellTimeoutDefaults(t *testing.T) {
	assert.Equal(t, defaultShellTimeout, resolveShellTimeout(nil))
	assert.Equal(t, defaultShellTimeout, resolveShellTimeout(0))
}
