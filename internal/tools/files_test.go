package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteThenReadFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	tc := NewContext(context.Background(), nil, nil, "exec-1", "sub-1", dir, nil)

	_, err := (writeFileTool{}).Execute(context.Background(), tc, map[string]any{
		"path":    "out.txt",
		"content": "hello world",
	})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))

	content, err := (readFileTool{}).Execute(context.Background(), tc, map[string]any{"path": "out.txt"})
	require.NoError(t, err)
	assert.Equal(t, "hello world", content)
}

func TestWriteFileRejectsPathEscape(t *testing.T) {
	tc := NewContext(context.Background(), nil, nil, "exec-1", "sub-1", t.TempDir(), nil)
	_, err := (writeFileTool{}).Execute(context.Background(), tc, map[string]any{
		"path":    "../outside.txt",
		"content": "x",
	})
	require.Error(t, err)
}

func TestWriteFileResolveDependenciesJoinsWithNewlines(t *testing.T) {
	out, err := (writeFileTool{}).ResolveDependencies(
		map[string]any{"path": "out.txt"},
		[]DependencyResult{{TaskID: "001", Result: "a"}, {TaskID: "002", Result: "b"}},
	)
	require.NoError(t, err)
	assert.Equal(t, "a\nb", out["content"])
}
