package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dagplan/dagplan/internal/config"
	"github.com/dagplan/dagplan/internal/llm"
)

func TestNewWiresStorePlannerAndExecutor(t *testing.T) {
	cfg := &config.Config{
		StorePath:       ":memory:",
		ArtifactsDir:    t.TempDir(),
		DefaultProvider: "anthropic",
		DefaultModel:    "claude-sonnet-4-5",
		LogLevel:        "info",
		LogFormat:       "text",
		Quiet:           true,
	}

	a, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	assert.NotNil(t, a.Store)
	assert.NotNil(t, a.Bus)
	assert.NotNil(t, a.Stops)
	assert.NotNil(t, a.Planner)
	assert.NotNil(t, a.Executor)
	require.NotNil(t, a.Tracer)
	assert.False(t, a.Tracer.IsEnabled())
}

func TestProviderResolverRejectsUnknownProviderName(t *testing.T) {
	t.Parallel()
	resolve := newProviderResolver()
	_, err := resolve("not-a-real-provider")
	assert.ErrorIs(t, err, llm.ErrInvalidProvider)
}

func TestProviderResolverConstructsRegisteredProvider(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	resolve := newProviderResolver()
	p, err := resolve("anthropic")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", p.Name())
}
