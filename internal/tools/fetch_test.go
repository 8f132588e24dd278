package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestExtractURLs(t *testing.T) {
	s := "see https://example.com/a and also https://example.org/b for details."
	urls := extractURLs(s)
	assert.Len(t, urls, 2)
	assert.Equal(t, "https://example.com/a", urls[0])
	assert.Equal(t, "https://example.org/b", urls[1])
}

func TestFetchURLsResolveDependenciesFlattens(t *testing.T) {
	tool := &fetchURLsTool{}
	out, err := tool.ResolveDependencies(map[string]any{}, []DependencyResult{
		{TaskID: "001", Result: "visit https://a.example for details"},
		{TaskID: "002", Result: "no urls here"},
		{TaskID: "003", Result: "also https://b.example/path"},
	})
	assert := assert.New(t)
	assert.NoError(err)
	urls, ok := out["urls"].([]any)
	assert.True(ok)
	assert.Equal([]any{"https://a.example", "https://b.example/path"}, urls)
}

func TestFetchURLsFetchesThroughLimiter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	tool := &fetchURLsTool{
		client:  resty.New(),
		limiter: rate.NewLimiter(rate.Limit(1000), 1),
	}
	toolCtx := NewContext(context.Background(), nil, nil, "exec_1", "substep_1", t.TempDir(), nil)

	out, err := tool.Execute(context.Background(), toolCtx, map[string]any{
		"urls": []any{srv.URL, srv.URL},
	})
	require.NoError(t, err)
	assert.Contains(t, out, "ok")
}

func TestFetchURLsLimiterHonorsCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	tool := &fetchURLsTool{
		client: resty.New(),
		// One token, then nothing for an hour: the second fetch can only
		// end via the context deadline.
		limiter: rate.NewLimiter(rate.Every(time.Hour), 1),
	}
	toolCtx := NewContext(context.Background(), nil, nil, "exec_1", "substep_1", t.TempDir(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := tool.Execute(ctx, toolCtx, map[string]any{
		"urls": []any{srv.URL, srv.URL},
	})
	require.Error(t, err)
}
