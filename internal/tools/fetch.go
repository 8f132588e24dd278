package tools

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

func init() {
	// One token bucket shared by both outbound HTTP tools, so a wide wave
	// of fetch tasks cannot hammer remote hosts.
	limiter := rate.NewLimiter(rate.Limit(defaultRequestsPerSec), defaultRequestBurst)
	Register(&fetchURLsTool{
		client:  resty.New().SetTimeout(defaultFetchTimeout),
		limiter: limiter,
	}, "Fetch URLs", true)
	Register(&webSearchTool{
		client:   resty.New().SetTimeout(defaultSearchTimeout),
		endpoint: defaultSearchEndpoint,
		limiter:  limiter,
	}, "Web Search", true)
}

const (
	defaultFetchTimeout   = 30 * time.Second
	defaultSearchTimeout  = 30 * time.Second
	defaultSearchEndpoint = "https://lite.duckduckgo.com/lite/"
	maxFetchBody          = 500_000

	defaultRequestsPerSec = 4
	defaultRequestBurst   = 8
)

var urlPattern = regexp.MustCompile(`https?://[^\s<>"')\]]+`)

// fetchURLsTool performs an HTTP GET against each URL in its urls array.
type fetchURLsTool struct {
	client  *resty.Client
	limiter *rate.Limiter
}

func (t *fetchURLsTool) Name() string { return "fetchURLs" }
func (t *fetchURLsTool) Description() string {
	return "Fetch the contents of one or more URLs over HTTP GET."
}

func (t *fetchURLsTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"urls": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "URLs to fetch",
			},
		},
		"required": []string{"urls"},
	}
}

func (t *fetchURLsTool) Execute(ctx context.Context, toolCtx *Context, input map[string]any) (string, error) {
	raw, _ := input["urls"].([]any)
	if len(raw) == 0 {
		return "", fmt.Errorf("fetchURLs: urls is required")
	}

	result := ""
	for i, u := range raw {
		url, _ := u.(string)
		if url == "" {
			continue
		}
		toolCtx.Emit.Progress(fmt.Sprintf("fetching %s", url))
		if err := t.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("fetchURLs: %w", err)
		}
		resp, err := t.client.R().
			SetContext(ctx).
			Get(url)
		if err != nil {
			return "", fmt.Errorf("fetchURLs: GET %s: %w", url, err)
		}
		if resp.IsError() {
			return "", fmt.Errorf("fetchURLs: GET %s: status %d", url, resp.StatusCode())
		}
		body := resp.String()
		if len(body) > maxFetchBody {
			body = body[:maxFetchBody] + "\n... [truncated]"
		}
		if i > 0 {
			result += "\n\n"
		}
		result += fmt.Sprintf("=== %s ===\n%s", url, body)
	}

	toolCtx.Emit.Completed(fmt.Sprintf("fetched %d url(s)", len(raw)))
	return result, nil
}

// ResolveDependencies implements DependencyResolver for fetchURLs:
// collects urls across every dependency result (strings pass through
// URL extraction, arrays are scanned for "url" fields) and
// flattens the lot into the target urls parameter.
func (t *fetchURLsTool) ResolveDependencies(input map[string]any, deps []DependencyResult) (map[string]any, error) {
	out := cloneInput(input)
	var urls []any
	for _, d := range deps {
		urls = append(urls, extractURLsFromResult(d.Result)...)
	}
	if len(urls) > 0 {
		out["urls"] = urls
	}
	return out, nil
}

// extractURLsFromResult dispatches on the dependency result's shape: a
// plain string is scanned with urlPattern; an array is scanned element by
// element, pulling a "url" field out of any object entries and recursing
// into nested arrays/strings.
func extractURLsFromResult(v any) []any {
	switch val := v.(type) {
	case string:
		return extractURLs(val)
	case []any:
		var out []any
		for _, item := range val {
			switch entry := item.(type) {
			case map[string]any:
				if u, ok := entry["url"].(string); ok && u != "" {
					out = append(out, u)
				}
			default:
				out = append(out, extractURLsFromResult(entry)...)
			}
		}
		return out
	default:
		return nil
	}
}

func extractURLs(s string) []any {
	matches := urlPattern.FindAllString(s, -1)
	out := make([]any, 0, len(matches))
	for _, m := range matches {
		out = append(out, m)
	}
	return out
}

// webSearchTool is a companion to fetchURLs performing a general web
// search against a configurable endpoint.
type webSearchTool struct {
	client   *resty.Client
	endpoint string
	limiter  *rate.Limiter
}

func (t *webSearchTool) Name() string        { return "webSearch" }
func (t *webSearchTool) Description() string { return "Search the web for a query." }

func (t *webSearchTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "The search query",
			},
			"maxResults": map[string]any{
				"type":        "integer",
				"description": "Maximum number of results to return (default 5, max 10)",
			},
		},
		"required": []string{"query"},
	}
}

func (t *webSearchTool) Execute(ctx context.Context, toolCtx *Context, input map[string]any) (string, error) {
	query, _ := input["query"].(string)
	if query == "" {
		return "", fmt.Errorf("webSearch: query is required")
	}
	maxResults, ok := asInt(input["maxResults"])
	if !ok || maxResults <= 0 {
		maxResults = 5
	}
	maxResults = min(maxResults, 10)

	toolCtx.Emit.Progress(fmt.Sprintf("searching: %s", query))

	if err := t.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("webSearch: %w", err)
	}
	resp, err := t.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{"q": query}).
		Post(t.endpoint)
	if err != nil {
		return "", fmt.Errorf("webSearch: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("webSearch: status %d", resp.StatusCode())
	}

	toolCtx.Emit.Completed("search finished")
	return fmt.Sprintf("search results for %q (showing up to %d):\n%s", query, maxResults, resp.String()), nil
}
