// Package openai adapts github.com/openai/openai-go to the llm.Provider
// contract. The same adapter serves OpenAI, OpenRouter, and local
// OpenAI-compatible servers (Ollama/vLLM) by pointing Config.BaseURL at the
// target endpoint; OpenRouter and local registrations below build the same
// Provider through newWithName with a different default base URL.
package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/dagplan/dagplan/internal/llm"
)

func init() {
	llm.RegisterProvider(llm.ProviderOpenAI, func(cfg llm.Config) (llm.Provider, error) {
		return newWithName(cfg, llm.ProviderOpenAI)
	})
	llm.RegisterProvider(llm.ProviderOpenRouter, func(cfg llm.Config) (llm.Provider, error) {
		if cfg.BaseURL == "" {
			cfg.BaseURL = llm.DefaultBaseURL(llm.ProviderOpenRouter)
		}
		return newWithName(cfg, llm.ProviderOpenRouter)
	})
	llm.RegisterProvider(llm.ProviderLocal, func(cfg llm.Config) (llm.Provider, error) {
		if cfg.BaseURL == "" {
			cfg.BaseURL = llm.DefaultBaseURL(llm.ProviderLocal)
		}
		if cfg.APIKey == "" {
			cfg.APIKey = "local"
		}
		return newWithName(cfg, llm.ProviderLocal)
	})
}

// chatClient captures the subset of the SDK client this package uses.
type chatClient interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Provider implements llm.Provider on top of the OpenAI Chat Completions
// API (and anything speaking the same wire protocol).
type Provider struct {
	chat chatClient
	name llm.ProviderType
}

// New constructs an OpenAI Provider. Returns llm.ErrNoAPIKey if cfg.APIKey
// is empty.
func New(cfg llm.Config) (*Provider, error) {
	return newWithName(cfg, llm.ProviderOpenAI)
}

func newWithName(cfg llm.Config, name llm.ProviderType) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, llm.ErrNoAPIKey
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)
	return &Provider{chat: &client.Chat.Completions, name: name}, nil
}

func (p *Provider) Name() string { return string(p.name) }

func (p *Provider) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	params, err := buildParams(req)
	if err != nil {
		return nil, err
	}
	completion, err := p.chat.New(ctx, *params)
	if err != nil {
		return nil, translateError(p.name, err)
	}
	return translateCompletion(completion), nil
}

func (p *Provider) ChatStream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamEvent, error) {
	resp, err := p.Chat(ctx, req)
	ch := make(chan llm.StreamEvent, 1)
	if err != nil {
		ch <- llm.StreamEvent{Done: true, Err: err}
		close(ch)
		return ch, nil
	}
	ch <- llm.StreamEvent{Delta: resp.Content, Done: true, Usage: &resp.Usage}
	close(ch)
	return ch, nil
}

func buildParams(req *llm.ChatRequest) (*openai.ChatCompletionNewParams, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("openai: at least one message is required")
	}
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case llm.RoleSystem:
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case llm.RoleUser:
			msgs = append(msgs, openai.UserMessage(m.Content))
		case llm.RoleAssistant:
			if len(m.ToolCalls) == 0 {
				msgs = append(msgs, openai.AssistantMessage(m.Content))
				continue
			}
			calls := make([]openai.ChatCompletionMessageToolCallParam, 0, len(m.ToolCalls))
			for _, tc := range m.ToolCalls {
				calls = append(calls, openai.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					},
				})
			}
			msgs = append(msgs, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Content:   openai.ChatCompletionAssistantMessageParamContentUnion{OfString: openai.String(m.Content)},
					ToolCalls: calls,
				},
			})
		case llm.RoleTool:
			msgs = append(msgs, openai.ToolMessage(m.Content, m.ToolCallID))
		}
	}

	params := &openai.ChatCompletionNewParams{
		Model:    req.Model,
		Messages: msgs,
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.MaxTokens != nil {
		params.MaxTokens = openai.Int(int64(*req.MaxTokens))
	}
	if req.TopP != nil {
		params.TopP = openai.Float(*req.TopP)
	}
	if len(req.Stop) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: req.Stop}
	}
	if req.Seed != nil {
		params.Seed = openai.Int(*req.Seed)
	}
	if len(req.Tools) > 0 {
		tools := make([]openai.ChatCompletionToolParam, 0, len(req.Tools))
		for _, t := range req.Tools {
			tools = append(tools, openai.ChatCompletionToolParam{
				Function: openai.FunctionDefinitionParam{
					Name:        t.Function.Name,
					Description: openai.String(t.Function.Description),
					Parameters:  t.Function.Parameters,
				},
			})
		}
		params.Tools = tools
	}
	return params, nil
}

func translateCompletion(c *openai.ChatCompletion) *llm.ChatResponse {
	resp := &llm.ChatResponse{
		Usage: llm.Usage{
			PromptTokens:     int(c.Usage.PromptTokens),
			CompletionTokens: int(c.Usage.CompletionTokens),
			TotalTokens:      int(c.Usage.TotalTokens),
		},
		GenerationStats: llm.GenerationStats{Model: c.Model},
	}
	if len(c.Choices) == 0 {
		return resp
	}
	choice := c.Choices[0]
	resp.Content = choice.Message.Content
	for _, tc := range choice.Message.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, llm.ToolCall{
			ID:   tc.ID,
			Type: "function",
			Function: llm.ToolCallFunction{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	switch choice.FinishReason {
	case "tool_calls":
		resp.FinishReason = llm.FinishToolCalls
	case "length":
		resp.FinishReason = llm.FinishLength
	default:
		resp.FinishReason = llm.FinishStop
	}
	resp.GenerationStats.StopReason = choice.FinishReason
	return resp
}

func translateError(name llm.ProviderType, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		wrapped := llm.NewAPIError(string(name), apiErr.StatusCode, apiErr.Message)
		wrapped.Err = err
		switch {
		case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
			return fmt.Errorf("%w: %w", llm.ErrUnauthorized, wrapped)
		case apiErr.StatusCode == 429:
			return fmt.Errorf("%w: %w", llm.ErrRateLimited, wrapped)
		case apiErr.StatusCode >= 500:
			return fmt.Errorf("%w: %w", llm.ErrServerError, wrapped)
		default:
			return wrapped
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", llm.ErrTimeout, err)
	}
	return llm.WrapError(string(name), err)
}
