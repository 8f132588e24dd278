// Package anthropic adapts github.com/anthropics/anthropic-sdk-go to the
// llm.Provider contract, translating generic chat requests into Anthropic
// Messages API calls and mapping responses (text, tool_use, usage) back.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/dagplan/dagplan/internal/llm"
)

func init() {
	llm.RegisterProvider(llm.ProviderAnthropic, func(cfg llm.Config) (llm.Provider, error) {
		return New(cfg)
	})
}

const defaultMaxTokens = 4096

// messagesClient captures the subset of the SDK client this package uses,
// so tests can substitute a fake.
type messagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Provider implements llm.Provider on top of the Anthropic Messages API.
type Provider struct {
	msg messagesClient
}

// New constructs a Provider from cfg. Returns llm.ErrNoAPIKey if cfg.APIKey
// is empty.
func New(cfg llm.Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, llm.ErrNoAPIKey
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := sdk.NewClient(opts...)
	return &Provider{msg: &client.Messages}, nil
}

func (p *Provider) Name() string { return string(llm.ProviderAnthropic) }

func (p *Provider) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	params, err := buildParams(req)
	if err != nil {
		return nil, err
	}
	msg, err := p.msg.New(ctx, *params)
	if err != nil {
		return nil, translateError(err)
	}
	return translateMessage(msg), nil
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

func buildParams(req *llm.ChatRequest) (*sdk.MessageNewParams, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("anthropic: at least one message is required")
	}
	var system []sdk.TextBlockParam
	var msgs []sdk.MessageParam
	for _, m := range req.Messages {
		if m.Role == llm.RoleSystem {
			if m.Content != "" {
				system = append(system, sdk.TextBlockParam{Text: m.Content})
			}
			continue
		}
		switch m.Role {
		case llm.RoleUser, llm.RoleTool:
			if m.Role == llm.RoleTool {
				msgs = append(msgs, sdk.NewUserMessage(sdk.NewToolResultBlock(m.ToolCallID, m.Content, false)))
			} else {
				msgs = append(msgs, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
			}
		case llm.RoleAssistant:
			blocks := make([]sdk.ContentBlockParamUnion, 0, 1+len(m.ToolCalls))
			if m.Content != "" {
				blocks = append(blocks, sdk.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				var input any
				if tc.Function.Arguments != "" {
					if err := json.Unmarshal([]byte(tc.Function.Arguments), &input); err != nil {
						input = tc.Function.Arguments
					}
				}
				blocks = append(blocks, sdk.NewToolUseBlock(tc.ID, input, tc.Function.Name))
			}
			msgs = append(msgs, sdk.NewAssistantMessage(blocks...))
		}
	}
	if len(msgs) == 0 {
		return nil, errors.New("anthropic: at least one user/assistant message is required")
	}

	maxTokens := defaultMaxTokens
	if req.MaxTokens != nil && *req.MaxTokens > 0 {
		maxTokens = *req.MaxTokens
	}
	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: int64(maxTokens),
		Messages:  msgs,
	}
	if len(system) > 0 {
		params.System = system
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}
	if req.TopP != nil {
		params.TopP = sdk.Float(*req.TopP)
	}
	if len(req.Stop) > 0 {
		params.StopSequences = req.Stop
	}
	if len(req.Tools) > 0 {
		tools := make([]sdk.ToolUnionParam, 0, len(req.Tools))
		for _, t := range req.Tools {
			schema := sdk.ToolInputSchemaParam{ExtraFields: t.Function.Parameters}
			u := sdk.ToolUnionParamOfTool(schema, t.Function.Name)
			if u.OfTool != nil {
				u.OfTool.Description = sdk.String(t.Function.Description)
			}
			tools = append(tools, u)
		}
		params.Tools = tools
	}
	return &params, nil
}

func translateMessage(msg *sdk.Message) *llm.ChatResponse {
	resp := &llm.ChatResponse{
		Usage: llm.Usage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
		GenerationStats: llm.GenerationStats{
			StopReason: string(msg.StopReason),
			Model:      string(msg.Model),
		},
	}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			resp.Content += block.Text
		case "tool_use":
			args, _ := json.Marshal(block.Input)
			resp.ToolCalls = append(resp.ToolCalls, llm.ToolCall{
				ID:   block.ID,
				Type: "function",
				Function: llm.ToolCallFunction{
					Name:      block.Name,
					Arguments: string(args),
				},
			})
		}
	}
	switch {
	case msg.StopReason == sdk.StopReasonToolUse:
		resp.FinishReason = llm.FinishToolCalls
	case string(msg.StopReason) == "max_tokens":
		resp.FinishReason = llm.FinishLength
	default:
		resp.FinishReason = llm.FinishStop
	}
	return resp
}

// translateError classifies an error returned by the SDK client: context
// cancellation and deadline errors wrap llm.ErrTimeout, and every other
// error goes through llm.WrapError. The HTTP status of an API failure is
// not extracted, so llm.IsRetryable, IsAuthError and IsRateLimitError
// report false for those errors.
func translateError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", llm.ErrTimeout, err)
	}
	return llm.WrapError(string(llm.ProviderAnthropic), err)
}
