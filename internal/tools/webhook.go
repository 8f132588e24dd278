package tools

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/slack-go/slack"
)

func init() {
	Register(&webhookTool{client: resty.New()}, "Webhook", true)
}

const slackWebhookHost = "hooks.slack.com"

// webhookTool posts a payload to an arbitrary HTTP endpoint via resty,
// switching to a Slack-formatted payload when the URL is a Slack
// incoming webhook.
type webhookTool struct {
	client *resty.Client
}

func (t *webhookTool) Name() string        { return "webhook" }
func (t *webhookTool) Description() string { return "POST a notification to a webhook URL." }

func (t *webhookTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url":     map[string]any{"type": "string"},
			"message": map[string]any{"type": "string"},
		},
		"required": []string{"url", "message"},
	}
}

func (t *webhookTool) Execute(ctx context.Context, toolCtx *Context, input map[string]any) (string, error) {
	target, _ := input["url"].(string)
	if target == "" {
		return "", fmt.Errorf("webhook: url is required")
	}
	message, _ := input["message"].(string)

	toolCtx.Emit.Progress(fmt.Sprintf("posting to %s", target))

	if isSlackWebhook(target) {
		if err := slack.PostWebhookContext(ctx, target, &slack.WebhookMessage{Text: message}); err != nil {
			return "", fmt.Errorf("webhook: slack post: %w", err)
		}
		toolCtx.Emit.Completed("posted to slack")
		return "posted to slack webhook", nil
	}

	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"message": message}).
		Post(target)
	if err != nil {
		return "", fmt.Errorf("webhook: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("webhook: status %d", resp.StatusCode())
	}

	toolCtx.Emit.Completed("posted")
	return "posted to webhook", nil
}

func isSlackWebhook(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Hostname(), slackWebhookHost)
}
