package app

import (
	"context"
	"fmt"

	"github.com/dagplan/dagplan/internal/eventbus"
	"github.com/dagplan/dagplan/internal/tools"
)

// notify posts a short terminal-event summary through the registered
// "webhook" tool, reusing its Slack-payload-detection so a Slack incoming
// webhook URL and a generic HTTP endpoint both work without dagplan
// carrying its own Slack client.
func (a *App) notify(ctx context.Context, executionID string, ev eventbus.Event) {
	msg := fmt.Sprintf("dagplan execution %s finished: %s", executionID, ev.Type)
	if ev.Error != nil {
		msg = fmt.Sprintf("%s (%s)", msg, ev.Error.Message)
	}

	toolCtx := tools.NewContext(ctx, nil, a.Logger, executionID, "", a.Config.ArtifactsDir, nil)
	if _, err := tools.Execute(ctx, toolCtx, "webhook", map[string]any{
		"url":     a.Config.WebhookNotify,
		"message": msg,
	}, nil); err != nil {
		a.Logger.Warn("terminal event notification failed", "execution_id", executionID, "error", err)
	}
}
