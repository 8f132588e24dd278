package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsSlackWebhook(t *testing.T) {
	assert.True(t, isSlackWebhook("https://hooks.slack.com/services/T0/B0/xxx"))
	assert.False(t, isSlackWebhook("https://example.com/webhook"))
	assert.False(t, isSlackWebhook("not a url"))
}
