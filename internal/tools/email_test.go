package tools

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMIMEMessageContainsHeadersAndBody(t *testing.T) {
	msg, err := buildMIMEMessage("from@example.com", []string{"to@example.com"}, "subj", "hello body", nil)
	require.NoError(t, err)
	s := string(msg)
	assert.Contains(t, s, "From: from@example.com")
	assert.Contains(t, s, "To: to@example.com")
	assert.Contains(t, s, "Subject: subj")
	assert.Contains(t, s, "hello body")
}

func TestBuildMIMEMessageIncludesAttachment(t *testing.T) {
	msg, err := buildMIMEMessage("f@e.com", []string{"t@e.com"}, "s", "b", []emailAttachment{
		{Filename: "report.txt", Content: "report contents"},
	})
	require.NoError(t, err)
	s := string(msg)
	assert.True(t, strings.Contains(s, `filename="report.txt"`))
	assert.Contains(t, s, "report contents")
}

func TestSendEmailResolveDependenciesFillsFirstAttachment(t *testing.T) {
	input := map[string]any{
		"attachments": []any{map[string]any{"filename": "out.txt"}},
	}
	out, err := (sendEmailTool{}).ResolveDependencies(input, []DependencyResult{
		{TaskID: "001", Result: "first"},
		{TaskID: "002", Result: "second"},
	})
	require.NoError(t, err)
	attachments := out["attachments"].([]any)
	first := attachments[0].(map[string]any)
	assert.Equal(t, "first\nsecond", first["content"])
}

func TestSendEmailRequiresSMTPHost(t *testing.T) {
	t.Setenv("DAGPLAN_SMTP_HOST", "")
	tc := NewContext(nil, nil, nil, "e1", "s1", t.TempDir(), nil)
	_, err := (sendEmailTool{}).Execute(nil, tc, map[string]any{
		"to":      []any{"a@example.com"},
		"subject": "s",
		"body":    "b",
	})
	require.Error(t, err)
}
