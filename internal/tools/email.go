package tools

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"os"
	"strings"
)

func init() {
	Register(&sendEmailTool{}, "Send Email", true)
}

// sendEmailTool sends mail via net/smtp + mime/multipart, matching
// internal/mailer's stdlib choice (no third-party SMTP client appears
// anywhere in the example corpus).
type sendEmailTool struct{}

func (sendEmailTool) Name() string        { return "sendEmail" }
func (sendEmailTool) Description() string { return "Send an email, optionally with one attachment." }

func (sendEmailTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"to":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"subject": map[string]any{"type": "string"},
			"body":    map[string]any{"type": "string"},
			"attachments": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"filename": map[string]any{"type": "string"},
						"content":  map[string]any{"type": "string"},
					},
				},
			},
		},
		"required": []string{"to", "subject", "body"},
	}
}

func (sendEmailTool) Execute(_ context.Context, toolCtx *Context, input map[string]any) (string, error) {
	to := stringSlice(input["to"])
	if len(to) == 0 {
		return "", fmt.Errorf("sendEmail: to is required")
	}
	subject, _ := input["subject"].(string)
	body, _ := input["body"].(string)

	host := os.Getenv("DAGPLAN_SMTP_HOST")
	if host == "" {
		return "", fmt.Errorf("sendEmail: DAGPLAN_SMTP_HOST is not configured")
	}
	port := os.Getenv("DAGPLAN_SMTP_PORT")
	if port == "" {
		port = "587"
	}
	from := os.Getenv("DAGPLAN_SMTP_FROM")
	if from == "" {
		return "", fmt.Errorf("sendEmail: DAGPLAN_SMTP_FROM is not configured")
	}

	msg, err := buildMIMEMessage(from, to, subject, body, attachmentsOf(input["attachments"]))
	if err != nil {
		return "", fmt.Errorf("sendEmail: %w", err)
	}

	toolCtx.Emit.Progress(fmt.Sprintf("sending to %s", strings.Join(to, ", ")))

	addr := host + ":" + port
	var auth smtp.Auth
	if user := os.Getenv("DAGPLAN_SMTP_USER"); user != "" {
		auth = smtp.PlainAuth("", user, os.Getenv("DAGPLAN_SMTP_PASSWORD"), host)
	}
	if err := smtp.SendMail(addr, auth, from, to, msg); err != nil {
		return "", fmt.Errorf("sendEmail: %w", err)
	}

	toolCtx.Emit.Completed(fmt.Sprintf("sent to %d recipient(s)", len(to)))
	return fmt.Sprintf("email sent to %s", strings.Join(to, ", ")), nil
}

// ResolveDependencies implements DependencyResolver for sendEmail: when
// attachments is a non-empty list, the joined dependency content is
// written into attachments[0].content.
func (sendEmailTool) ResolveDependencies(input map[string]any, deps []DependencyResult) (map[string]any, error) {
	out := cloneInput(input)
	attachments, _ := out["attachments"].([]any)
	if len(attachments) == 0 || len(deps) == 0 {
		return out, nil
	}
	parts := make([]string, len(deps))
	for i, d := range deps {
		parts[i] = StringifyResult(d.Result)
	}
	joined := strings.Join(parts, "\n")
	first, _ := attachments[0].(map[string]any)
	if first == nil {
		first = map[string]any{}
	}
	first["content"] = joined
	attachments[0] = first
	out["attachments"] = attachments
	return out, nil
}

type emailAttachment struct {
	Filename string
	Content  string
}

func attachmentsOf(raw any) []emailAttachment {
	list, _ := raw.([]any)
	out := make([]emailAttachment, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		filename, _ := m["filename"].(string)
		content, _ := m["content"].(string)
		out = append(out, emailAttachment{Filename: filename, Content: content})
	}
	return out
}

func stringSlice(raw any) []string {
	list, _ := raw.([]any)
	out := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func buildMIMEMessage(from string, to []string, subject, body string, attachments []emailAttachment) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", writer.Boundary())

	bodyPart, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/plain; charset=utf-8"},
	})
	if err != nil {
		return nil, err
	}
	if _, err := bodyPart.Write([]byte(body)); err != nil {
		return nil, err
	}

	for _, a := range attachments {
		if a.Filename == "" {
			continue
		}
		part, err := writer.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {"application/octet-stream"},
			"Content-Disposition":       {fmt.Sprintf("attachment; filename=%q", a.Filename)},
			"Content-Transfer-Encoding": {"8bit"},
		})
		if err != nil {
			return nil, err
		}
		if _, err := part.Write([]byte(a.Content)); err != nil {
			return nil, err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
