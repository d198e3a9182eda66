package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ignite/collection-dispatcher/internal/config"
	"github.com/ignite/collection-dispatcher/internal/pkg/httpretry"
)

// BrevoProvider is the SMTP-JSON adapter: it posts a JSON document with
// base64-encoded attachments to /v3/smtp/email. Every address in
// Message.To lands in the request's recipient list, matching the SES
// adapter's multi-recipient support.
type BrevoProvider struct {
	httpClient httpretry.HTTPDoer
	apiURL     string
	apiKey     string
}

// NewBrevoProvider constructs the Brevo adapter.
func NewBrevoProvider(httpClient httpretry.HTTPDoer, cfg config.BrevoConfig) *BrevoProvider {
	return &BrevoProvider{
		httpClient: httpClient,
		apiURL:     cfg.APIURL,
		apiKey:     cfg.APIKey,
	}
}

type brevoContact struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type brevoAttachment struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

type brevoRequest struct {
	Sender      brevoContact      `json:"sender"`
	To          []brevoContact    `json:"to"`
	Subject     string            `json:"subject"`
	HTMLContent string            `json:"htmlContent"`
	TextContent string            `json:"textContent,omitempty"`
	Attachment  []brevoAttachment `json:"attachment,omitempty"`
}

type brevoResponse struct {
	MessageID string `json:"messageId"`
}

// Send POSTs the message as Brevo's transactional email JSON body.
func (p *BrevoProvider) Send(ctx context.Context, msg Message) (SendResult, error) {
	senderName, senderEmail := parseSender(msg.From)

	to := make([]brevoContact, 0, len(msg.To))
	for _, addr := range msg.To {
		to = append(to, brevoContact{Email: addr})
	}

	attachments := make([]brevoAttachment, 0, len(msg.Attachments))
	for _, att := range msg.Attachments {
		attachments = append(attachments, brevoAttachment{
			Name:    att.Name,
			Content: base64.StdEncoding.EncodeToString(att.Data),
		})
	}

	body := brevoRequest{
		Sender:      brevoContact{Name: senderName, Email: senderEmail},
		To:          to,
		Subject:     msg.Subject,
		HTMLContent: msg.HTMLBody,
		TextContent: msg.TextBody,
		Attachment:  attachments,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return SendResult{}, fmt.Errorf("brevo provider: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(payload))
	if err != nil {
		return SendResult{}, fmt.Errorf("brevo provider: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("api-key", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return SendResult{}, fmt.Errorf("brevo provider: send: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return SendResult{}, fmt.Errorf("brevo provider: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return SendResult{}, fmt.Errorf("brevo provider: status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed brevoResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return SendResult{}, fmt.Errorf("brevo provider: parse response: %w", err)
	}

	return SendResult{MessageID: parsed.MessageID, Provider: p.Name()}, nil
}

// Name identifies the provider for logging and the audit trail.
func (p *BrevoProvider) Name() string { return "brevo" }

// parseSender splits a "Name <addr@example.com>" sender string into its
// display name and address, falling back to treating the whole string as
// a bare address.
func parseSender(from string) (name, email string) {
	from = strings.TrimSpace(from)
	start := strings.Index(from, "<")
	end := strings.LastIndex(from, ">")
	if start >= 0 && end > start {
		name = strings.TrimSpace(from[:start])
		email = strings.TrimSpace(from[start+1 : end])
		return name, email
	}
	return "", from
}
