package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"mime/multipart"
	"net/textproto"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/ignite/collection-dispatcher/internal/config"
)

// SESAPI is the subset of *sesv2.Client the adapter depends on.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESProvider is the raw-MIME adapter: a hand-assembled multipart/mixed
// message submitted via SendEmail's Content.Raw, rather than SES's
// templated Simple content (which cannot carry attachments without a
// separate API call).
type SESProvider struct {
	client           SESAPI
	configurationSet string
}

// NewSESProvider constructs the SES adapter from the ambient AWS
// configuration chain.
func NewSESProvider(ctx context.Context, cfg config.SESConfig) (*SESProvider, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("ses provider: load aws config: %w", err)
	}
	return &SESProvider{
		client:           sesv2.NewFromConfig(awsCfg),
		configurationSet: cfg.ConfigurationSet,
	}, nil
}

// Send builds a multipart/mixed raw message and submits it via SES's raw
// send path.
func (p *SESProvider) Send(ctx context.Context, msg Message) (SendResult, error) {
	raw, err := buildRawMessage(msg)
	if err != nil {
		return SendResult{}, fmt.Errorf("ses provider: build raw message: %w", err)
	}

	input := &sesv2.SendEmailInput{
		Content: &types.EmailContent{
			Raw: &types.RawMessage{Data: raw},
		},
		Destination: &types.Destination{
			ToAddresses: msg.To,
		},
	}
	if p.configurationSet != "" {
		input.ConfigurationSetName = aws.String(p.configurationSet)
	}

	out, err := p.client.SendEmail(ctx, input)
	if err != nil {
		return SendResult{}, fmt.Errorf("ses provider: send: %w", err)
	}

	messageID := ""
	if out.MessageId != nil {
		messageID = *out.MessageId
	}
	return SendResult{MessageID: messageID, Provider: p.Name()}, nil
}

// Name identifies the provider for logging and the audit trail.
func (p *SESProvider) Name() string { return "ses" }

// buildRawMessage assembles a multipart/mixed MIME message with the HTML
// and plain-text bodies as an alternative part and each attachment as a
// base64 part, in the shape net/mail's header conventions expect.
func buildRawMessage(msg Message) ([]byte, error) {
	var buf bytes.Buffer

	mixed := multipart.NewWriter(&buf)
	headers := textproto.MIMEHeader{}
	headers.Set("From", msg.From)
	headers.Set("To", strings.Join(msg.To, ", "))
	headers.Set("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	headers.Set("MIME-Version", "1.0")
	headers.Set("Content-Type", fmt.Sprintf("multipart/mixed; boundary=%q", mixed.Boundary()))
	if err := writeHeaders(&buf, headers); err != nil {
		return nil, err
	}

	altBuf := &bytes.Buffer{}
	alt := multipart.NewWriter(altBuf)

	textPart, err := alt.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/plain; charset=utf-8"},
	})
	if err != nil {
		return nil, err
	}
	textPart.Write([]byte(msg.TextBody))

	htmlPart, err := alt.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/html; charset=utf-8"},
	})
	if err != nil {
		return nil, err
	}
	htmlPart.Write([]byte(msg.HTMLBody))
	alt.Close()

	bodyPart, err := mixed.CreatePart(textproto.MIMEHeader{
		"Content-Type": {fmt.Sprintf("multipart/alternative; boundary=%q", alt.Boundary())},
	})
	if err != nil {
		return nil, err
	}
	bodyPart.Write(altBuf.Bytes())

	for _, att := range msg.Attachments {
		if err := writeAttachmentPart(mixed, att); err != nil {
			return nil, err
		}
	}

	if err := mixed.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeAttachmentPart(w *multipart.Writer, att Attachment) error {
	contentType := att.FileType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	part, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {contentType},
		"Content-Transfer-Encoding": {"base64"},
		"Content-Disposition":       {fmt.Sprintf("attachment; filename=%q", att.Name)},
	})
	if err != nil {
		return err
	}
	encoder := base64.NewEncoder(base64.StdEncoding, part)
	if _, err := encoder.Write(att.Data); err != nil {
		return err
	}
	return encoder.Close()
}

func writeHeaders(buf *bytes.Buffer, headers textproto.MIMEHeader) error {
	for key, values := range headers {
		for _, v := range values {
			if _, err := fmt.Fprintf(buf, "%s: %s\r\n", key, v); err != nil {
				return err
			}
		}
	}
	_, err := buf.WriteString("\r\n")
	return err
}
