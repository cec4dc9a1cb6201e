package mail

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Mailer is the outbound email capability. Delivery details stay behind
// this interface; the core only needs send(to, subject, body).
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SendGridMailer delivers mail through the SendGrid API.
type SendGridMailer struct {
	client    *sendgrid.Client
	fromName  string
	fromEmail string
}

// NewSendGridMailer builds a SendGrid-backed mailer.
func NewSendGridMailer(apiKey, fromName, fromEmail string) *SendGridMailer {
	return &SendGridMailer{
		client:    sendgrid.NewSendClient(apiKey),
		fromName:  fromName,
		fromEmail: fromEmail,
	}
}

// Send delivers a plain-text message.
func (m *SendGridMailer) Send(ctx context.Context, to, subject, body string) error {
	message := sgmail.NewSingleEmail(
		sgmail.NewEmail(m.fromName, m.fromEmail),
		subject,
		sgmail.NewEmail("", to),
		body,
		"",
	)
	resp, err := m.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid send: status %d", resp.StatusCode)
	}
	return nil
}

// LogMailer writes outbound mail to the log instead of sending it. Used in
// development and as the fallback when no SendGrid key is configured.
type LogMailer struct{}

// NewLogMailer builds a log-only mailer.
func NewLogMailer() *LogMailer {
	return &LogMailer{}
}

// Send logs the message.
func (m *LogMailer) Send(_ context.Context, to, subject, body string) error {
	slog.Info("outbound mail (log only)", "to", to, "subject", subject, "body", body)
	return nil
}
