package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/resend/resend-go/v2"
	"github.com/rs/zerolog"

	"forex-observer/internal/alert"
)

// EmailSender 通过 Resend 发送邮件告警。
type EmailSender struct {
	client *resend.Client
	from   string
	logger zerolog.Logger
}

var _ Sender = (*EmailSender)(nil)

// NewEmailSender 构造邮件发送器。
func NewEmailSender(apiKey, from string, logger zerolog.Logger) *EmailSender {
	return &EmailSender{
		client: resend.NewClient(apiKey),
		from:   from,
		logger: logger.With().Str("component", "notify_email").Logger(),
	}
}

// Name implements Sender.
func (s *EmailSender) Name() string { return "email" }

// Send 渲染并投递一封告警邮件。
func (s *EmailSender) Send(ctx context.Context, a alert.Alert, ev alert.Event) error {
	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{a.Email},
		Subject: renderEmailSubject(a),
		Html:    renderEmailHTML(a, ev),
		Text:    renderEventText(a, ev),
	}

	sent, err := s.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	s.logger.Info().
		Str("email_id", sent.Id).
		Str("to", a.Email).
		Str("pair", a.Pair).
		Msg("告警已发送 (Email)")
	return nil
}

func renderEmailSubject(a alert.Alert) string {
	return fmt.Sprintf("🚨 Price Alert: %s reached %s %s", a.Pair, conditionPhrase(a.Condition), a.Threshold)
}

func renderEmailHTML(a alert.Alert, ev alert.Event) string {
	html := fmt.Sprintf(`<h2>🚨 Price Alert Triggered</h2>
<p><strong>%s</strong> is now <strong>%s</strong>, %s your target of <strong>%s</strong>.</p>
<ul>
  <li>Observed at: %s</li>
  <li>Source: %s</li>
</ul>`,
		a.Pair, ev.Price, conditionPhrase(a.Condition), a.Threshold,
		ev.ObservedAt.UTC().Format(time.RFC3339), ev.Source)
	if a.Message != "" {
		html += fmt.Sprintf("\n<p>%s</p>", a.Message)
	}
	return html
}

// renderEventText 渲染纯文本告警内容,邮件与短信共用。
func renderEventText(a alert.Alert, ev alert.Event) string {
	text := fmt.Sprintf("ALERT: %s %s %s | Current: %s", a.Pair, conditionPhrase(a.Condition), a.Threshold, ev.Price)
	if a.Message != "" {
		text += " | " + a.Message
	}
	return text
}
