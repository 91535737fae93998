// Package notify holds the outbound delivery channels (email via Resend,
// SMS via Twilio) and the message rendering shared by the lifecycle engine
// and the on-demand send endpoint.
package notify

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v2"
)

// ChannelUnavailableError reports an attempt to use a channel that was not
// configured at startup.
type ChannelUnavailableError struct {
	Channel string
}

func (e *ChannelUnavailableError) Error() string {
	return fmt.Sprintf("%s channel is not configured", e.Channel)
}

// Mailer sends reminder emails through Resend.
type Mailer struct {
	client *resend.Client
	from   string
}

// NewMailer builds the email channel. Returns nil when the credential or
// sender address is missing; callers treat a nil Mailer as an absent channel.
func NewMailer(apiKey, from string) *Mailer {
	if apiKey == "" || from == "" {
		return nil
	}
	return &Mailer{client: resend.NewClient(apiKey), from: from}
}

// Send delivers one email and returns the provider's email id.
func (m *Mailer) Send(ctx context.Context, to, subject, html string) (string, error) {
	if m == nil {
		return "", &ChannelUnavailableError{Channel: "email"}
	}
	sent, err := m.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    m.from,
		To:      []string{to},
		Subject: subject,
		Html:    html,
	})
	if err != nil {
		return "", fmt.Errorf("send email to %s: %w", to, err)
	}
	return sent.Id, nil
}
