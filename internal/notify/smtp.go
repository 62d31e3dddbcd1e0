package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/wneessen/go-mail"

	"library/internal/models"
)

// SMTPSender delivers notifications as plain-text email
type SMTPSender struct {
	client *mail.Client
	from   string
}

// NewSMTPSender connects the sender to an SMTP relay. Username may be empty
// for unauthenticated relays.
func NewSMTPSender(host string, port int, username, password, from string) (*SMTPSender, error) {
	opts := []mail.Option{mail.WithPort(port)}
	if username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(username),
			mail.WithPassword(password),
		)
	}
	client, err := mail.NewClient(host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create SMTP client: %w", err)
	}
	return &SMTPSender{client: client, from: from}, nil
}

// Send delivers one message. Address problems are permanent, transport
// problems are retryable.
func (s *SMTPSender) Send(ctx context.Context, to models.Recipient, subject, body string) error {
	if to.Email == "" {
		return Permanent(errors.New("recipient has no email address"))
	}

	msg := mail.NewMsg()
	if err := msg.From(s.from); err != nil {
		return Permanent(fmt.Errorf("invalid sender address: %w", err))
	}
	if err := msg.To(to.Email); err != nil {
		return Permanent(fmt.Errorf("invalid recipient address: %w", err))
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		return Retryable(fmt.Errorf("smtp send failed: %w", err))
	}
	return nil
}
