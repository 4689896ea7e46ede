package sendgrid

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/mailpipe/mailpipe/internal/core/domain"
)

// Sender delivers trigger notifications over SendGrid email.
type Sender struct {
	client    *sendgrid.Client
	fromName  string
	fromEmail string
}

func NewSender(apiKey, fromName, fromEmail string) (*Sender, error) {
	if apiKey == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "sendgrid sender",
			fmt.Errorf("api key is required"))
	}
	if fromEmail == "" {
		fromEmail = "noreply@mailpipe.local"
	}
	return &Sender{
		client:    sendgrid.NewSendClient(apiKey),
		fromName:  fromName,
		fromEmail: fromEmail,
	}, nil
}

func (s *Sender) Send(ctx context.Context, recipient, kind, text string) error {
	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail("", recipient)
	subject := fmt.Sprintf("[mailpipe] %s", kind)
	message := mail.NewSingleEmail(from, subject, to, text, text)

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	if response.StatusCode >= 500 || response.StatusCode == 429 {
		return domain.WrapError(domain.ErrTemporary, "send notification",
			fmt.Errorf("status %d: %s", response.StatusCode, response.Body))
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("send notification: status %d: %s", response.StatusCode, response.Body)
	}
	return nil
}
