package notification

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v2"
)

// emailAPI is the part of resend.EmailsSvc the service calls.
type emailAPI interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// EmailService handles sending emails via Resend.
type EmailService struct {
	emails     emailAPI
	fromEmail  string
	redirectTo string
}

// NewEmailService creates a new email service. When redirectTo is set every
// message goes there instead, with the original address kept in the subject.
func NewEmailService(apiKey, fromEmail, redirectTo string) *EmailService {
	if fromEmail == "" {
		fromEmail = "onboarding@resend.dev"
	}
	return &EmailService{
		emails:     resend.NewClient(apiKey).Emails,
		fromEmail:  fromEmail,
		redirectTo: redirectTo,
	}
}

// SendEmail sends a single HTML email and returns the provider message ID.
func (s *EmailService) SendEmail(ctx context.Context, to, subject, htmlBody string) (string, error) {
	recipient := to
	if s.redirectTo != "" {
		recipient = s.redirectTo
		subject = fmt.Sprintf("[DEV-REDIRECT] %s (Original: %s)", subject, to)
	}

	params := &resend.SendEmailRequest{
		From:    s.fromEmail,
		To:      []string{recipient},
		Subject: subject,
		Html:    htmlBody,
	}

	sent, err := s.emails.SendWithContext(ctx, params)
	if err != nil {
		return "", fmt.Errorf("failed to send email via Resend: %w", err)
	}
	return sent.Id, nil
}
