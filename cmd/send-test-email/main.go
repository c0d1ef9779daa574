package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sapliy/staff-notify/internal/config"
	"github.com/sapliy/staff-notify/internal/notification"
	"github.com/sapliy/staff-notify/pkg/observability"
	"go.uber.org/zap"
)

// send-test-email renders a sample notification and sends it through Resend
// to verify email configuration.
func main() {
	cfg, err := config.Load(os.Getenv("NOTIFY_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := observability.MustLogger("send-test-email", cfg.Debug)
	defer logger.Sync()

	if cfg.Resend.APIKey == "" {
		logger.Fatal("resend api key is not set (NOTIFY_RESEND_API_KEY)")
	}

	to := os.Getenv("CONTACT_EMAIL")
	if to == "" {
		logger.Fatal("CONTACT_EMAIL is not set")
	}

	deadline := time.Now().Add(48 * time.Hour)
	n := &notification.Notification{
		ID:                      "test-email",
		Title:                   "Test notification",
		Message:                 "This is a test email to verify the staff notification email integration.",
		Channels:                []notification.Channel{notification.Email},
		Recipients:              []string{to},
		RequiresAcknowledgement: true,
		AcknowledgementSettings: &notification.AcknowledgementSettings{
			Options:  []string{"Received"},
			Deadline: &deadline,
		},
		CreatedBy: "notifyd",
	}

	html, err := notification.RenderEmail(n, cfg.PortalURL+"/notifications/"+n.ID)
	if err != nil {
		logger.Fatal("failed to render email", zap.Error(err))
	}

	svc := notification.NewEmailService(cfg.Resend.APIKey, cfg.Resend.From, cfg.Resend.RedirectTo)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	id, err := svc.SendEmail(ctx, to, n.Title, html)
	if err != nil {
		logger.Fatal("failed to send email", zap.Error(err))
	}

	fmt.Printf("Email sent successfully! ID: %s\n", id)
}
