package compose

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sapliy/staff-notify/internal/notification"
)

// Category names the form section a validation failure belongs to.
type Category string

const (
	CategoryTitle      Category = "title"
	CategoryChannels   Category = "channels"
	CategoryRecipients Category = "recipients"
	CategoryContent    Category = "content"
	CategorySchedule   Category = "schedule"
)

// ValidationError reports the first missing or invalid field category.
type ValidationError struct {
	Category Category `json:"category"`
	Message  string   `json:"error"`
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Form is the compose form. Channel-specific content falls back to Message
// and the email subject falls back to Title.
type Form struct {
	Title    string                 `json:"title"`
	Message  string                 `json:"message"`
	Channels []notification.Channel `json:"channels"`

	EmailSubject  string `json:"email_subject,omitempty"`
	EmailBody     string `json:"email_body,omitempty"`
	SMSText       string `json:"sms_text,omitempty"`
	PortalMessage string `json:"portal_message,omitempty"`

	Recipients []string `json:"recipients"`

	RequiresAcknowledgement bool       `json:"requires_acknowledgement"`
	AckOptions              []string   `json:"ack_options,omitempty"`
	AllowComments           bool       `json:"allow_comments,omitempty"`
	AckDeadline             *time.Time `json:"ack_deadline,omitempty"`

	Scheduled    bool       `json:"scheduled,omitempty"`
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
}

// Validate checks the form in a fixed order: title, channels, recipients,
// per-channel content, then the scheduled date. It returns nil or a
// *ValidationError.
func (f *Form) Validate() error {
	if strings.TrimSpace(f.Title) == "" {
		return &ValidationError{Category: CategoryTitle, Message: "Please enter a title"}
	}

	if len(f.Channels) == 0 {
		return &ValidationError{Category: CategoryChannels, Message: "Please select at least one channel"}
	}
	for _, c := range f.Channels {
		if !c.Valid() {
			return &ValidationError{Category: CategoryChannels, Message: fmt.Sprintf("Unknown channel %q", c)}
		}
	}

	if len(nonEmpty(f.Recipients)) == 0 {
		return &ValidationError{Category: CategoryRecipients, Message: "Please select at least one recipient"}
	}

	for _, c := range f.Channels {
		if strings.TrimSpace(f.content(c)) == "" {
			return &ValidationError{Category: CategoryContent, Message: fmt.Sprintf("Please enter content for %s", c)}
		}
	}

	if f.Scheduled && f.ScheduledFor == nil {
		return &ValidationError{Category: CategorySchedule, Message: "Please select a date for scheduled delivery"}
	}
	return nil
}

func (f *Form) content(c notification.Channel) string {
	var specific string
	switch c {
	case notification.Email:
		specific = f.EmailBody
	case notification.SMS:
		specific = f.SMSText
	case notification.Portal:
		specific = f.PortalMessage
	}
	if strings.TrimSpace(specific) != "" {
		return specific
	}
	return f.Message
}

// Build converts a validated form into a notification ready to send.
func (f *Form) Build(createdBy string) *notification.Notification {
	n := &notification.Notification{
		Title:                   strings.TrimSpace(f.Title),
		Message:                 f.Message,
		Channels:                dedupeChannels(f.Channels),
		Content:                 make(map[notification.Channel]notification.ChannelContent, len(f.Channels)),
		Recipients:              dedupe(nonEmpty(f.Recipients)),
		RequiresAcknowledgement: f.RequiresAcknowledgement,
		Status:                  notification.StatusPending,
		CreatedBy:               createdBy,
	}
	for _, c := range n.Channels {
		content := notification.ChannelContent{Body: f.content(c)}
		if c == notification.Email {
			content.Subject = strings.TrimSpace(f.EmailSubject)
		}
		n.Content[c] = content
	}
	if f.RequiresAcknowledgement {
		n.AcknowledgementSettings = &notification.AcknowledgementSettings{
			Options:       nonEmpty(f.AckOptions),
			AllowComments: f.AllowComments,
			Deadline:      f.AckDeadline,
		}
	}
	if f.Scheduled {
		n.ScheduledFor = f.ScheduledFor
	}
	return n
}

// Reset clears every field.
func (f *Form) Reset() {
	*f = Form{}
}

// SendFunc delivers a built notification.
type SendFunc func(ctx context.Context, n *notification.Notification) (*notification.Notification, error)

// Submit validates the form, builds the notification and sends it. The form
// is reset only when send succeeds; on any error it is left untouched.
func Submit(ctx context.Context, f *Form, createdBy string, send SendFunc) (*notification.Notification, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	sent, err := send(ctx, f.Build(createdBy))
	if err != nil {
		return nil, err
	}
	f.Reset()
	return sent, nil
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := values[:0]
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func dedupeChannels(channels []notification.Channel) []notification.Channel {
	seen := make(map[notification.Channel]struct{}, len(channels))
	out := make([]notification.Channel, 0, len(channels))
	for _, c := range channels {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
