package notification

import (
	"errors"
	"time"
)

type Channel string

const (
	Email  Channel = "email"
	SMS    Channel = "sms"
	Portal Channel = "portal"
)

// Channels lists every supported delivery channel in display order.
var Channels = []Channel{Email, SMS, Portal}

// Valid reports whether c is a supported channel.
func (c Channel) Valid() bool {
	switch c {
	case Email, SMS, Portal:
		return true
	}
	return false
}

type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

var (
	ErrNotFound                   = errors.New("notification not found")
	ErrAcknowledgementNotRequired = errors.New("notification does not require acknowledgement")
	ErrUnknownRecipient           = errors.New("recipient is not on the notification roster")
	ErrInvalidOption              = errors.New("response option is not offered by this notification")
	ErrCommentsDisabled           = errors.New("comments are not enabled for this notification")
)

// ChannelContent is the per-channel rendering of a notification. Subject is
// only meaningful for email.
type ChannelContent struct {
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body"`
}

type AcknowledgementSettings struct {
	Options       []string   `json:"options,omitempty"`
	AllowComments bool       `json:"allow_comments"`
	Deadline      *time.Time `json:"deadline,omitempty"`
}

// HasOption reports whether option is acceptable. An empty option list accepts
// any option, including none.
func (s *AcknowledgementSettings) HasOption(option string) bool {
	if s == nil || len(s.Options) == 0 {
		return true
	}
	for _, o := range s.Options {
		if o == option {
			return true
		}
	}
	return false
}

type AcknowledgementResponse struct {
	Recipient   string    `json:"recipient"`
	Option      string    `json:"option"`
	Comment     string    `json:"comment,omitempty"`
	RespondedAt time.Time `json:"responded_at"`
}

type Notification struct {
	ID                      string                     `json:"id"`
	Title                   string                     `json:"title"`
	Message                 string                     `json:"message"`
	Channels                []Channel                  `json:"channels"`
	Content                 map[Channel]ChannelContent `json:"content,omitempty"`
	Recipients              []string                   `json:"recipients"`
	RequiresAcknowledgement bool                       `json:"requires_acknowledgement"`
	AcknowledgementSettings *AcknowledgementSettings   `json:"acknowledgement_settings,omitempty"`
	Responses               []AcknowledgementResponse  `json:"responses,omitempty"`
	Status                  Status                     `json:"status"`
	SentAt                  time.Time                  `json:"sent_at"`
	ScheduledFor            *time.Time                 `json:"scheduled_for,omitempty"`
	AcknowledgedBy          []string                   `json:"acknowledged_by,omitempty"`
	CreatedBy               string                     `json:"created_by,omitempty"`
	CreatedAt               time.Time                  `json:"created_at"`
}

// AcknowledgedCount is derived from the responses, falling back to the legacy
// AcknowledgedBy list for records that predate structured responses.
func (n *Notification) AcknowledgedCount() int {
	if len(n.Responses) > 0 {
		return len(n.Responses)
	}
	return len(n.AcknowledgedBy)
}

// HasChannel reports whether the notification is delivered over c.
func (n *Notification) HasChannel(c Channel) bool {
	for _, ch := range n.Channels {
		if ch == c {
			return true
		}
	}
	return false
}

// HasRecipient reports whether name is on the roster.
func (n *Notification) HasRecipient(name string) bool {
	for _, r := range n.Recipients {
		if r == name {
			return true
		}
	}
	return false
}

// ContentFor returns the body to deliver over c, defaulting to the main message.
func (n *Notification) ContentFor(c Channel) ChannelContent {
	content := n.Content[c]
	if content.Body == "" {
		content.Body = n.Message
	}
	if c == Email && content.Subject == "" {
		content.Subject = n.Title
	}
	return content
}

// Deadline returns the acknowledgement deadline, if one is configured.
func (n *Notification) Deadline() *time.Time {
	if n.AcknowledgementSettings == nil {
		return nil
	}
	return n.AcknowledgementSettings.Deadline
}
