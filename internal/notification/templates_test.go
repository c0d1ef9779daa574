package notification

import (
	"strings"
	"testing"
	"time"
)

func TestRenderEmail(t *testing.T) {
	deadline := time.Date(2026, 3, 12, 17, 0, 0, 0, time.UTC)
	n := &Notification{
		Title:                   "Policy <update>",
		Message:                 "First paragraph.\n\nSecond & last.",
		RequiresAcknowledgement: true,
		AcknowledgementSettings: &AcknowledgementSettings{Options: []string{"Yes", "No"}, Deadline: &deadline},
		CreatedBy:               "HR",
	}

	html, err := RenderEmail(n, "https://portal.example.com/notifications/n1")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	for _, want := range []string{
		"Policy &lt;update&gt;",
		"<p>First paragraph.</p>",
		"<p>Second &amp; last.</p>",
		"Thu 12 Mar 2026 17:00 UTC",
		"Yes, No",
		`href="https://portal.example.com/notifications/n1"`,
		"Sent by HR",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("Expected email to contain %q", want)
		}
	}
}

func TestRenderEmailWithoutAcknowledgement(t *testing.T) {
	html, err := RenderEmail(&Notification{Title: "Hello", Message: "Body"}, "")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if strings.Contains(html, "acknowledgement is required") {
		t.Error("Expected no acknowledgement section")
	}
	if !strings.Contains(html, "Internal Communications") {
		t.Error("Expected default sender")
	}
}

func TestRenderText(t *testing.T) {
	tests := []struct {
		name    string
		n       Notification
		channel Channel
		want    string
	}{
		{
			name:    "sms plain",
			n:       Notification{Title: "Outage", Message: " Systems down "},
			channel: SMS,
			want:    "Outage: Systems down",
		},
		{
			name:    "portal with ack",
			n:       Notification{Title: "Policy", Message: "Read it", RequiresAcknowledgement: true},
			channel: Portal,
			want:    "Read it\n\nAcknowledgement required.",
		},
		{
			name: "portal content override",
			n: Notification{Title: "Policy", Message: "Main", Content: map[Channel]ChannelContent{
				Portal: {Body: "Portal only"},
			}},
			channel: Portal,
			want:    "Portal only",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RenderText(&tt.n, tt.channel)
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}
