package notification

import "time"

// DemoNotifications returns sample history used when no database is
// configured. Times are relative to now.
func DemoNotifications(now time.Time) []Notification {
	now = now.UTC().Truncate(time.Minute)
	day := 24 * time.Hour
	ago := func(d time.Duration) time.Time { return now.Add(-d) }
	at := func(t time.Time) *time.Time { return &t }

	return []Notification{
		{
			ID:                      "demo-1",
			Title:                   "Fire drill on Thursday",
			Message:                 "A fire drill will take place on Thursday at 10:00. Please leave by the nearest exit.",
			Channels:                []Channel{Email, Portal},
			Recipients:              []string{"Alice Jones", "Bob Smith", "Carol White"},
			RequiresAcknowledgement: true,
			AcknowledgementSettings: &AcknowledgementSettings{
				Options:       []string{"Understood", "Need more info"},
				AllowComments: true,
				Deadline:      at(ago(day)),
			},
			Responses: []AcknowledgementResponse{
				{Recipient: "Alice Jones", Option: "Understood", RespondedAt: ago(2*day + 3*time.Hour)},
			},
			Status:    StatusSent,
			SentAt:    ago(3 * day),
			CreatedBy: "Internal Communications",
			CreatedAt: ago(3 * day),
		},
		{
			ID:                      "demo-2",
			Title:                   "Updated expense policy",
			Message:                 "The expense policy has been updated. Please read and confirm.",
			Channels:                []Channel{Email},
			Recipients:              []string{"Alice Jones", "Bob Smith"},
			RequiresAcknowledgement: true,
			AcknowledgementSettings: &AcknowledgementSettings{
				Options:  []string{"Read and agreed"},
				Deadline: at(now.Add(5 * day)),
			},
			Responses: []AcknowledgementResponse{
				{Recipient: "Alice Jones", Option: "Read and agreed", RespondedAt: ago(20 * time.Hour)},
				{Recipient: "Bob Smith", Option: "Read and agreed", RespondedAt: ago(2 * time.Hour)},
			},
			Status:    StatusSent,
			SentAt:    ago(day),
			CreatedBy: "Finance",
			CreatedAt: ago(day),
		},
		{
			ID:         "demo-3",
			Title:      "Server maintenance tonight",
			Message:    "Internal systems will be unavailable from 22:00 to 23:00.",
			Channels:   []Channel{SMS, Portal},
			Recipients: []string{"Carol White", "Dan Brown"},
			Status:     StatusFailed,
			SentAt:     ago(6 * time.Hour),
			CreatedBy:  "IT",
			CreatedAt:  ago(6 * time.Hour),
		},
		{
			ID:           "demo-4",
			Title:        "Quarterly town hall",
			Message:      "Join us for the quarterly town hall in the main auditorium.",
			Channels:     []Channel{Email, SMS, Portal},
			Recipients:   []string{"Alice Jones", "Bob Smith", "Carol White", "Dan Brown"},
			Status:       StatusPending,
			ScheduledFor: at(now.Add(2 * day)),
			CreatedBy:    "Internal Communications",
			CreatedAt:    ago(time.Hour),
		},
	}
}
