package notification

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// AckFilter selects notifications by acknowledgement state.
type AckFilter string

const (
	AckAll         AckFilter = "all"
	AckRequired    AckFilter = "required"
	AckNotRequired AckFilter = "not-required"
	AckComplete    AckFilter = "complete"
	AckPending     AckFilter = "pending"
	AckOverdue     AckFilter = "overdue"
)

// StatusAll matches every delivery status.
const StatusAll Status = "all"

const dateLayout = "2006-01-02"

// Criteria is the set of independent history filters. The zero value matches
// everything.
type Criteria struct {
	Query    string
	Status   Status
	Channels []Channel
	Ack      AckFilter
	From     *time.Time
	To       *time.Time
}

// Filter returns the notifications that satisfy every criterion, preserving
// input order. now is the reference time for the overdue check.
func Filter(items []Notification, c Criteria, now time.Time) []Notification {
	out := make([]Notification, 0, len(items))
	m := c.matcher(now)
	for i := range items {
		if m(&items[i]) {
			out = append(out, items[i])
		}
	}
	return out
}

// Match reports whether a single notification satisfies c.
func (c Criteria) Match(n *Notification, now time.Time) bool {
	return c.matcher(now)(n)
}

func (c Criteria) matcher(now time.Time) func(*Notification) bool {
	query := strings.ToLower(strings.TrimSpace(c.Query))

	var start, end time.Time
	if c.From != nil {
		start = startOfDay(*c.From)
	}
	if c.To != nil {
		end = endOfDay(*c.To)
	}

	return func(n *Notification) bool {
		if query != "" &&
			!strings.Contains(strings.ToLower(n.Title), query) &&
			!strings.Contains(strings.ToLower(n.Message), query) {
			return false
		}
		if c.Status != "" && c.Status != StatusAll && n.Status != c.Status {
			return false
		}
		if len(c.Channels) > 0 && !anyChannel(n, c.Channels) {
			return false
		}
		if !c.Ack.match(n, now) {
			return false
		}
		if c.From != nil && n.SentAt.Before(start) {
			return false
		}
		if c.To != nil && n.SentAt.After(end) {
			return false
		}
		return true
	}
}

func (a AckFilter) match(n *Notification, now time.Time) bool {
	acked, total := n.AcknowledgedCount(), len(n.Recipients)

	switch a {
	case AckRequired:
		return n.RequiresAcknowledgement
	case AckNotRequired:
		return !n.RequiresAcknowledgement
	case AckComplete:
		return n.RequiresAcknowledgement && acked == total
	case AckPending:
		return n.RequiresAcknowledgement && acked < total
	case AckOverdue:
		// Keyed on the deadline alone; the required flag is not consulted.
		deadline := n.Deadline()
		return deadline != nil && deadline.Before(now) && acked < total
	default:
		return true
	}
}

func anyChannel(n *Notification, selected []Channel) bool {
	for _, c := range selected {
		if n.HasChannel(c) {
			return true
		}
	}
	return false
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}

// ParseCriteria builds Criteria from history query parameters: q, status,
// channel (repeatable or comma separated), ack, from and to (YYYY-MM-DD,
// interpreted in loc).
func ParseCriteria(v url.Values, loc *time.Location) (Criteria, error) {
	if loc == nil {
		loc = time.UTC
	}

	c := Criteria{
		Query:  v.Get("q"),
		Status: Status(v.Get("status")),
		Ack:    AckFilter(v.Get("ack")),
	}

	switch c.Status {
	case "", StatusAll, StatusSent, StatusPending, StatusFailed:
	default:
		return Criteria{}, fmt.Errorf("unknown status %q", c.Status)
	}

	switch c.Ack {
	case "", AckAll, AckRequired, AckNotRequired, AckComplete, AckPending, AckOverdue:
	default:
		return Criteria{}, fmt.Errorf("unknown acknowledgement filter %q", c.Ack)
	}

	for _, raw := range v["channel"] {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			ch := Channel(part)
			if !ch.Valid() {
				return Criteria{}, fmt.Errorf("unknown channel %q", part)
			}
			c.Channels = append(c.Channels, ch)
		}
	}

	for key, dst := range map[string]**time.Time{"from": &c.From, "to": &c.To} {
		raw := v.Get(key)
		if raw == "" {
			continue
		}
		t, err := time.ParseInLocation(dateLayout, raw, loc)
		if err != nil {
			return Criteria{}, fmt.Errorf("invalid %s date %q: %w", key, raw, err)
		}
		*dst = &t
	}

	return c, nil
}
