package notification

import (
	"strings"
	"unicode"
)

const exportTimeLayout = "2006-01-02 15:04:05"

var exportHeader = []string{"Recipient", "Status", "Response", "Comments", "Response Time"}

// ExportResponsesCSV renders one row per recipient with their acknowledgement
// state. Responses from names outside the roster are appended after the roster
// rows rather than dropped.
func ExportResponsesCSV(n *Notification) string {
	byRecipient := make(map[string]AcknowledgementResponse, len(n.Responses))
	for _, r := range n.Responses {
		byRecipient[r.Recipient] = r
	}

	rows := make([]string, 0, len(n.Recipients)+1)
	rows = append(rows, csvRow(exportHeader))

	onRoster := make(map[string]bool, len(n.Recipients))
	for _, name := range n.Recipients {
		onRoster[name] = true
		if r, ok := byRecipient[name]; ok {
			rows = append(rows, respondedRow(name, r))
			continue
		}
		rows = append(rows, csvRow([]string{name, "Pending", "", "", ""}))
	}

	for _, r := range n.Responses {
		if !onRoster[r.Recipient] {
			rows = append(rows, respondedRow(r.Recipient, r))
		}
	}

	return strings.Join(rows, "\n")
}

// ExportFilename derives the download name from the notification title.
func ExportFilename(title string) string {
	var b strings.Builder
	for _, r := range title {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	b.WriteString("_responses.csv")
	return b.String()
}

func respondedRow(name string, r AcknowledgementResponse) string {
	return csvRow([]string{name, "Responded", r.Option, r.Comment, r.RespondedAt.Format(exportTimeLayout)})
}

func csvRow(fields []string) string {
	escaped := make([]string, len(fields))
	for i, f := range fields {
		escaped[i] = csvField(f)
	}
	return strings.Join(escaped, ",")
}

func csvField(f string) string {
	if !strings.ContainsAny(f, ",\"\n") {
		return f
	}
	return `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
}
