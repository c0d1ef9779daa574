package notification

import (
	"bytes"
	"html/template"
	"time"
)

const emailLayout = `<!DOCTYPE html>
<html>
<head>
    <meta name="viewport" content="width=device-width, initial-scale=1.0" />
    <meta http-equiv="Content-Type" content="text/html; charset=UTF-8" />
    <style>
        body { background-color: #f6f9fc; font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Arial, sans-serif; font-size: 16px; line-height: 1.5; margin: 0; padding: 0; }
        .container { margin: 0 auto; max-width: 580px; padding: 10px; }
        .main { background: #ffffff; border-radius: 8px; border: 1px solid #e1e9ee; padding: 20px; }
        h1 { font-size: 22px; font-weight: 700; margin: 0 0 20px 0; color: #32325d; }
        p { margin: 0 0 16px 0; color: #525f7f; }
        .ack { border-top: 1px solid #e1e9ee; margin-top: 24px; padding-top: 16px; }
        .btn { background-color: #5e6ad2; border-radius: 4px; color: #ffffff; display: inline-block; font-weight: bold; padding: 12px 25px; text-decoration: none; }
        .footer { color: #8898aa; font-size: 12px; margin-top: 10px; text-align: center; }
    </style>
</head>
<body>
    <div class="container">
        <div class="main">
            <h1>{{.Title}}</h1>
            {{range .Paragraphs}}<p>{{.}}</p>
            {{end}}
            {{- if .AckRequired}}
            <div class="ack">
                <p>Your acknowledgement is required{{if .Deadline}} by <strong>{{.Deadline}}</strong>{{end}}.</p>
                {{- if .Options}}
                <p>Possible responses: {{range $i, $o := .Options}}{{if $i}}, {{end}}{{$o}}{{end}}</p>
                {{- end}}
                {{- if .AckURL}}
                <p><a class="btn" href="{{.AckURL}}" target="_blank">Respond in the staff portal</a></p>
                {{- end}}
            </div>
            {{- end}}
        </div>
        <div class="footer">Sent by {{.Sender}} via the internal notification service.</div>
    </div>
</body>
</html>
`

var emailTmpl = template.Must(template.New("email").Parse(emailLayout))

// EmailData is the view model for the notification email.
type EmailData struct {
	Title       string
	Paragraphs  []string
	AckRequired bool
	Options     []string
	Deadline    string
	AckURL      string
	Sender      string
}

// RenderEmail renders the HTML body for n. ackURL links to the portal response
// page and may be empty.
func RenderEmail(n *Notification, ackURL string) (string, error) {
	content := n.ContentFor(Email)

	data := EmailData{
		Title:       content.Subject,
		Paragraphs:  paragraphs(content.Body),
		AckRequired: n.RequiresAcknowledgement,
		AckURL:      ackURL,
		Sender:      n.CreatedBy,
	}
	if data.Sender == "" {
		data.Sender = "Internal Communications"
	}
	if s := n.AcknowledgementSettings; s != nil {
		data.Options = s.Options
		if s.Deadline != nil {
			data.Deadline = s.Deadline.Format("Mon 2 Jan 2006 15:04 MST")
		}
	}

	var buf bytes.Buffer
	if err := emailTmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func paragraphs(body string) []string {
	var out []string
	for _, p := range bytes.Split([]byte(body), []byte("\n\n")) {
		if s := string(bytes.TrimSpace(p)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func formatDeadline(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2 Jan 15:04")
}
