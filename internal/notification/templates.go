package notification

import (
	"bytes"
	"strings"
	"text/template"
)

var textTemplates = map[Channel]*template.Template{
	SMS: template.Must(template.New("sms").Parse(
		`{{.Title}}: {{.Body}}{{if .AckRequired}} Please acknowledge in the staff portal{{if .Deadline}} by {{.Deadline}}{{end}}.{{end}}`)),
	Portal: template.Must(template.New("portal").Parse(
		`{{.Body}}{{if .AckRequired}}

Acknowledgement required{{if .Deadline}} by {{.Deadline}}{{end}}.{{end}}`)),
}

type textData struct {
	Title       string
	Body        string
	AckRequired bool
	Deadline    string
}

// RenderText renders the plain-text body of n for the SMS or portal channel.
func RenderText(n *Notification, c Channel) (string, error) {
	tmpl, ok := textTemplates[c]
	if !ok {
		return n.ContentFor(c).Body, nil
	}

	data := textData{
		Title:       n.Title,
		Body:        strings.TrimSpace(n.ContentFor(c).Body),
		AckRequired: n.RequiresAcknowledgement,
		Deadline:    formatDeadline(n.Deadline()),
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
