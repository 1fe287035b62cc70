package notify

import (
	"bytes"
	"errors"
	"text/template"
)

const DefaultTemplate = `[Classroom Sentinel] {{.IssueLabel}}
Classroom: {{.Room}}
Issue: {{.IssueLabel}}
Severity: {{.Severity}}
Trigger Value: {{.TriggerValue}}
Fired At: {{.FiredAt}}
Recommendation: {{.Recommendation}}
{{ if .SnapshotURL }}
Snapshot: {{.SnapshotURL}}
{{ end }}
Please check the classroom or dashboard for details.`

// TemplateData provides fields for rendering notification content.
type TemplateData struct {
	Room           string
	RoomID         string
	Issue          string
	IssueLabel     string
	Severity       string
	TriggerValue   string
	FiredAt        string
	Recommendation string
	SnapshotURL    string
}

// Template renders notification content.
type Template struct {
	tpl *template.Template
}

// NewTemplate parses a notification template, falling back to DefaultTemplate.
func NewTemplate(tpl string) (*Template, error) {
	if tpl == "" {
		tpl = DefaultTemplate
	}
	parsed, err := template.New("alert-notification").Parse(tpl)
	if err != nil {
		return nil, err
	}
	return &Template{tpl: parsed}, nil
}

// Render applies the template to data.
func (t *Template) Render(data TemplateData) (string, error) {
	if t == nil || t.tpl == nil {
		return "", errors.New("alert template: nil")
	}
	var buf bytes.Buffer
	if err := t.tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
