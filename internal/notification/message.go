// Package notification emails alert notifications to the addresses
// configured on a target. Jobs are queued on the request path and sent by a
// background worker.
package notification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"time"

	"pgsentry/internal/domain"
)

// Job is one queued alert email for a single recipient.
type Job struct {
	AlertID     int64     `json:"alert_id"`
	TargetAlias string    `json:"target_alias"`
	Alias       string    `json:"alias"`
	Status      string    `json:"status"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Severity    string    `json:"severity"`
	Timestamp   time.Time `json:"timestamp"`
	To          string    `json:"to"`
	QueuedAt    time.Time `json:"queued_at"`
}

func newJob(alert *domain.MappedAlert, to string, now time.Time) *Job {
	title := alert.Title
	if title == "" {
		title = alert.Alias
	}
	return &Job{
		AlertID:     alert.ID,
		TargetAlias: alert.TargetAlias,
		Alias:       alert.Alias,
		Status:      alert.Status,
		Title:       title,
		Description: alert.Description,
		Severity:    alert.Severity,
		Timestamp:   alert.Timestamp,
		To:          to,
		QueuedAt:    now,
	}
}

func encodeJob(job *Job) ([]byte, error) {
	return json.Marshal(job)
}

func decodeJob(data []byte) (*Job, error) {
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to decode notification job: %w", err)
	}
	return &job, nil
}

// Email is a rendered message ready to send.
type Email struct {
	From    string
	To      []string
	Subject string
	Text    string
	HTML    string
}

var bodyTemplate = template.Must(template.New("alert").Parse(
	`{{ if eq .Status "resolved" }}<p>Resolved: <b>{{ .Title }}</b></p>
{{ else }}<p>{{ if eq .Severity "warning" }}Warning{{ else }}Alert{{ end }}: <b>{{ .Title }}</b></p>
{{ end }}<p>Target: <b>{{ .TargetAlias }}</b></p>
<p>Time: {{ .Timestamp.UTC.Format "2006-01-02 15:04:05" }} UTC</p>
{{ with .Description }}<p>Description:<br/>{{ . }}</p>
{{ end }}`))

// Render builds the email for a job.
func Render(job *Job, from string) (*Email, error) {
	var html bytes.Buffer
	if err := bodyTemplate.Execute(&html, job); err != nil {
		return nil, fmt.Errorf("failed to render alert email: %w", err)
	}

	prefix := "Alert"
	if job.Status == "resolved" {
		prefix = "Resolved"
	}

	text := fmt.Sprintf("%s: %s\nTarget: %s\nTime: %s UTC\n",
		prefix, job.Title, job.TargetAlias, job.Timestamp.UTC().Format("2006-01-02 15:04:05"))
	if job.Description != "" {
		text += "Description:\n" + job.Description + "\n"
	}

	return &Email{
		From:    from,
		To:      []string{job.To},
		Subject: fmt.Sprintf("%s: %s %s", prefix, job.TargetAlias, job.Title),
		Text:    text,
		HTML:    html.String(),
	}, nil
}
