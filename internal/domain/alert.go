package domain

import (
	"fmt"
	"time"
)

// AlertEvent is one ingested alert firing or resolution.
// Events are append-only and never mutated after creation.
type AlertEvent struct {
	// ID is assigned by the store on creation.
	ID int64 `json:"id"`

	// TargetAlias is the target the alert fired for.
	TargetAlias string `json:"target_alias"`

	// Alias is the alert name (Alertmanager's alertname label).
	Alias string `json:"alias"`

	// Timestamp is when the alert started firing.
	Timestamp time.Time `json:"timestamp"`

	// Value is the raw alert entry as received.
	Value map[string]any `json:"value"`
}

// AlertDelivery is the notification state of one alert for one receiver.
// The only transition is pending (Delivered=false) to delivered.
type AlertDelivery struct {
	ID         int64 `json:"id"`
	AlertID    int64 `json:"alert_id"`
	ReceiverID int64 `json:"receiver_id"`
	Delivered  bool  `json:"delivered"`
}

// MappedAlert is an alert event enriched with display metadata, taken from
// the catalog definition when one exists and from the payload otherwise.
type MappedAlert struct {
	ID               int64          `json:"id"`
	Status           string         `json:"status,omitempty"`
	TargetAlias      string         `json:"target_alias"`
	Alias            string         `json:"alias"`
	Value            map[string]any `json:"value"`
	Timestamp        time.Time      `json:"timestamp"`
	Title            string         `json:"title,omitempty"`
	Description      string         `json:"description,omitempty"`
	Severity         string         `json:"severity,omitempty"`
	SuggestedActions []string       `json:"suggested_actions"`
	RelatedViews     []string       `json:"related_views"`
}

// GroupedDelivery lists the receivers still pending for one alert.
type GroupedDelivery struct {
	MappedAlert
	Receivers []int64 `json:"receivers"`
}

// MapAlert derives display metadata for an event. def may be nil when the
// alert name is not in the catalog.
func MapAlert(event *AlertEvent, def *AlertDefinition) *MappedAlert {
	raw := RawAlert(event.Value)

	mapped := &MappedAlert{
		ID:               event.ID,
		Status:           raw.Status(),
		TargetAlias:      event.TargetAlias,
		Alias:            event.Alias,
		Value:            event.Value,
		Timestamp:        event.Timestamp,
		SuggestedActions: []string{},
		RelatedViews:     []string{},
	}

	if def != nil {
		mapped.Title = def.Title
		mapped.Description = def.Description
		mapped.Severity = def.Severity
		mapped.SuggestedActions = append(mapped.SuggestedActions, def.SuggestedActions...)
		mapped.RelatedViews = append(mapped.RelatedViews, def.RelatedViews...)
		if description := raw.Annotation("description"); description != "" {
			mapped.Description = description
		}
		return mapped
	}

	mapped.Title = raw.Annotation("title")
	mapped.Description = raw.Annotation("description")
	mapped.Severity = raw.Label("severity")
	return mapped
}

// AlertmanagerWebhook is the body Alertmanager posts to webhook receivers.
// Only the fields used for ingestion are decoded; alert entries are kept raw
// so they can be stored verbatim.
type AlertmanagerWebhook struct {
	Receiver string     `json:"receiver"`
	Status   string     `json:"status"`
	Alerts   []RawAlert `json:"alerts"`
}

// RawAlert is a single Alertmanager alert entry.
type RawAlert map[string]any

// Status returns the alert's status ("firing" or "resolved").
func (a RawAlert) Status() string {
	return stringValue(a["status"])
}

// Label returns a label value, or "" when absent.
func (a RawAlert) Label(name string) string {
	return nestedString(a["labels"], name)
}

// Annotation returns an annotation value, or "" when absent.
func (a RawAlert) Annotation(name string) string {
	return nestedString(a["annotations"], name)
}

// StartsAt parses the startsAt timestamp.
func (a RawAlert) StartsAt() (time.Time, error) {
	raw := stringValue(a["startsAt"])
	if raw == "" {
		return time.Time{}, fmt.Errorf("startsAt is missing")
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid startsAt %q: %w", raw, err)
	}
	return ts, nil
}

func nestedString(v any, key string) string {
	m, ok := v.(map[string]any)
	if !ok {
		return ""
	}
	return stringValue(m[key])
}

func stringValue(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		return fmt.Sprint(s)
	}
}
