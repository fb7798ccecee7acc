package alerts

import (
	"encoding/json"
	"errors"
	"strings"

	"fiberops/core/store"
)

// rawAlert accepts the field spellings the supported monitoring vendors use.
// Parsing is lenient: unknown fields are ignored, aliases collapse onto one
// canonical value.
type rawAlert struct {
	Host     string `json:"host"`
	Hostname string `json:"hostname"`
	Device   string `json:"device"`

	Port      string `json:"port"`
	Interface string `json:"interface"`

	Category  string `json:"category"`
	AlertType string `json:"alert_type"`
	Trigger   string `json:"trigger"`

	Severity string `json:"severity"`
	Priority string `json:"priority"`

	Status string `json:"status"`
	State  string `json:"state"`
	Event  string `json:"event"`

	Message     string `json:"message"`
	Description string `json:"description"`

	EventUID string `json:"event_uid"`
	EventID  string `json:"event_id"`
}

// Alert is the normalized form every vendor payload reduces to.
type Alert struct {
	Hostname string
	Port     string
	Category string
	Severity store.Severity
	Clearing bool
	Message  string
	EventUID string
	DedupKey string
}

var errNoHostname = errors.New("alert has no hostname")

func first(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

// ParseAlert decodes a vendor payload and normalizes it. The dedup key is
// hostname|port|category with empty parts omitted.
func ParseAlert(body []byte) (*Alert, error) {
	var raw rawAlert
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	a := &Alert{
		Hostname: first(raw.Hostname, raw.Host, raw.Device),
		Port:     first(raw.Port, raw.Interface),
		Category: strings.ToLower(first(raw.Category, raw.AlertType, raw.Trigger)),
		Severity: NormalizeSeverity(first(raw.Severity, raw.Priority)),
		Clearing: isClearing(first(raw.Status, raw.State, raw.Event)),
		Message:  first(raw.Message, raw.Description),
		EventUID: first(raw.EventUID, raw.EventID),
	}
	if a.Hostname == "" {
		return nil, errNoHostname
	}
	var parts []string
	for _, p := range []string{a.Hostname, a.Port, a.Category} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	a.DedupKey = strings.Join(parts, "|")
	return a, nil
}

// NormalizeSeverity maps vendor severity words onto the closed P1..P4 scale.
// Anything unrecognized lands on P4.
func NormalizeSeverity(raw string) store.Severity {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "critical", "disaster", "high", "p1":
		return store.SeverityP1
	case "major", "average", "p2":
		return store.SeverityP2
	case "minor", "warning", "warn", "p3":
		return store.SeverityP3
	default:
		return store.SeverityP4
	}
}

func isClearing(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "ok", "clear", "cleared", "resolved", "up", "recovery":
		return true
	default:
		return false
	}
}
