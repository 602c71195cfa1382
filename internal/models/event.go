package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Priority is the label used to rank events.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// ParsePriority returns the Priority for a label. An empty label means normal.
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PriorityNormal, nil
	case PriorityLow, PriorityNormal, PriorityHigh:
		return p, nil
	default:
		return "", fmt.Errorf("unknown priority %q (want low, normal or high)", s)
	}
}

// Rank orders priorities from low (1) to high (3). Unknown labels rank 0.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityNormal:
		return 2
	case PriorityHigh:
		return 3
	}
	return 0
}

// UnmarshalJSON accepts both string labels and bare numbers.
func (p *Priority) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*p = Priority(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("priority must be a string or number: %w", err)
	}
	*p = Priority(n.String())
	return nil
}

// Status tracks the lifecycle of an event.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusDone      Status = "done"
	StatusCanceled  Status = "canceled"
)

// ParseStatus returns the Status for a label. An empty label means scheduled.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case "":
		return StatusScheduled, nil
	case StatusScheduled, StatusDone, StatusCanceled:
		return st, nil
	default:
		return "", fmt.Errorf("unknown status %q (want scheduled, done or canceled)", s)
	}
}

// Event is a single calendar record as persisted in the JSON store.
type Event struct {
	ID          string   `json:"id,omitempty"`
	Title       string   `json:"title"`
	Time        string   `json:"time"` // ISO 8601, kept exactly as entered
	Category    string   `json:"category"`
	Priority    Priority `json:"priority"`
	DurationMin int      `json:"duration_min,omitempty"`
	Status      Status   `json:"status,omitempty"`
	Created     string   `json:"created,omitempty"`
}

// Start parses the event time, interpreting offset-less values in loc.
func (e Event) Start(loc *time.Location) (time.Time, error) {
	return ParseTime(e.Time, loc)
}

// End is Start plus the event duration.
func (e Event) End(loc *time.Location) (time.Time, error) {
	start, err := e.Start(loc)
	if err != nil {
		return time.Time{}, err
	}
	return start.Add(time.Duration(e.DurationMin) * time.Minute), nil
}

// Matches reports whether ref names this event by id or title.
func (e Event) Matches(ref string) bool {
	return (e.ID != "" && e.ID == ref) || e.Title == ref
}

// LocalLayout is the offset-less layout used for timestamps the store writes.
const LocalLayout = "2006-01-02T15:04:05"

// offsetLayouts cover the basic ±hhmm offset form RFC 3339 leaves out.
var offsetLayouts = []string{
	"2006-01-02T15:04:05.999999999-0700",
	"2006-01-02T15:04-0700",
}

var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
}

// ParseTime parses an ISO 8601 date and time. Values carrying a zone offset
// keep it; values without one are read in loc.
func ParseTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if loc == nil {
		loc = time.Local
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range offsetLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid ISO 8601 time %q (want e.g. 2024-06-01T09:00)", s)
}
