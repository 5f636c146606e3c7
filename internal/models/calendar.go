package models

import (
	"fmt"
	"strings"
	"time"
)

// EventKind distinguishes regular events from absences.
type EventKind string

const (
	KindEvent   EventKind = "event"
	KindAbsence EventKind = "absence"
)

// ParseEventKind maps stored or submitted text to a kind. Empty means event.
func ParseEventKind(s string) (EventKind, error) {
	switch EventKind(strings.ToLower(strings.TrimSpace(s))) {
	case "", KindEvent:
		return KindEvent, nil
	case KindAbsence:
		return KindAbsence, nil
	default:
		return "", fmt.Errorf("%w: unknown event type %q", ErrValidation, s)
	}
}

// CalendarEvent is a stored series row. Start and end are kept as stored text
// so that a single bad row can be reported without failing the whole listing.
type CalendarEvent struct {
	ID               int64     `json:"id"`
	OwnerID          int64     `json:"owner_id"`
	OwnerName        string    `json:"owner_name"`
	OwnerColor       string    `json:"owner_color,omitempty"`
	Title            string    `json:"title"`
	Kind             EventKind `json:"type"`
	StartAt          string    `json:"start_at"`
	EndAt            string    `json:"end_at"`
	AllDay           bool      `json:"all_day"`
	Color            string    `json:"color,omitempty"`
	Notes            string    `json:"notes,omitempty"`
	RecIntervalWeeks int       `json:"rec_interval_weeks"`
	RecWeekdays      string    `json:"rec_weekdays,omitempty"`
	RecUntil         string    `json:"rec_until,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// IsRecurring reports whether the row describes a weekly series.
func (e *CalendarEvent) IsRecurring() bool {
	return e.RecIntervalWeeks > 0 && strings.TrimSpace(e.RecWeekdays) != ""
}

// CalendarOverride replaces individual fields of one instance of a series.
// Nil fields keep the series value.
type CalendarOverride struct {
	ID       int64   `json:"id"`
	EventID  int64   `json:"event_id"`
	InstDate string  `json:"inst_date"`
	StartAt  *string `json:"start_at"`
	EndAt    *string `json:"end_at"`
	AllDay   *bool   `json:"all_day"`
	Title    *string `json:"title"`
	Notes    *string `json:"notes"`
}

// CalendarException suppresses one instance of a series.
type CalendarException struct {
	EventID  int64  `json:"event_id"`
	InstDate string `json:"inst_date"`
}
