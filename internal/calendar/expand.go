// Package calendar expands weekly recurring series into concrete occurrences
// and serves the admin calendar.
package calendar

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"mcportal/internal/models"
)

var ErrBadDate = errors.New("malformed date")

// storedLayouts are the accepted encodings of stored or submitted date-times.
var storedLayouts = []string{
	models.TimeLayout,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	models.DateLayout,
}

// ParseStored parses a stored date-time. Values without offset are read in loc.
func ParseStored(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrBadDate)
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(loc), nil
	}
	for _, layout := range storedLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrBadDate, s)
}

// Series is a parsed calendar_events row.
type Series struct {
	ID            int64
	OwnerID       int64
	OwnerName     string
	Title         string
	Kind          models.EventKind
	Start         time.Time
	End           time.Time
	AllDay        bool
	Color         string
	Notes         string
	IntervalWeeks int
	Weekdays      WeekdaySet
	Until         *time.Time
}

// SeriesFromEvent parses the stored row. Dates are interpreted in loc.
func SeriesFromEvent(ev *models.CalendarEvent, loc *time.Location) (Series, error) {
	start, err := ParseStored(ev.StartAt, loc)
	if err != nil {
		return Series{}, fmt.Errorf("series %d start: %w", ev.ID, err)
	}
	end, err := ParseStored(ev.EndAt, loc)
	if err != nil {
		return Series{}, fmt.Errorf("series %d end: %w", ev.ID, err)
	}
	s := Series{
		ID:            ev.ID,
		OwnerID:       ev.OwnerID,
		OwnerName:     ev.OwnerName,
		Title:         ev.Title,
		Kind:          ev.Kind,
		Start:         start,
		End:           end,
		AllDay:        ev.AllDay,
		Color:         ev.Color,
		Notes:         ev.Notes,
		IntervalWeeks: ev.RecIntervalWeeks,
		Weekdays:      ParseWeekdays(ev.RecWeekdays),
	}
	if u := strings.TrimSpace(ev.RecUntil); u != "" {
		until, err := time.ParseInLocation(models.DateLayout, u, loc)
		if err != nil {
			return Series{}, fmt.Errorf("series %d until: %w: %q", ev.ID, ErrBadDate, u)
		}
		s.Until = &until
	}
	return s, nil
}

// Recurring reports whether the series repeats. An interval without weekdays
// is treated as a single event.
func (s Series) Recurring() bool {
	return s.IntervalWeeks > 0 && !s.Weekdays.Empty()
}

// Describe renders the German recurrence summary, empty for single events.
func (s Series) Describe() string {
	if s.IntervalWeeks <= 0 {
		return ""
	}
	return fmt.Sprintf("alle %d Woche(n) am %s", s.IntervalWeeks, strings.Join(s.Weekdays.Codes(), ", "))
}

// Window is the half-open range [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) intersects(start, end time.Time) bool {
	return end.After(w.Start) && start.Before(w.End)
}

// Occurrence is one concrete instance of a series inside a window.
type Occurrence struct {
	ID               string
	SeriesID         int64
	InstanceDate     string
	Title            string
	Notes            string
	Start            time.Time
	End              time.Time
	AllDay           bool
	Color            string
	Kind             models.EventKind
	OwnerID          int64
	OwnerName        string
	RecIntervalWeeks int
	RecWeekdays      []string
	RecDesc          string
}

// OccurrenceError reports a single instance that could not be built.
type OccurrenceError struct {
	SeriesID int64
	Date     string
	Err      error
}

func (e *OccurrenceError) Error() string {
	return fmt.Sprintf("series %d on %s: %v", e.SeriesID, e.Date, e.Err)
}

func (e *OccurrenceError) Unwrap() error {
	return e.Err
}

// InstanceID builds the client-facing id of a recurring instance.
func InstanceID(seriesID int64, date string) string {
	return fmt.Sprintf("e%d@%s", seriesID, date)
}

// ParseInstanceID accepts a bare series id or an instance id.
// date is empty for bare ids.
func ParseInstanceID(id string) (seriesID int64, date string, err error) {
	id = strings.TrimSpace(id)
	if strings.HasPrefix(id, "e") {
		rest := id[1:]
		at := strings.IndexByte(rest, '@')
		if at <= 0 {
			return 0, "", fmt.Errorf("invalid instance id %q", id)
		}
		seriesID, err = strconv.ParseInt(rest[:at], 10, 64)
		if err != nil || seriesID <= 0 {
			return 0, "", fmt.Errorf("invalid instance id %q", id)
		}
		date = rest[at+1:]
		if _, err := time.Parse(models.DateLayout, date); err != nil {
			return 0, "", fmt.Errorf("invalid instance date %q", date)
		}
		return seriesID, date, nil
	}
	seriesID, err = strconv.ParseInt(id, 10, 64)
	if err != nil || seriesID <= 0 {
		return 0, "", fmt.Errorf("invalid event id %q", id)
	}
	return seriesID, "", nil
}

// Expand lists the occurrences of s that intersect w. Overrides and
// exceptions are keyed by instance date (YYYY-MM-DD). Instances that cannot be
// built are returned as *OccurrenceError and skipped; the rest still expand.
func Expand(s Series, w Window, overrides map[string]*models.CalendarOverride, exceptions map[string]bool) ([]Occurrence, []error) {
	if !s.Recurring() {
		if !w.intersects(s.Start, s.End) {
			return nil, nil
		}
		occ := s.base(strconv.FormatInt(s.ID, 10), "")
		occ.Start, occ.End, occ.AllDay = s.Start, s.End, s.AllDay
		return []Occurrence{occ}, nil
	}

	loc := s.Start.Location()
	first := midnight(s.Start)
	anchor := mondayOf(first)

	var until time.Time
	if s.Until != nil {
		y, m, d := s.Until.Date()
		until = time.Date(y, m, d, 23, 59, 59, 0, loc)
	}

	day := midnight(w.Start.In(loc))
	if day.Before(first) {
		day = first
	}
	end := w.End.In(loc)

	var (
		out  []Occurrence
		errs []error
	)
	for ; day.Before(end); day = day.AddDate(0, 0, 1) {
		if s.Until != nil && day.After(until) {
			break
		}
		if !s.Weekdays.Has(day.Weekday()) {
			continue
		}
		if weeksBetween(anchor, mondayOf(day))%s.IntervalWeeks != 0 {
			continue
		}
		key := day.Format(models.DateLayout)
		if exceptions[key] {
			continue
		}
		occ, err := s.instance(day, key, overrides[key])
		if err != nil {
			errs = append(errs, &OccurrenceError{SeriesID: s.ID, Date: key, Err: err})
			continue
		}
		if w.intersects(occ.Start, occ.End) {
			out = append(out, occ)
		}
	}
	return out, errs
}

func (s Series) base(id, date string) Occurrence {
	return Occurrence{
		ID:               id,
		SeriesID:         s.ID,
		InstanceDate:     date,
		Title:            s.Title,
		Notes:            s.Notes,
		Color:            s.Color,
		Kind:             s.Kind,
		OwnerID:          s.OwnerID,
		OwnerName:        s.OwnerName,
		RecIntervalWeeks: s.IntervalWeeks,
		RecWeekdays:      s.Weekdays.Codes(),
		RecDesc:          s.Describe(),
	}
}

// instance builds the occurrence on day from the template times and applies
// the override, if any.
func (s Series) instance(day time.Time, key string, ov *models.CalendarOverride) (Occurrence, error) {
	loc := day.Location()
	y, m, d := day.Date()
	start := time.Date(y, m, d, s.Start.Hour(), s.Start.Minute(), s.Start.Second(), 0, loc)

	var end time.Time
	if s.AllDay {
		end = start.AddDate(0, 0, 1)
	} else {
		// Templates ending on a later day keep that day span.
		span := int(midnight(s.End).Sub(midnight(s.Start)).Hours()+12) / 24
		end = time.Date(y, m, d+span, s.End.Hour(), s.End.Minute(), s.End.Second(), 0, loc)
	}

	occ := s.base(InstanceID(s.ID, key), key)
	occ.Start, occ.End, occ.AllDay = start, end, s.AllDay

	if ov == nil {
		return occ, nil
	}
	if ov.StartAt != nil && strings.TrimSpace(*ov.StartAt) != "" {
		t, err := ParseStored(*ov.StartAt, loc)
		if err != nil {
			return Occurrence{}, fmt.Errorf("override start: %w", err)
		}
		occ.Start = t
	}
	if ov.EndAt != nil && strings.TrimSpace(*ov.EndAt) != "" {
		t, err := ParseStored(*ov.EndAt, loc)
		if err != nil {
			return Occurrence{}, fmt.Errorf("override end: %w", err)
		}
		occ.End = t
	}
	if ov.AllDay != nil {
		occ.AllDay = *ov.AllDay
	}
	if ov.Title != nil {
		occ.Title = *ov.Title
	}
	if ov.Notes != nil {
		occ.Notes = *ov.Notes
	}
	return occ, nil
}
