package calendar

import (
	"strings"
	"time"
)

// WeekdaySet is a bitmask of weekdays indexed by time.Weekday.
type WeekdaySet uint8

// weekdayCodes lists two-letter codes in Monday-first order.
var weekdayCodes = []struct {
	code string
	day  time.Weekday
}{
	{"MO", time.Monday},
	{"TU", time.Tuesday},
	{"WE", time.Wednesday},
	{"TH", time.Thursday},
	{"FR", time.Friday},
	{"SA", time.Saturday},
	{"SU", time.Sunday},
}

// ParseWeekdays reads a comma separated list of codes (MO..SU), case-insensitive.
// Unknown codes are dropped.
func ParseWeekdays(csv string) WeekdaySet {
	return WeekdaysFromCodes(strings.Split(csv, ","))
}

// WeekdaysFromCodes builds a set from individual codes.
func WeekdaysFromCodes(codes []string) WeekdaySet {
	var set WeekdaySet
	for _, raw := range codes {
		code := strings.ToUpper(strings.TrimSpace(raw))
		for _, wc := range weekdayCodes {
			if wc.code == code {
				set = set.With(wc.day)
			}
		}
	}
	return set
}

// With returns the set including d.
func (s WeekdaySet) With(d time.Weekday) WeekdaySet {
	return s | 1<<uint(d)
}

// Has reports whether d is in the set.
func (s WeekdaySet) Has(d time.Weekday) bool {
	return s&(1<<uint(d)) != 0
}

// Empty reports whether no weekday is set.
func (s WeekdaySet) Empty() bool {
	return s == 0
}

// Codes returns the members in Monday-first order.
func (s WeekdaySet) Codes() []string {
	out := make([]string, 0, 7)
	for _, wc := range weekdayCodes {
		if s.Has(wc.day) {
			out = append(out, wc.code)
		}
	}
	return out
}

// Days returns the members as time.Weekday values in Monday-first order.
func (s WeekdaySet) Days() []time.Weekday {
	out := make([]time.Weekday, 0, 7)
	for _, wc := range weekdayCodes {
		if s.Has(wc.day) {
			out = append(out, wc.day)
		}
	}
	return out
}

// String renders the storage form, e.g. "MO,WE,FR".
func (s WeekdaySet) String() string {
	return strings.Join(s.Codes(), ",")
}

// mondayOf truncates t to 00:00 of the Monday of its week.
func mondayOf(t time.Time) time.Time {
	d := midnight(t)
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// weeksBetween counts whole weeks from Monday a to Monday b. Days are counted
// on the calendar so DST shifts do not lose a week.
func weeksBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	days := int(db.Sub(da).Hours() / 24)
	if days >= 0 {
		return days / 7
	}
	return -((-days + 6) / 7)
}
