package calendar

import (
	"fmt"
	"sort"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"mcportal/internal/models"
)

const icsStamp = "20060102T150405Z"

var rruleDays = map[time.Weekday]rrule.Weekday{
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
	time.Sunday:    rrule.SU,
}

// RecurrenceRule renders the weekly rule of s as an RRULE value.
// Returns "" for single events.
func RecurrenceRule(s Series) (string, error) {
	if !s.Recurring() {
		return "", nil
	}
	opt := rrule.ROption{
		Freq:     rrule.WEEKLY,
		Interval: s.IntervalWeeks,
		Wkst:     rrule.MO,
	}
	for _, d := range s.Weekdays.Days() {
		opt.Byweekday = append(opt.Byweekday, rruleDays[d])
	}
	if s.Until != nil {
		y, m, d := s.Until.Date()
		opt.Until = time.Date(y, m, d, 23, 59, 59, 0, s.Start.Location()).UTC()
	}
	if _, err := rrule.NewRRule(opt); err != nil {
		return "", fmt.Errorf("series %d rule: %w", s.ID, err)
	}
	return opt.RRuleString(), nil
}

// ExportEntry bundles a series with its per-instance edits for export.
type ExportEntry struct {
	Series     Series
	Overrides  map[string]*models.CalendarOverride
	Exceptions map[string]bool
}

// ExportICS renders all entries as an iCalendar document. Overrides become
// RECURRENCE-ID instances, exceptions become EXDATE values.
func ExportICS(entries []ExportEntry, domain string, now time.Time) (string, error) {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//mcportal//calendar//DE")

	for _, e := range entries {
		s := e.Series
		uid := fmt.Sprintf("series-%d@%s", s.ID, domain)

		ev := cal.AddEvent(uid)
		ev.SetDtStampTime(now)
		setTimes(ev, s.Start, s.End, s.AllDay)
		ev.SetSummary(s.Title)
		if s.Notes != "" {
			ev.SetDescription(s.Notes)
		}
		ev.AddProperty(ical.ComponentPropertyCategories, string(s.Kind))

		rule, err := RecurrenceRule(s)
		if err != nil {
			return "", err
		}
		if rule == "" {
			continue
		}
		ev.AddProperty(ical.ComponentPropertyRrule, rule)

		// DTSTART always counts as an instance in iCalendar, but the start
		// date is not an occurrence unless its weekday is listed.
		startDate := s.Start.Format(models.DateLayout)
		if !s.Weekdays.Has(s.Start.Weekday()) && !e.Exceptions[startDate] {
			addDateProperty(ev, ical.ComponentPropertyExdate, s, startDate)
		}
		for _, date := range sortedDates(e.Exceptions) {
			addDateProperty(ev, ical.ComponentPropertyExdate, s, date)
		}

		for _, date := range sortedDates(e.Overrides) {
			ov := e.Overrides[date]
			if e.Exceptions[date] {
				continue
			}
			day, err := time.ParseInLocation(models.DateLayout, date, s.Start.Location())
			if err != nil {
				continue
			}
			occ, err := s.instance(day, date, ov)
			if err != nil {
				continue
			}
			inst := cal.AddEvent(uid)
			inst.SetDtStampTime(now)
			addDateProperty(inst, ical.ComponentPropertyRecurrenceId, s, date)
			setTimes(inst, occ.Start, occ.End, occ.AllDay)
			inst.SetSummary(occ.Title)
			if occ.Notes != "" {
				inst.SetDescription(occ.Notes)
			}
		}
	}
	return cal.Serialize(), nil
}

func sortedDates[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for date := range m {
		out = append(out, date)
	}
	sort.Strings(out)
	return out
}

func setTimes(ev *ical.VEvent, start, end time.Time, allDay bool) {
	if allDay {
		ev.SetAllDayStartAt(start)
		ev.SetAllDayEndAt(end)
		return
	}
	ev.SetStartAt(start)
	ev.SetEndAt(end)
}

// addDateProperty writes the original instance start for date in the form
// matching the series DTSTART.
func addDateProperty(ev *ical.VEvent, prop ical.ComponentProperty, s Series, date string) {
	day, err := time.ParseInLocation(models.DateLayout, date, s.Start.Location())
	if err != nil {
		return
	}
	if s.AllDay {
		ev.AddProperty(prop, day.Format("20060102"), ical.WithValue(string(ical.ValueDataTypeDate)))
		return
	}
	y, m, d := day.Date()
	orig := time.Date(y, m, d, s.Start.Hour(), s.Start.Minute(), s.Start.Second(), 0, s.Start.Location())
	ev.AddProperty(prop, orig.UTC().Format(icsStamp))
}
