package api

import (
	"net/http"
	"strings"
	"time"

	"mcportal/internal/access"
	"mcportal/internal/calendar"
	"mcportal/internal/metrics"
	"mcportal/internal/models"
)

// CalendarEvent is an occurrence in the shape the calendar widget expects.
type CalendarEvent struct {
	ID              string        `json:"id"`
	Title           string        `json:"title"`
	Start           string        `json:"start"`
	End             string        `json:"end"`
	AllDay          bool          `json:"allDay"`
	BackgroundColor string        `json:"backgroundColor"`
	BorderColor     string        `json:"borderColor"`
	ExtendedProps   EventMetadata `json:"extendedProps"`
}

// EventMetadata carries the portal specific fields of an occurrence.
type EventMetadata struct {
	Type             models.EventKind `json:"type"`
	Notes            string           `json:"notes"`
	OwnerID          int64            `json:"owner_id"`
	OwnerName        string           `json:"owner_name"`
	CanEdit          bool             `json:"can_edit"`
	SeriesID         int64            `json:"series_id"`
	RecIntervalWeeks int              `json:"rec_interval_weeks"`
	RecWeekdays      []string         `json:"rec_weekdays"`
	RecDesc          string           `json:"rec_desc"`
	InstanceDate     *string          `json:"inst_date"`
}

func toCalendarEvent(e calendar.Entry) CalendarEvent {
	var inst *string
	if e.InstanceDate != "" {
		d := e.InstanceDate
		inst = &d
	}
	weekdays := e.RecWeekdays
	if weekdays == nil {
		weekdays = []string{}
	}
	return CalendarEvent{
		ID:              e.ID,
		Title:           e.Title,
		Start:           e.Start.Format(time.RFC3339),
		End:             e.End.Format(time.RFC3339),
		AllDay:          e.AllDay,
		BackgroundColor: e.Color,
		BorderColor:     e.Color,
		ExtendedProps: EventMetadata{
			Type:             e.Kind,
			Notes:            e.Notes,
			OwnerID:          e.OwnerID,
			OwnerName:        e.OwnerName,
			CanEdit:          e.CanEdit,
			SeriesID:         e.SeriesID,
			RecIntervalWeeks: e.RecIntervalWeeks,
			RecWeekdays:      weekdays,
			RecDesc:          e.RecDesc,
			InstanceDate:     inst,
		},
	}
}

// parseBound accepts RFC 3339 timestamps or plain dates in loc.
func parseBound(raw string, loc *time.Location) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, true
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04:05", raw, loc); err == nil {
		return t, true
	}
	if t, err := time.ParseInLocation(models.DateLayout, raw, loc); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// handleCalendarList expands all events inside the visible range.
// GET /api/admin/calendar/events?start=&end=
func (s *HTTPServer) handleCalendarList(w http.ResponseWriter, r *http.Request, actor access.Actor) {
	metrics.IncHTTP("calendar_list")

	loc := s.Calendar.Location()
	start, okStart := parseBound(r.URL.Query().Get("start"), loc)
	end, okEnd := parseBound(r.URL.Query().Get("end"), loc)
	if !okStart || !okEnd || !end.After(start) {
		writeError(w, http.StatusBadRequest, "Ungültiger Zeitraum.")
		return
	}

	entries, err := s.Calendar.List(r.Context(), actor.UserID, calendar.Window{Start: start, End: end})
	if err != nil {
		s.fail(w, err)
		return
	}
	out := make([]CalendarEvent, 0, len(entries))
	for _, e := range entries {
		out = append(out, toCalendarEvent(e))
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /api/admin/calendar/events/{id}
func (s *HTTPServer) handleCalendarGet(w http.ResponseWriter, r *http.Request, actor access.Actor) {
	metrics.IncHTTP("calendar_get")

	d, err := s.Calendar.Get(r.Context(), actor.UserID, r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "event": d})
}

// POST /api/admin/calendar/events
func (s *HTTPServer) handleCalendarCreate(w http.ResponseWriter, r *http.Request, actor access.Actor) {
	metrics.IncHTTP("calendar_create")

	var in calendar.Input
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Ungültige Anfrage.")
		return
	}
	id, err := s.Calendar.Create(r.Context(), actor.UserID, in)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "id": id})
}

// seriesScope reports whether a change targets the whole series rather than
// the single instance named in the path.
func seriesScope(r *http.Request) bool {
	return r.URL.Query().Get("scope") == "series"
}

// PUT /api/admin/calendar/events/{id}?scope=series|instance
func (s *HTTPServer) handleCalendarUpdate(w http.ResponseWriter, r *http.Request, actor access.Actor) {
	metrics.IncHTTP("calendar_update")

	var in calendar.Input
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Ungültige Anfrage.")
		return
	}
	if err := s.Calendar.Update(r.Context(), actor.UserID, r.PathValue("id"), in, seriesScope(r)); err != nil {
		s.fail(w, err)
		return
	}
	writeOK(w)
}

// DELETE /api/admin/calendar/events/{id}?scope=series|instance
func (s *HTTPServer) handleCalendarDelete(w http.ResponseWriter, r *http.Request, actor access.Actor) {
	metrics.IncHTTP("calendar_delete")

	if err := s.Calendar.Delete(r.Context(), actor.UserID, r.PathValue("id"), seriesScope(r)); err != nil {
		s.fail(w, err)
		return
	}
	writeOK(w)
}

// GET /api/admin/calendar/export.ics
func (s *HTTPServer) handleCalendarExport(w http.ResponseWriter, r *http.Request, _ access.Actor) {
	metrics.IncHTTP("calendar_export")

	body, err := s.Calendar.Export(r.Context(), s.icsDomain(), s.now())
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="kalender.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}
