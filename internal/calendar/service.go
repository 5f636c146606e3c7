package calendar

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mcportal/internal/access"
	"mcportal/internal/models"
)

// Palette holds the fallback owner colors, picked by user id.
var Palette = []string{
	"#3b82f6", "#10b981", "#f59e0b", "#ef4444", "#8b5cf6", "#14b8a6",
	"#eab308", "#f43f5e", "#22c55e", "#0ea5e9", "#a855f7", "#84cc16",
}

// PaletteColor returns the deterministic palette entry for uid.
func PaletteColor(uid int64) string {
	if uid < 0 {
		uid = -uid
	}
	return Palette[uid%int64(len(Palette))]
}

var ErrNotFound = errors.New("event not found")

// Repository is the storage the calendar service depends on.
type Repository interface {
	ListCalendarEvents(ctx context.Context) ([]models.CalendarEvent, error)
	ListCalendarOverrides(ctx context.Context) ([]models.CalendarOverride, error)
	ListCalendarExceptions(ctx context.Context) ([]models.CalendarException, error)
	GetCalendarEvent(ctx context.Context, id int64) (*models.CalendarEvent, error)
	GetCalendarOverride(ctx context.Context, eventID int64, date string) (*models.CalendarOverride, error)
	CreateCalendarEvent(ctx context.Context, ev *models.CalendarEvent) (int64, error)
	UpdateCalendarEvent(ctx context.Context, ev *models.CalendarEvent) error
	DeleteCalendarEvent(ctx context.Context, id int64) error
	UpsertCalendarOverride(ctx context.Context, ov *models.CalendarOverride) error
	AddCalendarException(ctx context.Context, eventID int64, date string) error
	GetUserCalendarColor(ctx context.Context, userID int64) (string, error)
	SetUserCalendarColor(ctx context.Context, userID int64, color string) error
}

// Input is a create or update request from the calendar UI.
type Input struct {
	Title            string   `json:"title"`
	Type             string   `json:"type"`
	AllDay           bool     `json:"all_day"`
	DateStart        string   `json:"date_start"`
	TimeStart        string   `json:"time_start"`
	DateEnd          string   `json:"date_end"`
	TimeEnd          string   `json:"time_end"`
	Notes            string   `json:"notes"`
	RecIntervalWeeks int      `json:"rec_interval_weeks"`
	RecWeekdays      []string `json:"rec_weekdays"`
	RecUntil         string   `json:"rec_until"`
}

// Entry is an occurrence as seen by a particular viewer.
type Entry struct {
	Occurrence
	CanEdit bool
}

// Detail is the response of Get.
type Detail struct {
	Event        *models.CalendarEvent    `json:"event"`
	InstanceDate string                   `json:"inst_date,omitempty"`
	Override     *models.CalendarOverride `json:"override"`
	OwnerCanEdit bool                     `json:"owner_can_edit"`
	OwnerColor   string                   `json:"owner_color"`
}

// Service implements the admin calendar.
type Service struct {
	repo   Repository
	loc    *time.Location
	logger zerolog.Logger
}

// NewService creates a calendar service reading stored times in loc.
func NewService(repo Repository, loc *time.Location, logger zerolog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		repo:   repo,
		loc:    loc,
		logger: logger.With().Str("component", "calendar").Logger(),
	}
}

// Location returns the zone stored times are read in.
func (s *Service) Location() *time.Location {
	return s.loc
}

// UserColor returns the stored color of uid, assigning and persisting a
// palette color on first use.
func (s *Service) UserColor(ctx context.Context, uid int64) (string, error) {
	c, err := s.repo.GetUserCalendarColor(ctx, uid)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}
	if c != "" {
		return c, nil
	}
	pick := PaletteColor(uid)
	if err := s.repo.SetUserCalendarColor(ctx, uid, pick); err != nil {
		s.logger.Warn().Err(err).Int64("user_id", uid).Msg("persist calendar color")
	}
	return pick, nil
}

// List expands every series into the window. Rows or instances with bad
// dates are logged and left out.
func (s *Service) List(ctx context.Context, viewerID int64, w Window) ([]Entry, error) {
	events, err := s.repo.ListCalendarEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	overrides, exceptions, err := s.loadEdits(ctx)
	if err != nil {
		return nil, err
	}

	colors := make(map[int64]string)
	out := make([]Entry, 0, len(events))
	for i := range events {
		ev := &events[i]
		series, err := SeriesFromEvent(ev, s.loc)
		if err != nil {
			s.logger.Error().Err(err).Int64("event_id", ev.ID).Msg("skip calendar series")
			continue
		}
		if series.Color == "" {
			c, ok := colors[ev.OwnerID]
			if !ok {
				if c, err = s.UserColor(ctx, ev.OwnerID); err != nil {
					return nil, err
				}
				colors[ev.OwnerID] = c
			}
			series.Color = c
		}

		occs, errs := Expand(series, w, overrides[ev.ID], exceptions[ev.ID])
		for _, e := range errs {
			s.logger.Error().Err(e).Int64("event_id", ev.ID).Msg("skip calendar occurrence")
		}
		for _, o := range occs {
			out = append(out, Entry{Occurrence: o, CanEdit: o.OwnerID == viewerID})
		}
	}
	return out, nil
}

func (s *Service) loadEdits(ctx context.Context) (map[int64]map[string]*models.CalendarOverride, map[int64]map[string]bool, error) {
	ovs, err := s.repo.ListCalendarOverrides(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list overrides: %w", err)
	}
	exs, err := s.repo.ListCalendarExceptions(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list exceptions: %w", err)
	}
	overrides := make(map[int64]map[string]*models.CalendarOverride)
	for i := range ovs {
		o := &ovs[i]
		if overrides[o.EventID] == nil {
			overrides[o.EventID] = make(map[string]*models.CalendarOverride)
		}
		overrides[o.EventID][o.InstDate] = o
	}
	exceptions := make(map[int64]map[string]bool)
	for _, x := range exs {
		if exceptions[x.EventID] == nil {
			exceptions[x.EventID] = make(map[string]bool)
		}
		exceptions[x.EventID][x.InstDate] = true
	}
	return overrides, exceptions, nil
}

// Get loads a series or one of its instances.
func (s *Service) Get(ctx context.Context, viewerID int64, id string) (*Detail, error) {
	seriesID, date, err := ParseInstanceID(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrValidation, err)
	}
	ev, err := s.load(ctx, seriesID)
	if err != nil {
		return nil, err
	}
	d := &Detail{Event: ev, InstanceDate: date, OwnerCanEdit: ev.OwnerID == viewerID}
	if date != "" {
		ov, err := s.repo.GetCalendarOverride(ctx, seriesID, date)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		d.Override = ov
	}
	if d.OwnerColor, err = s.UserColor(ctx, ev.OwnerID); err != nil {
		return nil, err
	}
	return d, nil
}

// Create stores a new series owned by ownerID.
func (s *Service) Create(ctx context.Context, ownerID int64, in Input) (int64, error) {
	ev, err := s.buildEvent(in)
	if err != nil {
		return 0, err
	}
	ev.OwnerID = ownerID
	id, err := s.repo.CreateCalendarEvent(ctx, ev)
	if err != nil {
		return 0, fmt.Errorf("create event: %w", err)
	}
	s.logger.Info().Int64("event_id", id).Int64("owner_id", ownerID).Msg("calendar event created")
	return id, nil
}

// Update edits a whole series, or stores an override when id names an
// instance and seriesScope is false. Only the owner may edit.
func (s *Service) Update(ctx context.Context, actorID int64, id string, in Input, seriesScope bool) error {
	seriesID, date, err := ParseInstanceID(id)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrValidation, err)
	}
	current, err := s.load(ctx, seriesID)
	if err != nil {
		return err
	}
	if current.OwnerID != actorID {
		return &access.AccessDeniedError{Reason: "Nur eigene Termine bearbeitbar."}
	}

	ev, err := s.buildEvent(in)
	if err != nil {
		return err
	}

	if date != "" && !seriesScope {
		allDay := ev.AllDay
		ov := &models.CalendarOverride{
			EventID:  seriesID,
			InstDate: date,
			StartAt:  &ev.StartAt,
			EndAt:    &ev.EndAt,
			AllDay:   &allDay,
			Title:    &ev.Title,
			Notes:    &ev.Notes,
		}
		if err := s.repo.UpsertCalendarOverride(ctx, ov); err != nil {
			return fmt.Errorf("save override: %w", err)
		}
		return nil
	}

	ev.ID = seriesID
	ev.OwnerID = current.OwnerID
	ev.Color = current.Color
	if err := s.repo.UpdateCalendarEvent(ctx, ev); err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	return nil
}

// Delete removes a series, or suppresses a single instance of a recurring
// series when id names an instance and seriesScope is false.
func (s *Service) Delete(ctx context.Context, actorID int64, id string, seriesScope bool) error {
	seriesID, date, err := ParseInstanceID(id)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrValidation, err)
	}
	current, err := s.load(ctx, seriesID)
	if err != nil {
		return err
	}
	if current.OwnerID != actorID {
		return &access.AccessDeniedError{Reason: "Nur eigene Termine löschbar."}
	}

	if date != "" && !seriesScope && current.RecIntervalWeeks > 0 {
		return s.repo.AddCalendarException(ctx, seriesID, date)
	}
	if err := s.repo.DeleteCalendarEvent(ctx, seriesID); err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}

// Export renders all series as iCalendar.
func (s *Service) Export(ctx context.Context, domain string, now time.Time) (string, error) {
	events, err := s.repo.ListCalendarEvents(ctx)
	if err != nil {
		return "", fmt.Errorf("list events: %w", err)
	}
	overrides, exceptions, err := s.loadEdits(ctx)
	if err != nil {
		return "", err
	}
	entries := make([]ExportEntry, 0, len(events))
	for i := range events {
		series, err := SeriesFromEvent(&events[i], s.loc)
		if err != nil {
			s.logger.Error().Err(err).Int64("event_id", events[i].ID).Msg("skip series in export")
			continue
		}
		entries = append(entries, ExportEntry{
			Series:     series,
			Overrides:  overrides[series.ID],
			Exceptions: exceptions[series.ID],
		})
	}
	return ExportICS(entries, domain, now)
}

func (s *Service) load(ctx context.Context, id int64) (*models.CalendarEvent, error) {
	ev, err := s.repo.GetCalendarEvent(ctx, id)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && ev == nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load event %d: %w", id, err)
	}
	return ev, nil
}

// buildEvent validates input and renders the stored start/end strings.
func (s *Service) buildEvent(in Input) (*models.CalendarEvent, error) {
	title := strings.TrimSpace(in.Title)
	dateStart := strings.TrimSpace(in.DateStart)
	if title == "" || dateStart == "" {
		return nil, fmt.Errorf("%w: Titel/Startdatum fehlt", models.ErrValidation)
	}
	kind, err := models.ParseEventKind(in.Type)
	if err != nil {
		return nil, err
	}
	day, err := time.ParseInLocation(models.DateLayout, dateStart, s.loc)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid date_start %q", models.ErrValidation, dateStart)
	}

	ev := &models.CalendarEvent{
		Title:  title,
		Kind:   kind,
		AllDay: in.AllDay,
		Notes:  in.Notes,
	}

	if in.AllDay {
		ev.StartAt = day.Format(models.TimeLayout)
		ev.EndAt = day.AddDate(0, 0, 1).Format(models.TimeLayout)
	} else {
		start, err := combine(dateStart, in.TimeStart, s.loc)
		if err != nil {
			return nil, err
		}
		dateEnd := strings.TrimSpace(in.DateEnd)
		if dateEnd == "" {
			dateEnd = dateStart
		}
		end, err := combine(dateEnd, in.TimeEnd, s.loc)
		if err != nil {
			return nil, err
		}
		ev.StartAt = start.Format(models.TimeLayout)
		ev.EndAt = end.Format(models.TimeLayout)
	}

	if in.RecIntervalWeeks > 0 {
		ev.RecIntervalWeeks = in.RecIntervalWeeks
		ev.RecWeekdays = WeekdaysFromCodes(in.RecWeekdays).String()
		if u := strings.TrimSpace(in.RecUntil); u != "" {
			if _, err := time.Parse(models.DateLayout, u); err != nil {
				return nil, fmt.Errorf("%w: invalid rec_until %q", models.ErrValidation, u)
			}
			ev.RecUntil = u
		}
	}
	return ev, nil
}

func combine(date, clock string, loc *time.Location) (time.Time, error) {
	clock = strings.TrimSpace(clock)
	if clock == "" {
		clock = "00:00"
	}
	t, err := time.ParseInLocation("2006-01-02 15:04", strings.TrimSpace(date)+" "+clock, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date/time %q %q", models.ErrValidation, date, clock)
	}
	return t, nil
}
