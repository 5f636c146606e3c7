package calendar

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sort"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcportal/internal/access"
	"mcportal/internal/models"
)

type fakeRepo struct {
	nextID     int64
	events     map[int64]*models.CalendarEvent
	overrides  map[string]*models.CalendarOverride
	exceptions map[string]models.CalendarException
	colors     map[int64]string
	colorSets  int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		events:     make(map[int64]*models.CalendarEvent),
		overrides:  make(map[string]*models.CalendarOverride),
		exceptions: make(map[string]models.CalendarException),
		colors:     make(map[int64]string),
	}
}

func editKey(id int64, date string) string {
	return fmt.Sprintf("%d|%s", id, date)
}

func (f *fakeRepo) ListCalendarEvents(context.Context) ([]models.CalendarEvent, error) {
	ids := make([]int64, 0, len(f.events))
	for id := range f.events {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]models.CalendarEvent, 0, len(ids))
	for _, id := range ids {
		out = append(out, *f.events[id])
	}
	return out, nil
}

func (f *fakeRepo) ListCalendarOverrides(context.Context) ([]models.CalendarOverride, error) {
	out := make([]models.CalendarOverride, 0, len(f.overrides))
	for _, o := range f.overrides {
		out = append(out, *o)
	}
	return out, nil
}

func (f *fakeRepo) ListCalendarExceptions(context.Context) ([]models.CalendarException, error) {
	out := make([]models.CalendarException, 0, len(f.exceptions))
	for _, x := range f.exceptions {
		out = append(out, x)
	}
	return out, nil
}

func (f *fakeRepo) GetCalendarEvent(_ context.Context, id int64) (*models.CalendarEvent, error) {
	ev, ok := f.events[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *ev
	return &cp, nil
}

func (f *fakeRepo) GetCalendarOverride(_ context.Context, id int64, date string) (*models.CalendarOverride, error) {
	o, ok := f.overrides[editKey(id, date)]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return o, nil
}

func (f *fakeRepo) CreateCalendarEvent(_ context.Context, ev *models.CalendarEvent) (int64, error) {
	f.nextID++
	cp := *ev
	cp.ID = f.nextID
	f.events[cp.ID] = &cp
	return cp.ID, nil
}

func (f *fakeRepo) UpdateCalendarEvent(_ context.Context, ev *models.CalendarEvent) error {
	cp := *ev
	f.events[ev.ID] = &cp
	return nil
}

func (f *fakeRepo) DeleteCalendarEvent(_ context.Context, id int64) error {
	delete(f.events, id)
	return nil
}

func (f *fakeRepo) UpsertCalendarOverride(_ context.Context, ov *models.CalendarOverride) error {
	cp := *ov
	f.overrides[editKey(ov.EventID, ov.InstDate)] = &cp
	return nil
}

func (f *fakeRepo) AddCalendarException(_ context.Context, id int64, date string) error {
	f.exceptions[editKey(id, date)] = models.CalendarException{EventID: id, InstDate: date}
	return nil
}

func (f *fakeRepo) GetUserCalendarColor(_ context.Context, uid int64) (string, error) {
	return f.colors[uid], nil
}

func (f *fakeRepo) SetUserCalendarColor(_ context.Context, uid int64, color string) error {
	f.colorSets++
	f.colors[uid] = color
	return nil
}

func newTestService(repo Repository) *Service {
	return NewService(repo, time.UTC, zerolog.New(io.Discard))
}

func TestServiceCreateNormalizes(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	id, err := svc.Create(ctx, 1, Input{
		Title:            " Urlaub ",
		Type:             "absence",
		AllDay:           true,
		DateStart:        "2024-01-31",
		TimeStart:        "13:00",
		RecIntervalWeeks: 0,
		RecWeekdays:      []string{"mo"},
		RecUntil:         "2024-05-01",
	})
	require.NoError(t, err)

	ev := repo.events[id]
	assert.Equal(t, "Urlaub", ev.Title)
	assert.Equal(t, models.KindAbsence, ev.Kind)
	assert.Equal(t, "2024-01-31 00:00:00", ev.StartAt)
	assert.Equal(t, "2024-02-01 00:00:00", ev.EndAt)
	assert.Empty(t, ev.RecWeekdays, "interval 0 clears weekdays")
	assert.Empty(t, ev.RecUntil, "interval 0 clears until")

	id, err = svc.Create(ctx, 1, Input{
		Title:            "Bauabend",
		DateStart:        "2024-01-01",
		TimeStart:        "19:00",
		TimeEnd:          "22:30",
		RecIntervalWeeks: 1,
		RecWeekdays:      []string{"fr", "MO", "mo"},
	})
	require.NoError(t, err)
	ev = repo.events[id]
	assert.Equal(t, "2024-01-01 19:00:00", ev.StartAt)
	assert.Equal(t, "2024-01-01 22:30:00", ev.EndAt)
	assert.Equal(t, "MO,FR", ev.RecWeekdays)

	_, err = svc.Create(ctx, 1, Input{Title: "", DateStart: "2024-01-01"})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = svc.Create(ctx, 1, Input{Title: "x", DateStart: "2024-01-01", Type: "party"})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func seedSeries(t *testing.T, svc *Service, owner int64) int64 {
	t.Helper()
	id, err := svc.Create(context.Background(), owner, Input{
		Title:            "Teamrunde",
		DateStart:        "2024-01-01",
		TimeStart:        "10:00",
		TimeEnd:          "11:00",
		RecIntervalWeeks: 2,
		RecWeekdays:      []string{"MO"},
		RecUntil:         "2024-02-01",
	})
	require.NoError(t, err)
	return id
}

func TestServiceListUsesOwnerColorAndCanEdit(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	id := seedSeries(t, svc, 13)
	repo.events[id].OwnerName = "steve"

	entries, err := svc.List(ctx, 13, january())
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for _, e := range entries {
		assert.Equal(t, PaletteColor(13), e.Color)
		assert.True(t, e.CanEdit)
	}
	assert.Equal(t, 1, repo.colorSets, "palette pick is persisted once")

	entries, err = svc.List(ctx, 99, january())
	require.NoError(t, err)
	assert.False(t, entries[0].CanEdit)
}

func TestServiceListSkipsBrokenSeries(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	seedSeries(t, svc, 1)
	repo.events[99] = &models.CalendarEvent{ID: 99, OwnerID: 1, Title: "kaputt", StartAt: "??", EndAt: "??"}

	entries, err := svc.List(context.Background(), 1, january())
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestServiceUpdateInstanceStoresOverride(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	id := seedSeries(t, svc, 1)

	err := svc.Update(ctx, 1, InstanceID(id, "2024-01-15"), Input{
		Title:     "Verschoben",
		DateStart: "2024-01-16",
		TimeStart: "12:00",
		TimeEnd:   "13:00",
	}, false)
	require.NoError(t, err)

	assert.Equal(t, "Teamrunde", repo.events[id].Title, "series untouched")
	entries, err := svc.List(ctx, 1, january())
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "Verschoben", entries[1].Title)
	assert.Equal(t, day(2024, time.January, 16, 12, 0), entries[1].Start)

	detail, err := svc.Get(ctx, 1, InstanceID(id, "2024-01-15"))
	require.NoError(t, err)
	require.NotNil(t, detail.Override)
	assert.True(t, detail.OwnerCanEdit)
	assert.Equal(t, "2024-01-15", detail.InstanceDate)
}

func TestServiceUpdateSeriesScope(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	id := seedSeries(t, svc, 1)

	err := svc.Update(ctx, 1, InstanceID(id, "2024-01-15"), Input{
		Title:            "Neue Runde",
		DateStart:        "2024-01-01",
		TimeStart:        "09:00",
		TimeEnd:          "10:00",
		RecIntervalWeeks: 1,
		RecWeekdays:      []string{"MO"},
	}, true)
	require.NoError(t, err)
	assert.Equal(t, "Neue Runde", repo.events[id].Title)
	assert.Equal(t, 1, repo.events[id].RecIntervalWeeks)
	assert.Empty(t, repo.overrides)
}

func TestServiceOwnerOnly(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	id := seedSeries(t, svc, 1)

	err := svc.Update(ctx, 2, InstanceID(id, "2024-01-15"), Input{Title: "x", DateStart: "2024-01-15"}, false)
	assert.True(t, access.IsAccessDenied(err))

	err = svc.Delete(ctx, 2, InstanceID(id, "2024-01-15"), false)
	assert.True(t, access.IsAccessDenied(err))

	err = svc.Delete(ctx, 1, "e404@2024-01-15", false)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestServiceDeleteInstanceAddsException(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	id := seedSeries(t, svc, 1)

	require.NoError(t, svc.Delete(ctx, 1, InstanceID(id, "2024-01-15"), false))
	require.NoError(t, svc.Delete(ctx, 1, InstanceID(id, "2024-01-15"), false), "idempotent")

	entries, err := svc.List(ctx, 1, january())
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	require.NoError(t, svc.Delete(ctx, 1, InstanceID(id, "2024-01-29"), true))
	assert.NotContains(t, repo.events, id)
}

func TestServiceExportICS(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	id := seedSeries(t, svc, 1)
	require.NoError(t, svc.Delete(ctx, 1, InstanceID(id, "2024-01-15"), false))
	require.NoError(t, svc.Update(ctx, 1, InstanceID(id, "2024-01-29"), Input{
		Title: "Sonder", DateStart: "2024-01-29", TimeStart: "12:00", TimeEnd: "13:00",
	}, false))

	out, err := svc.Export(ctx, "portal.example.org", day(2024, time.January, 1, 0, 0))
	require.NoError(t, err)

	assert.Contains(t, out, "BEGIN:VCALENDAR")
	assert.Contains(t, out, "RRULE:FREQ=WEEKLY")
	assert.Contains(t, out, "INTERVAL=2")
	assert.Contains(t, out, "BYDAY=MO")
	assert.Contains(t, out, "EXDATE")
	assert.Contains(t, out, "20240115T100000Z")
	assert.Contains(t, out, "RECURRENCE-ID")
	assert.Contains(t, out, "SUMMARY:Sonder")
}

func TestRecurrenceRule(t *testing.T) {
	rule, err := RecurrenceRule(biweeklyMonday())
	require.NoError(t, err)
	assert.Contains(t, rule, "FREQ=WEEKLY")
	assert.Contains(t, rule, "INTERVAL=2")
	assert.Contains(t, rule, "UNTIL=20240201T235959Z")

	single := biweeklyMonday()
	single.IntervalWeeks = 0
	rule, err = RecurrenceRule(single)
	require.NoError(t, err)
	assert.Empty(t, rule)
}

func TestPaletteColor(t *testing.T) {
	assert.Equal(t, "#3b82f6", PaletteColor(0))
	assert.Equal(t, "#10b981", PaletteColor(13))
	assert.Equal(t, "#84cc16", PaletteColor(11))
}
