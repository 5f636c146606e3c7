package database

import (
	"context"
	"database/sql"
	"fmt"

	"mcportal/internal/models"
)

const calendarEventSelect = `
	SELECT e.id, e.owner_id, COALESCE(u.username, ''), COALESCE(u.calendar_color, ''), e.title, e.type,
		e.start_at, e.end_at, e.all_day, COALESCE(e.color, ''), COALESCE(e.notes, ''),
		e.rec_interval_weeks, COALESCE(e.rec_weekdays, ''), COALESCE(e.rec_until, ''), e.created_at
	FROM calendar_events e
	LEFT JOIN users u ON u.id = e.owner_id`

func scanCalendarEvent(row rowScanner) (*models.CalendarEvent, error) {
	var (
		ev      models.CalendarEvent
		kind    string
		created string
	)
	err := row.Scan(&ev.ID, &ev.OwnerID, &ev.OwnerName, &ev.OwnerColor, &ev.Title, &kind,
		&ev.StartAt, &ev.EndAt, &ev.AllDay, &ev.Color, &ev.Notes,
		&ev.RecIntervalWeeks, &ev.RecWeekdays, &ev.RecUntil, &created)
	if err != nil {
		return nil, err
	}
	if ev.Kind, err = models.ParseEventKind(kind); err != nil {
		return nil, err
	}
	ev.CreatedAt = parseTime(created)
	return &ev, nil
}

// ListCalendarEvents returns every series ordered by start.
func (db *DB) ListCalendarEvents(ctx context.Context) ([]models.CalendarEvent, error) {
	rows, err := db.QueryContext(ctx, calendarEventSelect+` ORDER BY e.start_at, e.id`)
	if err != nil {
		return nil, fmt.Errorf("list calendar events: %w", err)
	}
	defer rows.Close()

	var out []models.CalendarEvent
	for rows.Next() {
		ev, err := scanCalendarEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ev)
	}
	return out, rows.Err()
}

// GetCalendarEvent returns sql.ErrNoRows for unknown ids.
func (db *DB) GetCalendarEvent(ctx context.Context, id int64) (*models.CalendarEvent, error) {
	return scanCalendarEvent(db.QueryRowContext(ctx, calendarEventSelect+` WHERE e.id = ?`, id))
}

// CreateCalendarEvent inserts a series row.
func (db *DB) CreateCalendarEvent(ctx context.Context, ev *models.CalendarEvent) (int64, error) {
	res, err := db.ExecContext(ctx, `
		INSERT INTO calendar_events
			(owner_id, title, type, start_at, end_at, all_day, color, notes,
			 rec_interval_weeks, rec_weekdays, rec_until, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.OwnerID, ev.Title, string(ev.Kind), ev.StartAt, ev.EndAt, boolInt(ev.AllDay),
		nullString(ev.Color), nullString(ev.Notes),
		ev.RecIntervalWeeks, nullString(ev.RecWeekdays), nullString(ev.RecUntil), nowString(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert calendar event: %w", err)
	}
	return res.LastInsertId()
}

// UpdateCalendarEvent replaces the editable fields of a series.
func (db *DB) UpdateCalendarEvent(ctx context.Context, ev *models.CalendarEvent) error {
	res, err := db.ExecContext(ctx, `
		UPDATE calendar_events SET
			title = ?, type = ?, start_at = ?, end_at = ?, all_day = ?, color = ?, notes = ?,
			rec_interval_weeks = ?, rec_weekdays = ?, rec_until = ?
		WHERE id = ?`,
		ev.Title, string(ev.Kind), ev.StartAt, ev.EndAt, boolInt(ev.AllDay), nullString(ev.Color), nullString(ev.Notes),
		ev.RecIntervalWeeks, nullString(ev.RecWeekdays), nullString(ev.RecUntil), ev.ID,
	)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// DeleteCalendarEvent removes a series; overrides and exceptions cascade.
func (db *DB) DeleteCalendarEvent(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx, `DELETE FROM calendar_events WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

const overrideColumns = `id, event_id, inst_date, start_at, end_at, all_day, title, notes`

func scanOverride(row rowScanner) (*models.CalendarOverride, error) {
	var (
		ov     models.CalendarOverride
		start  sql.NullString
		end    sql.NullString
		allDay sql.NullBool
		title  sql.NullString
		notes  sql.NullString
	)
	if err := row.Scan(&ov.ID, &ov.EventID, &ov.InstDate, &start, &end, &allDay, &title, &notes); err != nil {
		return nil, err
	}
	ov.StartAt = stringPtr(start)
	ov.EndAt = stringPtr(end)
	ov.Title = stringPtr(title)
	ov.Notes = stringPtr(notes)
	if allDay.Valid {
		v := allDay.Bool
		ov.AllDay = &v
	}
	return &ov, nil
}

// ListCalendarOverrides returns all instance overrides.
func (db *DB) ListCalendarOverrides(ctx context.Context) ([]models.CalendarOverride, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+overrideColumns+` FROM calendar_event_overrides ORDER BY event_id, inst_date`)
	if err != nil {
		return nil, fmt.Errorf("list overrides: %w", err)
	}
	defer rows.Close()

	var out []models.CalendarOverride
	for rows.Next() {
		ov, err := scanOverride(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ov)
	}
	return out, rows.Err()
}

// GetCalendarOverride returns sql.ErrNoRows when the instance is not overridden.
func (db *DB) GetCalendarOverride(ctx context.Context, eventID int64, date string) (*models.CalendarOverride, error) {
	return scanOverride(db.QueryRowContext(ctx,
		`SELECT `+overrideColumns+` FROM calendar_event_overrides WHERE event_id = ? AND inst_date = ?`, eventID, date))
}

// UpsertCalendarOverride writes the override keyed by (event_id, inst_date).
func (db *DB) UpsertCalendarOverride(ctx context.Context, ov *models.CalendarOverride) error {
	var allDay sql.NullInt64
	if ov.AllDay != nil {
		allDay = sql.NullInt64{Int64: int64(boolInt(*ov.AllDay)), Valid: true}
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO calendar_event_overrides (event_id, inst_date, start_at, end_at, all_day, title, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id, inst_date) DO UPDATE SET
			start_at = excluded.start_at,
			end_at = excluded.end_at,
			all_day = excluded.all_day,
			title = excluded.title,
			notes = excluded.notes`,
		ov.EventID, ov.InstDate, nullStringPtr(ov.StartAt), nullStringPtr(ov.EndAt), allDay,
		nullStringPtr(ov.Title), nullStringPtr(ov.Notes),
	)
	if err != nil {
		return fmt.Errorf("upsert override: %w", err)
	}
	return nil
}

// ListCalendarExceptions returns all suppressed instances.
func (db *DB) ListCalendarExceptions(ctx context.Context) ([]models.CalendarException, error) {
	rows, err := db.QueryContext(ctx, `SELECT event_id, inst_date FROM calendar_event_exceptions ORDER BY event_id, inst_date`)
	if err != nil {
		return nil, fmt.Errorf("list exceptions: %w", err)
	}
	defer rows.Close()

	var out []models.CalendarException
	for rows.Next() {
		var x models.CalendarException
		if err := rows.Scan(&x.EventID, &x.InstDate); err != nil {
			return nil, err
		}
		out = append(out, x)
	}
	return out, rows.Err()
}

// AddCalendarException suppresses one instance. Repeated calls are no-ops.
func (db *DB) AddCalendarException(ctx context.Context, eventID int64, date string) error {
	_, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO calendar_event_exceptions (event_id, inst_date) VALUES (?, ?)`, eventID, date)
	if err != nil {
		return fmt.Errorf("add exception: %w", err)
	}
	return nil
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
