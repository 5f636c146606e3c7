package database

import (
	"context"
	"database/sql"
	"fmt"

	"mcportal/internal/models"
)

const ticketSelect = `
	SELECT t.id, t.creator_user_id, COALESCE(u.username, ''), t.subject, t.body, t.status,
		t.created_at, t.closed_at,
		(SELECT MAX(m.created_at) FROM ticket_messages m WHERE m.ticket_id = t.id) AS last_msg_at,
		(SELECT COUNT(*) FROM ticket_messages m WHERE m.ticket_id = t.id)
	FROM tickets t
	LEFT JOIN users u ON u.id = t.creator_user_id`

func scanTicket(row rowScanner) (*models.Ticket, error) {
	var (
		t        models.Ticket
		status   string
		created  string
		closedAt sql.NullString
		lastMsg  sql.NullString
	)
	err := row.Scan(&t.ID, &t.CreatorUserID, &t.CreatorName, &t.Subject, &t.Body, &status,
		&created, &closedAt, &lastMsg, &t.MessageCount)
	if err != nil {
		return nil, err
	}
	if t.Status, err = models.ParseTicketStatus(status); err != nil {
		return nil, err
	}
	t.CreatedAt = parseTime(created)
	t.ClosedAt = parseNullTime(closedAt)
	t.LastMessageAt = parseNullTime(lastMsg)
	return &t, nil
}

func (db *DB) queryTickets(ctx context.Context, query string, args ...any) ([]models.Ticket, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()

	var out []models.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// CreateTicket inserts the ticket and copies its body as the first message.
func (db *DB) CreateTicket(ctx context.Context, t *models.Ticket) (int64, error) {
	var id int64
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		now := nowString()
		res, err := tx.ExecContext(ctx, `
			INSERT INTO tickets (creator_user_id, subject, body, status, created_at)
			VALUES (?, ?, ?, ?, ?)`, t.CreatorUserID, t.Subject, t.Body, string(models.TicketOpen), now)
		if err != nil {
			return fmt.Errorf("insert ticket: %w", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO ticket_messages (ticket_id, user_id, body, created_at) VALUES (?, ?, ?, ?)`,
			id, t.CreatorUserID, t.Body, now)
		if err != nil {
			return fmt.Errorf("insert first message: %w", err)
		}
		return nil
	})
	return id, err
}

// GetTicket returns sql.ErrNoRows for unknown ids.
func (db *DB) GetTicket(ctx context.Context, id int64) (*models.Ticket, error) {
	return scanTicket(db.QueryRowContext(ctx, ticketSelect+` WHERE t.id = ?`, id))
}

// ListTicketsByCreator returns a member's tickets, open first then newest.
func (db *DB) ListTicketsByCreator(ctx context.Context, userID int64) ([]models.Ticket, error) {
	return db.queryTickets(ctx, ticketSelect+`
		WHERE t.creator_user_id = ?
		ORDER BY (t.status = 'open') DESC, t.created_at DESC, t.id DESC`, userID)
}

// ListAllTickets returns every ticket: open first, then by latest message, then newest.
func (db *DB) ListAllTickets(ctx context.Context) ([]models.Ticket, error) {
	return db.queryTickets(ctx, ticketSelect+`
		ORDER BY (t.status = 'open') DESC, last_msg_at DESC, t.created_at DESC, t.id DESC`)
}

// ListTicketMessages returns the thread in chronological order.
func (db *DB) ListTicketMessages(ctx context.Context, ticketID int64) ([]models.TicketMessage, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT m.id, m.ticket_id, m.user_id, COALESCE(u.username, ''), COALESCE(u.is_admin, 0), m.body, m.created_at
		FROM ticket_messages m
		LEFT JOIN users u ON u.id = m.user_id
		WHERE m.ticket_id = ?
		ORDER BY m.created_at ASC, m.id ASC`, ticketID)
	if err != nil {
		return nil, fmt.Errorf("list ticket messages: %w", err)
	}
	defer rows.Close()

	var out []models.TicketMessage
	for rows.Next() {
		var (
			m       models.TicketMessage
			created string
		)
		if err := rows.Scan(&m.ID, &m.TicketID, &m.UserID, &m.Username, &m.IsAdmin, &m.Body, &created); err != nil {
			return nil, err
		}
		m.CreatedAt = parseTime(created)
		out = append(out, m)
	}
	return out, rows.Err()
}

// AddTicketMessage appends a reply.
func (db *DB) AddTicketMessage(ctx context.Context, ticketID, userID int64, body string) (int64, error) {
	res, err := db.ExecContext(ctx,
		`INSERT INTO ticket_messages (ticket_id, user_id, body, created_at) VALUES (?, ?, ?, ?)`,
		ticketID, userID, body, nowString())
	if err != nil {
		return 0, fmt.Errorf("insert ticket message: %w", err)
	}
	return res.LastInsertId()
}

// CloseTicket sets status closed and stamps closed_at.
func (db *DB) CloseTicket(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx, `UPDATE tickets SET status = ?, closed_at = ? WHERE id = ?`,
		string(models.TicketClosed), nowString(), id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// ReopenTicket sets status open and clears closed_at.
func (db *DB) ReopenTicket(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx, `UPDATE tickets SET status = ?, closed_at = NULL WHERE id = ?`,
		string(models.TicketOpen), id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// DeleteTicket removes the thread and the ticket.
func (db *DB) DeleteTicket(ctx context.Context, id int64) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM ticket_messages WHERE ticket_id = ?`, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM tickets WHERE id = ?`, id)
		if err != nil {
			return err
		}
		return expectOne(res)
	})
}

// LastAdminReplier returns the admin who wrote the latest admin message on
// the ticket, or sql.ErrNoRows when no admin has replied.
func (db *DB) LastAdminReplier(ctx context.Context, ticketID int64) (*models.User, error) {
	return scanUser(db.QueryRowContext(ctx, `
		SELECT u.id, u.username, u.password_hash, u.is_admin, COALESCE(u.discord_name, ''),
			COALESCE(u.calendar_color, ''), u.created_at
		FROM ticket_messages m
		JOIN users u ON u.id = m.user_id
		WHERE m.ticket_id = ? AND u.is_admin = 1
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT 1`, ticketID))
}
