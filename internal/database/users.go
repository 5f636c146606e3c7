package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"mcportal/internal/models"
)

const userColumns = `id, username, password_hash, is_admin, COALESCE(discord_name, ''), COALESCE(calendar_color, ''), created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u       models.User
		created string
	)
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.IsAdmin, &u.DiscordName, &u.CalendarColor, &created); err != nil {
		return nil, err
	}
	u.CreatedAt = parseTime(created)
	return &u, nil
}

// GetUserByID returns sql.ErrNoRows when the user does not exist.
func (db *DB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return scanUser(db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

// GetUserByUsername matches the username exactly.
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return scanUser(db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username))
}

// ListUsers returns all accounts ordered by username.
func (db *DB) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY username COLLATE NOCASE`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

// CreateUser inserts u and returns its id. A taken username yields ErrDuplicate.
func (db *DB) CreateUser(ctx context.Context, u *models.User) (int64, error) {
	return createUser(ctx, db.DB, u)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func createUser(ctx context.Context, ex execer, u *models.User) (int64, error) {
	res, err := ex.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, is_admin, discord_name, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		u.Username, u.PasswordHash, boolInt(u.IsAdmin), nullString(u.DiscordName), nowString(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("user %q: %w", u.Username, ErrDuplicate)
		}
		return 0, fmt.Errorf("insert user: %w", err)
	}
	return res.LastInsertId()
}

// UpdatePasswordHash replaces the stored hash.
func (db *DB) UpdatePasswordHash(ctx context.Context, userID int64, hash string) error {
	res, err := db.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, hash, userID)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return expectOne(res)
}

// SetUserDiscordName updates the Discord handle used for notifications.
func (db *DB) SetUserDiscordName(ctx context.Context, userID int64, name string) error {
	res, err := db.ExecContext(ctx, `UPDATE users SET discord_name = ? WHERE id = ?`, nullString(name), userID)
	if err != nil {
		return fmt.Errorf("update discord name: %w", err)
	}
	return expectOne(res)
}

// CountAdmins returns the number of admin accounts.
func (db *DB) CountAdmins(ctx context.Context) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE is_admin = 1`).Scan(&n)
	return n, err
}

// DeleteUserCompletely removes a user, their document assignments and the
// account link on applications. The last admin cannot be deleted.
func (db *DB) DeleteUserCompletely(ctx context.Context, userID int64) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		return deleteUserTx(ctx, tx, userID)
	})
}

func deleteUserTx(ctx context.Context, tx *sql.Tx, userID int64) error {
	var isAdmin bool
	err := tx.QueryRowContext(ctx, `SELECT is_admin FROM users WHERE id = ?`, userID).Scan(&isAdmin)
	if err != nil {
		return err
	}
	if isAdmin {
		var admins int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE is_admin = 1`).Scan(&admins); err != nil {
			return err
		}
		if admins <= 1 {
			return ErrLastAdmin
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_documents WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete assignments: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE applications SET created_user_id = NULL, generated_password = NULL
		WHERE created_user_id = ?`, userID); err != nil {
		return fmt.Errorf("unlink applications: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, userID); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

// GetUserCalendarColor returns "" when no color has been stored.
func (db *DB) GetUserCalendarColor(ctx context.Context, userID int64) (string, error) {
	var c sql.NullString
	err := db.QueryRowContext(ctx, `SELECT calendar_color FROM users WHERE id = ?`, userID).Scan(&c)
	if err != nil {
		return "", err
	}
	return c.String, nil
}

// SetUserCalendarColor stores the calendar color of a user.
func (db *DB) SetUserCalendarColor(ctx context.Context, userID int64, color string) error {
	_, err := db.ExecContext(ctx, `UPDATE users SET calendar_color = ? WHERE id = ?`, color, userID)
	return err
}

// ListAvailableAdmins returns admins with a Discord name who are not inside an
// absence they own at now. Calendar rows hold wall-clock time, so now must be
// in the calendar location.
func (db *DB) ListAvailableAdmins(ctx context.Context, now time.Time) ([]models.User, error) {
	ts := now.Format(models.TimeLayout)
	rows, err := db.QueryContext(ctx, `
		SELECT `+userColumns+` FROM users u
		WHERE u.is_admin = 1
		  AND TRIM(COALESCE(u.discord_name, '')) <> ''
		  AND NOT EXISTS (
			SELECT 1 FROM calendar_events e
			WHERE e.owner_id = u.id AND e.type = 'absence'
			  AND e.start_at <= ? AND e.end_at > ?
		  )
		ORDER BY u.id`, ts, ts)
	if err != nil {
		return nil, fmt.Errorf("list available admins: %w", err)
	}
	defer rows.Close()

	var out []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

// DiscordNameForUser returns the stored Discord name of a user, falling back
// to the application that created the account. Empty when unknown.
func (db *DB) DiscordNameForUser(ctx context.Context, userID int64) (string, error) {
	var name string
	err := db.QueryRowContext(ctx, `
		SELECT COALESCE(NULLIF(TRIM(u.discord_name), ''), (
			SELECT a.discord_name FROM applications a
			WHERE a.created_user_id = u.id
			ORDER BY a.id DESC LIMIT 1
		), '')
		FROM users u WHERE u.id = ?`, userID).Scan(&name)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return name, err
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
