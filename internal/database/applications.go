package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"mcportal/internal/models"
)

const applicationColumns = `id, youtube_url, youtube_video_id, mc_name, mc_uuid, discord_name, status,
	COALESCE(generated_password, ''), created_user_id, COALESCE(project_name, ''), created_at`

func scanApplication(row rowScanner) (*models.Application, error) {
	var (
		a       models.Application
		status  string
		userID  sql.NullInt64
		created string
	)
	err := row.Scan(&a.ID, &a.YouTubeURL, &a.YouTubeVideoID, &a.MCName, &a.MCUUID, &a.DiscordName,
		&status, &a.GeneratedPassword, &userID, &a.ProjectName, &created)
	if err != nil {
		return nil, err
	}
	a.Status, err = models.ParseApplicationStatus(status)
	if err != nil {
		return nil, err
	}
	if userID.Valid {
		id := userID.Int64
		a.CreatedUserID = &id
	}
	a.CreatedAt = parseTime(created)
	return &a, nil
}

// CreateApplication inserts a pending application. A taken MC or Discord
// name yields ErrDuplicate.
func (db *DB) CreateApplication(ctx context.Context, a *models.Application) (int64, error) {
	res, err := db.ExecContext(ctx, `
		INSERT INTO applications
			(youtube_url, youtube_video_id, mc_name, mc_uuid, discord_name, status, project_name, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.YouTubeURL, a.YouTubeVideoID, a.MCName, a.MCUUID, a.DiscordName,
		string(models.ApplicationPending), nullString(a.ProjectName), nowString(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("application %q: %w", a.MCName, ErrDuplicate)
		}
		return 0, fmt.Errorf("insert application: %w", err)
	}
	return res.LastInsertId()
}

// ApplicationTaken reports whether an application already uses the MC name
// or the Discord name, compared case-insensitively.
func (db *DB) ApplicationTaken(ctx context.Context, mcName, discordName string) (mcTaken, discordTaken bool, err error) {
	err = db.QueryRowContext(ctx, `
		SELECT
			EXISTS(SELECT 1 FROM applications WHERE lower(mc_name) = lower(?)),
			EXISTS(SELECT 1 FROM applications WHERE lower(discord_name) = lower(?))`,
		mcName, discordName).Scan(&mcTaken, &discordTaken)
	return mcTaken, discordTaken, err
}

// GetApplication returns sql.ErrNoRows for unknown ids.
func (db *DB) GetApplication(ctx context.Context, id int64) (*models.Application, error) {
	return scanApplication(db.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = ?`, id))
}

// ListApplications returns applications newest first, optionally filtered by status.
func (db *DB) ListApplications(ctx context.Context, status models.ApplicationStatus) ([]models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()

	var out []models.Application
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// SetApplicationStatus changes the status when the current status is one of
// from (any status when from is empty). It reports whether a row changed.
func (db *DB) SetApplicationStatus(ctx context.Context, id int64, to models.ApplicationStatus, from ...models.ApplicationStatus) (bool, error) {
	query := `UPDATE applications SET status = ? WHERE id = ?`
	args := []any{string(to), id}
	if len(from) > 0 {
		query += ` AND status IN (?` + repeatPlaceholders(len(from)-1) + `)`
		for _, s := range from {
			args = append(args, string(s))
		}
	}
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("update application status: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// AcceptApplication marks the application accepted. When no account exists
// yet, a user named after the MC name is created with passwordHash and
// plainPassword is stored for the admin view. The returned application
// carries the password that is valid for the account.
func (db *DB) AcceptApplication(ctx context.Context, id int64, passwordHash, plainPassword string) (*models.Application, error) {
	var out *models.Application
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		app, err := scanApplication(tx.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = ?`, id))
		if err != nil {
			return err
		}

		if app.CreatedUserID != nil {
			if _, err := tx.ExecContext(ctx, `UPDATE applications SET status = ? WHERE id = ?`,
				string(models.ApplicationAccepted), id); err != nil {
				return err
			}
			app.Status = models.ApplicationAccepted
			out = app
			return nil
		}

		user := &models.User{Username: app.MCName, PasswordHash: passwordHash, DiscordName: app.DiscordName}
		userID, err := createUser(ctx, tx, user)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE applications SET created_user_id = ?, generated_password = ?, status = ?
			WHERE id = ?`, userID, plainPassword, string(models.ApplicationAccepted), id); err != nil {
			return err
		}
		app.CreatedUserID = &userID
		app.GeneratedPassword = plainPassword
		app.Status = models.ApplicationAccepted
		out = app
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReleaseApplication removes the account created for the application (kept
// when it is the last admin), clears the account fields and sets status.
// It returns the application as it was before the change.
func (db *DB) ReleaseApplication(ctx context.Context, id int64, status models.ApplicationStatus) (*models.Application, error) {
	var before *models.Application
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		app, err := scanApplication(tx.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = ?`, id))
		if err != nil {
			return err
		}
		before = app
		if err := releaseUserTx(ctx, tx, app); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE applications SET status = ?, created_user_id = NULL, generated_password = NULL
			WHERE id = ?`, string(status), id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return before, nil
}

// DeleteApplication removes the created account (unless last admin) and the row.
func (db *DB) DeleteApplication(ctx context.Context, id int64) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		app, err := scanApplication(tx.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = ?`, id))
		if err != nil {
			return err
		}
		if err := releaseUserTx(ctx, tx, app); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM applications WHERE id = ?`, id)
		return err
	})
}

func releaseUserTx(ctx context.Context, tx *sql.Tx, app *models.Application) error {
	if app.CreatedUserID == nil {
		return nil
	}
	err := deleteUserTx(ctx, tx, *app.CreatedUserID)
	switch {
	case err == nil, errors.Is(err, ErrLastAdmin), errors.Is(err, sql.ErrNoRows):
		return nil
	default:
		return fmt.Errorf("delete applicant user: %w", err)
	}
}

// FindDiscordNameForPlayer looks up the Discord name for a whitelisted
// player: newest application by uuid or name, else the user with that
// username. Returns "" when nothing matches.
func (db *DB) FindDiscordNameForPlayer(ctx context.Context, uuid, name string) (string, error) {
	var discord string
	err := db.QueryRowContext(ctx, `
		SELECT discord_name FROM applications
		WHERE lower(replace(mc_uuid, '-', '')) = ? OR lower(mc_name) = lower(?)
		ORDER BY id DESC LIMIT 1`, strings.ToLower(uuid), name).Scan(&discord)
	if err == nil && strings.TrimSpace(discord) != "" {
		return discord, nil
	}
	if err != nil && err != sql.ErrNoRows {
		return "", err
	}

	var fromUser sql.NullString
	err = db.QueryRowContext(ctx, `SELECT discord_name FROM users WHERE lower(username) = lower(?) LIMIT 1`, name).Scan(&fromUser)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(fromUser.String), nil
}
