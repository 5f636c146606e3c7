package database

import (
	"context"
	"database/sql"
	"fmt"

	"mcportal/internal/config"
	"mcportal/internal/models"
)

const serverColumns = `id, name, host, port, enabled, sort_order, created_at`

func scanServer(row rowScanner) (*models.Server, error) {
	var (
		s       models.Server
		created string
	)
	if err := row.Scan(&s.ID, &s.Name, &s.Host, &s.Port, &s.Enabled, &s.SortOrder, &created); err != nil {
		return nil, err
	}
	s.CreatedAt = parseTime(created)
	return &s, nil
}

func (db *DB) queryServers(ctx context.Context, query string, args ...any) ([]models.Server, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list servers: %w", err)
	}
	defer rows.Close()

	var out []models.Server
	for rows.Next() {
		s, err := scanServer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// ListServers returns all servers in display order.
func (db *DB) ListServers(ctx context.Context) ([]models.Server, error) {
	return db.queryServers(ctx, `SELECT `+serverColumns+` FROM minecraft_servers ORDER BY sort_order, name COLLATE NOCASE`)
}

// ListEnabledServers returns the servers shown on the dashboard.
func (db *DB) ListEnabledServers(ctx context.Context) ([]models.Server, error) {
	return db.queryServers(ctx, `SELECT `+serverColumns+` FROM minecraft_servers WHERE enabled = 1 ORDER BY sort_order, name COLLATE NOCASE`)
}

// GetServer returns sql.ErrNoRows for unknown ids.
func (db *DB) GetServer(ctx context.Context, id int64) (*models.Server, error) {
	return scanServer(db.QueryRowContext(ctx, `SELECT `+serverColumns+` FROM minecraft_servers WHERE id = ?`, id))
}

// CreateServer appends s at the end of the display order.
func (db *DB) CreateServer(ctx context.Context, s *models.Server) (int64, error) {
	res, err := db.ExecContext(ctx, `
		INSERT INTO minecraft_servers (name, host, port, enabled, sort_order, created_at)
		VALUES (?, ?, ?, ?, (SELECT COALESCE(MAX(sort_order), 0) + 1 FROM minecraft_servers), ?)`,
		s.Name, s.Host, s.Port, boolInt(s.Enabled), nowString())
	if err != nil {
		return 0, fmt.Errorf("insert server: %w", err)
	}
	return res.LastInsertId()
}

// UpdateServer replaces name, host, port and enabled flag.
func (db *DB) UpdateServer(ctx context.Context, s *models.Server) error {
	res, err := db.ExecContext(ctx,
		`UPDATE minecraft_servers SET name = ?, host = ?, port = ?, enabled = ? WHERE id = ?`,
		s.Name, s.Host, s.Port, boolInt(s.Enabled), s.ID)
	if err != nil {
		return fmt.Errorf("update server: %w", err)
	}
	return expectOne(res)
}

// DeleteServer removes the server and its cached status.
func (db *DB) DeleteServer(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx, `DELETE FROM minecraft_servers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete server: %w", err)
	}
	return expectOne(res)
}

// MoveServer swaps sort_order with the previous (up) or next neighbour.
// Moving past either end is a no-op.
func (db *DB) MoveServer(ctx context.Context, id int64, up bool) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		var order int
		if err := tx.QueryRowContext(ctx, `SELECT sort_order FROM minecraft_servers WHERE id = ?`, id).Scan(&order); err != nil {
			return err
		}

		query := `SELECT id, sort_order FROM minecraft_servers WHERE sort_order > ? ORDER BY sort_order ASC, id ASC LIMIT 1`
		if up {
			query = `SELECT id, sort_order FROM minecraft_servers WHERE sort_order < ? ORDER BY sort_order DESC, id DESC LIMIT 1`
		}
		var (
			otherID    int64
			otherOrder int
		)
		err := tx.QueryRowContext(ctx, query, order).Scan(&otherID, &otherOrder)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `UPDATE minecraft_servers SET sort_order = ? WHERE id = ?`, otherOrder, id); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE minecraft_servers SET sort_order = ? WHERE id = ?`, order, otherID)
		return err
	})
}

// SyncServersFromConfig upserts the declared servers by id. With
// disableMissing, servers absent from the file are disabled.
func (db *DB) SyncServersFromConfig(ctx context.Context, cfg *config.ServersConfig) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		keep := make([]any, 0, len(cfg.Servers))
		for _, srv := range cfg.Servers {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO minecraft_servers (id, name, host, port, enabled, sort_order, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					name = excluded.name,
					host = excluded.host,
					port = excluded.port,
					enabled = excluded.enabled,
					sort_order = excluded.sort_order`,
				srv.ID, srv.Name, srv.Host, srv.Port, boolInt(srv.IsEnabled()), srv.SortOrder, nowString())
			if err != nil {
				return fmt.Errorf("sync server %d: %w", srv.ID, err)
			}
			keep = append(keep, srv.ID)
		}

		if !cfg.DisableMissing {
			return nil
		}
		query := `UPDATE minecraft_servers SET enabled = 0`
		if len(keep) > 0 {
			query += ` WHERE id NOT IN (?` + repeatPlaceholders(len(keep)-1) + `)`
		}
		if _, err := tx.ExecContext(ctx, query, keep...); err != nil {
			return fmt.Errorf("disable missing servers: %w", err)
		}
		return nil
	})
}

func repeatPlaceholders(n int) string {
	out := make([]byte, 0, n*3)
	for i := 0; i < n; i++ {
		out = append(out, ", ?"...)
	}
	return string(out)
}
