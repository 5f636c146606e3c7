package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"mcportal/internal/models"
)

// DB wraps the SQLite connection pool.
type DB struct {
	*sql.DB
	path   string
	logger *zerolog.Logger
}

var (
	ErrDuplicate = errors.New("duplicate entry")
	ErrLastAdmin = errors.New("cannot remove the last admin")
)

// NewDB opens the database at path and creates or migrates the schema.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// WAL mode, busy timeout, enforced foreign keys (cascades rely on them).
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	instance := &DB{DB: db, path: path, logger: logger}

	if err := instance.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	if err := instance.ensureColumns(); err != nil {
		return nil, fmt.Errorf("failed to migrate columns: %w", err)
	}
	if err := instance.EnsureSettingDefaults(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to seed settings: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return instance, nil
}

// Path returns the database file location.
func (db *DB) Path() string {
	return db.path
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			is_admin INTEGER NOT NULL DEFAULT 0,
			discord_name TEXT,
			calendar_color TEXT,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE TABLE IF NOT EXISTS documents (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			filename TEXT NOT NULL,
			path TEXT NOT NULL,
			is_public INTEGER NOT NULL DEFAULT 0,
			uploaded_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE TABLE IF NOT EXISTS user_documents (
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			PRIMARY KEY (user_id, document_id)
		)`,
		`CREATE TABLE IF NOT EXISTS posts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			published INTEGER NOT NULL DEFAULT 1,
			image_path TEXT,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE TABLE IF NOT EXISTS minecraft_servers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			host TEXT NOT NULL,
			port INTEGER NOT NULL DEFAULT 25565,
			enabled INTEGER NOT NULL DEFAULT 1,
			sort_order INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE TABLE IF NOT EXISTS server_status_cache (
			server_id INTEGER PRIMARY KEY REFERENCES minecraft_servers(id) ON DELETE CASCADE,
			online INTEGER NOT NULL DEFAULT 0,
			players_online INTEGER,
			players_max INTEGER,
			version TEXT,
			latency_ms REAL,
			raw_json TEXT,
			checked_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS site_settings (
			key TEXT PRIMARY KEY,
			value TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS applications (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			youtube_url TEXT NOT NULL,
			youtube_video_id TEXT NOT NULL,
			mc_name TEXT NOT NULL,
			mc_uuid TEXT NOT NULL,
			discord_name TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			generated_password TEXT,
			created_user_id INTEGER REFERENCES users(id) ON DELETE SET NULL,
			project_name TEXT,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_applications_mc_name ON applications(lower(mc_name))`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_applications_discord ON applications(lower(discord_name))`,
		`CREATE TABLE IF NOT EXISTS tickets (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			creator_user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			subject TEXT NOT NULL,
			body TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'open',
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			closed_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tickets_creator ON tickets(creator_user_id)`,
		`CREATE TABLE IF NOT EXISTS ticket_messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ticket_id INTEGER NOT NULL REFERENCES tickets(id) ON DELETE CASCADE,
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			body TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ticket_messages_ticket ON ticket_messages(ticket_id)`,
		`CREATE TABLE IF NOT EXISTS calendar_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			owner_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			title TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT 'event',
			start_at TEXT NOT NULL,
			end_at TEXT NOT NULL,
			all_day INTEGER NOT NULL DEFAULT 0,
			color TEXT,
			notes TEXT,
			rec_interval_weeks INTEGER NOT NULL DEFAULT 0,
			rec_weekdays TEXT,
			rec_until TEXT,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_calendar_events_owner ON calendar_events(owner_id)`,
		`CREATE TABLE IF NOT EXISTS calendar_event_overrides (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id INTEGER NOT NULL REFERENCES calendar_events(id) ON DELETE CASCADE,
			inst_date TEXT NOT NULL,
			start_at TEXT,
			end_at TEXT,
			all_day INTEGER,
			title TEXT,
			notes TEXT,
			UNIQUE (event_id, inst_date)
		)`,
		`CREATE TABLE IF NOT EXISTS calendar_event_exceptions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id INTEGER NOT NULL REFERENCES calendar_events(id) ON DELETE CASCADE,
			inst_date TEXT NOT NULL,
			UNIQUE (event_id, inst_date)
		)`,
		`CREATE TABLE IF NOT EXISTS server_whitelist_seen (
			uuid TEXT PRIMARY KEY,
			first_seen_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query %q: %w", firstLine(query), err)
		}
	}
	return nil
}

// ensureColumns upgrades databases created before a column existed.
func (db *DB) ensureColumns() error {
	columns := []struct {
		table, column, ddl string
	}{
		{"users", "discord_name", "ALTER TABLE users ADD COLUMN discord_name TEXT"},
		{"users", "calendar_color", "ALTER TABLE users ADD COLUMN calendar_color TEXT"},
		{"documents", "is_public", "ALTER TABLE documents ADD COLUMN is_public INTEGER NOT NULL DEFAULT 0"},
		{"posts", "published", "ALTER TABLE posts ADD COLUMN published INTEGER NOT NULL DEFAULT 1"},
		{"posts", "image_path", "ALTER TABLE posts ADD COLUMN image_path TEXT"},
		{"applications", "project_name", "ALTER TABLE applications ADD COLUMN project_name TEXT"},
		{"calendar_events", "rec_until", "ALTER TABLE calendar_events ADD COLUMN rec_until TEXT"},
	}
	for _, c := range columns {
		exists, err := db.hasColumn(c.table, c.column)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if _, err := db.Exec(c.ddl); err != nil {
			return fmt.Errorf("add %s.%s: %w", c.table, c.column, err)
		}
		db.logger.Info().Str("table", c.table).Str("column", c.column).Msg("column added")
	}
	return nil
}

func (db *DB) hasColumn(table, column string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if strings.EqualFold(name, column) {
			return true, nil
		}
	}
	return false, rows.Err()
}

// withTx runs fn in a transaction, committing when fn returns nil.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY constraint failure.
func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func nowString() string {
	return time.Now().UTC().Format(models.TimeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.ParseInLocation(models.TimeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	if t.IsZero() {
		return nil
	}
	return &t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
