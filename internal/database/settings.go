package database

import (
	"context"
	"database/sql"
	"fmt"

	"mcportal/internal/models"
)

// EnsureSettingDefaults seeds keys that must exist without overwriting stored values.
func (db *DB) EnsureSettingDefaults(ctx context.Context) error {
	defaults := map[string]string{
		models.SettingApplyEnabled: "0",
		models.SettingApplyTitle:   models.DefaultApplyTitle,
	}
	for key, value := range defaults {
		if _, err := db.ExecContext(ctx, `INSERT OR IGNORE INTO site_settings (key, value) VALUES (?, ?)`, key, value); err != nil {
			return fmt.Errorf("seed %s: %w", key, err)
		}
	}
	return nil
}

// GetSettings returns all raw key/value pairs.
func (db *DB) GetSettings(ctx context.Context) (map[string]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT key, value FROM site_settings`)
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var (
			key   string
			value sql.NullString
		)
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		out[key] = value.String
	}
	return out, rows.Err()
}

// GetSetting returns the value of key, or "" when unset.
func (db *DB) GetSetting(ctx context.Context, key string) (string, error) {
	var value sql.NullString
	err := db.QueryRowContext(ctx, `SELECT value FROM site_settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value.String, err
}

// SetSetting inserts or replaces one key.
func (db *DB) SetSetting(ctx context.Context, key, value string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO site_settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("write setting %s: %w", key, err)
	}
	return nil
}

// LoadSiteSettings returns the typed settings view.
func (db *DB) LoadSiteSettings(ctx context.Context) (models.SiteSettings, error) {
	kv, err := db.GetSettings(ctx)
	if err != nil {
		return models.SiteSettings{}, err
	}
	return models.SettingsFromMap(kv), nil
}

// SaveSiteSettings writes every known key in one transaction.
func (db *DB) SaveSiteSettings(ctx context.Context, s models.SiteSettings) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		for key, value := range s.ToMap() {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO site_settings (key, value) VALUES (?, ?)
				ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
			if err != nil {
				return fmt.Errorf("write setting %s: %w", key, err)
			}
		}
		return nil
	})
}
