package database

import (
	"context"
	"fmt"
)

// MarkWhitelistSeen records uuid and reports whether it was new.
func (db *DB) MarkWhitelistSeen(ctx context.Context, uuid string) (bool, error) {
	res, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO server_whitelist_seen (uuid, first_seen_at) VALUES (?, ?)`, uuid, nowString())
	if err != nil {
		return false, fmt.Errorf("mark whitelist seen: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// WhitelistSeen reports whether uuid has already been recorded.
func (db *DB) WhitelistSeen(ctx context.Context, uuid string) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM server_whitelist_seen WHERE uuid = ?`, uuid).Scan(&n)
	return n > 0, err
}
