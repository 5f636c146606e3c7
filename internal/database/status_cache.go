package database

import (
	"context"
	"database/sql"
	"fmt"

	"mcportal/internal/models"
)

// GetStatusSnapshot returns sql.ErrNoRows when the server was never probed.
func (db *DB) GetStatusSnapshot(ctx context.Context, serverID int64) (*models.StatusSnapshot, error) {
	var (
		snap    models.StatusSnapshot
		players sql.NullInt64
		limit   sql.NullInt64
		version sql.NullString
		latency sql.NullFloat64
		raw     sql.NullString
		checked string
	)
	err := db.QueryRowContext(ctx, `
		SELECT server_id, online, players_online, players_max, version, latency_ms, raw_json, checked_at
		FROM server_status_cache WHERE server_id = ?`, serverID).
		Scan(&snap.ServerID, &snap.Online, &players, &limit, &version, &latency, &raw, &checked)
	if err != nil {
		return nil, err
	}

	if players.Valid {
		v := int(players.Int64)
		snap.PlayersOnline = &v
	}
	if limit.Valid {
		v := int(limit.Int64)
		snap.PlayersMax = &v
	}
	if version.Valid {
		v := version.String
		snap.Version = &v
	}
	if latency.Valid {
		v := latency.Float64
		snap.LatencyMS = &v
	}
	if raw.Valid && raw.String != "" {
		snap.RawJSON = []byte(raw.String)
	}
	snap.CheckedAt = parseTime(checked)
	return &snap, nil
}

// UpsertStatusSnapshot writes the probe result, replacing any previous row.
func (db *DB) UpsertStatusSnapshot(ctx context.Context, snap *models.StatusSnapshot) error {
	var raw sql.NullString
	if len(snap.RawJSON) > 0 {
		raw = sql.NullString{String: string(snap.RawJSON), Valid: true}
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO server_status_cache
			(server_id, online, players_online, players_max, version, latency_ms, raw_json, checked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(server_id) DO UPDATE SET
			online = excluded.online,
			players_online = excluded.players_online,
			players_max = excluded.players_max,
			version = excluded.version,
			latency_ms = excluded.latency_ms,
			raw_json = excluded.raw_json,
			checked_at = excluded.checked_at`,
		snap.ServerID, boolInt(snap.Online), nullInt(snap.PlayersOnline), nullInt(snap.PlayersMax),
		nullStringPtr(snap.Version), nullFloat(snap.LatencyMS), raw,
		snap.CheckedAt.UTC().Format(models.PreciseTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("upsert status %d: %w", snap.ServerID, err)
	}
	return nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullStringPtr(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}
