package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcportal/internal/config"
)

func testConfig(t *testing.T, extra string) (*config.Config, string) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "portal.db")
	body := "server:\n  address: \"127.0.0.1:0\"\n" +
		"database:\n  path: " + dbPath + "\n" +
		"uploads:\n  dir: " + filepath.Join(dir, "uploads") + "\n" +
		"monitoring:\n  health_check_port: -1\n  prometheus_enabled: false\n" +
		"servers_file: " + filepath.Join(dir, "servers.yaml") + "\n" + extra
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg, dbPath
}

func TestRunReturnsScheduleErrorsAndClosesDB(t *testing.T) {
	tests := []struct {
		name  string
		extra string
		want  string
	}{
		{"whitelist", "whitelist:\n  schedule: \"not a schedule\"\n", "invalid whitelist schedule"},
		{"backup", "backup:\n  enabled: true\n  schedule: \"nope\"\n", "invalid backup schedule"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, dbPath := testConfig(t, tt.extra)

			err := run(context.Background(), cfg, zerolog.New(io.Discard))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)

			_, statErr := os.Stat(dbPath)
			require.NoError(t, statErr, "database was opened")
			assert.NoFileExists(t, dbPath+"-wal", "closing the last connection removes the WAL file")
		})
	}
}

func TestRunRejectsBadTrustedProxy(t *testing.T) {
	cfg, dbPath := testConfig(t, "")
	cfg.Server.TrustedProxies = []string{"not-an-ip"}

	err := run(context.Background(), cfg, zerolog.New(io.Discard))
	require.Error(t, err)
	assert.NoFileExists(t, dbPath, "config errors are reported before anything is opened")
}

func TestRunStopsWhenContextEnds(t *testing.T) {
	cfg, _ := testConfig(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, run(ctx, cfg, zerolog.New(io.Discard)))
}
