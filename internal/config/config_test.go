package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

// replaceFile swaps the content in with a rename so pollers never read a
// half-written file.
func replaceFile(t *testing.T, path, body string) {
	t.Helper()
	tmp := path + ".tmp"
	require.NoError(t, os.WriteFile(tmp, []byte(body), 0o644))
	require.NoError(t, os.Rename(tmp, path))
}

func TestLoadExpandsEnvAndAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PORTAL_TEST_TOKEN", "secret-token")

	path := writeFile(t, dir, "config.yaml", `
server:
  base_url: "https://portal.example.org/"
database:
  path: "`+filepath.Join(dir, "db", "portal.db")+`"
discord:
  bot_token: "${PORTAL_TEST_TOKEN}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "secret-token", cfg.Discord.BotToken)
	assert.Equal(t, "https://portal.example.org", cfg.Server.BaseURL)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 30*time.Second, cfg.StatusPageTTL())
	assert.Equal(t, time.Second, cfg.StatusPollTTL())
	assert.Equal(t, 1500*time.Millisecond, cfg.ProbeTimeout())
	assert.Equal(t, 4*time.Second, cfg.MojangTimeout())
	assert.Equal(t, "@every 1m", cfg.Whitelist.Schedule)
	assert.Equal(t, time.UTC, cfg.Location())

	_, err = os.Stat(filepath.Join(dir, "db"))
	assert.NoError(t, err, "database directory is created")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadServersConfig(t *testing.T) {
	dir := t.TempDir()

	t.Run("defaults", func(t *testing.T) {
		path := writeFile(t, dir, "ok.yaml", `
servers:
  - id: 1
    name: Survival
    host: mc.example.org
  - id: 2
    name: Creative
    host: creative.example.org
    port: 25570
    enabled: false
`)
		cfg, err := LoadServersConfig(path)
		require.NoError(t, err)
		require.Len(t, cfg.Servers, 2)
		assert.Equal(t, 25565, cfg.Servers[0].Port)
		assert.Equal(t, 1, cfg.Servers[0].SortOrder)
		assert.True(t, cfg.Servers[0].IsEnabled())
		assert.False(t, cfg.Servers[1].IsEnabled())
		assert.Equal(t, "ServersConfig: 2 servers (1 enabled)", cfg.String())
	})

	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad id", "servers:\n  - id: 0\n    name: a\n    host: h\n", "id must be positive"},
		{"duplicate id", "servers:\n  - id: 1\n    name: a\n    host: h\n  - id: 1\n    name: b\n    host: h\n", "duplicate id"},
		{"missing host", "servers:\n  - id: 1\n    name: a\n", "host is required"},
		{"bad port", "servers:\n  - id: 1\n    name: a\n    host: h\n    port: 99999\n", "invalid port"},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, "bad"+string(rune('a'+i))+".yaml", tt.body)
			_, err := LoadServersConfig(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestWatchServersInitialLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "servers.yaml", "servers:\n  - id: 1\n    name: a\n    host: h\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	err := WatchServers(ctx, path, time.Hour, ServersWatch{OnUpdate: func(cfg *ServersConfig) {
		calls.Add(1)
		assert.Len(t, cfg.Servers, 1)
	}})
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestWatchServersReloadsOnContentChange(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "servers.yaml", "servers:\n  - id: 1\n    name: a\n    host: h\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates := make(chan int, 4)
	failures := make(chan error, 4)
	err := WatchServers(ctx, path, 10*time.Millisecond, ServersWatch{
		OnUpdate: func(cfg *ServersConfig) { updates <- len(cfg.Servers) },
		OnError:  func(err error) { failures <- err },
	})
	require.NoError(t, err)
	assert.Equal(t, 1, <-updates)

	replaceFile(t, path, "servers:\n  - id: 1\n    name: a\n    host: h\n  - id: 2\n    name: b\n    host: h\n")
	select {
	case n := <-updates:
		assert.Equal(t, 2, n)
	case <-time.After(2 * time.Second):
		t.Fatal("no reload after content change")
	}

	replaceFile(t, path, "servers:\n  - id: 0\n    name: a\n    host: h\n")
	select {
	case err := <-failures:
		assert.Contains(t, err.Error(), "id must be positive")
	case <-time.After(2 * time.Second):
		t.Fatal("invalid file not reported")
	}
	assert.Empty(t, updates)
}

func TestWatchServersMissingFile(t *testing.T) {
	err := WatchServers(context.Background(), filepath.Join(t.TempDir(), "nope.yaml"), time.Hour, ServersWatch{})
	assert.Error(t, err)
}
