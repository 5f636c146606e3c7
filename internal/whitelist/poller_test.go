package whitelist

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcportal/internal/database"
	"mcportal/internal/events"
	"mcportal/internal/models"
)

type fixture struct {
	db      *database.DB
	poller  *Poller
	path    string
	greeted []events.WhitelistAddedPayload
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zerolog.New(io.Discard)
	dir := t.TempDir()
	db, err := database.NewDB(filepath.Join(dir, "portal.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{db: db, path: filepath.Join(dir, "whitelist.json")}
	bus := events.NewEventBus(logger)
	bus.Subscribe(events.WhitelistAdded, func(_ context.Context, ev events.Event) error {
		f.greeted = append(f.greeted, ev.Payload.(events.WhitelistAddedPayload))
		return nil
	})
	f.poller = NewPoller(db, bus, f.path, logger)
	return f
}

func (f *fixture) write(t *testing.T, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(f.path, []byte(body), 0o644))
}

func TestNormalizeUUID(t *testing.T) {
	assert.Equal(t, "069a79f444e94726a5befca90e38aaf5", NormalizeUUID(" 069A79F4-44E9-4726-A5BE-FCA90E38AAF5 "))
}

func TestCheckNotifiesNewPlayersOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	app, err := models.NewApplication("https://www.youtube.com/watch?v=abcdef", "abcdef", "Alex",
		"853c80ef3c3749fdaa49938b674adae6", "alex#1", "")
	require.NoError(t, err)
	_, err = f.db.CreateApplication(ctx, app)
	require.NoError(t, err)
	_, err = f.db.CreateUser(ctx, &models.User{Username: "Steve", PasswordHash: "x", DiscordName: "steve#2"})
	require.NoError(t, err)

	f.write(t, `[
		{"uuid":"853C80EF-3C37-49FD-AA49-938B674ADAE6","name":"Alex"},
		{"uuid":"8667ba71-b85a-4004-af54-457a9734eed7","name":"steve"},
		{"uuid":"11111111-2222-3333-4444-555555555555","name":"Stranger"},
		{"uuid":"","name":"Broken"}
	]`)

	n, err := f.poller.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []events.WhitelistAddedPayload{
		{PlayerName: "Alex", DiscordName: "alex#1"},
		{PlayerName: "steve", DiscordName: "steve#2"},
	}, f.greeted)

	seen, err := f.db.WhitelistSeen(ctx, "11111111222233334444555555555555")
	require.NoError(t, err)
	assert.True(t, seen)

	n, err = f.poller.Check(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, f.greeted, 2)
}

func TestCheckBadFiles(t *testing.T) {
	f := newFixture(t)

	n, err := f.poller.Check(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	f.write(t, `{"not":"a list"}`)
	n, err = f.poller.Check(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSettingOverridesDefaultPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other := filepath.Join(t.TempDir(), "other.json")
	require.NoError(t, os.WriteFile(other, []byte(`[{"uuid":"aa-bb","name":"Zed"}]`), 0o644))
	_, err := f.db.CreateUser(ctx, &models.User{Username: "Zed", PasswordHash: "x", DiscordName: "zed"})
	require.NoError(t, err)

	require.NoError(t, f.db.SetSetting(ctx, models.SettingWhitelistPath, other))
	n, err := f.poller.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSchedule(t *testing.T) {
	f := newFixture(t)
	c := cron.New()
	require.NoError(t, f.poller.Schedule(c, "@every 1m"))
	assert.Len(t, c.Entries(), 1)
	assert.Error(t, f.poller.Schedule(c, "not a schedule"))
}
