package discord

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcportal/internal/models"
)

type fakeDiscord struct {
	mu       sync.Mutex
	members  string
	dmStatus int
	messages map[string][]string
	auth     []string
}

func (f *fakeDiscord) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /guilds/{guild}/members/search", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.auth = append(f.auth, r.Header.Get("Authorization"))
		f.mu.Unlock()
		assert.Equal(t, "g1", r.PathValue("guild"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		_, _ = io.WriteString(w, f.members)
	})
	mux.HandleFunc("POST /users/@me/channels", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = io.WriteString(w, `{"id":"dm-`+body["recipient_id"]+`"}`)
	})
	mux.HandleFunc("POST /channels/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if id != "fallback" && f.dmStatus != 0 {
			w.WriteHeader(f.dmStatus)
			return
		}
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		f.messages[id] = append(f.messages[id], body["content"])
		f.mu.Unlock()
		_, _ = io.WriteString(w, `{}`)
	})
	return mux
}

func newTestClient(t *testing.T, f *fakeDiscord, creds Credentials) *Client {
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, SettingsCredentials{Defaults: creds}, 1000, 10, zerolog.New(io.Discard))
}

const members = `[
	{"nick":"","user":{"id":"1","username":"someone","global_name":"Someone"}},
	{"nick":"Alex","user":{"id":"2","username":"alex_mc","global_name":""}}
]`

func TestFindUserIDPrefersExactMatch(t *testing.T) {
	f := &fakeDiscord{members: members, messages: map[string][]string{}}
	c := newTestClient(t, f, Credentials{BotToken: "tok", GuildID: "g1"})

	id, err := c.FindUserID(context.Background(), "alex")
	require.NoError(t, err)
	assert.Equal(t, "2", id)

	id, err = c.FindUserID(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Equal(t, "1", id)
	assert.Equal(t, "Bot tok", f.auth[0])
}

func TestFindUserIDNoResults(t *testing.T) {
	f := &fakeDiscord{members: `[]`, messages: map[string][]string{}}
	c := newTestClient(t, f, Credentials{BotToken: "tok", GuildID: "g1"})

	_, err := c.FindUserID(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNoMember)
}

func TestNotifyByNameSendsDM(t *testing.T) {
	f := &fakeDiscord{members: members, messages: map[string][]string{}}
	c := newTestClient(t, f, Credentials{BotToken: "tok", GuildID: "g1", FallbackChannelID: "fallback"})

	require.NoError(t, c.NotifyByName(context.Background(), "Alex", "hallo"))
	assert.Equal(t, []string{"hallo"}, f.messages["dm-2"])
	assert.Empty(t, f.messages["fallback"])
}

func TestNotifyByNameFallsBack(t *testing.T) {
	f := &fakeDiscord{members: members, dmStatus: http.StatusForbidden, messages: map[string][]string{}}
	c := newTestClient(t, f, Credentials{BotToken: "tok", GuildID: "g1", FallbackChannelID: "fallback"})

	require.NoError(t, c.NotifyByName(context.Background(), "Alex", "hallo"))
	require.Len(t, f.messages["fallback"], 1)
	assert.Equal(t, "Benachrichtigung für **Alex** (DM nicht möglich): hallo", f.messages["fallback"][0])
}

func TestNotifyByNameWithoutTokenIsNoop(t *testing.T) {
	f := &fakeDiscord{members: members, messages: map[string][]string{}}
	c := newTestClient(t, f, Credentials{})

	require.NoError(t, c.NotifyByName(context.Background(), "Alex", "hallo"))
	assert.Empty(t, f.auth)
	assert.Empty(t, f.messages)
}

type settingsStub struct {
	settings models.SiteSettings
}

func (s settingsStub) LoadSiteSettings(context.Context) (models.SiteSettings, error) {
	return s.settings, nil
}

func TestSettingsCredentialsOverrideDefaults(t *testing.T) {
	src := SettingsCredentials{
		Store:    settingsStub{settings: models.SiteSettings{DiscordBotToken: "db-token"}},
		Defaults: Credentials{BotToken: "cfg-token", GuildID: "cfg-guild"},
	}
	creds, err := src.DiscordCredentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "db-token", creds.BotToken)
	assert.Equal(t, "cfg-guild", creds.GuildID)
}
