package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"mcportal/internal/access"
	"mcportal/internal/applications"
	"mcportal/internal/audit"
	"mcportal/internal/calendar"
	"mcportal/internal/database"
	"mcportal/internal/documents"
	"mcportal/internal/events"
	"mcportal/internal/mcping"
	"mcportal/internal/models"
	"mcportal/internal/mojang"
	"mcportal/internal/session"
	"mcportal/internal/status"
	"mcportal/internal/tickets"
	"mcportal/internal/uploads"
	"mcportal/internal/users"
	"mcportal/internal/whitelist"
)

const cookieName = "portal_session"

type offlineProber struct{}

func (offlineProber) Probe(context.Context, string, int) (*mcping.Response, error) {
	return nil, errors.New("connection refused")
}

type lookupStub struct{}

func (lookupStub) Lookup(_ context.Context, name string) mojang.Result {
	if name == "Alex" {
		return mojang.Result{Status: mojang.StatusOK, UUID: "853c80ef3c3749fdaa49938b674adae6"}
	}
	return mojang.Result{Status: mojang.StatusNotFound}
}

type harness struct {
	t       *testing.T
	handler http.Handler
	db      *database.DB
	users   *users.Service
	bus     *events.EventBus
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	logger := zerolog.New(io.Discard)
	dir := t.TempDir()
	db, err := database.NewDB(filepath.Join(dir, "portal.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := uploads.NewStore(filepath.Join(dir, "uploads"), 1<<20, logger)
	require.NoError(t, err)

	bus := events.NewEventBus(logger)
	userSvc := users.NewService(db, logger).WithCost(bcrypt.MinCost)
	deps := Deps{
		Store:        db,
		Access:       access.NewService(db, logger),
		Sessions:     session.NewManager(session.NewMemoryStore(), cookieName, time.Hour, false, logger),
		Users:        userSvc,
		Applications: applications.NewService(db, lookupStub{}, userSvc, bus, logger),
		Tickets:      tickets.NewService(db, bus, logger),
		Documents:    documents.NewService(db, store, bus, logger),
		Calendar:     calendar.NewService(db, time.UTC, logger),
		Status:       status.NewService(db, offlineProber{}, logger),
		Whitelist:    whitelist.NewPoller(db, bus, filepath.Join(dir, "whitelist.json"), logger),
		Exporter:     audit.NewExporter(db, time.UTC, logger),
		Uploads:      store,
		Bus:          bus,
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://portal.example.org"
	}
	srv := NewHTTPServer(deps, opts, logger)
	return &harness{t: t, handler: srv.Handler(), db: db, users: userSvc, bus: bus}
}

func (h *harness) account(name string, admin bool) {
	h.t.Helper()
	_, err := h.users.Create(context.Background(), name, "geheim123", admin, "")
	require.NoError(h.t, err)
}

// client is a browser with its own session cookie.
type client struct {
	h      *harness
	cookie *http.Cookie
	csrf   string
}

func (h *harness) client() *client {
	c := &client{h: h}
	var sess SessionResponse
	c.decode(c.do(http.MethodGet, "/api/session", nil), &sess)
	c.csrf = sess.CSRF
	return c
}

func (h *harness) login(name string) *client {
	c := h.client()
	rec := c.do(http.MethodPost, "/api/login", LoginRequest{Username: name, Password: "geheim123"})
	require.Equal(h.t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		CSRF string `json:"csrf"`
	}
	c.decode(rec, &resp)
	c.csrf = resp.CSRF
	return c
}

func (c *client) send(req *http.Request) *httptest.ResponseRecorder {
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}
	if c.csrf != "" {
		req.Header.Set(session.CSRFHeader, c.csrf)
	}
	rec := httptest.NewRecorder()
	c.h.handler.ServeHTTP(rec, req)
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == cookieName && ck.Value != "" {
			c.cookie = ck
		}
	}
	return rec
}

func (c *client) do(method, path string, body any) *httptest.ResponseRecorder {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(c.h.t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req)
}

func (c *client) upload(path string, fields map[string]string, fileField, filename, content string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(c.h.t, mw.WriteField(k, v))
	}
	if fileField != "" {
		fw, err := mw.CreateFormFile(fileField, filename)
		require.NoError(c.h.t, err)
		_, err = io.WriteString(fw, content)
		require.NoError(c.h.t, err)
	}
	require.NoError(c.h.t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.send(req)
}

func (c *client) decode(rec *httptest.ResponseRecorder, v any) {
	c.h.t.Helper()
	require.NoError(c.h.t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	msg, _ := body["error"].(string)
	return msg
}

func TestLoginAndSession(t *testing.T) {
	h := newHarness(t, Options{})
	h.account("admin", true)
	c := h.client()
	require.NotEmpty(t, c.csrf)

	token := c.csrf
	c.csrf = ""
	rec := c.do(http.MethodPost, "/api/login", LoginRequest{Username: "admin", Password: "geheim123"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	c.csrf = token

	rec = c.do(http.MethodPost, "/api/login", LoginRequest{Username: "admin", Password: "falsch"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Benutzername oder Passwort ist falsch.", errorOf(t, rec))

	rec = c.do(http.MethodPost, "/api/login", LoginRequest{Username: "admin", Password: "geheim123"})
	require.Equal(t, http.StatusOK, rec.Code)
	var login struct {
		OK   bool        `json:"ok"`
		User SessionUser `json:"user"`
		CSRF string      `json:"csrf"`
	}
	c.decode(rec, &login)
	assert.True(t, login.User.IsAdmin)
	assert.NotEqual(t, token, login.CSRF)
	c.csrf = login.CSRF

	var sess SessionResponse
	c.decode(c.do(http.MethodGet, "/api/session", nil), &sess)
	require.NotNil(t, sess.User)
	assert.Equal(t, "admin", sess.User.Username)
	require.Len(t, sess.Flashes, 1)
	assert.Equal(t, "Willkommen zurück, admin!", sess.Flashes[0].Message)

	c.decode(c.do(http.MethodGet, "/api/session", nil), &sess)
	assert.Empty(t, sess.Flashes)

	rec = c.do(http.MethodPost, "/api/logout", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	c.decode(c.do(http.MethodGet, "/api/session", nil), &sess)
	assert.Nil(t, sess.User)
}

func TestLoginThrottled(t *testing.T) {
	h := newHarness(t, Options{LoginLimiter: NewLoginLimiter(rate.Every(time.Hour), 2)})
	c := h.client()
	for i := 0; i < 2; i++ {
		rec := c.do(http.MethodPost, "/api/login", LoginRequest{Username: "x", Password: "y"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec := c.do(http.MethodPost, "/api/login", LoginRequest{Username: "x", Password: "y"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func (c *client) loginVia(forwardedFor string) *httptest.ResponseRecorder {
	b, err := json.Marshal(LoginRequest{Username: "x", Password: "y"})
	require.NoError(c.h.t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", forwardedFor)
	return c.send(req)
}

func TestLoginThrottleIgnoresUntrustedForwardedFor(t *testing.T) {
	h := newHarness(t, Options{LoginLimiter: NewLoginLimiter(rate.Every(time.Hour), 2)})
	c := h.client()

	codes := make([]int, 0, 6)
	for i := 0; i < 6; i++ {
		codes = append(codes, c.loginVia(fmt.Sprintf("203.0.113.%d", i+1)).Code)
	}
	assert.Equal(t, []int{
		http.StatusUnauthorized, http.StatusUnauthorized,
		http.StatusTooManyRequests, http.StatusTooManyRequests,
		http.StatusTooManyRequests, http.StatusTooManyRequests,
	}, codes)
}

func TestLoginThrottleBehindTrustedProxy(t *testing.T) {
	// httptest requests come from 192.0.2.1.
	proxies, err := NewProxyTrust([]string{"192.0.2.0/24"})
	require.NoError(t, err)
	h := newHarness(t, Options{LoginLimiter: NewLoginLimiter(rate.Every(time.Hour), 2), Proxies: proxies})
	c := h.client()

	for i := 0; i < 4; i++ {
		rec := c.loginVia(fmt.Sprintf("203.0.113.%d", i+1))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "distinct clients behind the proxy")
	}
	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusUnauthorized, c.loginVia("198.51.100.7").Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, c.loginVia("198.51.100.7").Code)
}

func TestRoleChecks(t *testing.T) {
	h := newHarness(t, Options{})
	h.account("admin", true)
	h.account("steve", false)

	anon := h.client()
	rec := anon.do(http.MethodGet, "/api/documents", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bitte einloggen.", errorOf(t, rec))

	member := h.login("steve")
	rec = member.do(http.MethodGet, "/api/documents", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = member.do(http.MethodGet, "/api/admin/users", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Nur für Admins.", errorOf(t, rec))

	admin := h.login("admin")
	rec = admin.do(http.MethodGet, "/api/admin/users", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDeletedAccountLosesAccess(t *testing.T) {
	h := newHarness(t, Options{})
	h.account("admin", true)
	h.account("steve", false)
	member := h.login("steve")
	admin := h.login("admin")

	var list struct {
		Users []models.User `json:"users"`
	}
	admin.decode(admin.do(http.MethodGet, "/api/admin/users", nil), &list)
	var steveID int64
	for _, u := range list.Users {
		if u.Username == "steve" {
			steveID = u.ID
		}
	}
	require.NotZero(t, steveID)

	rec := admin.do(http.MethodDelete, fmt.Sprintf("/api/admin/users/%d", steveID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = member.do(http.MethodGet, "/api/tickets", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestApply(t *testing.T) {
	h := newHarness(t, Options{})
	c := h.client()

	rec := c.do(http.MethodPost, "/api/apply", applications.Form{})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	require.NoError(t, h.db.SaveSiteSettings(context.Background(), models.SiteSettings{ApplyEnabled: true, ApplyTitle: "Season 3"}))
	var info applications.Info
	c.decode(c.do(http.MethodGet, "/api/apply", nil), &info)
	assert.True(t, info.Enabled)
	assert.Equal(t, "Season 3", info.Title)

	rec = c.do(http.MethodPost, "/api/apply", applications.Form{YouTubeURL: "nope", MCName: "x", DiscordName: "a"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var problems problemResponse
	c.decode(rec, &problems)
	assert.Len(t, problems.Problems, 3)

	form := applications.Form{
		YouTubeURL:  "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		MCName:      "Alex",
		DiscordName: "alex#1",
	}
	rec = c.do(http.MethodPost, "/api/apply", form)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = c.do(http.MethodPost, "/api/apply", form)
	assert.Equal(t, http.StatusConflict, rec.Code)
	c.decode(rec, &problems)
	assert.Equal(t, []string{applications.ProblemDuplicate}, problems.Problems)
}

func TestTicketsOverHTTP(t *testing.T) {
	h := newHarness(t, Options{})
	h.account("admin", true)
	h.account("steve", false)
	h.account("alex", false)
	steve := h.login("steve")

	rec := steve.do(http.MethodPost, "/api/tickets", TicketRequest{Subject: "Hilfe", Body: "Mein Haus ist weg"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		ID int64 `json:"id"`
	}
	steve.decode(rec, &created)
	path := fmt.Sprintf("/api/tickets/%d", created.ID)

	alex := h.login("alex")
	rec = alex.do(http.MethodGet, path, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	admin := h.login("admin")
	rec = admin.do(http.MethodPost, path+"/reply", ReplyRequest{Body: "Schauen wir uns an."})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = steve.do(http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = steve.do(http.MethodPost, path+"/close", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = steve.do(http.MethodPost, path+"/reply", ReplyRequest{Body: "Doch noch was"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Das Ticket ist geschlossen.", errorOf(t, rec))

	var thread tickets.Thread
	steve.decode(steve.do(http.MethodGet, path, nil), &thread)
	assert.Len(t, thread.Messages, 2)

	var all struct {
		Tickets []models.Ticket `json:"tickets"`
	}
	admin.decode(admin.do(http.MethodGet, "/api/admin/tickets", nil), &all)
	assert.Len(t, all.Tickets, 1)
}

func TestServersAndHome(t *testing.T) {
	h := newHarness(t, Options{PageTTL: time.Minute, PollTTL: 10 * time.Second})
	h.account("admin", true)
	admin := h.login("admin")

	for _, name := range []string{"Survival", "Creative"} {
		rec := admin.do(http.MethodPost, "/api/admin/servers", ServerRequest{Name: name, Host: "127.0.0.1", Port: 1})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
	rec := admin.do(http.MethodPost, "/api/admin/servers", ServerRequest{Name: "", Host: "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var list struct {
		Servers []models.Server `json:"servers"`
	}
	admin.decode(admin.do(http.MethodGet, "/api/admin/servers", nil), &list)
	require.Len(t, list.Servers, 2)
	rec = admin.do(http.MethodPost, fmt.Sprintf("/api/admin/servers/%d/move", list.Servers[1].ID),
		map[string]string{"direction": "up"})
	require.Equal(t, http.StatusOK, rec.Code)

	var home HomeResponse
	anon := h.client()
	anon.decode(anon.do(http.MethodGet, "/api/home", nil), &home)
	require.Len(t, home.Servers, 2)
	assert.Equal(t, "Creative", home.Servers[0].Name)
	assert.False(t, home.Servers[0].Status.Online)
	assert.Empty(t, home.Posts)

	rec = anon.do(http.MethodGet, fmt.Sprintf("/api/status?id=%d", home.Servers[1].ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var poll struct {
		Servers []status.Result `json:"servers"`
	}
	anon.decode(rec, &poll)
	require.Len(t, poll.Servers, 1)
	assert.True(t, poll.Servers[0].Cached)

	rec = anon.do(http.MethodGet, "/api/status?id=999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPostsWithImage(t *testing.T) {
	h := newHarness(t, Options{})
	h.account("admin", true)
	admin := h.login("admin")

	png := "\x89PNG\r\n\x1a\n" + strings.Repeat("\x00", 32)
	rec := admin.upload("/api/admin/posts", map[string]string{"title": "Neu", "content": "Hallo", "published": "1"},
		"image", "bild.png", png)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = admin.upload("/api/admin/posts", map[string]string{"title": "Kaputt", "content": "x"},
		"image", "evil.png", "#!/bin/sh\necho hi")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var home HomeResponse
	anon := h.client()
	anon.decode(anon.do(http.MethodGet, "/api/home", nil), &home)
	require.Len(t, home.Posts, 1)
	require.True(t, strings.HasPrefix(home.Posts[0].ImagePath, uploads.ImageURLPrefix))

	rec = anon.do(http.MethodGet, home.Posts[0].ImagePath, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = admin.do(http.MethodDelete, fmt.Sprintf("/api/admin/posts/%d", home.Posts[0].ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = anon.do(http.MethodGet, home.Posts[0].ImagePath, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDocumentDownload(t *testing.T) {
	h := newHarness(t, Options{})
	h.account("admin", true)
	admin := h.login("admin")

	rec := admin.upload("/api/admin/documents", nil, "file", "welt.zip", "world-data")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var uploaded struct {
		Document models.Document `json:"document"`
	}
	admin.decode(rec, &uploaded)
	path := fmt.Sprintf("/api/documents/%d/download", uploaded.Document.ID)

	anon := h.client()
	rec = anon.do(http.MethodGet, path, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Kein Zugriff.", errorOf(t, rec))

	rec = admin.do(http.MethodGet, path, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "world-data", rec.Body.String())

	rec = admin.do(http.MethodPost, fmt.Sprintf("/api/admin/documents/%d/public", uploaded.Document.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var downloads struct {
		Documents []models.Document `json:"documents"`
	}
	anon.decode(anon.do(http.MethodGet, "/api/downloads", nil), &downloads)
	assert.Len(t, downloads.Documents, 1)

	rec = anon.do(http.MethodGet, path, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "welt.zip")

	rec = anon.do(http.MethodGet, "/api/documents/999/download", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCalendarOverHTTP(t *testing.T) {
	h := newHarness(t, Options{})
	h.account("admin", true)
	h.account("mod", true)
	admin := h.login("admin")

	rec := admin.do(http.MethodPost, "/api/admin/calendar/events", calendar.Input{
		Title:            "Bauabend",
		DateStart:        "2024-01-01",
		TimeStart:        "18:00",
		TimeEnd:          "20:00",
		RecIntervalWeeks: 1,
		RecWeekdays:      []string{"MO"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		ID int64 `json:"id"`
	}
	admin.decode(rec, &created)

	rec = admin.do(http.MethodGet, "/api/admin/calendar/events?start=2024-01-01&end=2024-01-22", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []CalendarEvent
	admin.decode(rec, &list)
	require.Len(t, list, 3)
	assert.Equal(t, fmt.Sprintf("e%d@2024-01-08", created.ID), list[1].ID)
	assert.True(t, list[1].ExtendedProps.CanEdit)

	rec = admin.do(http.MethodGet, "/api/admin/calendar/events?start=bad&end=2024-01-22", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	mod := h.login("mod")
	rec = mod.do(http.MethodDelete, "/api/admin/calendar/events/"+list[1].ID, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = admin.do(http.MethodDelete, "/api/admin/calendar/events/"+list[1].ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	admin.decode(admin.do(http.MethodGet, "/api/admin/calendar/events?start=2024-01-01&end=2024-01-22", nil), &list)
	assert.Len(t, list, 2)

	rec = admin.do(http.MethodGet, "/api/admin/calendar/export.ics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "BEGIN:VCALENDAR")
	assert.Contains(t, rec.Body.String(), "portal.example.org")

	rec = admin.do(http.MethodGet, "/api/admin/calendar/events/999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExportApplications(t *testing.T) {
	h := newHarness(t, Options{Now: func() time.Time { return time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC) }})
	h.account("admin", true)
	admin := h.login("admin")

	rec := admin.do(http.MethodGet, "/api/admin/applications/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "bewerbungen_2024-05-02.xlsx")
	assert.NotZero(t, rec.Body.Len())

	rec = admin.do(http.MethodGet, "/api/admin/applications?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = admin.do(http.MethodPost, "/api/admin/applications/1/explode", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = admin.do(http.MethodPost, "/api/admin/applications/1/accept", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDiscordTestPublishes(t *testing.T) {
	h := newHarness(t, Options{})
	h.account("admin", true)
	var got []events.DiscordTestPayload
	h.bus.Subscribe(events.DiscordTest, func(_ context.Context, ev events.Event) error {
		got = append(got, ev.Payload.(events.DiscordTestPayload))
		return nil
	})
	admin := h.login("admin")

	rec := admin.do(http.MethodPost, "/api/admin/discord/test", map[string]string{"discord_name": " steve "})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []events.DiscordTestPayload{{DiscordName: "steve", Requester: "admin"}}, got)

	rec = admin.do(http.MethodPost, "/api/admin/discord/test", map[string]string{"discord_name": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"unauthenticated", &access.AccessDeniedError{Reason: "Bitte einloggen.", Unauthenticated: true}, http.StatusUnauthorized},
		{"forbidden", fmt.Errorf("wrapped: %w", &access.AccessDeniedError{Reason: "Kein Zugriff."}), http.StatusForbidden},
		{"last admin", users.ErrLastAdmin, http.StatusConflict},
		{"validation", fmt.Errorf("%w: bad", models.ErrValidation), http.StatusBadRequest},
		{"too large", fmt.Errorf("save: %w", uploads.ErrTooLarge), http.StatusRequestEntityTooLarge},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, msg := errorStatus(tt.err)
			assert.Equal(t, tt.code, code)
			assert.NotEmpty(t, msg)
		})
	}
}
