// Package session provides server-side sessions with flash messages and
// CSRF protection.
package session

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// CSRFHeader and CSRFField carry the token on unsafe requests.
const (
	CSRFHeader = "X-CSRF-Token"
	CSRFField  = "csrf"
)

// Flash is a one-shot message shown on the next page.
type Flash struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Data is what a store persists.
type Data struct {
	UserID   int64   `json:"user_id,omitempty"`
	Username string  `json:"username,omitempty"`
	IsAdmin  bool    `json:"is_admin,omitempty"`
	CSRF     string  `json:"csrf"`
	Flashes  []Flash `json:"flashes,omitempty"`
}

// Session is the request-scoped view of the caller's session.
type Session struct {
	ID   string
	Data Data

	w         http.ResponseWriter
	destroyed bool
}

type ctxKey struct{}

// FromContext returns the session attached by Manager.Middleware, or nil.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(ctxKey{}).(*Session)
	return s
}

// WithSession attaches s to ctx.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// LoggedIn reports whether a user is attached.
func (s *Session) LoggedIn() bool {
	return s.Data.UserID > 0
}

// AddFlash queues a message.
func (s *Session) AddFlash(kind, message string) {
	s.Data.Flashes = append(s.Data.Flashes, Flash{Type: kind, Message: message})
}

// ConsumeFlashes returns the queued messages and clears them.
func (s *Session) ConsumeFlashes() []Flash {
	out := s.Data.Flashes
	s.Data.Flashes = nil
	if out == nil {
		out = []Flash{}
	}
	return out
}

// Manager loads and persists sessions around handlers.
type Manager struct {
	store      Store
	cookieName string
	ttl        time.Duration
	secure     bool
	logger     zerolog.Logger
}

func NewManager(store Store, cookieName string, ttl time.Duration, secure bool, logger zerolog.Logger) *Manager {
	return &Manager{
		store:      store,
		cookieName: cookieName,
		ttl:        ttl,
		secure:     secure,
		logger:     logger.With().Str("component", "session").Logger(),
	}
}

func newToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}

func (m *Manager) setCookie(w http.ResponseWriter, id string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (m *Manager) load(r *http.Request) *Session {
	if c, err := r.Cookie(m.cookieName); err == nil && c.Value != "" {
		data, err := m.store.Get(r.Context(), c.Value)
		if err == nil {
			if data.CSRF == "" {
				data.CSRF = newToken()
			}
			return &Session{ID: c.Value, Data: *data}
		}
		if !errors.Is(err, ErrNotFound) {
			m.logger.Warn().Err(err).Msg("session load failed")
		}
	}
	return &Session{ID: uuid.NewString(), Data: Data{CSRF: newToken()}}
}

// Middleware attaches the session to the request context and saves it
// after the handler returns.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := m.load(r)
		s.w = w
		m.setCookie(w, s.ID, int(m.ttl.Seconds()))

		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))

		if s.destroyed {
			return
		}
		if err := m.store.Set(context.WithoutCancel(r.Context()), s.ID, &s.Data, m.ttl); err != nil {
			m.logger.Error().Err(err).Msg("session save failed")
		}
	})
}

// Renew moves the session to a fresh id, for example after login. The
// response must not have been written yet.
func (m *Manager) Renew(ctx context.Context, s *Session) {
	old := s.ID
	if err := m.store.Delete(ctx, old); err != nil {
		m.logger.Warn().Err(err).Msg("session delete failed")
	}
	s.ID = uuid.NewString()
	s.Data.CSRF = newToken()
	if s.w != nil {
		m.setCookie(s.w, s.ID, int(m.ttl.Seconds()))
	}
}

// Login stores the user in the session under a renewed id.
func (m *Manager) Login(ctx context.Context, s *Session, userID int64, username string, isAdmin bool) {
	m.Renew(ctx, s)
	s.Data.UserID = userID
	s.Data.Username = username
	s.Data.IsAdmin = isAdmin
}

// Logout clears the user but keeps a fresh anonymous session for flashes.
func (m *Manager) Logout(ctx context.Context, s *Session) {
	m.Renew(ctx, s)
	s.Data.UserID = 0
	s.Data.Username = ""
	s.Data.IsAdmin = false
}

// Destroy removes the session entirely and expires the cookie.
func (m *Manager) Destroy(ctx context.Context, s *Session) {
	_ = m.store.Delete(ctx, s.ID)
	s.destroyed = true
	if s.w != nil {
		m.setCookie(s.w, "", -1)
	}
}

func safeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// ValidToken compares the request token with the session token in constant time.
func (s *Session) ValidToken(token string) bool {
	return token != "" && subtle.ConstantTimeCompare([]byte(token), []byte(s.Data.CSRF)) == 1
}

// CSRF rejects unsafe requests without a matching token. It must run inside
// Middleware.
func (m *Manager) CSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if safeMethod(r.Method) {
			next.ServeHTTP(w, r)
			return
		}
		s := FromContext(r.Context())
		token := r.Header.Get(CSRFHeader)
		if token == "" {
			token = r.FormValue(CSRFField)
		}
		if s == nil || !s.ValidToken(token) {
			m.logger.Info().Str("path", r.URL.Path).Msg("csrf token rejected")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "Ungültiges CSRF-Token, bitte Seite neu laden."})
			return
		}
		next.ServeHTTP(w, r)
	})
}
