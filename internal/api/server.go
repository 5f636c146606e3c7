// Package api exposes the portal as a JSON API over net/http.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"mcportal/internal/access"
	"mcportal/internal/applications"
	"mcportal/internal/audit"
	"mcportal/internal/calendar"
	"mcportal/internal/config"
	"mcportal/internal/documents"
	"mcportal/internal/events"
	"mcportal/internal/models"
	"mcportal/internal/session"
	"mcportal/internal/status"
	"mcportal/internal/tickets"
	"mcportal/internal/uploads"
	"mcportal/internal/users"
	"mcportal/internal/whitelist"
)

// ContentStore holds the rows edited directly from the admin pages.
// *database.DB implements it.
type ContentStore interface {
	ListPosts(ctx context.Context) ([]models.Post, error)
	ListPublishedPosts(ctx context.Context, limit int) ([]models.Post, error)
	GetPost(ctx context.Context, id int64) (*models.Post, error)
	CreatePost(ctx context.Context, p *models.Post) (int64, error)
	UpdatePost(ctx context.Context, p *models.Post) error
	TogglePostPublished(ctx context.Context, id int64) (bool, error)
	DeletePost(ctx context.Context, id int64) (string, error)

	ListServers(ctx context.Context) ([]models.Server, error)
	ListEnabledServers(ctx context.Context) ([]models.Server, error)
	GetServer(ctx context.Context, id int64) (*models.Server, error)
	CreateServer(ctx context.Context, s *models.Server) (int64, error)
	UpdateServer(ctx context.Context, s *models.Server) error
	DeleteServer(ctx context.Context, id int64) error
	MoveServer(ctx context.Context, id int64, up bool) error

	LoadSiteSettings(ctx context.Context) (models.SiteSettings, error)
	SaveSiteSettings(ctx context.Context, s models.SiteSettings) error
}

// Deps are the services behind the handlers.
type Deps struct {
	Store        ContentStore
	Access       *access.Service
	Sessions     *session.Manager
	Users        *users.Service
	Applications *applications.Service
	Tickets      *tickets.Service
	Documents    *documents.Service
	Calendar     *calendar.Service
	Status       *status.Service
	Whitelist    *whitelist.Poller
	Exporter     *audit.Exporter
	Uploads      *uploads.Store
	Bus          *events.EventBus
}

// Options tune caching and limits.
type Options struct {
	PageTTL        time.Duration
	PollTTL        time.Duration
	BaseURL        string
	MaxUploadBytes int64
	LoginLimiter   *LoginLimiter
	Proxies        *ProxyTrust
	Now            func() time.Time
}

// OptionsFromConfig derives handler options from the loaded config.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	proxies, err := NewProxyTrust(cfg.Server.TrustedProxies)
	if err != nil {
		return Options{}, err
	}
	return Options{
		PageTTL:        cfg.StatusPageTTL(),
		PollTTL:        cfg.StatusPollTTL(),
		BaseURL:        cfg.Server.BaseURL,
		MaxUploadBytes: cfg.MaxUploadBytes(),
		Proxies:        proxies,
	}, nil
}

// HTTPServer routes API requests to the portal services.
type HTTPServer struct {
	Deps
	opts    Options
	limiter *LoginLimiter
	proxies *ProxyTrust
	now     func() time.Time
	logger  zerolog.Logger
}

func NewHTTPServer(deps Deps, opts Options, logger zerolog.Logger) *HTTPServer {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 20 << 20
	}
	s := &HTTPServer{
		Deps:    deps,
		opts:    opts,
		limiter: opts.LoginLimiter,
		proxies: opts.Proxies,
		now:     opts.Now,
		logger:  logger.With().Str("component", "api").Logger(),
	}
	if s.limiter == nil {
		s.limiter = NewLoginLimiter(DefaultLoginRate, DefaultLoginBurst)
	}
	if s.proxies == nil {
		s.proxies = &ProxyTrust{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Handler returns the complete router wrapped in session and CSRF handling.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()

	// Public
	mux.HandleFunc("GET /api/home", s.handleHome)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/downloads", s.handleDownloads)
	mux.HandleFunc("GET /api/documents/{id}/download", s.handleDocumentDownload)
	mux.HandleFunc("GET /api/session", s.handleSession)
	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("POST /api/logout", s.handleLogout)
	mux.HandleFunc("GET /api/apply", s.handleApplyInfo)
	mux.HandleFunc("POST /api/apply", s.handleApplySubmit)
	if s.Uploads != nil {
		images := http.FileServer(http.Dir(filepath.Join(s.Uploads.Dir(), "posts")))
		mux.Handle("GET "+uploads.ImageURLPrefix, http.StripPrefix(uploads.ImageURLPrefix, images))
	}

	// Members
	mux.HandleFunc("GET /api/documents", s.member(s.handleMyDocuments))
	mux.HandleFunc("POST /api/account/password", s.member(s.handleChangePassword))
	mux.HandleFunc("GET /api/tickets", s.member(s.handleMyTickets))
	mux.HandleFunc("POST /api/tickets", s.member(s.handleCreateTicket))
	mux.HandleFunc("GET /api/tickets/{id}", s.member(s.handleViewTicket))
	mux.HandleFunc("POST /api/tickets/{id}/reply", s.member(s.handleReplyTicket))
	mux.HandleFunc("POST /api/tickets/{id}/close", s.member(s.handleCloseTicket))
	mux.HandleFunc("POST /api/tickets/{id}/reopen", s.member(s.handleReopenTicket))
	mux.HandleFunc("DELETE /api/tickets/{id}", s.member(s.handleDeleteTicket))

	// Admins
	mux.HandleFunc("GET /api/admin/users", s.admin(s.handleListUsers))
	mux.HandleFunc("POST /api/admin/users", s.admin(s.handleCreateUser))
	mux.HandleFunc("DELETE /api/admin/users/{id}", s.admin(s.handleDeleteUser))
	mux.HandleFunc("POST /api/admin/users/{id}/password", s.admin(s.handleSetPassword))
	mux.HandleFunc("POST /api/admin/users/{id}/discord", s.admin(s.handleSetDiscordName))

	mux.HandleFunc("GET /api/admin/documents", s.admin(s.handleAdminDocuments))
	mux.HandleFunc("POST /api/admin/documents", s.admin(s.handleUploadDocument))
	mux.HandleFunc("GET /api/admin/documents/{id}/assignees", s.admin(s.handleAssignees))
	mux.HandleFunc("POST /api/admin/documents/{id}/assign", s.admin(s.handleAssignDocument))
	mux.HandleFunc("POST /api/admin/documents/{id}/unassign", s.admin(s.handleUnassignDocument))
	mux.HandleFunc("POST /api/admin/documents/{id}/public", s.admin(s.handleTogglePublic))
	mux.HandleFunc("DELETE /api/admin/documents/{id}", s.admin(s.handleDeleteDocument))

	mux.HandleFunc("GET /api/admin/posts", s.admin(s.handleListPosts))
	mux.HandleFunc("POST /api/admin/posts", s.admin(s.handleCreatePost))
	mux.HandleFunc("PUT /api/admin/posts/{id}", s.admin(s.handleUpdatePost))
	mux.HandleFunc("POST /api/admin/posts/{id}/publish", s.admin(s.handleTogglePost))
	mux.HandleFunc("DELETE /api/admin/posts/{id}", s.admin(s.handleDeletePost))

	mux.HandleFunc("GET /api/admin/servers", s.admin(s.handleListServers))
	mux.HandleFunc("POST /api/admin/servers", s.admin(s.handleCreateServer))
	mux.HandleFunc("PUT /api/admin/servers/{id}", s.admin(s.handleUpdateServer))
	mux.HandleFunc("DELETE /api/admin/servers/{id}", s.admin(s.handleDeleteServer))
	mux.HandleFunc("POST /api/admin/servers/{id}/move", s.admin(s.handleMoveServer))

	mux.HandleFunc("GET /api/admin/settings", s.admin(s.handleGetSettings))
	mux.HandleFunc("PUT /api/admin/settings", s.admin(s.handleSaveSettings))
	mux.HandleFunc("POST /api/admin/discord/test", s.admin(s.handleDiscordTest))
	mux.HandleFunc("POST /api/admin/whitelist/check", s.admin(s.handleWhitelistCheck))

	mux.HandleFunc("GET /api/admin/applications", s.admin(s.handleListApplications))
	mux.HandleFunc("GET /api/admin/applications/export", s.admin(s.handleExportApplications))
	mux.HandleFunc("GET /api/admin/applications/{id}", s.admin(s.handleGetApplication))
	mux.HandleFunc("POST /api/admin/applications/{id}/{decision}", s.admin(s.handleDecideApplication))

	mux.HandleFunc("GET /api/admin/tickets", s.admin(s.handleAllTickets))

	mux.HandleFunc("GET /api/admin/calendar/events", s.admin(s.handleCalendarList))
	mux.HandleFunc("POST /api/admin/calendar/events", s.admin(s.handleCalendarCreate))
	mux.HandleFunc("GET /api/admin/calendar/events/{id}", s.admin(s.handleCalendarGet))
	mux.HandleFunc("PUT /api/admin/calendar/events/{id}", s.admin(s.handleCalendarUpdate))
	mux.HandleFunc("DELETE /api/admin/calendar/events/{id}", s.admin(s.handleCalendarDelete))
	mux.HandleFunc("GET /api/admin/calendar/export.ics", s.admin(s.handleCalendarExport))

	return s.logRequests(s.Sessions.Middleware(s.Sessions.CSRF(mux)))
}

func (s *HTTPServer) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("ip", s.proxies.ClientIP(r)).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

type actorHandler func(w http.ResponseWriter, r *http.Request, actor access.Actor)

func sessionUserID(r *http.Request) int64 {
	if sess := session.FromContext(r.Context()); sess != nil {
		return sess.Data.UserID
	}
	return 0
}

// member runs h for any logged-in account that still exists.
func (s *HTTPServer) member(h actorHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := s.Access.Middleware(r.Context(), sessionUserID(r))
		if err != nil {
			s.fail(w, err)
			return
		}
		h(w, r, actor)
	}
}

// admin runs h only for current admins.
func (s *HTTPServer) admin(h actorHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := s.Access.AdminMiddleware(r.Context(), sessionUserID(r))
		if err != nil {
			s.fail(w, err)
			return
		}
		h(w, r, actor)
	}
}

// optionalActor resolves the caller if logged in, nil otherwise.
func (s *HTTPServer) optionalActor(r *http.Request) *access.Actor {
	uid := sessionUserID(r)
	if uid <= 0 {
		return nil
	}
	actor, err := s.Access.Resolve(r.Context(), uid)
	if err != nil {
		return nil
	}
	return &actor
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeOK(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

// icsDomain is the host part of the base URL used in event UIDs.
func (s *HTTPServer) icsDomain() string {
	if u, err := url.Parse(s.opts.BaseURL); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	return "localhost"
}
