package api

import (
	"net/http"
	"net/url"
	"strconv"

	"mcportal/internal/applications"
	"mcportal/internal/metrics"
	"mcportal/internal/models"
	"mcportal/internal/session"
	"mcportal/internal/status"
)

// homePostLimit caps the posts shown on the home page.
const homePostLimit = 50

// ServerStatus is a dashboard row.
type ServerStatus struct {
	models.Server
	Status status.Result `json:"status"`
}

// HomeResponse is the response for GET /api/home.
type HomeResponse struct {
	Posts   []models.Post  `json:"posts"`
	Servers []ServerStatus `json:"servers"`
}

// handleHome returns published posts and the enabled servers with status.
// GET /api/home
func (s *HTTPServer) handleHome(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("home")

	posts, err := s.Store.ListPublishedPosts(r.Context(), homePostLimit)
	if err != nil {
		s.fail(w, err)
		return
	}
	servers, err := s.Store.ListEnabledServers(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}

	refs := make([]status.ServerRef, len(servers))
	for i, srv := range servers {
		refs[i] = status.ServerRef{ID: srv.ID, Host: srv.Host, Port: srv.Port}
	}
	results := s.Status.GetAll(r.Context(), refs, s.opts.PageTTL)

	resp := HomeResponse{Posts: posts, Servers: make([]ServerStatus, len(servers))}
	for i, srv := range servers {
		resp.Servers[i] = ServerStatus{Server: srv, Status: results[i]}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleStatus is polled by the dashboard with the shorter TTL. An optional
// id restricts the answer to one server.
// GET /api/status?id=
func (s *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("status")

	servers, err := s.Store.ListEnabledServers(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}

	var only int64
	if raw := r.URL.Query().Get("id"); raw != "" {
		only, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Ungültige Server-ID.")
			return
		}
	}

	refs := make([]status.ServerRef, 0, len(servers))
	for _, srv := range servers {
		if only != 0 && srv.ID != only {
			continue
		}
		refs = append(refs, status.ServerRef{ID: srv.ID, Host: srv.Host, Port: srv.Port})
	}
	if only != 0 && len(refs) == 0 {
		writeError(w, http.StatusNotFound, "Server nicht gefunden.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"servers": s.Status.GetAll(r.Context(), refs, s.opts.PollTTL)})
}

// handleDownloads lists the public world downloads.
// GET /api/downloads
func (s *HTTPServer) handleDownloads(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("downloads")

	docs, err := s.Documents.ListPublic(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

// handleDocumentDownload streams a document the caller may read.
// GET /api/documents/{id}/download
func (s *HTTPServer) handleDocumentDownload(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("document_download")

	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Dokument nicht gefunden.")
		return
	}
	doc, f, err := s.Documents.Open(r.Context(), s.optionalActor(r), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Disposition", "attachment; filename*=UTF-8''"+url.PathEscape(doc.Filename))
	http.ServeContent(w, r, doc.Filename, info.ModTime(), f)
}

// SessionUser is the logged-in account as shown to the client.
type SessionUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
}

// SessionResponse is the response for GET /api/session.
type SessionResponse struct {
	User    *SessionUser    `json:"user"`
	CSRF    string          `json:"csrf"`
	Flashes []session.Flash `json:"flashes"`
}

func sessionResponse(sess *session.Session) SessionResponse {
	resp := SessionResponse{CSRF: sess.Data.CSRF, Flashes: sess.ConsumeFlashes()}
	if sess.LoggedIn() {
		resp.User = &SessionUser{ID: sess.Data.UserID, Username: sess.Data.Username, IsAdmin: sess.Data.IsAdmin}
	}
	return resp
}

// handleSession returns the current user, CSRF token and pending flashes.
// GET /api/session
func (s *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("session")

	sess := session.FromContext(r.Context())
	if sess.LoggedIn() {
		// Refresh the role so demoted or deleted accounts are reflected.
		actor, err := s.Access.Resolve(r.Context(), sess.Data.UserID)
		if err != nil {
			s.Sessions.Logout(r.Context(), sess)
		} else {
			sess.Data.Username = actor.Username
			sess.Data.IsAdmin = actor.IsAdmin
		}
	}
	writeJSON(w, http.StatusOK, sessionResponse(sess))
}

// LoginRequest is the request body for POST /api/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleLogin authenticates and moves the session to a fresh id.
// POST /api/login
func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("login")

	ip := s.proxies.ClientIP(r)
	if !s.limiter.Allow(ip) {
		s.logger.Warn().Str("ip", ip).Msg("login throttled")
		writeError(w, http.StatusTooManyRequests, "Zu viele Anmeldeversuche, bitte kurz warten.")
		return
	}

	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Ungültige Anfrage.")
		return
	}
	u, err := s.Users.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		s.fail(w, err)
		return
	}

	sess := session.FromContext(r.Context())
	s.Sessions.Login(r.Context(), sess, u.ID, u.Username, u.IsAdmin)
	sess.AddFlash("success", "Willkommen zurück, "+u.Username+"!")
	s.logger.Info().Int64("user_id", u.ID).Str("ip", ip).Msg("login")

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":   true,
		"user": SessionUser{ID: u.ID, Username: u.Username, IsAdmin: u.IsAdmin},
		"csrf": sess.Data.CSRF,
	})
}

// handleLogout drops the user from the session.
// POST /api/logout
func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("logout")

	sess := session.FromContext(r.Context())
	s.Sessions.Logout(r.Context(), sess)
	sess.AddFlash("success", "Du wurdest abgemeldet.")
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "csrf": sess.Data.CSRF})
}

// handleApplyInfo tells the form whether applications are open.
// GET /api/apply
func (s *HTTPServer) handleApplyInfo(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("apply_info")

	info, err := s.Applications.Info(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// handleApplySubmit stores a new project application.
// POST /api/apply
func (s *HTTPServer) handleApplySubmit(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("apply_submit")

	var form applications.Form
	if err := decodeJSON(r, &form); err != nil {
		writeError(w, http.StatusBadRequest, "Ungültige Anfrage.")
		return
	}
	app, err := s.Applications.Submit(r.Context(), form)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "id": app.ID})
}
