package api

import (
	"bytes"
	"errors"
	"net/http"
	"strings"

	"mcportal/internal/access"
	"mcportal/internal/applications"
	"mcportal/internal/audit"
	"mcportal/internal/events"
	"mcportal/internal/metrics"
	"mcportal/internal/models"
)

// CreateUserRequest is the request body for POST /api/admin/users.
type CreateUserRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	IsAdmin     bool   `json:"is_admin"`
	DiscordName string `json:"discord_name"`
}

// GET /api/admin/users
func (s *HTTPServer) handleListUsers(w http.ResponseWriter, r *http.Request, _ access.Actor) {
	metrics.IncHTTP("admin_users")

	list, err := s.Users.List(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": list})
}

// POST /api/admin/users
func (s *HTTPServer) handleCreateUser(w http.ResponseWriter, r *http.Request, _ access.Actor) {
	metrics.IncHTTP("admin_create_user")

	var req CreateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Ungültige Anfrage.")
		return
	}
	id, err := s.Users.Create(r.Context(), req.Username, req.Password, req.IsAdmin, req.DiscordName)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "id": id})
}

// DELETE /api/admin/users/{id}
func (s *HTTPServer) handleDeleteUser(w http.ResponseWriter, r *http.Request, actor access.Actor) {
	metrics.IncHTTP("admin_delete_user")

	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Benutzer nicht gefunden.")
		return
	}
	if err := s.Users.Delete(r.Context(), actor.UserID, id); err != nil {
		s.fail(w, err)
		return
	}
	writeOK(w)
}

// SetPasswordRequest is the request body for POST /api/admin/users/{id}/password.
type SetPasswordRequest struct {
	Password string `json:"password"`
	Confirm  string `json:"confirm"`
}

// POST /api/admin/users/{id}/password
func (s *HTTPServer) handleSetPassword(w http.ResponseWriter, r *http.Request, _ access.Actor) {
	metrics.IncHTTP("admin_set_password")

	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Benutzer nicht gefunden.")
		return
	}
	var req SetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Ungültige Anfrage.")
		return
	}
	if err := s.Users.SetPassword(r.Context(), id, req.Password, req.Confirm); err != nil {
		s.fail(w, err)
		return
	}
	writeOK(w)
}

// POST /api/admin/users/{id}/discord
func (s *HTTPServer) handleSetDiscordName(w http.ResponseWriter, r *http.Request, _ access.Actor) {
	metrics.IncHTTP("admin_set_discord")

	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Benutzer nicht gefunden.")
		return
	}
	var req struct {
		DiscordName string `json:"discord_name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Ungültige Anfrage.")
		return
	}
	if err := s.Users.SetDiscordName(r.Context(), id, strings.TrimSpace(req.DiscordName)); err != nil {
		s.fail(w, err)
		return
	}
	writeOK(w)
}

// GET /api/admin/documents
func (s *HTTPServer) handleAdminDocuments(w http.ResponseWriter, r *http.Request, actor access.Actor) {
	metrics.IncHTTP("admin_documents")

	docs, err := s.Documents.List(r.Context(), actor)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

// handleUploadDocument stores the multipart field "file".
// POST /api/admin/documents
func (s *HTTPServer) handleUploadDocument(w http.ResponseWriter, r *http.Request, _ access.Actor) {
	metrics.IncHTTP("admin_upload_document")

	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes+1<<20)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Keine Datei hochgeladen.")
		return
	}
	defer file.Close()

	doc, err := s.Documents.Upload(r.Context(), file, header.Filename)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "document": doc})
}

// AssignRequest is the request body for the assign and unassign endpoints.
type AssignRequest struct {
	UserID int64 `json:"user_id"`
}

// GET /api/admin/documents/{id}/assignees
func (s *HTTPServer) handleAssignees(w http.ResponseWriter, r *http.Request, _ access.Actor) {
	metrics.IncHTTP("admin_assignees")

	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Dokument nicht gefunden.")
		return
	}
	ids, err := s.Documents.Assignees(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	if ids == nil {
		ids = []int64{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_ids": ids})
}

// POST /api/admin/documents/{id}/assign
func (s *HTTPServer) handleAssignDocument(w http.ResponseWriter, r *http.Request, _ access.Actor) {
	metrics.IncHTTP("admin_assign_document")
	s.assignment(w, r, true)
}

// POST /api/admin/documents/{id}/unassign
func (s *HTTPServer) handleUnassignDocument(w http.ResponseWriter, r *http.Request, _ access.Actor) {
	metrics.IncHTTP("admin_unassign_document")
	s.assignment(w, r, false)
}

func (s *HTTPServer) assignment(w http.ResponseWriter, r *http.Request, assign bool) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Dokument nicht gefunden.")
		return
	}
	var req AssignRequest
	if err := decodeJSON(r, &req); err != nil || req.UserID <= 0 {
		writeError(w, http.StatusBadRequest, "Ungültige Anfrage.")
		return
	}

	var err error
	if assign {
		err = s.Documents.Assign(r.Context(), req.UserID, id)
	} else {
		err = s.Documents.Unassign(r.Context(), req.UserID, id)
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	writeOK(w)
}

// POST /api/admin/documents/{id}/public
func (s *HTTPServer) handleTogglePublic(w http.ResponseWriter, r *http.Request, _ access.Actor) {
	metrics.IncHTTP("admin_document_public")

	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Dokument nicht gefunden.")
		return
	}
	public, err := s.Documents.TogglePublic(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "is_public": public})
}

// DELETE /api/admin/documents/{id}
func (s *HTTPServer) handleDeleteDocument(w http.ResponseWriter, r *http.Request, _ access.Actor) {
	metrics.IncHTTP("admin_delete_document")

	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Dokument nicht gefunden.")
		return
	}
	if err := s.Documents.Delete(r.Context(), id); err != nil {
		s.fail(w, err)
		return
	}
	writeOK(w)
}

// GET /api/admin/posts
func (s *HTTPServer) handleListPosts(w http.ResponseWriter, r *http.Request, _ access.Actor) {
	metrics.IncHTTP("admin_posts")

	posts, err := s.Store.ListPosts(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"posts": posts})
}

func formBool(r *http.Request, key string) bool {
	switch strings.ToLower(r.FormValue(key)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// postImage stores the optional multipart field "image". It returns "" when
// no image was sent.
func (s *HTTPServer) postImage(r *http.Request) (string, error) {
	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	defer file.Close()
	return s.Uploads.SaveImage(file, header.Filename)
}

// handleCreatePost takes a multipart form with title, content, published
// and an optional image.
// POST /api/admin/posts
func (s *HTTPServer) handleCreatePost(w http.ResponseWriter, r *http.Request, _ access.Actor) {
	metrics.IncHTTP("admin_create_post")

	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(1 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		writeError(w, http.StatusBadRequest, "Ungültige Anfrage.")
		return
	}
	p, err := models.NewPost(r.FormValue("title"), r.FormValue("content"), formBool(r, "published"))
	if err != nil {
		s.fail(w, err)
		return
	}
	if p.ImagePath, err = s.postImage(r); err != nil {
		s.fail(w, err)
		return
	}

	id, err := s.Store.CreatePost(r.Context(), p)
	if err != nil {
		s.Uploads.RemoveImage(p.ImagePath)
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "id": id})
}

// handleUpdatePost replaces a post. A new image replaces the old file;
// remove_image drops it.
// PUT /api/admin/posts/{id}
func (s *HTTPServer) handleUpdatePost(w http.ResponseWriter, r *http.Request, _ access.Actor) {
	metrics.IncHTTP("admin_update_post")

	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Beitrag nicht gefunden.")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(1 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		writeError(w, http.StatusBadRequest, "Ungültige Anfrage.")
		return
	}

	current, err := s.Store.GetPost(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	p, err := models.NewPost(r.FormValue("title"), r.FormValue("content"), formBool(r, "published"))
	if err != nil {
		s.fail(w, err)
		return
	}
	p.ID = id
	p.ImagePath = current.ImagePath
	if formBool(r, "remove_image") {
		p.ImagePath = ""
	}

	uploaded, err := s.postImage(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	if uploaded != "" {
		p.ImagePath = uploaded
	}

	if err := s.Store.UpdatePost(r.Context(), p); err != nil {
		s.Uploads.RemoveImage(uploaded)
		s.fail(w, err)
		return
	}
	if current.ImagePath != "" && current.ImagePath != p.ImagePath {
		s.Uploads.RemoveImage(current.ImagePath)
	}
	writeOK(w)
}

// POST /api/admin/posts/{id}/publish
func (s *HTTPServer) handleTogglePost(w http.ResponseWriter, r *http.Request, _ access.Actor) {
	metrics.IncHTTP("admin_toggle_post")

	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Beitrag nicht gefunden.")
		return
	}
	published, err := s.Store.TogglePostPublished(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "published": published})
}

// DELETE /api/admin/posts/{id}
func (s *HTTPServer) handleDeletePost(w http.ResponseWriter, r *http.Request, _ access.Actor) {
	metrics.IncHTTP("admin_delete_post")

	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Beitrag nicht gefunden.")
		return
	}
	image, err := s.Store.DeletePost(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.Uploads.RemoveImage(image)
	writeOK(w)
}

// ServerRequest is the request body for creating and updating servers.
type ServerRequest struct {
	Name    string `json:"name"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
	Enabled *bool  `json:"enabled"`
}

func (req ServerRequest) server() (*models.Server, error) {
	srv, err := models.NewServer(req.Name, req.Host, req.Port)
	if err != nil {
		return nil, err
	}
	if req.Enabled != nil {
		srv.Enabled = *req.Enabled
	}
	return srv, nil
}

// GET /api/admin/servers
func (s *HTTPServer) handleListServers(w http.ResponseWriter, r *http.Request, _ access.Actor) {
	metrics.IncHTTP("admin_servers")

	list, err := s.Store.ListServers(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"servers": list})
}

// POST /api/admin/servers
func (s *HTTPServer) handleCreateServer(w http.ResponseWriter, r *http.Request, _ access.Actor) {
	metrics.IncHTTP("admin_create_server")

	var req ServerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Ungültige Anfrage.")
		return
	}
	srv, err := req.server()
	if err != nil {
		s.fail(w, err)
		return
	}
	id, err := s.Store.CreateServer(r.Context(), srv)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "id": id})
}

// PUT /api/admin/servers/{id}
func (s *HTTPServer) handleUpdateServer(w http.ResponseWriter, r *http.Request, _ access.Actor) {
	metrics.IncHTTP("admin_update_server")

	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Server nicht gefunden.")
		return
	}
	var req ServerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Ungültige Anfrage.")
		return
	}
	srv, err := req.server()
	if err != nil {
		s.fail(w, err)
		return
	}
	srv.ID = id
	if err := s.Store.UpdateServer(r.Context(), srv); err != nil {
		s.fail(w, err)
		return
	}
	writeOK(w)
}

// DELETE /api/admin/servers/{id}
func (s *HTTPServer) handleDeleteServer(w http.ResponseWriter, r *http.Request, _ access.Actor) {
	metrics.IncHTTP("admin_delete_server")

	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Server nicht gefunden.")
		return
	}
	if err := s.Store.DeleteServer(r.Context(), id); err != nil {
		s.fail(w, err)
		return
	}
	writeOK(w)
}

// handleMoveServer swaps the server with its neighbour.
// POST /api/admin/servers/{id}/move  {"direction":"up"|"down"}
func (s *HTTPServer) handleMoveServer(w http.ResponseWriter, r *http.Request, _ access.Actor) {
	metrics.IncHTTP("admin_move_server")

	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Server nicht gefunden.")
		return
	}
	var req struct {
		Direction string `json:"direction"`
	}
	if err := decodeJSON(r, &req); err != nil || (req.Direction != "up" && req.Direction != "down") {
		writeError(w, http.StatusBadRequest, "Richtung muss up oder down sein.")
		return
	}
	if err := s.Store.MoveServer(r.Context(), id, req.Direction == "up"); err != nil {
		s.fail(w, err)
		return
	}
	writeOK(w)
}

// GET /api/admin/settings
func (s *HTTPServer) handleGetSettings(w http.ResponseWriter, r *http.Request, _ access.Actor) {
	metrics.IncHTTP("admin_settings")

	st, err := s.Store.LoadSiteSettings(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// PUT /api/admin/settings
func (s *HTTPServer) handleSaveSettings(w http.ResponseWriter, r *http.Request, actor access.Actor) {
	metrics.IncHTTP("admin_save_settings")

	var st models.SiteSettings
	if err := decodeJSON(r, &st); err != nil {
		writeError(w, http.StatusBadRequest, "Ungültige Anfrage.")
		return
	}
	st = models.SettingsFromMap(st.ToMap())
	if err := s.Store.SaveSiteSettings(r.Context(), st); err != nil {
		s.fail(w, err)
		return
	}
	s.logger.Info().Int64("user_id", actor.UserID).Bool("apply_enabled", st.ApplyEnabled).Msg("settings saved")
	writeOK(w)
}

// handleDiscordTest sends a test DM to the given Discord name.
// POST /api/admin/discord/test
func (s *HTTPServer) handleDiscordTest(w http.ResponseWriter, r *http.Request, actor access.Actor) {
	metrics.IncHTTP("admin_discord_test")

	var req struct {
		DiscordName string `json:"discord_name"`
	}
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.DiscordName) == "" {
		writeError(w, http.StatusBadRequest, "Bitte einen Discord-Namen angeben.")
		return
	}
	delivered := s.Bus.Publish(r.Context(), events.Event{Type: events.DiscordTest, Payload: events.DiscordTestPayload{
		DiscordName: strings.TrimSpace(req.DiscordName),
		Requester:   actor.Username,
	}})
	writeJSON(w, http.StatusOK, map[string]any{"ok": delivered > 0})
}

// POST /api/admin/whitelist/check
func (s *HTTPServer) handleWhitelistCheck(w http.ResponseWriter, r *http.Request, _ access.Actor) {
	metrics.IncHTTP("admin_whitelist_check")

	n, err := s.Whitelist.Check(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "notified": n})
}

func statusFilter(r *http.Request) (models.ApplicationStatus, error) {
	raw := r.URL.Query().Get("status")
	if raw == "" || raw == "all" {
		return "", nil
	}
	return models.ParseApplicationStatus(raw)
}

// GET /api/admin/applications?status=
func (s *HTTPServer) handleListApplications(w http.ResponseWriter, r *http.Request, _ access.Actor) {
	metrics.IncHTTP("admin_applications")

	st, err := statusFilter(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	list, err := s.Applications.List(r.Context(), st)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"applications": list})
}

// GET /api/admin/applications/{id}
func (s *HTTPServer) handleGetApplication(w http.ResponseWriter, r *http.Request, _ access.Actor) {
	metrics.IncHTTP("admin_application")

	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Bewerbung nicht gefunden.")
		return
	}
	app, err := s.Applications.Get(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

// POST /api/admin/applications/{id}/{decision}
func (s *HTTPServer) handleDecideApplication(w http.ResponseWriter, r *http.Request, actor access.Actor) {
	metrics.IncHTTP("admin_decide_application")

	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Bewerbung nicht gefunden.")
		return
	}
	decision := applications.Decision(r.PathValue("decision"))
	if err := s.Applications.Decide(r.Context(), id, decision); err != nil {
		s.fail(w, err)
		return
	}
	s.logger.Info().Int64("application_id", id).Int64("user_id", actor.UserID).
		Str("decision", string(decision)).Msg("application decided")
	writeOK(w)
}

// handleExportApplications downloads the applications as a workbook.
// GET /api/admin/applications/export?status=
func (s *HTTPServer) handleExportApplications(w http.ResponseWriter, r *http.Request, _ access.Actor) {
	metrics.IncHTTP("admin_export_applications")

	st, err := statusFilter(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	var buf bytes.Buffer
	if err := s.Exporter.ExportApplications(r.Context(), st, &buf); err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+audit.Filename(s.now())+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
