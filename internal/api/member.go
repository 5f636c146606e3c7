package api

import (
	"context"
	"net/http"

	"mcportal/internal/access"
	"mcportal/internal/metrics"
	"mcportal/internal/session"
)

// handleMyDocuments lists the documents the caller can download.
// GET /api/documents
func (s *HTTPServer) handleMyDocuments(w http.ResponseWriter, r *http.Request, actor access.Actor) {
	metrics.IncHTTP("my_documents")

	docs, err := s.Documents.List(r.Context(), actor)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

// ChangePasswordRequest is the request body for POST /api/account/password.
type ChangePasswordRequest struct {
	Current string `json:"current"`
	New     string `json:"new"`
	Confirm string `json:"confirm"`
}

// handleChangePassword lets members replace their own password.
// POST /api/account/password
func (s *HTTPServer) handleChangePassword(w http.ResponseWriter, r *http.Request, actor access.Actor) {
	metrics.IncHTTP("change_password")

	var req ChangePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Ungültige Anfrage.")
		return
	}
	if err := s.Users.ChangePassword(r.Context(), actor.UserID, req.Current, req.New, req.Confirm); err != nil {
		s.fail(w, err)
		return
	}
	session.FromContext(r.Context()).AddFlash("success", "Passwort geändert.")
	writeOK(w)
}

// TicketRequest is the request body for POST /api/tickets.
type TicketRequest struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// ReplyRequest is the request body for POST /api/tickets/{id}/reply.
type ReplyRequest struct {
	Body string `json:"body"`
}

// handleMyTickets lists the tickets opened by the caller.
// GET /api/tickets
func (s *HTTPServer) handleMyTickets(w http.ResponseWriter, r *http.Request, actor access.Actor) {
	metrics.IncHTTP("my_tickets")

	list, err := s.Tickets.ListOwn(r.Context(), actor)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tickets": list})
}

// handleAllTickets lists every ticket for admins.
// GET /api/admin/tickets
func (s *HTTPServer) handleAllTickets(w http.ResponseWriter, r *http.Request, actor access.Actor) {
	metrics.IncHTTP("admin_tickets")

	list, err := s.Tickets.List(r.Context(), actor)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tickets": list})
}

// handleCreateTicket opens a support ticket.
// POST /api/tickets
func (s *HTTPServer) handleCreateTicket(w http.ResponseWriter, r *http.Request, actor access.Actor) {
	metrics.IncHTTP("create_ticket")

	var req TicketRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Ungültige Anfrage.")
		return
	}
	id, err := s.Tickets.Create(r.Context(), actor, req.Subject, req.Body)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "id": id})
}

// handleViewTicket returns a ticket with its messages.
// GET /api/tickets/{id}
func (s *HTTPServer) handleViewTicket(w http.ResponseWriter, r *http.Request, actor access.Actor) {
	metrics.IncHTTP("view_ticket")

	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Ticket nicht gefunden.")
		return
	}
	thread, err := s.Tickets.View(r.Context(), actor, id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, thread)
}

// POST /api/tickets/{id}/reply
func (s *HTTPServer) handleReplyTicket(w http.ResponseWriter, r *http.Request, actor access.Actor) {
	metrics.IncHTTP("reply_ticket")

	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Ticket nicht gefunden.")
		return
	}
	var req ReplyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Ungültige Anfrage.")
		return
	}
	msgID, err := s.Tickets.Reply(r.Context(), actor, id, req.Body)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "id": msgID})
}

// POST /api/tickets/{id}/close
func (s *HTTPServer) handleCloseTicket(w http.ResponseWriter, r *http.Request, actor access.Actor) {
	metrics.IncHTTP("close_ticket")
	s.ticketAction(w, r, actor, s.Tickets.Close)
}

// POST /api/tickets/{id}/reopen
func (s *HTTPServer) handleReopenTicket(w http.ResponseWriter, r *http.Request, actor access.Actor) {
	metrics.IncHTTP("reopen_ticket")
	s.ticketAction(w, r, actor, s.Tickets.Reopen)
}

// DELETE /api/tickets/{id}
func (s *HTTPServer) handleDeleteTicket(w http.ResponseWriter, r *http.Request, actor access.Actor) {
	metrics.IncHTTP("delete_ticket")
	s.ticketAction(w, r, actor, s.Tickets.Delete)
}

func (s *HTTPServer) ticketAction(w http.ResponseWriter, r *http.Request, actor access.Actor,
	action func(ctx context.Context, actor access.Actor, id int64) error,
) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Ticket nicht gefunden.")
		return
	}
	if err := action(r.Context(), actor, id); err != nil {
		s.fail(w, err)
		return
	}
	writeOK(w)
}
