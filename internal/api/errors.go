package api

import (
	"database/sql"
	"errors"
	"net/http"

	"mcportal/internal/access"
	"mcportal/internal/applications"
	"mcportal/internal/calendar"
	"mcportal/internal/database"
	"mcportal/internal/documents"
	"mcportal/internal/models"
	"mcportal/internal/tickets"
	"mcportal/internal/uploads"
	"mcportal/internal/users"
)

type errorMapping struct {
	err    error
	status int
	msg    string
}

// errorTable is checked in order; the first match wins.
var errorTable = []errorMapping{
	{users.ErrInvalidCredentials, http.StatusUnauthorized, "Benutzername oder Passwort ist falsch."},
	{users.ErrWrongPassword, http.StatusBadRequest, "Das aktuelle Passwort ist falsch."},
	{users.ErrPasswordMismatch, http.StatusBadRequest, "Die neuen Passwörter stimmen nicht überein."},
	{users.ErrPasswordTooShort, http.StatusBadRequest, "Das neue Passwort muss mindestens 8 Zeichen haben."},
	{users.ErrSelfDelete, http.StatusBadRequest, "Du kannst dich nicht selbst löschen."},
	{users.ErrLastAdmin, http.StatusConflict, "Der letzte Admin kann nicht gelöscht werden."},
	{users.ErrUsernameTaken, http.StatusConflict, "Benutzername ist bereits vergeben."},
	{users.ErrNotFound, http.StatusNotFound, "Benutzer nicht gefunden."},

	{applications.ErrClosed, http.StatusForbidden, "Anmeldungen sind derzeit geschlossen."},
	{applications.ErrNotFound, http.StatusNotFound, "Bewerbung nicht gefunden."},
	{applications.ErrNotShortlisted, http.StatusConflict, "Nur vorgemerkte Bewerbungen können angenommen werden."},
	{applications.ErrUnknownDecision, http.StatusBadRequest, "Unbekannte Aktion."},

	{tickets.ErrNotFound, http.StatusNotFound, "Ticket nicht gefunden."},
	{tickets.ErrClosed, http.StatusConflict, "Das Ticket ist geschlossen."},
	{tickets.ErrNotClosed, http.StatusConflict, "Nur geschlossene Tickets können gelöscht werden."},
	{tickets.ErrEmptyMessage, http.StatusBadRequest, "Die Nachricht darf nicht leer sein."},

	{documents.ErrNotFound, http.StatusNotFound, "Dokument nicht gefunden."},
	{calendar.ErrNotFound, http.StatusNotFound, "Termin nicht gefunden."},
	{calendar.ErrBadDate, http.StatusBadRequest, "Ungültiges Datum."},

	{uploads.ErrTooLarge, http.StatusRequestEntityTooLarge, "Die Datei ist zu groß."},
	{uploads.ErrUnsupportedImage, http.StatusBadRequest, "Nur Bilder (JPG, PNG, GIF, WEBP, SVG) sind erlaubt."},

	{database.ErrDuplicate, http.StatusConflict, "Eintrag existiert bereits."},
	{sql.ErrNoRows, http.StatusNotFound, "Nicht gefunden."},
	{models.ErrValidation, http.StatusBadRequest, "Bitte alle Pflichtfelder korrekt ausfüllen."},
}

type problemResponse struct {
	Error    string   `json:"error"`
	Problems []string `json:"problems"`
}

// errorStatus maps a service error to an HTTP status and German message.
func errorStatus(err error) (int, string) {
	var denied *access.AccessDeniedError
	if errors.As(err, &denied) {
		if denied.Unauthenticated {
			return http.StatusUnauthorized, denied.Reason
		}
		return http.StatusForbidden, denied.Reason
	}
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			return m.status, m.msg
		}
	}
	return http.StatusInternalServerError, "Interner Fehler, bitte später erneut versuchen."
}

// fail writes err as a JSON error. Collected validation problems are listed
// individually.
func (s *HTTPServer) fail(w http.ResponseWriter, err error) {
	code, msg := errorStatus(err)
	if code == http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("request failed")
	}

	var ve *models.ValidationError
	if errors.As(err, &ve) && len(ve.Problems) > 0 {
		if errors.Is(err, applications.ErrDuplicate) {
			code = http.StatusConflict
		} else {
			code = http.StatusUnprocessableEntity
		}
		writeJSON(w, code, problemResponse{Error: ve.Problems[0], Problems: ve.Problems})
		return
	}
	writeError(w, code, msg)
}
