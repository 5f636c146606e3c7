// Package documents manages uploaded files, their assignment to members
// and the public world downloads.
package documents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"mcportal/internal/access"
	"mcportal/internal/events"
	"mcportal/internal/models"
)

var ErrNotFound = errors.New("document not found")

// Repository is the document storage. *database.DB implements it.
type Repository interface {
	CreateDocument(ctx context.Context, filename, path string) (int64, error)
	GetDocument(ctx context.Context, id int64) (*models.Document, error)
	ListDocuments(ctx context.Context) ([]models.Document, error)
	ListPublicDocuments(ctx context.Context) ([]models.Document, error)
	ListDocumentsForUser(ctx context.Context, userID int64) ([]models.Document, error)
	AssignDocument(ctx context.Context, userID, documentID int64) (bool, error)
	UnassignDocument(ctx context.Context, userID, documentID int64) error
	IsDocumentAssigned(ctx context.Context, userID, documentID int64) (bool, error)
	ListDocumentAssignees(ctx context.Context, documentID int64) ([]int64, error)
	SetDocumentPublic(ctx context.Context, id int64, public bool) error
	DeleteDocument(ctx context.Context, id int64) error
}

// FileStore keeps the file contents. *uploads.Store implements it.
type FileStore interface {
	SaveDocument(r io.Reader, name string) (string, string, error)
	Remove(path string)
}

// Publisher is the event bus.
type Publisher interface {
	Publish(ctx context.Context, event events.Event) int
}

type Service struct {
	repo   Repository
	files  FileStore
	bus    Publisher
	logger zerolog.Logger
}

func NewService(repo Repository, files FileStore, bus Publisher, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		files:  files,
		bus:    bus,
		logger: logger.With().Str("component", "documents").Logger(),
	}
}

// Upload stores the file and its metadata.
func (s *Service) Upload(ctx context.Context, r io.Reader, name string) (*models.Document, error) {
	filename, path, err := s.files.SaveDocument(r, name)
	if err != nil {
		return nil, fmt.Errorf("save upload: %w", err)
	}
	id, err := s.repo.CreateDocument(ctx, filename, path)
	if err != nil {
		s.files.Remove(path)
		return nil, err
	}
	s.logger.Info().Int64("document_id", id).Str("filename", filename).Msg("document uploaded")
	return &models.Document{ID: id, Filename: filename, Path: path}, nil
}

func (s *Service) get(ctx context.Context, id int64) (*models.Document, error) {
	d, err := s.repo.GetDocument(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return d, err
}

// Assign links a document to a user. New links notify the user.
func (s *Service) Assign(ctx context.Context, userID, documentID int64) error {
	d, err := s.get(ctx, documentID)
	if err != nil {
		return err
	}
	created, err := s.repo.AssignDocument(ctx, userID, documentID)
	if err != nil {
		return err
	}
	if !created {
		return nil
	}
	s.bus.Publish(ctx, events.Event{Type: events.DocumentAssigned, Payload: events.DocumentAssignedPayload{
		DocumentID: d.ID,
		Filename:   d.Filename,
		UserID:     userID,
	}})
	return nil
}

func (s *Service) Unassign(ctx context.Context, userID, documentID int64) error {
	return s.repo.UnassignDocument(ctx, userID, documentID)
}

// Assignees returns the ids of users that see the document.
func (s *Service) Assignees(ctx context.Context, documentID int64) ([]int64, error) {
	return s.repo.ListDocumentAssignees(ctx, documentID)
}

// TogglePublic flips the public flag and returns the new value.
func (s *Service) TogglePublic(ctx context.Context, id int64) (bool, error) {
	d, err := s.get(ctx, id)
	if err != nil {
		return false, err
	}
	public := !d.IsPublic
	if err := s.repo.SetDocumentPublic(ctx, id, public); err != nil {
		return false, err
	}
	return public, nil
}

// Delete removes the row, its assignments and the file.
func (s *Service) Delete(ctx context.Context, id int64) error {
	d, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteDocument(ctx, id); err != nil {
		return err
	}
	s.files.Remove(d.Path)
	s.logger.Info().Int64("document_id", id).Str("filename", d.Filename).Msg("document deleted")
	return nil
}

// List returns all documents for admins and the assigned ones for members.
func (s *Service) List(ctx context.Context, actor access.Actor) ([]models.Document, error) {
	if actor.IsAdmin {
		return s.repo.ListDocuments(ctx)
	}
	return s.repo.ListDocumentsForUser(ctx, actor.UserID)
}

// ListPublic returns the world downloads.
func (s *Service) ListPublic(ctx context.Context) ([]models.Document, error) {
	return s.repo.ListPublicDocuments(ctx)
}

// Open checks the download permission and opens the file. actor is nil for
// anonymous visitors. Missing rows and files yield ErrNotFound.
func (s *Service) Open(ctx context.Context, actor *access.Actor, id int64) (*models.Document, *os.File, error) {
	d, err := s.get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if err := s.canDownload(ctx, actor, d); err != nil {
		return nil, nil, err
	}
	f, err := os.Open(d.Path)
	if errors.Is(err, os.ErrNotExist) {
		s.logger.Warn().Int64("document_id", id).Str("path", d.Path).Msg("document file missing")
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	return d, f, nil
}

func (s *Service) canDownload(ctx context.Context, actor *access.Actor, d *models.Document) error {
	if d.IsPublic {
		return nil
	}
	if actor == nil {
		return &access.AccessDeniedError{Reason: "Kein Zugriff."}
	}
	if actor.IsAdmin {
		return nil
	}
	ok, err := s.repo.IsDocumentAssigned(ctx, actor.UserID, d.ID)
	if err != nil {
		return err
	}
	if !ok {
		return &access.AccessDeniedError{Reason: "Kein Zugriff."}
	}
	return nil
}
