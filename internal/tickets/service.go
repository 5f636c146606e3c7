// Package tickets implements the support desk.
package tickets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"mcportal/internal/access"
	"mcportal/internal/events"
	"mcportal/internal/metrics"
	"mcportal/internal/models"
)

var (
	ErrNotFound     = errors.New("ticket not found")
	ErrClosed       = errors.New("ticket is closed")
	ErrNotClosed    = errors.New("only closed tickets can be deleted")
	ErrEmptyMessage = errors.New("message is empty")
)

// Repository is the ticket storage. *database.DB implements it.
type Repository interface {
	CreateTicket(ctx context.Context, t *models.Ticket) (int64, error)
	GetTicket(ctx context.Context, id int64) (*models.Ticket, error)
	ListTicketsByCreator(ctx context.Context, userID int64) ([]models.Ticket, error)
	ListAllTickets(ctx context.Context) ([]models.Ticket, error)
	ListTicketMessages(ctx context.Context, ticketID int64) ([]models.TicketMessage, error)
	AddTicketMessage(ctx context.Context, ticketID, userID int64, body string) (int64, error)
	CloseTicket(ctx context.Context, id int64) error
	ReopenTicket(ctx context.Context, id int64) error
	DeleteTicket(ctx context.Context, id int64) error
}

// Publisher is the event bus.
type Publisher interface {
	Publish(ctx context.Context, event events.Event) int
}

type Service struct {
	repo   Repository
	bus    Publisher
	logger zerolog.Logger
}

func NewService(repo Repository, bus Publisher, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		bus:    bus,
		logger: logger.With().Str("component", "tickets").Logger(),
	}
}

// Thread is a ticket with its messages.
type Thread struct {
	Ticket   *models.Ticket         `json:"ticket"`
	Messages []models.TicketMessage `json:"messages"`
}

// Create opens a ticket for the actor and alerts the available admins.
func (s *Service) Create(ctx context.Context, actor access.Actor, subject, body string) (int64, error) {
	t, err := models.NewTicket(actor.UserID, subject, body)
	if err != nil {
		return 0, err
	}
	id, err := s.repo.CreateTicket(ctx, t)
	if err != nil {
		return 0, fmt.Errorf("create ticket: %w", err)
	}
	metrics.IncTicket("created")
	s.logger.Info().Int64("ticket_id", id).Int64("user_id", actor.UserID).Msg("ticket created")

	s.bus.Publish(ctx, events.Event{Type: events.TicketCreated, Payload: events.TicketCreatedPayload{
		TicketID:    id,
		Subject:     t.Subject,
		Body:        t.Body,
		CreatorName: actor.Username,
	}})
	return id, nil
}

func (s *Service) load(ctx context.Context, actor access.Actor, id int64) (*models.Ticket, error) {
	t, err := s.repo.GetTicket(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load ticket %d: %w", id, err)
	}
	if err := access.RequireCreatorOrAdmin(actor, t.CreatorUserID); err != nil {
		return nil, err
	}
	return t, nil
}

// View returns the thread for the creator or an admin.
func (s *Service) View(ctx context.Context, actor access.Actor, id int64) (*Thread, error) {
	t, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	msgs, err := s.repo.ListTicketMessages(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Thread{Ticket: t, Messages: msgs}, nil
}

// List returns the actor's own tickets, or every ticket for admins.
func (s *Service) List(ctx context.Context, actor access.Actor) ([]models.Ticket, error) {
	if actor.IsAdmin {
		return s.repo.ListAllTickets(ctx)
	}
	return s.repo.ListTicketsByCreator(ctx, actor.UserID)
}

// ListOwn returns the tickets the actor created, also for admins.
func (s *Service) ListOwn(ctx context.Context, actor access.Actor) ([]models.Ticket, error) {
	return s.repo.ListTicketsByCreator(ctx, actor.UserID)
}

// Reply appends a message to an open ticket.
func (s *Service) Reply(ctx context.Context, actor access.Actor, id int64, body string) (int64, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return 0, ErrEmptyMessage
	}
	t, err := s.load(ctx, actor, id)
	if err != nil {
		return 0, err
	}
	if !t.IsOpen() {
		return 0, ErrClosed
	}
	msgID, err := s.repo.AddTicketMessage(ctx, id, actor.UserID, body)
	if err != nil {
		return 0, err
	}
	metrics.IncTicket("replied")

	s.bus.Publish(ctx, events.Event{Type: events.TicketReplied, Payload: events.TicketRepliedPayload{
		TicketID:   id,
		Subject:    t.Subject,
		Body:       body,
		AuthorID:   actor.UserID,
		AuthorName: actor.Username,
		ByAdmin:    actor.IsAdmin,
		CreatorID:  t.CreatorUserID,
	}})
	return msgID, nil
}

// Close is allowed for the creator and admins.
func (s *Service) Close(ctx context.Context, actor access.Actor, id int64) error {
	if _, err := s.load(ctx, actor, id); err != nil {
		return err
	}
	if err := s.repo.CloseTicket(ctx, id); err != nil {
		return err
	}
	metrics.IncTicket("closed")
	s.logger.Info().Int64("ticket_id", id).Int64("user_id", actor.UserID).Msg("ticket closed")
	return nil
}

// Reopen is admin only.
func (s *Service) Reopen(ctx context.Context, actor access.Actor, id int64) error {
	if err := access.RequireAdmin(actor); err != nil {
		return err
	}
	if _, err := s.load(ctx, actor, id); err != nil {
		return err
	}
	if err := s.repo.ReopenTicket(ctx, id); err != nil {
		return err
	}
	metrics.IncTicket("reopened")
	return nil
}

// Delete removes a closed ticket with its thread.
func (s *Service) Delete(ctx context.Context, actor access.Actor, id int64) error {
	t, err := s.load(ctx, actor, id)
	if err != nil {
		return err
	}
	if t.IsOpen() {
		return ErrNotClosed
	}
	if err := s.repo.DeleteTicket(ctx, id); err != nil {
		return err
	}
	metrics.IncTicket("deleted")
	s.logger.Info().Int64("ticket_id", id).Int64("user_id", actor.UserID).Msg("ticket deleted")
	return nil
}
