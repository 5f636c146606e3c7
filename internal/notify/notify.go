// Package notify turns domain events into Discord messages.
package notify

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mcportal/internal/events"
	"mcportal/internal/models"
)

// PreviewRunes is the maximum length of a message body quoted in a notification.
const PreviewRunes = 300

// Notifier delivers messages to Discord.
type Notifier interface {
	NotifyByName(ctx context.Context, name, msg string) error
	SendFallback(ctx context.Context, msg string) error
}

// Repository resolves recipients.
type Repository interface {
	ListAvailableAdmins(ctx context.Context, now time.Time) ([]models.User, error)
	LastAdminReplier(ctx context.Context, ticketID int64) (*models.User, error)
	DiscordNameForUser(ctx context.Context, userID int64) (string, error)
}

// Service subscribes to the event bus and sends the matching messages.
type Service struct {
	notifier Notifier
	repo     Repository
	baseURL  string
	now      func() time.Time
	logger   zerolog.Logger
}

// NewService creates a notification service. now must return time in the
// calendar location so that absences are matched correctly.
func NewService(notifier Notifier, repo Repository, baseURL string, now func() time.Time, logger zerolog.Logger) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		notifier: notifier,
		repo:     repo,
		baseURL:  strings.TrimRight(baseURL, "/"),
		now:      now,
		logger:   logger.With().Str("component", "notify").Logger(),
	}
}

// Register subscribes the service to every event type it handles.
func (s *Service) Register(bus *events.EventBus) {
	bus.Subscribe(events.TicketCreated, s.onTicketCreated)
	bus.Subscribe(events.TicketReplied, s.onTicketReplied)
	bus.Subscribe(events.ApplicationAccepted, s.onApplicationAccepted)
	bus.Subscribe(events.ApplicationRejected, s.onApplicationRejected)
	bus.Subscribe(events.DocumentAssigned, s.onDocumentAssigned)
	bus.Subscribe(events.WhitelistAdded, s.onWhitelistAdded)
	bus.Subscribe(events.DiscordTest, s.onDiscordTest)
}

// Preview cuts body to PreviewRunes runes.
func Preview(body string) string {
	r := []rune(body)
	if len(r) <= PreviewRunes {
		return body
	}
	return string(r[:PreviewRunes])
}

func (s *Service) ticketLink(id int64) string {
	return fmt.Sprintf("%s/support/%d", s.baseURL, id)
}

func (s *Service) onTicketCreated(ctx context.Context, e events.Event) error {
	p, ok := e.Payload.(events.TicketCreatedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", e.Payload)
	}
	msg := fmt.Sprintf("🆘 **Neues Ticket** von **%s**\nBetreff: **%s**\nNachricht: %s\n🔗 %s",
		p.CreatorName, p.Subject, Preview(p.Body), s.ticketLink(p.TicketID))
	return s.notifyAvailableAdmins(ctx, msg)
}

func (s *Service) onTicketReplied(ctx context.Context, e events.Event) error {
	p, ok := e.Payload.(events.TicketRepliedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", e.Payload)
	}
	link := s.ticketLink(p.TicketID)

	if p.ByAdmin {
		msg := fmt.Sprintf("💬 **Antwort auf dein Ticket #%d – %s**\nVon **%s** (Admin): %s\n🔗 %s",
			p.TicketID, p.Subject, p.AuthorName, Preview(p.Body), link)
		name, err := s.repo.DiscordNameForUser(ctx, p.CreatorID)
		if err != nil {
			return fmt.Errorf("creator discord name: %w", err)
		}
		if name == "" {
			return s.notifier.SendFallback(ctx, msg)
		}
		return s.notifier.NotifyByName(ctx, name, msg)
	}

	msg := fmt.Sprintf("📩 **Neue Antwort von %s** im Ticket #%d – %s\n%s\n🔗 %s",
		p.AuthorName, p.TicketID, p.Subject, Preview(p.Body), link)
	last, err := s.repo.LastAdminReplier(ctx, p.TicketID)
	switch {
	case err == nil && strings.TrimSpace(last.DiscordName) != "":
		return s.notifier.NotifyByName(ctx, last.DiscordName, msg)
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("last admin replier: %w", err)
	}
	return s.notifyAvailableAdmins(ctx, msg)
}

func (s *Service) notifyAvailableAdmins(ctx context.Context, msg string) error {
	admins, err := s.repo.ListAvailableAdmins(ctx, s.now())
	if err != nil {
		return fmt.Errorf("available admins: %w", err)
	}
	var errs []error
	for _, a := range admins {
		if err := s.notifier.NotifyByName(ctx, a.DiscordName, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Service) onApplicationAccepted(ctx context.Context, e events.Event) error {
	p, ok := e.Payload.(events.ApplicationDecisionPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", e.Payload)
	}
	if p.DiscordName == "" {
		return nil
	}
	msg := fmt.Sprintf("✅ Deine Bewerbung für **%s** wurde **angenommen**.\n\n"+
		"Login: **%s** / **%s** (bitte Passwort sofort ändern). "+
		"Melde dich unter %s/login an, und erhalte alle Updates zum Server sowie deine persönlichen Mods.",
		p.ProjectName, p.MCName, p.Password, s.baseURL)
	return s.notifier.NotifyByName(ctx, p.DiscordName, msg)
}

func (s *Service) onApplicationRejected(ctx context.Context, e events.Event) error {
	p, ok := e.Payload.(events.ApplicationDecisionPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", e.Payload)
	}
	if p.DiscordName == "" {
		return nil
	}
	msg := fmt.Sprintf("❌ Deine Bewerbung für **%s** wurde leider **abgelehnt**.", p.ProjectName)
	return s.notifier.NotifyByName(ctx, p.DiscordName, msg)
}

func (s *Service) onDocumentAssigned(ctx context.Context, e events.Event) error {
	p, ok := e.Payload.(events.DocumentAssignedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", e.Payload)
	}
	name, err := s.repo.DiscordNameForUser(ctx, p.UserID)
	if err != nil {
		return fmt.Errorf("assignee discord name: %w", err)
	}
	if name == "" {
		s.logger.Debug().Int64("user_id", p.UserID).Msg("no discord name for assignee")
		return nil
	}
	file := p.Filename
	if file == "" {
		file = "ein Dokument"
	}
	return s.notifier.NotifyByName(ctx, name, fmt.Sprintf("📄 Dir wurde ein neues Dokument zugewiesen: **%s**.", file))
}

func (s *Service) onWhitelistAdded(ctx context.Context, e events.Event) error {
	p, ok := e.Payload.(events.WhitelistAddedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", e.Payload)
	}
	return s.notifier.NotifyByName(ctx, p.DiscordName, fmt.Sprintf("✅ **%s** wurde auf dem Server **whitelisted**.", p.PlayerName))
}

func (s *Service) onDiscordTest(ctx context.Context, e events.Event) error {
	p, ok := e.Payload.(events.DiscordTestPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", e.Payload)
	}
	return s.notifier.NotifyByName(ctx, p.DiscordName, "🔔 Testnachricht aus dem Admin-Panel.")
}
