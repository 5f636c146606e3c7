package events

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Event types published by the portal services.
const (
	TicketCreated       = "ticket.created"
	TicketReplied       = "ticket.replied"
	ApplicationAccepted = "application.accepted"
	ApplicationRejected = "application.rejected"
	DocumentAssigned    = "document.assigned"
	WhitelistAdded      = "whitelist.added"
	DiscordTest         = "discord.test"
)

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   any
	CreatedAt time.Time
}

// TicketCreatedPayload is published after a ticket and its first message are stored.
type TicketCreatedPayload struct {
	TicketID    int64
	Subject     string
	Body        string
	CreatorName string
}

// TicketRepliedPayload is published after a reply is stored.
type TicketRepliedPayload struct {
	TicketID   int64
	Subject    string
	Body       string
	AuthorID   int64
	AuthorName string
	ByAdmin    bool
	CreatorID  int64
}

// ApplicationDecisionPayload carries what the applicant is told.
type ApplicationDecisionPayload struct {
	ApplicationID int64
	ProjectName   string
	MCName        string
	DiscordName   string
	Password      string
}

// DocumentAssignedPayload is published for new assignments only.
type DocumentAssignedPayload struct {
	DocumentID int64
	Filename   string
	UserID     int64
}

// WhitelistAddedPayload names a player that appeared in the whitelist.
type WhitelistAddedPayload struct {
	PlayerName  string
	DiscordName string
}

// DiscordTestPayload requests a test message to a Discord name.
type DiscordTestPayload struct {
	DiscordName string
	Requester   string
}

// EventHandler reacts to an event.
type EventHandler func(ctx context.Context, event Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	logger      zerolog.Logger
}

// NewEventBus constructs an empty bus.
func NewEventBus(logger zerolog.Logger) *EventBus {
	return &EventBus{
		subscribers: make(map[string][]EventHandler),
		logger:      logger.With().Str("component", "events").Logger(),
	}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish runs the subscribers of the event type in registration order and
// returns how many of them succeeded. Handler errors are logged.
func (b *EventBus) Publish(ctx context.Context, event Event) int {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	ok := 0
	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			b.logger.Warn().Err(err).Str("type", event.Type).Msg("event handler failed")
			continue
		}
		ok++
	}
	return ok
}
