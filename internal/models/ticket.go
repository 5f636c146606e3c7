package models

import (
	"fmt"
	"strings"
	"time"
)

// TicketStatus is open or closed.
type TicketStatus string

const (
	TicketOpen   TicketStatus = "open"
	TicketClosed TicketStatus = "closed"
)

// ParseTicketStatus maps stored text to a status.
func ParseTicketStatus(s string) (TicketStatus, error) {
	switch TicketStatus(s) {
	case TicketOpen, TicketClosed:
		return TicketStatus(s), nil
	default:
		return "", fmt.Errorf("%w: unknown ticket status %q", ErrValidation, s)
	}
}

// Ticket is a support request raised by a member.
type Ticket struct {
	ID            int64        `json:"id"`
	CreatorUserID int64        `json:"creator_user_id"`
	CreatorName   string       `json:"creator_name,omitempty"`
	Subject       string       `json:"subject"`
	Body          string       `json:"body"`
	Status        TicketStatus `json:"status"`
	CreatedAt     time.Time    `json:"created_at"`
	ClosedAt      *time.Time   `json:"closed_at,omitempty"`
	LastMessageAt *time.Time   `json:"last_message_at,omitempty"`
	MessageCount  int          `json:"message_count"`
}

// NewTicket validates subject and body.
func NewTicket(creatorID int64, subject, body string) (*Ticket, error) {
	subject = strings.TrimSpace(subject)
	body = strings.TrimSpace(body)
	if subject == "" || body == "" {
		return nil, fmt.Errorf("%w: subject and message are required", ErrValidation)
	}
	return &Ticket{CreatorUserID: creatorID, Subject: subject, Body: body, Status: TicketOpen}, nil
}

// IsOpen reports whether replies are accepted.
func (t *Ticket) IsOpen() bool {
	return t.Status == TicketOpen
}

// TicketMessage is one entry in a ticket thread.
type TicketMessage struct {
	ID        int64     `json:"id"`
	TicketID  int64     `json:"ticket_id"`
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username"`
	IsAdmin   bool      `json:"is_admin"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}
