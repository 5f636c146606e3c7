package notify

import (
	"context"
	"database/sql"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"mcportal/internal/events"
	"mcportal/internal/models"
)

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) NotifyByName(ctx context.Context, name, msg string) error {
	return m.Called(ctx, name, msg).Error(0)
}

func (m *mockNotifier) SendFallback(ctx context.Context, msg string) error {
	return m.Called(ctx, msg).Error(0)
}

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) ListAvailableAdmins(ctx context.Context, now time.Time) ([]models.User, error) {
	args := m.Called(ctx, now)
	return args.Get(0).([]models.User), args.Error(1)
}

func (m *mockRepo) LastAdminReplier(ctx context.Context, ticketID int64) (*models.User, error) {
	args := m.Called(ctx, ticketID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *mockRepo) DiscordNameForUser(ctx context.Context, userID int64) (string, error) {
	args := m.Called(ctx, userID)
	return args.String(0), args.Error(1)
}

var fixedNow = time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)

func setup() (*events.EventBus, *mockNotifier, *mockRepo) {
	n := new(mockNotifier)
	r := new(mockRepo)
	bus := events.NewEventBus(zerolog.New(io.Discard))
	svc := NewService(n, r, "https://portal.example.org/", func() time.Time { return fixedNow }, zerolog.New(io.Discard))
	svc.Register(bus)
	return bus, n, r
}

func TestTicketCreatedNotifiesAvailableAdmins(t *testing.T) {
	bus, n, r := setup()
	ctx := context.Background()

	r.On("ListAvailableAdmins", ctx, fixedNow).Return([]models.User{
		{ID: 1, DiscordName: "a#1"},
		{ID: 2, DiscordName: "b#2"},
	}, nil)
	n.On("NotifyByName", ctx, mock.Anything, mock.MatchedBy(func(msg string) bool {
		return strings.Contains(msg, "**Neues Ticket** von **steve**") &&
			strings.HasSuffix(msg, "🔗 https://portal.example.org/support/7")
	})).Return(nil).Twice()

	ok := bus.Publish(ctx, events.Event{Type: events.TicketCreated, Payload: events.TicketCreatedPayload{
		TicketID: 7, Subject: "Login", Body: "Hilfe", CreatorName: "steve",
	}})
	assert.Equal(t, 1, ok)
	n.AssertExpectations(t)
}

func TestAdminReplyGoesToCreatorOrFallback(t *testing.T) {
	bus, n, r := setup()
	ctx := context.Background()

	r.On("DiscordNameForUser", ctx, int64(5)).Return("creator#1", nil).Once()
	n.On("NotifyByName", ctx, "creator#1", mock.MatchedBy(func(msg string) bool {
		return strings.HasPrefix(msg, "💬 **Antwort auf dein Ticket #3 – Mods**")
	})).Return(nil).Once()

	payload := events.TicketRepliedPayload{TicketID: 3, Subject: "Mods", Body: "ok", AuthorName: "admin", ByAdmin: true, CreatorID: 5}
	bus.Publish(ctx, events.Event{Type: events.TicketReplied, Payload: payload})

	r.On("DiscordNameForUser", ctx, int64(5)).Return("", nil).Once()
	n.On("SendFallback", ctx, mock.Anything).Return(nil).Once()
	bus.Publish(ctx, events.Event{Type: events.TicketReplied, Payload: payload})

	n.AssertExpectations(t)
	r.AssertExpectations(t)
}

func TestMemberReplyPrefersLastAdmin(t *testing.T) {
	bus, n, r := setup()
	ctx := context.Background()
	payload := events.TicketRepliedPayload{TicketID: 3, Subject: "Mods", Body: "danke", AuthorName: "steve", CreatorID: 5}

	r.On("LastAdminReplier", ctx, int64(3)).Return(&models.User{ID: 1, DiscordName: "boss#1"}, nil).Once()
	n.On("NotifyByName", ctx, "boss#1", mock.Anything).Return(nil).Once()
	bus.Publish(ctx, events.Event{Type: events.TicketReplied, Payload: payload})

	r.On("LastAdminReplier", ctx, int64(3)).Return(nil, sql.ErrNoRows).Once()
	r.On("ListAvailableAdmins", ctx, fixedNow).Return([]models.User{{ID: 2, DiscordName: "helper#2"}}, nil).Once()
	n.On("NotifyByName", ctx, "helper#2", mock.Anything).Return(nil).Once()
	bus.Publish(ctx, events.Event{Type: events.TicketReplied, Payload: payload})

	n.AssertExpectations(t)
	r.AssertExpectations(t)
}

func TestApplicationDecisionMessages(t *testing.T) {
	bus, n, _ := setup()
	ctx := context.Background()

	n.On("NotifyByName", ctx, "alex#1", mock.MatchedBy(func(msg string) bool {
		return strings.Contains(msg, "**Season 3** wurde **angenommen**") &&
			strings.Contains(msg, "Login: **Alex** / **pw123**") &&
			strings.Contains(msg, "https://portal.example.org/login")
	})).Return(nil).Once()
	bus.Publish(ctx, events.Event{Type: events.ApplicationAccepted, Payload: events.ApplicationDecisionPayload{
		ProjectName: "Season 3", MCName: "Alex", DiscordName: "alex#1", Password: "pw123",
	}})

	n.On("NotifyByName", ctx, "alex#1", "❌ Deine Bewerbung für **Season 3** wurde leider **abgelehnt**.").Return(nil).Once()
	bus.Publish(ctx, events.Event{Type: events.ApplicationRejected, Payload: events.ApplicationDecisionPayload{
		ProjectName: "Season 3", DiscordName: "alex#1",
	}})

	n.AssertExpectations(t)
}

func TestDocumentAssignedWithoutDiscordNameIsSkipped(t *testing.T) {
	bus, n, r := setup()
	ctx := context.Background()

	r.On("DiscordNameForUser", ctx, int64(9)).Return("", nil)
	ok := bus.Publish(ctx, events.Event{Type: events.DocumentAssigned, Payload: events.DocumentAssignedPayload{UserID: 9, Filename: "mods.zip"}})
	assert.Equal(t, 1, ok)
	n.AssertNotCalled(t, "NotifyByName", mock.Anything, mock.Anything, mock.Anything)
}

func TestWhitelistMessage(t *testing.T) {
	bus, n, _ := setup()
	ctx := context.Background()

	n.On("NotifyByName", ctx, "alex#1", "✅ **Alex** wurde auf dem Server **whitelisted**.").Return(nil).Once()
	ok := bus.Publish(ctx, events.Event{Type: events.WhitelistAdded, Payload: events.WhitelistAddedPayload{PlayerName: "Alex", DiscordName: "alex#1"}})
	assert.Equal(t, 1, ok)
	n.AssertExpectations(t)
}

func TestPreviewCutsRunes(t *testing.T) {
	long := strings.Repeat("ä", PreviewRunes+10)
	assert.Equal(t, PreviewRunes, len([]rune(Preview(long))))
	assert.Equal(t, "kurz", Preview("kurz"))
}
