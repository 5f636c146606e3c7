package events

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestPublishRunsHandlersInOrder(t *testing.T) {
	bus := NewEventBus(zerolog.New(io.Discard))
	var got []string

	bus.Subscribe(TicketCreated, func(_ context.Context, e Event) error {
		got = append(got, "first:"+e.Payload.(TicketCreatedPayload).Subject)
		return nil
	})
	bus.Subscribe(TicketCreated, func(_ context.Context, e Event) error {
		got = append(got, "second")
		return errors.New("discord down")
	})
	bus.Subscribe(TicketReplied, func(context.Context, Event) error {
		t.Fatal("unrelated handler called")
		return nil
	})

	ok := bus.Publish(context.Background(), Event{Type: TicketCreated, Payload: TicketCreatedPayload{Subject: "Login"}})
	assert.Equal(t, 1, ok)
	assert.Equal(t, []string{"first:Login", "second"}, got)
}

func TestPublishWithoutSubscribers(t *testing.T) {
	bus := NewEventBus(zerolog.New(io.Discard))
	assert.Zero(t, bus.Publish(context.Background(), Event{Type: DiscordTest}))
}
