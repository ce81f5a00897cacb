package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_RunsEveryHandler(t *testing.T) {
	d := NewInMemoryDispatcher()
	errA := errors.New("a failed")
	errB := errors.New("b failed")

	var seen []string
	d.Subscribe(EventRequestExecuted, func(context.Context, Event) error {
		seen = append(seen, "a")
		return errA
	})
	d.Subscribe(EventRequestExecuted, func(context.Context, Event) error {
		seen = append(seen, "b")
		return errB
	})
	d.Subscribe(AllEvents, func(context.Context, Event) error {
		seen = append(seen, "all")
		return nil
	})
	d.Subscribe(EventTicketCreated, func(context.Context, Event) error {
		seen = append(seen, "other")
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventRequestExecuted, TicketID: 1})
	assert.Equal(t, []string{"a", "b", "all"}, seen)
	require.Error(t, err)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)

	parts := Flatten(err)
	assert.Equal(t, []error{errA, errB}, parts)
}

func TestDispatcher_NoHandlers(t *testing.T) {
	d := NewInMemoryDispatcher()
	assert.NoError(t, d.Publish(context.Background(), Event{Type: EventTicketCreated}))
	assert.Nil(t, Flatten(nil))

	single := errors.New("single")
	assert.Equal(t, []error{single}, Flatten(single))
}
