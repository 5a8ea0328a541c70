package session_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-session"
)

func TestNavigatorFunc(t *testing.T) {
	var got string
	nav := session.NavigatorFunc(func(path string) { got = path })
	nav.Navigate("/acme/chat")
	assert.Equal(t, "/acme/chat", got)

	var nilNav session.NavigatorFunc
	assert.NotPanics(t, func() { nilNav.Navigate("/anywhere") })
}

func TestActivitySinkFunc(t *testing.T) {
	var got session.ActivityEvent
	sink := session.ActivitySinkFunc(func(_ context.Context, event session.ActivityEvent) error {
		got = event
		return nil
	})

	err := sink.Record(context.Background(), session.ActivityEvent{
		EventType: session.ActivityEventLogout,
	})
	require.NoError(t, err)
	assert.Equal(t, session.ActivityEventLogout, got.EventType)

	var nilSink session.ActivitySinkFunc
	assert.NoError(t, nilSink.Record(context.Background(), session.ActivityEvent{}))
}
