package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_PendingEventsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddUser(ctx, "u1", "Maya"))
	require.NoError(t, s.AddEvent(ctx, Event{
		ID:        "ev-1",
		UserID:    "u1",
		Title:     "Deep tissue session with Alex",
		Notes:     "Follow-up from last week",
		StartTime: time.Now().Add(-2 * time.Hour),
	}))
	require.NoError(t, s.AddEvent(ctx, Event{
		ID:        "ev-2",
		UserID:    "u1",
		Title:     "Intro call",
		StartTime: time.Now().Add(-1 * time.Hour),
	}))

	pending, err := s.PendingEvents(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, pending, 2)
	// Oldest first.
	assert.Equal(t, "ev-1", pending[0].ID)
	assert.Equal(t, "Deep tissue session with Alex", pending[0].Title)

	none, err := s.PendingEvents(ctx, "other-user")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_MarkProcessed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddUser(ctx, "u1", "Maya"))
	require.NoError(t, s.AddEvent(ctx, Event{ID: "ev-1", UserID: "u1", Title: "Session", StartTime: time.Now()}))

	require.NoError(t, s.MarkProcessed(ctx, "ev-1", `{"attendees":["Alex"]}`))

	pending, err := s.PendingEvents(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, pending)

	event, err := s.Event(ctx, "ev-1")
	require.NoError(t, err)
	assert.True(t, event.Processed)
	assert.Equal(t, `{"attendees":["Alex"]}`, event.Extracted)
	assert.False(t, event.ProcessedAt.IsZero())
}

func TestStore_MarkProcessedEmptyExtraction(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddEvent(ctx, Event{ID: "ev-1", UserID: "u1", Title: "Session", StartTime: time.Now()}))
	require.NoError(t, s.MarkProcessed(ctx, "ev-1", ""))

	event, err := s.Event(ctx, "ev-1")
	require.NoError(t, err)
	assert.True(t, event.Processed)
	assert.Empty(t, event.Extracted)
}

func TestStore_MarkProcessedUnknownEvent(t *testing.T) {
	s := newTestStore(t)
	assert.Error(t, s.MarkProcessed(context.Background(), "missing", ""))
}

func TestStore_UserContext(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddUser(ctx, "u1", "Maya"))
	require.NoError(t, s.AddContact(ctx, "u1", "Alex"))
	require.NoError(t, s.AddContact(ctx, "u1", "Jordan"))

	uc, err := s.UserContext(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Maya", uc.Name)
	assert.Equal(t, []string{"Alex", "Jordan"}, uc.Contacts)

	_, err = s.UserContext(ctx, "missing")
	assert.Error(t, err)
}
