package batch

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PBLIZZ/MindfulCRM-sub001/pkg/costs"
	"github.com/PBLIZZ/MindfulCRM-sub001/pkg/logging"
	"github.com/PBLIZZ/MindfulCRM-sub001/pkg/provider"
	"github.com/PBLIZZ/MindfulCRM-sub001/pkg/ratelimit"
	"github.com/PBLIZZ/MindfulCRM-sub001/pkg/scheduler"
	"github.com/PBLIZZ/MindfulCRM-sub001/pkg/store"
)

const testModel = "openai/gpt-4o"

func newTestScheduler(t *testing.T) *scheduler.Scheduler {
	t.Helper()
	s, err := scheduler.New(3, logging.Discard("scheduler"))
	require.NoError(t, err)
	s.SetDrainTick(10 * time.Millisecond)
	s.Start()
	t.Cleanup(func() { s.Shutdown(time.Second) })
	return s
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestTracker() *costs.Tracker {
	return costs.New(costs.Options{
		Pricing: map[string]costs.ModelPricing{
			testModel: {InputPer1K: 0.15, OutputPer1K: 0.30},
		},
		Logger: logging.Discard("costs"),
	})
}

func seedUser(t *testing.T, s *store.SQLiteStore, userID string, titles ...string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.AddUser(ctx, userID, "User "+userID))
	require.NoError(t, s.AddContact(ctx, userID, "Alex"))
	for i, title := range titles {
		require.NoError(t, s.AddEvent(ctx, store.Event{
			ID:        userID + "-ev-" + string(rune('a'+i)),
			UserID:    userID,
			Title:     title,
			StartTime: time.Now().Add(time.Duration(i) * time.Minute),
		}))
	}
}

func TestProcessUser_AllEventsProcessed(t *testing.T) {
	sched := newTestScheduler(t)
	events := newTestStore(t)
	tracker := newTestTracker()

	prov := provider.Func(func(ctx context.Context, req provider.Request) (*provider.Response, error) {
		return &provider.Response{
			Content:      "attendees: Alex",
			Model:        req.Model,
			InputTokens:  1000,
			OutputTokens: 1000,
		}, nil
	})

	seedUser(t, events, "u1", "Session one", "Session two", "Session three")

	p := New(sched, tracker, nil, events, prov, Options{
		Model:      testModel,
		BatchSize:  2,
		BatchDelay: 10 * time.Millisecond,
		UserDelay:  10 * time.Millisecond,
	}, logging.Discard("batch"))

	summary, err := p.ProcessUser(context.Background(), "u1")
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Pending)
	assert.Equal(t, 3, summary.Succeeded)
	assert.Equal(t, 0, summary.Failed)
	assert.InDelta(t, 3*0.45, summary.Cost, 1e-9)

	pending, err := events.PendingEvents(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, pending)

	// Each success fed the cost tracker.
	stats := tracker.CostStats("u1", costs.TimeframeAll)
	assert.Equal(t, 3, stats.TotalRequests)
}

func TestProcessUser_FailureMarkedProcessedWithoutExtraction(t *testing.T) {
	sched := newTestScheduler(t)
	events := newTestStore(t)
	tracker := newTestTracker()

	prov := provider.Func(func(ctx context.Context, req provider.Request) (*provider.Response, error) {
		if strings.Contains(req.Prompt, "Broken") {
			return nil, errors.New("model overloaded")
		}
		return &provider.Response{Content: "ok", Model: req.Model, InputTokens: 100, OutputTokens: 100}, nil
	})

	seedUser(t, events, "u1", "Good session", "Broken session", "Another good session")

	p := New(sched, tracker, nil, events, prov, Options{
		Model:      testModel,
		BatchSize:  3,
		BatchDelay: 10 * time.Millisecond,
	}, logging.Discard("batch"))

	summary, err := p.ProcessUser(context.Background(), "u1")
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)

	// The failed event is marked processed with no extraction so it is not
	// retried indefinitely.
	pending, err := events.PendingEvents(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, pending)

	failed, err := events.Event(context.Background(), "u1-ev-b")
	require.NoError(t, err)
	assert.True(t, failed.Processed)
	assert.Empty(t, failed.Extracted)

	ok, err := events.Event(context.Background(), "u1-ev-a")
	require.NoError(t, err)
	assert.Contains(t, ok.Extracted, "analysis")

	// Only successful calls were tracked.
	assert.Equal(t, 2, tracker.CostStats("u1", costs.TimeframeAll).TotalRequests)
}

func TestProcessUsers_SequentialWithIndependentFailures(t *testing.T) {
	sched := newTestScheduler(t)
	events := newTestStore(t)
	tracker := newTestTracker()

	prov := provider.NewScripted()

	seedUser(t, events, "u1", "Session one")
	seedUser(t, events, "u2", "Session two")

	p := New(sched, tracker, nil, events, prov, Options{
		Model:      testModel,
		BatchSize:  5,
		BatchDelay: 10 * time.Millisecond,
		UserDelay:  10 * time.Millisecond,
	}, logging.Discard("batch"))

	// "ghost" has no user row, so context loading fails; u1 and u2 still run.
	summaries := p.ProcessUsers(context.Background(), []string{"u1", "ghost", "u2"})
	require.Len(t, summaries, 3)

	assert.Equal(t, 1, summaries[0].Succeeded)
	assert.Equal(t, 0, summaries[1].Pending)
	assert.Equal(t, 1, summaries[2].Succeeded)
}

func TestProcessUser_UsesLimiterRecommendationForBulkRuns(t *testing.T) {
	sched := newTestScheduler(t)
	events := newTestStore(t)
	tracker := newTestTracker()

	limiter := ratelimit.New(ratelimit.Options{
		FreeModel:    "google/gemini-2.0-flash-exp:free",
		PremiumModel: testModel,
		Logger:       logging.Discard("ratelimit"),
	})

	var seenModel string
	prov := provider.Func(func(ctx context.Context, req provider.Request) (*provider.Response, error) {
		seenModel = req.Model
		return &provider.Response{Content: "ok", Model: req.Model, InputTokens: 10, OutputTokens: 10}, nil
	})

	seedUser(t, events, "u1", "Session one")

	p := New(sched, tracker, limiter, events, prov, Options{
		Model:      testModel,
		BatchSize:  5,
		BatchDelay: 10 * time.Millisecond,
	}, logging.Discard("batch"))

	_, err := p.ProcessUser(context.Background(), "u1")
	require.NoError(t, err)

	// Historical sync runs are steered to the free-tier model.
	assert.Equal(t, "google/gemini-2.0-flash-exp:free", seenModel)
}
