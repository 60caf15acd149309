package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PBLIZZ/MindfulCRM-sub001/pkg/logging"
)

func newTestLimiter(models map[string]WindowConfig) *Limiter {
	return New(Options{
		Models:       models,
		FreeModel:    "google/gemini-2.0-flash-exp:free",
		PremiumModel: "openai/gpt-4o",
		Logger:       logging.Discard("ratelimit"),
	})
}

func TestCheck_FixedWindowSequence(t *testing.T) {
	l := newTestLimiter(map[string]WindowConfig{
		"openai/gpt-4o": {MaxRequests: 3, Window: 200 * time.Millisecond},
	})

	for i := 0; i < 3; i++ {
		decision := l.Check("u1", "openai/gpt-4o")
		assert.True(t, decision.Allowed, "call %d should be allowed", i+1)
	}

	denied := l.Check("u1", "openai/gpt-4o")
	require.False(t, denied.Allowed)
	assert.False(t, denied.ResetAt.IsZero())
	assert.Contains(t, denied.Suggestion, "google/gemini-2.0-flash-exp:free")

	// Past the window boundary a fresh window starts with count 1.
	time.Sleep(time.Until(denied.ResetAt) + 20*time.Millisecond)
	fresh := l.Check("u1", "openai/gpt-4o")
	assert.True(t, fresh.Allowed)

	// And the fresh window still has capacity for two more.
	assert.True(t, l.Check("u1", "openai/gpt-4o").Allowed)
	assert.True(t, l.Check("u1", "openai/gpt-4o").Allowed)
	assert.False(t, l.Check("u1", "openai/gpt-4o").Allowed)
}

func TestCheck_KeysAreIndependentPerUserAndModel(t *testing.T) {
	l := newTestLimiter(map[string]WindowConfig{
		"openai/gpt-4o":               {MaxRequests: 1, Window: time.Second},
		"anthropic/claude-3.5-sonnet": {MaxRequests: 1, Window: time.Second},
	})

	assert.True(t, l.Check("u1", "openai/gpt-4o").Allowed)
	assert.False(t, l.Check("u1", "openai/gpt-4o").Allowed)

	// Different user, same model.
	assert.True(t, l.Check("u2", "openai/gpt-4o").Allowed)

	// Same user, different model.
	assert.True(t, l.Check("u1", "anthropic/claude-3.5-sonnet").Allowed)
}

func TestCheck_UnconfiguredModelIsUnlimited(t *testing.T) {
	l := newTestLimiter(map[string]WindowConfig{
		"openai/gpt-4o": {MaxRequests: 1, Window: time.Second},
	})

	for i := 0; i < 100; i++ {
		assert.True(t, l.Check("u1", "google/gemini-2.0-flash-exp:free").Allowed)
	}
	assert.Equal(t, 0, l.ActiveEntries())
}

func TestRecommendedModel(t *testing.T) {
	l := newTestLimiter(nil)

	assert.Equal(t, "openai/gpt-4o", l.RecommendedModel(5, false))
	assert.Equal(t, "google/gemini-2.0-flash-exp:free", l.RecommendedModel(51, false))
	assert.Equal(t, "google/gemini-2.0-flash-exp:free", l.RecommendedModel(5, true))
}

func TestCleanup_RemovesExpiredEntries(t *testing.T) {
	l := newTestLimiter(map[string]WindowConfig{
		"openai/gpt-4o": {MaxRequests: 3, Window: 30 * time.Millisecond},
	})

	l.Check("u1", "openai/gpt-4o")
	l.Check("u2", "openai/gpt-4o")
	assert.Equal(t, 2, l.ActiveEntries())

	time.Sleep(50 * time.Millisecond)
	l.Cleanup()
	assert.Equal(t, 0, l.ActiveEntries())
}

func TestStartStop_CleanupSweepRuns(t *testing.T) {
	l := New(Options{
		Models: map[string]WindowConfig{
			"openai/gpt-4o": {MaxRequests: 3, Window: 20 * time.Millisecond},
		},
		CleanupInterval: 25 * time.Millisecond,
		Logger:          logging.Discard("ratelimit"),
	})
	l.Start()
	defer l.Stop()

	l.Check("u1", "openai/gpt-4o")
	assert.Equal(t, 1, l.ActiveEntries())

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if l.ActiveEntries() == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("cleanup sweep never removed the expired entry")
}
