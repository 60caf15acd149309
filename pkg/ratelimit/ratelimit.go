package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/PBLIZZ/MindfulCRM-sub001/pkg/logging"
)

// DefaultCleanupInterval is how often expired window entries are swept
const DefaultCleanupInterval = time.Minute

// WindowConfig defines the fixed admission window for one model
type WindowConfig struct {
	MaxRequests int
	Window      time.Duration
}

// Decision is the outcome of a rate-limit check. When Allowed is false,
// ResetAt is the end of the current window and Suggestion carries advice for
// the caller (retry later or switch to a higher-limit model).
type Decision struct {
	Allowed    bool      `json:"allowed"`
	ResetAt    time.Time `json:"reset_at,omitempty"`
	Suggestion string    `json:"suggestion,omitempty"`
}

// entry tracks one (userID, model) pair within its current window
type entry struct {
	count   int
	resetAt time.Time
}

// Limiter applies fixed-window request-rate admission per (userID, model)
// pair. Windows are fixed, not sliding: once a window expires a fresh one
// starts on the next call, which permits bursts of up to twice the limit
// across a window boundary.
type Limiter struct {
	mu      sync.Mutex
	configs map[string]WindowConfig
	entries map[string]*entry

	freeModel    string
	premiumModel string

	cleanupInterval time.Duration
	stop            chan struct{}
	stopOnce        sync.Once
	logger          *logging.Logger
}

// Options configures a Limiter
type Options struct {
	// Models maps model name to its window config. A model absent from the
	// map is unlimited.
	Models map[string]WindowConfig
	// FreeModel and PremiumModel feed RecommendedModel and deny suggestions
	FreeModel       string
	PremiumModel    string
	CleanupInterval time.Duration
	Logger          *logging.Logger
}

// New creates a Limiter. Call Start to run the periodic cleanup sweep.
func New(opts Options) *Limiter {
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = DefaultCleanupInterval
	}
	if opts.Logger == nil {
		opts.Logger = logging.New("ratelimit", logging.LevelInfo)
	}
	configs := make(map[string]WindowConfig, len(opts.Models))
	for model, cfg := range opts.Models {
		configs[model] = cfg
	}
	return &Limiter{
		configs:         configs,
		entries:         make(map[string]*entry),
		freeModel:       opts.FreeModel,
		premiumModel:    opts.PremiumModel,
		cleanupInterval: opts.CleanupInterval,
		stop:            make(chan struct{}),
		logger:          opts.Logger,
	}
}

// Check performs a rate-limit admission check for one request. The first
// call in a window creates the entry with count 1 and allows; subsequent
// calls increment until the limit, then deny until the window resets.
func (l *Limiter) Check(userID, model string) Decision {
	cfg, limited := l.configs[model]
	if !limited {
		return Decision{Allowed: true}
	}

	now := time.Now()
	key := userID + ":" + model

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok || now.After(e.resetAt) {
		l.entries[key] = &entry{count: 1, resetAt: now.Add(cfg.Window)}
		return Decision{Allowed: true}
	}

	if e.count < cfg.MaxRequests {
		e.count++
		return Decision{Allowed: true}
	}

	l.logger.Warn("rate limit exceeded",
		"user_id", userID,
		"model", model,
		"limit", cfg.MaxRequests,
		"reset_at", e.resetAt.Format(time.RFC3339))

	return Decision{
		Allowed:    false,
		ResetAt:    e.resetAt,
		Suggestion: l.denySuggestion(model, e.resetAt),
	}
}

func (l *Limiter) denySuggestion(model string, resetAt time.Time) string {
	wait := time.Until(resetAt).Round(time.Second)
	if wait < 0 {
		wait = 0
	}
	if l.freeModel != "" && model != l.freeModel {
		return fmt.Sprintf("rate limit reached for %s; retry in %s or switch to %s", model, wait, l.freeModel)
	}
	return fmt.Sprintf("rate limit reached for %s; retry in %s", model, wait)
}

// RecommendedModel advises which model to use for an upcoming workload. Bulk
// workloads (historical syncs or more than 50 requests) get the free-tier
// model to avoid exhausting premium limits; everything else gets the premium
// model for accuracy. Advisory only.
func (l *Limiter) RecommendedModel(requestCount int, historicalSync bool) string {
	if historicalSync || requestCount > 50 {
		return l.freeModel
	}
	return l.premiumModel
}

// Start launches the periodic cleanup sweep
func (l *Limiter) Start() {
	go func() {
		ticker := time.NewTicker(l.cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-l.stop:
				return
			case <-ticker.C:
				l.Cleanup()
			}
		}
	}()
}

// Stop halts the cleanup sweep
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// Cleanup removes entries whose window has expired, bounding memory
// independent of request volume
func (l *Limiter) Cleanup() {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, e := range l.entries {
		if now.After(e.resetAt) {
			delete(l.entries, key)
			removed++
		}
	}
	if removed > 0 {
		l.logger.Debug("expired rate-limit entries removed", "count", removed, "remaining", len(l.entries))
	}
}

// ActiveEntries returns the number of live window entries
func (l *Limiter) ActiveEntries() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
