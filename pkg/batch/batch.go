// Package batch drives bulk workloads through the governor: it turns every
// pending calendar event into a provider call and submits them through the
// scheduler's batch contract under backpressure.
package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/PBLIZZ/MindfulCRM-sub001/pkg/costs"
	"github.com/PBLIZZ/MindfulCRM-sub001/pkg/logging"
	"github.com/PBLIZZ/MindfulCRM-sub001/pkg/provider"
	"github.com/PBLIZZ/MindfulCRM-sub001/pkg/ratelimit"
	"github.com/PBLIZZ/MindfulCRM-sub001/pkg/scheduler"
	"github.com/PBLIZZ/MindfulCRM-sub001/pkg/store"
)

const (
	// OperationCalendarAnalysis tags calendar extraction usage in the ledger
	OperationCalendarAnalysis = "calendar_analysis"
	// DefaultUserDelay spaces out users so one run never bursts the
	// provider across many users at once
	DefaultUserDelay = time.Second
)

// Options configures a Processor run
type Options struct {
	Model      string
	BatchSize  int
	BatchDelay time.Duration
	UserDelay  time.Duration
	// Timeout bounds each event's wait in the pending queue
	Timeout time.Duration
}

// Processor is the reference bulk consumer of the governor
type Processor struct {
	sched   *scheduler.Scheduler
	tracker *costs.Tracker
	limiter *ratelimit.Limiter
	events  store.EventStore
	prov    provider.Provider
	opts    Options
	logger  *logging.Logger
}

// New creates a Processor. The limiter is optional; when present it supplies
// the model recommendation for bulk runs.
func New(sched *scheduler.Scheduler, tracker *costs.Tracker, limiter *ratelimit.Limiter,
	events store.EventStore, prov provider.Provider, opts Options, logger *logging.Logger) *Processor {
	if opts.UserDelay <= 0 {
		opts.UserDelay = DefaultUserDelay
	}
	if logger == nil {
		logger = logging.New("batch", logging.LevelInfo)
	}
	return &Processor{
		sched:   sched,
		tracker: tracker,
		limiter: limiter,
		events:  events,
		prov:    prov,
		opts:    opts,
		logger:  logger,
	}
}

// UserSummary reports the outcome of one user's run
type UserSummary struct {
	UserID    string  `json:"user_id"`
	Pending   int     `json:"pending"`
	Succeeded int     `json:"succeeded"`
	Failed    int     `json:"failed"`
	Cost      float64 `json:"cost"`
}

// ProcessUsers processes every user's pending events sequentially with an
// inter-user delay. One user's failure does not stop the run; the returned
// summaries cover every user attempted.
func (p *Processor) ProcessUsers(ctx context.Context, userIDs []string) []UserSummary {
	summaries := make([]UserSummary, 0, len(userIDs))

	for i, userID := range userIDs {
		summary, err := p.ProcessUser(ctx, userID)
		if err != nil {
			p.logger.LogError("process_user", err, "user_id", userID)
		}
		summaries = append(summaries, summary)

		if i < len(userIDs)-1 {
			select {
			case <-time.After(p.opts.UserDelay):
			case <-ctx.Done():
				return summaries
			}
		}
	}

	return summaries
}

// ProcessUser fetches the user's shared context once, builds one operation
// per pending event, and drives them through the scheduler batch contract.
// Every event ends up marked processed: successes with their extraction,
// failures with an empty one so they are not retried indefinitely.
func (p *Processor) ProcessUser(ctx context.Context, userID string) (UserSummary, error) {
	summary := UserSummary{UserID: userID}

	userCtx, err := p.events.UserContext(ctx, userID)
	if err != nil {
		return summary, fmt.Errorf("failed to load user context: %w", err)
	}

	pending, err := p.events.PendingEvents(ctx, userID)
	if err != nil {
		return summary, fmt.Errorf("failed to load pending events: %w", err)
	}
	summary.Pending = len(pending)
	if len(pending) == 0 {
		return summary, nil
	}

	model := p.opts.Model
	if p.limiter != nil {
		if recommended := p.limiter.RecommendedModel(len(pending), true); recommended != "" {
			model = recommended
		}
	}

	p.logger.Info("processing user events",
		"user_id", userID,
		"pending", len(pending),
		"model", model)

	ops := make([]scheduler.Operation, len(pending))
	for i, event := range pending {
		ops[i] = p.buildOperation(event, userCtx, model)
	}

	results := p.sched.ExecuteBatch(ctx, ops, scheduler.BatchOptions{
		BatchSize:  p.opts.BatchSize,
		BatchDelay: p.opts.BatchDelay,
		Timeout:    p.opts.Timeout,
		UserID:     userID,
		Model:      model,
		Priority:   scheduler.PriorityMedium,
	})

	for i, result := range results {
		event := pending[i]
		if result.Succeeded() {
			summary.Succeeded++
			if cost, ok := result.Value.(float64); ok {
				summary.Cost += cost
			}
			continue
		}

		summary.Failed++
		p.logger.Warn("event analysis failed, marking processed without extraction",
			"user_id", userID,
			"event_id", event.ID,
			"error", result.Err.Error())
		if markErr := p.events.MarkProcessed(ctx, event.ID, ""); markErr != nil {
			p.logger.LogError("mark_processed", markErr, "event_id", event.ID)
		}
	}

	return summary, nil
}

// buildOperation wraps one event as a scheduler operation: call the
// provider, record cost, persist the extraction. Returns the event's cost.
func (p *Processor) buildOperation(event store.Event, userCtx store.UserContext, model string) scheduler.Operation {
	return func(ctx context.Context) (interface{}, error) {
		resp, err := p.prov.Complete(ctx, provider.Request{
			UserID:    event.UserID,
			Model:     model,
			Operation: OperationCalendarAnalysis,
			Prompt:    buildPrompt(event, userCtx),
		})
		if err != nil {
			return nil, fmt.Errorf("provider call failed for event %s: %w", event.ID, err)
		}

		tracked := p.tracker.TrackUsage(event.UserID, model, resp.InputTokens, resp.OutputTokens, OperationCalendarAnalysis)

		extracted, err := json.Marshal(map[string]string{
			"event_id": event.ID,
			"analysis": resp.Content,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to encode extraction: %w", err)
		}
		if err := p.events.MarkProcessed(ctx, event.ID, string(extracted)); err != nil {
			return nil, fmt.Errorf("failed to persist extraction: %w", err)
		}

		return tracked.Cost, nil
	}
}

// buildPrompt assembles the analysis prompt from the event and the per-user
// context fetched once for the whole run
func buildPrompt(event store.Event, userCtx store.UserContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze this calendar event for %s.\n", userCtx.Name)
	fmt.Fprintf(&b, "Title: %s\n", event.Title)
	if event.Notes != "" {
		fmt.Fprintf(&b, "Notes: %s\n", event.Notes)
	}
	fmt.Fprintf(&b, "Start: %s\n", event.StartTime.Format(time.RFC3339))
	if len(userCtx.Contacts) > 0 {
		fmt.Fprintf(&b, "Known contacts: %s\n", strings.Join(userCtx.Contacts, ", "))
	}
	b.WriteString("Extract attendees, session type, and any follow-up actions.")
	return b.String()
}
