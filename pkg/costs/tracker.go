package costs

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PBLIZZ/MindfulCRM-sub001/pkg/logging"
)

// nowFunc is a seam for pinning the clock in tests
var nowFunc = time.Now

const (
	// DefaultLedgerCap bounds the in-memory usage ledger; oldest records are
	// evicted past this point
	DefaultLedgerCap = 10000
	// DefaultAlertThreshold is the budget percentage at which alerts fire
	DefaultAlertThreshold = 80
)

// ModelPricing holds per-1000-token rates for one model
type ModelPricing struct {
	InputPer1K  float64 `mapstructure:"input_per_1k" json:"input_per_1k"`
	OutputPer1K float64 `mapstructure:"output_per_1k" json:"output_per_1k"`
}

// UsageRecord is one immutable ledger entry
type UsageRecord struct {
	RequestID    string    `json:"request_id"`
	UserID       string    `json:"user_id"`
	Model        string    `json:"model"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	Cost         float64   `json:"cost"`
	Operation    string    `json:"operation"`
	Timestamp    time.Time `json:"timestamp"`
}

// Budget holds per-user spend limits. AlertThreshold is a percentage; zero
// means the default of 80.
type Budget struct {
	DailyLimit     float64 `mapstructure:"daily_limit" json:"daily_limit"`
	MonthlyLimit   float64 `mapstructure:"monthly_limit" json:"monthly_limit"`
	AlertThreshold float64 `mapstructure:"alert_threshold" json:"alert_threshold"`
}

// AlertType identifies which limit an alert refers to
type AlertType string

const (
	AlertDailyLimit   AlertType = "daily_limit"
	AlertMonthlyLimit AlertType = "monthly_limit"
)

// Alert signals that cumulative spend crossed the alert threshold of a
// budget limit. Alerts are advisory; the triggering usage is still recorded.
type Alert struct {
	Type       AlertType `json:"type"`
	Current    float64   `json:"current"`
	Limit      float64   `json:"limit"`
	Percentage float64   `json:"percentage"`
}

// TrackResult is returned from TrackUsage
type TrackResult struct {
	Cost         float64 `json:"cost"`
	WithinBudget bool    `json:"within_budget"`
	Alerts       []Alert `json:"alerts"`
}

// Tracker is the usage ledger and budget-alert engine. One shared instance
// per process; safe for concurrent use.
type Tracker struct {
	mu        sync.Mutex
	pricing   map[string]ModelPricing
	ledger    []UsageRecord
	ledgerCap int
	budgets   map[string]Budget
	logger    *logging.Logger
}

// Options configures a Tracker
type Options struct {
	Pricing   map[string]ModelPricing
	LedgerCap int
	Logger    *logging.Logger
}

// New creates a Tracker with the given pricing table
func New(opts Options) *Tracker {
	if opts.LedgerCap <= 0 {
		opts.LedgerCap = DefaultLedgerCap
	}
	if opts.Logger == nil {
		opts.Logger = logging.New("costs", logging.LevelInfo)
	}
	pricing := make(map[string]ModelPricing, len(opts.Pricing))
	for model, p := range opts.Pricing {
		pricing[model] = p
	}
	return &Tracker{
		pricing:   pricing,
		ledger:    make([]UsageRecord, 0, 256),
		ledgerCap: opts.LedgerCap,
		budgets:   make(map[string]Budget),
		logger:    opts.Logger,
	}
}

// TrackUsage computes the cost of one completed request, appends it to the
// ledger, and evaluates the user's budget against the updated totals. The
// record is written before the budget check: budgets alert, they never block
// (record-then-check is deliberate).
func (t *Tracker) TrackUsage(userID, model string, inputTokens, outputTokens int, operation string) TrackResult {
	cost := t.costFor(model, inputTokens, outputTokens)

	record := UsageRecord{
		RequestID:    uuid.NewString(),
		UserID:       userID,
		Model:        model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		Cost:         cost,
		Operation:    operation,
		Timestamp:    nowFunc(),
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.ledger = append(t.ledger, record)
	if excess := len(t.ledger) - t.ledgerCap; excess > 0 {
		t.ledger = t.ledger[excess:]
	}

	result := TrackResult{Cost: cost, WithinBudget: true}

	budget, ok := t.budgets[userID]
	if !ok {
		return result
	}

	daily, monthly := t.userTotalsLocked(userID, nowFunc())
	threshold := budget.AlertThreshold
	if threshold <= 0 {
		threshold = DefaultAlertThreshold
	}

	if budget.DailyLimit > 0 {
		if daily > budget.DailyLimit {
			result.WithinBudget = false
		}
		if daily >= budget.DailyLimit*threshold/100 {
			result.Alerts = append(result.Alerts, Alert{
				Type:       AlertDailyLimit,
				Current:    daily,
				Limit:      budget.DailyLimit,
				Percentage: daily / budget.DailyLimit * 100,
			})
		}
	}
	if budget.MonthlyLimit > 0 {
		if monthly > budget.MonthlyLimit {
			result.WithinBudget = false
		}
		if monthly >= budget.MonthlyLimit*threshold/100 {
			result.Alerts = append(result.Alerts, Alert{
				Type:       AlertMonthlyLimit,
				Current:    monthly,
				Limit:      budget.MonthlyLimit,
				Percentage: monthly / budget.MonthlyLimit * 100,
			})
		}
	}

	for _, alert := range result.Alerts {
		t.logger.Warn("budget alert",
			"user_id", userID,
			"type", string(alert.Type),
			"current", alert.Current,
			"limit", alert.Limit)
	}

	return result
}

// costFor computes cost from the pricing table. Unknown models cost zero
// and log a warning rather than failing the calling operation.
func (t *Tracker) costFor(model string, inputTokens, outputTokens int) float64 {
	pricing, ok := t.pricing[model]
	if !ok {
		t.logger.Warn("no pricing configured for model, recording zero cost", "model", model)
		return 0
	}
	return float64(inputTokens)/1000*pricing.InputPer1K + float64(outputTokens)/1000*pricing.OutputPer1K
}

// SetBudget configures or replaces the budget for a user. A user with no
// budget entry has no enforcement or alerting.
func (t *Tracker) SetBudget(userID string, budget Budget) {
	if budget.AlertThreshold <= 0 {
		budget.AlertThreshold = DefaultAlertThreshold
	}

	t.mu.Lock()
	t.budgets[userID] = budget
	t.mu.Unlock()

	t.logger.Info("budget configured",
		"user_id", userID,
		"daily_limit", budget.DailyLimit,
		"monthly_limit", budget.MonthlyLimit,
		"alert_threshold", budget.AlertThreshold)
}

// BudgetFor returns the user's budget, if one is configured
func (t *Tracker) BudgetFor(userID string) (Budget, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	budget, ok := t.budgets[userID]
	return budget, ok
}

// userTotalsLocked sums the user's spend for the current calendar day and
// month. Caller holds t.mu.
func (t *Tracker) userTotalsLocked(userID string, now time.Time) (daily, monthly float64) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	for _, record := range t.ledger {
		if record.UserID != userID {
			continue
		}
		if !record.Timestamp.Before(monthStart) {
			monthly += record.Cost
			if !record.Timestamp.Before(dayStart) {
				daily += record.Cost
			}
		}
	}
	return daily, monthly
}

// LedgerSize returns the number of records currently held
func (t *Tracker) LedgerSize() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ledger)
}
