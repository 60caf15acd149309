package costs

import (
	"fmt"
	"sort"
	"time"
)

// Timeframe selects the window for CostStats aggregation
type Timeframe string

const (
	TimeframeDaily   Timeframe = "daily"
	TimeframeWeekly  Timeframe = "weekly"
	TimeframeMonthly Timeframe = "monthly"
	TimeframeAll     Timeframe = "all"
)

// ModelUsage aggregates ledger entries for one model
type ModelUsage struct {
	Model        string  `json:"model"`
	Cost         float64 `json:"cost"`
	Requests     int     `json:"requests"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
}

// OperationUsage aggregates ledger entries for one operation category
type OperationUsage struct {
	Operation string  `json:"operation"`
	Cost      float64 `json:"cost"`
	Requests  int     `json:"requests"`
}

// DailyCost is one point of the 30-day trend
type DailyCost struct {
	Date     string  `json:"date"`
	Cost     float64 `json:"cost"`
	Requests int     `json:"requests"`
}

// BudgetUtilization reports spend against configured limits
type BudgetUtilization struct {
	DailyUsed      float64 `json:"daily_used"`
	DailyLimit     float64 `json:"daily_limit"`
	DailyPercent   float64 `json:"daily_percent"`
	MonthlyUsed    float64 `json:"monthly_used"`
	MonthlyLimit   float64 `json:"monthly_limit"`
	MonthlyPercent float64 `json:"monthly_percent"`
}

// CostStats is the per-user aggregation returned by CostStats
type CostStats struct {
	UserID             string                    `json:"user_id"`
	Timeframe          Timeframe                 `json:"timeframe"`
	TotalCost          float64                   `json:"total_cost"`
	TotalRequests      int                       `json:"total_requests"`
	ModelBreakdown     map[string]ModelUsage     `json:"model_breakdown"`
	OperationBreakdown map[string]OperationUsage `json:"operation_breakdown"`
	DailyTrend         []DailyCost               `json:"daily_trend"`
	Budget             *BudgetUtilization        `json:"budget,omitempty"`
}

// CostStats aggregates the user's ledger entries within the timeframe into
// totals, per-model and per-operation breakdowns, a 30-day daily trend, and
// budget utilization when a budget is configured.
func (t *Tracker) CostStats(userID string, timeframe Timeframe) CostStats {
	now := nowFunc()
	cutoff := timeframeCutoff(timeframe, now)
	trendStart := now.AddDate(0, 0, -29)
	trendStart = time.Date(trendStart.Year(), trendStart.Month(), trendStart.Day(), 0, 0, 0, 0, now.Location())

	stats := CostStats{
		UserID:             userID,
		Timeframe:          timeframe,
		ModelBreakdown:     make(map[string]ModelUsage),
		OperationBreakdown: make(map[string]OperationUsage),
	}
	trend := make(map[string]*DailyCost)

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, record := range t.ledger {
		if record.UserID != userID {
			continue
		}

		if !record.Timestamp.Before(trendStart) {
			day := record.Timestamp.Format("2006-01-02")
			point, ok := trend[day]
			if !ok {
				point = &DailyCost{Date: day}
				trend[day] = point
			}
			point.Cost += record.Cost
			point.Requests++
		}

		if record.Timestamp.Before(cutoff) {
			continue
		}

		stats.TotalCost += record.Cost
		stats.TotalRequests++

		mu := stats.ModelBreakdown[record.Model]
		mu.Model = record.Model
		mu.Cost += record.Cost
		mu.Requests++
		mu.InputTokens += record.InputTokens
		mu.OutputTokens += record.OutputTokens
		stats.ModelBreakdown[record.Model] = mu

		ou := stats.OperationBreakdown[record.Operation]
		ou.Operation = record.Operation
		ou.Cost += record.Cost
		ou.Requests++
		stats.OperationBreakdown[record.Operation] = ou
	}

	for _, point := range trend {
		stats.DailyTrend = append(stats.DailyTrend, *point)
	}
	sort.Slice(stats.DailyTrend, func(i, j int) bool {
		return stats.DailyTrend[i].Date < stats.DailyTrend[j].Date
	})

	if budget, ok := t.budgets[userID]; ok {
		daily, monthly := t.userTotalsLocked(userID, now)
		util := &BudgetUtilization{
			DailyUsed:    daily,
			DailyLimit:   budget.DailyLimit,
			MonthlyUsed:  monthly,
			MonthlyLimit: budget.MonthlyLimit,
		}
		if budget.DailyLimit > 0 {
			util.DailyPercent = daily / budget.DailyLimit * 100
		}
		if budget.MonthlyLimit > 0 {
			util.MonthlyPercent = monthly / budget.MonthlyLimit * 100
		}
		stats.Budget = util
	}

	return stats
}

func timeframeCutoff(timeframe Timeframe, now time.Time) time.Time {
	switch timeframe {
	case TimeframeDaily:
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	case TimeframeWeekly:
		return now.AddDate(0, 0, -7)
	case TimeframeMonthly:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	default:
		return time.Time{}
	}
}

// UserCost pairs a user with accumulated spend
type UserCost struct {
	UserID   string  `json:"user_id"`
	Cost     float64 `json:"cost"`
	Requests int     `json:"requests"`
}

// SystemStats is the cross-user operational view
type SystemStats struct {
	TotalCost     float64      `json:"total_cost"`
	TotalRequests int          `json:"total_requests"`
	TopUsers      []UserCost   `json:"top_users"`
	TopModels     []ModelUsage `json:"top_models"`
}

// SystemStats aggregates the whole ledger: total spend, request count, and
// the top users and models by spend. Intended for dashboards, not
// per-request decisions.
func (t *Tracker) SystemStats() SystemStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := SystemStats{}
	users := make(map[string]*UserCost)
	models := make(map[string]*ModelUsage)

	for _, record := range t.ledger {
		stats.TotalCost += record.Cost
		stats.TotalRequests++

		uc, ok := users[record.UserID]
		if !ok {
			uc = &UserCost{UserID: record.UserID}
			users[record.UserID] = uc
		}
		uc.Cost += record.Cost
		uc.Requests++

		mu, ok := models[record.Model]
		if !ok {
			mu = &ModelUsage{Model: record.Model}
			models[record.Model] = mu
		}
		mu.Cost += record.Cost
		mu.Requests++
		mu.InputTokens += record.InputTokens
		mu.OutputTokens += record.OutputTokens
	}

	for _, uc := range users {
		stats.TopUsers = append(stats.TopUsers, *uc)
	}
	sort.Slice(stats.TopUsers, func(i, j int) bool {
		return stats.TopUsers[i].Cost > stats.TopUsers[j].Cost
	})
	if len(stats.TopUsers) > 10 {
		stats.TopUsers = stats.TopUsers[:10]
	}

	for _, mu := range models {
		stats.TopModels = append(stats.TopModels, *mu)
	}
	sort.Slice(stats.TopModels, func(i, j int) bool {
		return stats.TopModels[i].Cost > stats.TopModels[j].Cost
	})
	if len(stats.TopModels) > 10 {
		stats.TopModels = stats.TopModels[:10]
	}

	return stats
}

// OperationCost pairs an operation category with accumulated spend
type OperationCost struct {
	Operation string  `json:"operation"`
	Cost      float64 `json:"cost"`
	Requests  int     `json:"requests"`
}

// OptimizationReport projects month-end spend and flags cost drivers
type OptimizationReport struct {
	UserID             string          `json:"user_id"`
	MonthToDateCost    float64         `json:"month_to_date_cost"`
	RecentDailyAverage float64         `json:"recent_daily_average"`
	ProjectedMonthCost float64         `json:"projected_month_cost"`
	TopOperations      []OperationCost `json:"top_operations"`
	Recommendations    []string        `json:"recommendations"`
}

// OptimizationReport projects the user's month-end spend from the recent
// daily average and lists the operations driving the most cost.
func (t *Tracker) OptimizationReport(userID string) OptimizationReport {
	now := nowFunc()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	recentStart := now.AddDate(0, 0, -7)

	report := OptimizationReport{UserID: userID}
	operations := make(map[string]*OperationCost)
	var recentCost float64

	t.mu.Lock()
	for _, record := range t.ledger {
		if record.UserID != userID {
			continue
		}
		if !record.Timestamp.Before(monthStart) {
			report.MonthToDateCost += record.Cost

			oc, ok := operations[record.Operation]
			if !ok {
				oc = &OperationCost{Operation: record.Operation}
				operations[record.Operation] = oc
			}
			oc.Cost += record.Cost
			oc.Requests++
		}
		if !record.Timestamp.Before(recentStart) {
			recentCost += record.Cost
		}
	}
	budget, hasBudget := t.budgets[userID]
	t.mu.Unlock()

	report.RecentDailyAverage = recentCost / 7

	daysInMonth := time.Date(now.Year(), now.Month()+1, 0, 0, 0, 0, 0, now.Location()).Day()
	daysRemaining := daysInMonth - now.Day()
	report.ProjectedMonthCost = report.MonthToDateCost + report.RecentDailyAverage*float64(daysRemaining)

	for _, oc := range operations {
		report.TopOperations = append(report.TopOperations, *oc)
	}
	sort.Slice(report.TopOperations, func(i, j int) bool {
		return report.TopOperations[i].Cost > report.TopOperations[j].Cost
	})
	if len(report.TopOperations) > 5 {
		report.TopOperations = report.TopOperations[:5]
	}

	if hasBudget && budget.MonthlyLimit > 0 && report.ProjectedMonthCost > budget.MonthlyLimit {
		report.Recommendations = append(report.Recommendations, fmt.Sprintf(
			"projected month-end spend $%.2f exceeds the monthly budget $%.2f; shift bulk operations to a free-tier model",
			report.ProjectedMonthCost, budget.MonthlyLimit))
	}
	if len(report.TopOperations) > 0 && report.MonthToDateCost > 0 {
		top := report.TopOperations[0]
		share := top.Cost / report.MonthToDateCost * 100
		if share >= 50 {
			report.Recommendations = append(report.Recommendations, fmt.Sprintf(
				"%s accounts for %.0f%% of this month's spend; consider batching it or using a cheaper model",
				top.Operation, share))
		}
	}
	if len(report.Recommendations) == 0 {
		report.Recommendations = append(report.Recommendations, "spend is within expected bounds")
	}

	return report
}
