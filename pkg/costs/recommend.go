package costs

import (
	"sort"
)

// highValueOperations get the premium model when budget headroom exists
var highValueOperations = map[string]bool{
	"chat_response":      true,
	"sentiment_analysis": true,
}

// ModelCost is a candidate model ranked by estimated cost
type ModelCost struct {
	Model         string  `json:"model"`
	EstimatedCost float64 `json:"estimated_cost"`
}

// ModelRecommendation advises which model to use for an upcoming request
type ModelRecommendation struct {
	Model         string      `json:"model"`
	EstimatedCost float64     `json:"estimated_cost"`
	Reason        string      `json:"reason"`
	Alternatives  []ModelCost `json:"alternatives"`
}

// ModelRecommendation ranks the configured models by estimated cost for the
// given token volume. Once the user's monthly budget utilization crosses 80%
// the cheapest model wins regardless of operation; high-value operations get
// the most capable (most expensive) model while headroom remains. Advisory
// only.
func (t *Tracker) ModelRecommendation(userID, operation string, estimatedTokens int) ModelRecommendation {
	// Assume an even input/output split for the estimate.
	half := float64(estimatedTokens) / 2

	t.mu.Lock()
	candidates := make([]ModelCost, 0, len(t.pricing))
	for model, pricing := range t.pricing {
		candidates = append(candidates, ModelCost{
			Model:         model,
			EstimatedCost: half/1000*pricing.InputPer1K + half/1000*pricing.OutputPer1K,
		})
	}
	budget, hasBudget := t.budgets[userID]
	var monthly float64
	if hasBudget {
		_, monthly = t.userTotalsLocked(userID, nowFunc())
	}
	t.mu.Unlock()

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].EstimatedCost != candidates[j].EstimatedCost {
			return candidates[i].EstimatedCost < candidates[j].EstimatedCost
		}
		return candidates[i].Model < candidates[j].Model
	})

	if len(candidates) == 0 {
		return ModelRecommendation{Reason: "no models configured"}
	}

	utilization := 0.0
	if hasBudget && budget.MonthlyLimit > 0 {
		utilization = monthly / budget.MonthlyLimit * 100
	}

	var pick ModelCost
	var reason string
	switch {
	case utilization >= 80:
		pick = candidates[0]
		reason = "monthly budget utilization is above 80%, choosing the cheapest model"
	case highValueOperations[operation] && (utilization < 50 || !hasBudget):
		pick = candidates[len(candidates)-1]
		reason = "high-value operation with budget headroom, choosing the most capable model"
	default:
		pick = candidates[0]
		reason = "choosing the cheapest suitable model"
	}

	alternatives := make([]ModelCost, 0, len(candidates)-1)
	for _, c := range candidates {
		if c.Model != pick.Model {
			alternatives = append(alternatives, c)
		}
	}

	return ModelRecommendation{
		Model:         pick.Model,
		EstimatedCost: pick.EstimatedCost,
		Reason:        reason,
		Alternatives:  alternatives,
	}
}
