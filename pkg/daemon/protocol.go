package daemon

import (
	"github.com/PBLIZZ/MindfulCRM-sub001/pkg/costs"
	"github.com/PBLIZZ/MindfulCRM-sub001/pkg/ratelimit"
	"github.com/PBLIZZ/MindfulCRM-sub001/pkg/scheduler"
)

// ProtocolVersion is the line-protocol version exchanged in the handshake
const ProtocolVersion = "1.0"

// Message types understood by the daemon
const (
	TypeHandshake         = "handshake"
	TypeStats             = "stats"
	TypeCostStats         = "cost_stats"
	TypeSystemStats       = "system_stats"
	TypeAdjustConcurrency = "adjust_concurrency"
	TypeSetBudget         = "set_budget"
	TypeCheckLimit        = "check_limit"
)

// Request is one line-delimited JSON request. Only the fields relevant to
// Type are populated.
type Request struct {
	Type    string `json:"type"`
	Version string `json:"version,omitempty"`
	Client  string `json:"client,omitempty"`

	UserID    string `json:"user_id,omitempty"`
	Model     string `json:"model,omitempty"`
	Timeframe string `json:"timeframe,omitempty"`

	Limit int `json:"limit,omitempty"`

	DailyLimit     float64 `json:"daily_limit,omitempty"`
	MonthlyLimit   float64 `json:"monthly_limit,omitempty"`
	AlertThreshold float64 `json:"alert_threshold,omitempty"`
}

// Response is the daemon's reply. Status is "ok" or "error"; exactly one of
// the payload fields is set for successful data queries.
type Response struct {
	Type   string `json:"type"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`

	Version string `json:"version,omitempty"`
	Message string `json:"message,omitempty"`

	Stats       *scheduler.Stats    `json:"stats,omitempty"`
	CostStats   *costs.CostStats    `json:"cost_stats,omitempty"`
	SystemStats *costs.SystemStats  `json:"system_stats,omitempty"`
	Decision    *ratelimit.Decision `json:"decision,omitempty"`
}

func okResponse(msgType string) Response {
	return Response{Type: msgType + "_response", Status: "ok"}
}

func errorResponse(msgType, msg string) Response {
	return Response{Type: msgType + "_response", Status: "error", Error: msg}
}
