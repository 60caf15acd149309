package scheduler

import "fmt"

// Priority determines admission order for pending requests. Lower values are
// admitted first; within a tier, earlier submissions win.
type Priority int

const (
	PriorityHigh Priority = iota
	PriorityMedium
	PriorityLow
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// ParsePriority converts a string priority tag to a Priority. Unknown values
// return PriorityMedium along with an error so callers can choose whether to
// treat it as fatal.
func ParsePriority(s string) (Priority, error) {
	switch s {
	case "high":
		return PriorityHigh, nil
	case "medium", "normal", "":
		return PriorityMedium, nil
	case "low":
		return PriorityLow, nil
	default:
		return PriorityMedium, fmt.Errorf("unknown priority %q", s)
	}
}
