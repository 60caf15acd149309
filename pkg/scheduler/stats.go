package scheduler

import "time"

// Stats is a point-in-time snapshot of scheduler state. Completed and Failed
// only ever increase; Active never exceeds the concurrency ceiling.
type Stats struct {
	Active            int            `json:"active"`
	Queued            int            `json:"queued"`
	Completed         uint64         `json:"completed"`
	Failed            uint64         `json:"failed"`
	AvgProcessingTime time.Duration  `json:"avg_processing_time"`
	QueueDepth        int            `json:"queue_depth"`
	ModelBreakdown    map[string]int `json:"model_breakdown"`
	UserBreakdown     map[string]int `json:"user_breakdown"`
}

// Stats returns a snapshot of current scheduler activity
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	var avg time.Duration
	if len(s.processingTimes) > 0 {
		var total time.Duration
		for _, d := range s.processingTimes {
			total += d
		}
		avg = total / time.Duration(len(s.processingTimes))
	}

	models := make(map[string]int, len(s.modelCounts))
	for k, v := range s.modelCounts {
		models[k] = v
	}
	users := make(map[string]int, len(s.userCounts))
	for k, v := range s.userCounts {
		users[k] = v
	}

	return Stats{
		Active:            len(s.active),
		Queued:            len(s.pending),
		Completed:         s.completed,
		Failed:            s.failed,
		AvgProcessingTime: avg,
		QueueDepth:        len(s.pending),
		ModelBreakdown:    models,
		UserBreakdown:     users,
	}
}

// Limit returns the current concurrency ceiling
func (s *Scheduler) Limit() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limit
}
