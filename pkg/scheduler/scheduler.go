package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PBLIZZ/MindfulCRM-sub001/pkg/logging"
)

const (
	// MinConcurrency is the lowest accepted concurrency ceiling
	MinConcurrency = 1
	// MaxConcurrency is the highest accepted concurrency ceiling
	MaxConcurrency = 50
	// DefaultDrainTick is the fallback interval at which the drain loop
	// re-checks capacity even if no completion signal arrived
	DefaultDrainTick = 100 * time.Millisecond
	// processingWindowSize bounds the rolling average of processing times
	processingWindowSize = 100
)

// Operation is a unit of work executed under the concurrency ceiling. The
// context is the scheduler's run context; it is cancelled on shutdown but
// never on a pending timeout.
type Operation func(ctx context.Context) (interface{}, error)

// SubmitOptions carries routing and scheduling tags for a single request
type SubmitOptions struct {
	UserID   string
	Model    string
	Priority Priority
	// Timeout bounds how long the request may wait in the pending queue.
	// Zero means wait indefinitely. An admitted request is never cancelled.
	Timeout time.Duration
}

type outcome struct {
	value interface{}
	err   error
}

// request is one queued unit of work
type request struct {
	id         string
	op         Operation
	priority   Priority
	enqueuedAt time.Time
	userID     string
	model      string
	done       chan outcome
	delivered  bool // guarded by Scheduler.mu; exactly one terminal outcome
}

// Scheduler executes operations under a global concurrency ceiling with
// priority admission. One long-lived instance per process is shared by all
// call sites.
type Scheduler struct {
	mu       sync.Mutex
	pending  []*request
	active   map[string]*request
	limit    int
	draining bool
	started  bool

	completed       uint64
	failed          uint64
	processingTimes []time.Duration
	modelCounts     map[string]int
	userCounts      map[string]int

	wake      chan struct{}
	drainTick time.Duration
	ctx       context.Context
	cancel    context.CancelFunc
	loopDone  chan struct{}
	logger    *logging.Logger
}

// New creates a scheduler with the given concurrency ceiling. The ceiling
// must be within [MinConcurrency, MaxConcurrency].
func New(limit int, logger *logging.Logger) (*Scheduler, error) {
	if limit < MinConcurrency || limit > MaxConcurrency {
		return nil, ValidationError{
			Field:   "concurrency",
			Value:   limit,
			Message: "must be between 1 and 50",
		}
	}
	if logger == nil {
		logger = logging.New("scheduler", logging.LevelInfo)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		active:      make(map[string]*request),
		limit:       limit,
		modelCounts: make(map[string]int),
		userCounts:  make(map[string]int),
		wake:        make(chan struct{}, 1),
		drainTick:   DefaultDrainTick,
		ctx:         ctx,
		cancel:      cancel,
		loopDone:    make(chan struct{}),
		logger:      logger,
	}, nil
}

// SetDrainTick overrides the drain loop fallback interval. Must be called
// before Start.
func (s *Scheduler) SetDrainTick(d time.Duration) {
	if d > 0 {
		s.drainTick = d
	}
}

// Start launches the background drain loop
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	go s.drainLoop()
	s.logger.Info("scheduler started", "concurrency", s.limit, "drain_tick", s.drainTick.String())
}

// Submit enqueues an operation and blocks until it produces a terminal
// outcome: the operation's own result or error, a pending timeout, a caller
// context cancellation while still queued, or a shutdown failure.
func (s *Scheduler) Submit(ctx context.Context, op Operation, opts SubmitOptions) (interface{}, error) {
	req := &request{
		id:         uuid.NewString(),
		op:         op,
		priority:   opts.Priority,
		enqueuedAt: time.Now(),
		userID:     opts.UserID,
		model:      opts.Model,
		done:       make(chan outcome, 1),
	}

	s.mu.Lock()
	if s.draining || !s.started {
		s.mu.Unlock()
		return nil, ErrShutdown
	}
	s.enqueueLocked(req)
	queued := len(s.pending)
	s.mu.Unlock()

	s.logger.Debug("request queued",
		"request_id", req.id,
		"user_id", req.userID,
		"model", req.model,
		"priority", req.priority.String(),
		"queue_depth", queued)

	s.signalWake()

	var timer *time.Timer
	if opts.Timeout > 0 {
		timer = time.AfterFunc(opts.Timeout, func() {
			s.expirePending(req, opts.Timeout)
		})
		defer timer.Stop()
	}

	select {
	case out := <-req.done:
		return out.value, out.err
	case <-ctx.Done():
		// Only a still-pending request can be abandoned; once admitted the
		// operation runs to completion and we wait for its outcome.
		if s.abandonPending(req, ctx.Err()) {
			return nil, ctx.Err()
		}
		out := <-req.done
		return out.value, out.err
	}
}

// enqueueLocked inserts the request immediately before the first pending
// request of strictly lower priority, keeping FIFO order within a tier.
func (s *Scheduler) enqueueLocked(req *request) {
	idx := len(s.pending)
	for i, queued := range s.pending {
		if queued.priority > req.priority {
			idx = i
			break
		}
	}
	s.pending = append(s.pending, nil)
	copy(s.pending[idx+1:], s.pending[idx:])
	s.pending[idx] = req
}

// expirePending delivers a timeout failure if the request is still queued
func (s *Scheduler) expirePending(req *request, timeout time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.removePendingLocked(req) {
		return
	}
	if s.deliverLocked(req, outcome{err: &TimeoutError{RequestID: req.id, Timeout: timeout}}) {
		s.failed++
		s.logger.Warn("request timed out while queued",
			"request_id", req.id,
			"user_id", req.userID,
			"timeout", timeout.String())
	}
}

// abandonPending removes a queued request on caller cancellation. Returns
// false if the request already left the pending queue.
func (s *Scheduler) abandonPending(req *request, cause error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.removePendingLocked(req) {
		return false
	}
	if s.deliverLocked(req, outcome{err: cause}) {
		s.failed++
	}
	return true
}

func (s *Scheduler) removePendingLocked(req *request) bool {
	for i, queued := range s.pending {
		if queued == req {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return true
		}
	}
	return false
}

// deliverLocked hands the terminal outcome to the submitter exactly once
func (s *Scheduler) deliverLocked(req *request, out outcome) bool {
	if req.delivered {
		return false
	}
	req.delivered = true
	req.done <- out
	return true
}

func (s *Scheduler) signalWake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// drainLoop admits pending work whenever capacity may have changed. A wake
// signal fires on every completion and concurrency adjustment; the ticker is
// a forward-progress backstop.
func (s *Scheduler) drainLoop() {
	defer close(s.loopDone)

	ticker := time.NewTicker(s.drainTick)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.wake:
		case <-ticker.C:
		}
		s.admit()
	}
}

// admit moves requests from the front of the pending queue to the active set
// while capacity remains
func (s *Scheduler) admit() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for !s.draining && len(s.active) < s.limit && len(s.pending) > 0 {
		req := s.pending[0]
		s.pending = s.pending[1:]
		s.active[req.id] = req
		go s.run(req)
	}
}

// run executes a single admitted operation and records its outcome
func (s *Scheduler) run(req *request) {
	start := time.Now()
	value, err := req.op(s.ctx)
	elapsed := time.Since(start)

	s.mu.Lock()
	delete(s.active, req.id)
	if s.deliverLocked(req, outcome{value: value, err: err}) {
		s.recordCompletionLocked(req, elapsed, err == nil)
	}
	s.mu.Unlock()

	status := "succeeded"
	if err != nil {
		status = "failed"
	}
	s.logger.LogRequestOutcome(req.id, req.userID, req.model, status, elapsed.Milliseconds())

	s.signalWake()
}

// recordCompletionLocked updates counters and the rolling processing window
func (s *Scheduler) recordCompletionLocked(req *request, elapsed time.Duration, success bool) {
	if success {
		s.completed++
	} else {
		s.failed++
	}
	s.processingTimes = append(s.processingTimes, elapsed)
	if len(s.processingTimes) > processingWindowSize {
		s.processingTimes = s.processingTimes[1:]
	}
	s.modelCounts[req.model]++
	s.userCounts[req.userID]++
}

// AdjustConcurrency changes the concurrency ceiling at runtime. Values
// outside [MinConcurrency, MaxConcurrency] are rejected. Raising the ceiling
// immediately wakes the drain loop so queued work can be admitted.
func (s *Scheduler) AdjustConcurrency(limit int) error {
	if limit < MinConcurrency || limit > MaxConcurrency {
		return ValidationError{
			Field:   "concurrency",
			Value:   limit,
			Message: "must be between 1 and 50",
		}
	}

	s.mu.Lock()
	old := s.limit
	s.limit = limit
	s.mu.Unlock()

	s.logger.Info("concurrency adjusted", "old_limit", old, "new_limit", limit)
	s.signalWake()
	return nil
}

// Shutdown stops admission and waits up to timeout for active operations to
// finish. On deadline, every still-active and still-pending request is
// force-failed with ErrShutdown. Always returns with the active set empty.
func (s *Scheduler) Shutdown(timeout time.Duration) error {
	s.mu.Lock()
	wasStarted := s.started
	s.draining = true
	s.mu.Unlock()

	if !wasStarted {
		s.cancel()
		return nil
	}

	s.logger.Info("scheduler shutting down", "timeout", timeout.String())

	deadline := time.Now().Add(timeout)
	for {
		s.mu.Lock()
		remaining := len(s.active)
		s.mu.Unlock()
		if remaining == 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	s.mu.Lock()
	forced := 0
	for _, req := range s.pending {
		if s.deliverLocked(req, outcome{err: ErrShutdown}) {
			s.failed++
			forced++
		}
	}
	s.pending = nil
	for id, req := range s.active {
		if s.deliverLocked(req, outcome{err: ErrShutdown}) {
			s.failed++
			forced++
		}
		delete(s.active, id)
	}
	s.mu.Unlock()

	s.cancel()
	<-s.loopDone

	if forced > 0 {
		s.logger.Warn("shutdown deadline elapsed, force-failed requests", "count", forced)
		return ErrShutdown
	}
	s.logger.Info("scheduler stopped cleanly")
	return nil
}
