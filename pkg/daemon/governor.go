// Package daemon bundles the governor components behind a single long-lived
// process and exposes their stats and admin operations over a Unix socket.
package daemon

import (
	"time"

	"github.com/PBLIZZ/MindfulCRM-sub001/pkg/config"
	"github.com/PBLIZZ/MindfulCRM-sub001/pkg/costs"
	"github.com/PBLIZZ/MindfulCRM-sub001/pkg/logging"
	"github.com/PBLIZZ/MindfulCRM-sub001/pkg/ratelimit"
	"github.com/PBLIZZ/MindfulCRM-sub001/pkg/scheduler"
)

// Governor is the single shared admission-control instance: one scheduler,
// one rate limiter, one cost tracker, constructed explicitly and passed by
// reference to every call site.
type Governor struct {
	Scheduler *scheduler.Scheduler
	Limiter   *ratelimit.Limiter
	Tracker   *costs.Tracker
	logger    *logging.Logger
}

// NewGovernor builds a governor from configuration
func NewGovernor(cfg *config.Config, logger *logging.Logger) (*Governor, error) {
	if logger == nil {
		logger = logging.New("governor", logging.Level(cfg.LogLevel))
	}

	sched, err := scheduler.New(cfg.Concurrency, logger.WithComponent("scheduler"))
	if err != nil {
		return nil, err
	}
	sched.SetDrainTick(cfg.DrainTick)

	limiter := ratelimit.New(ratelimit.Options{
		Models:       cfg.LimiterModels(),
		FreeModel:    cfg.FreeModel,
		PremiumModel: cfg.PremiumModel,
		Logger:       logger.WithComponent("ratelimit"),
	})

	tracker := costs.New(costs.Options{
		Pricing: cfg.Pricing,
		Logger:  logger.WithComponent("costs"),
	})
	for userID, budget := range cfg.Budgets {
		tracker.SetBudget(userID, budget)
	}

	return &Governor{
		Scheduler: sched,
		Limiter:   limiter,
		Tracker:   tracker,
		logger:    logger,
	}, nil
}

// Start launches the scheduler drain loop and the limiter cleanup sweep
func (g *Governor) Start() {
	g.Scheduler.Start()
	g.Limiter.Start()
	g.logger.Info("governor started")
}

// Shutdown drains the scheduler and stops background loops
func (g *Governor) Shutdown(timeout time.Duration) error {
	err := g.Scheduler.Shutdown(timeout)
	g.Limiter.Stop()
	g.logger.Info("governor stopped")
	return err
}
