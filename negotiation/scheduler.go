package negotiation

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/booktrader/core"
	"github.com/hupe1980/booktrader/logging"
	"github.com/hupe1980/booktrader/valuation"
)

// Scheduler periodically scans the agent's goals and starts one buyer round
// per unsatisfied goal observed at tick time. Rounds from consecutive ticks
// may overlap; no attempt is made to deduplicate them.
type Scheduler struct {
	initiator *Initiator
	state     *core.StateStore
	interval  time.Duration
	logger    logging.Logger

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// SchedulerOptions configures a Scheduler.
type SchedulerOptions struct {
	// Interval between goal scans. Defaults to one second.
	Interval time.Duration
	Logger   logging.Logger
}

// NewScheduler creates a scheduler driving in.
func NewScheduler(in *Initiator, state *core.StateStore, optFns ...func(o *SchedulerOptions)) *Scheduler {
	opts := SchedulerOptions{Interval: time.Second, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Scheduler{
		initiator: in,
		state:     state,
		interval:  opts.Interval,
		logger:    logging.With(opts.Logger, "component", "scheduler"),
	}
}

// Run ticks until ctx ends, then waits for in-flight rounds to finish.
// Once Run returns, Tick starts no further rounds.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.stop()
			return nil
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// stop marks the scheduler stopped and drains running rounds. Rounds are
// only added under mu while not stopped, so no Add can race the Wait.
func (s *Scheduler) stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.wg.Wait()
}

// Tick starts one round per currently unsatisfied goal and returns how
// many were started. It is safe to call concurrently with Run; after Run
// has stopped it starts nothing and returns 0.
func (s *Scheduler) Tick(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return 0
	}

	snap := s.state.Snapshot()
	goals := valuation.UnsatisfiedGoals(snap.Goals, snap.Inventory)
	if len(goals) == 0 {
		return 0
	}
	s.logger.Debug("scan", "unsatisfied", len(goals))

	for _, g := range goals {
		s.wg.Add(1)
		go func(book string) {
			defer s.wg.Done()
			s.initiator.Negotiate(ctx, book)
		}(g.Book)
	}
	return len(goals)
}

// Wait blocks until every round started by Tick has finished.
func (s *Scheduler) Wait() { s.wg.Wait() }
