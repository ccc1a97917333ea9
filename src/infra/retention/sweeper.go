package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/streamhub/pkbattle/src/domain/battle"
)

// Sweeper periodically evicts ended battles older than the retention window.
type Sweeper struct {
	store     battle.Store
	clock     clockwork.Clock
	logger    *zap.Logger
	retention time.Duration
	scheduler gocron.Scheduler
}

func NewSweeper(store battle.Store, clock clockwork.Clock, logger *zap.Logger, retention, interval time.Duration) (*Sweeper, error) {
	s := &Sweeper{
		store:     store,
		clock:     clock,
		logger:    logger,
		retention: retention,
	}
	sched, err := gocron.NewScheduler(gocron.WithClock(clock))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { _, _ = s.Sweep(context.Background()) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("register sweep job: %w", err)
	}
	s.scheduler = sched
	return s, nil
}

func (s *Sweeper) Start() {
	s.scheduler.Start()
}

func (s *Sweeper) Stop() error {
	return s.scheduler.Shutdown()
}

// Sweep evicts ended battles whose EndedAt is older than the retention window.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := s.clock.Now().Add(-s.retention)
	n, err := s.store.Evict(ctx, cutoff)
	if err != nil {
		s.logger.Error("battle eviction failed", zap.Error(err))
		return 0, err
	}
	if n > 0 {
		s.logger.Info("evicted ended battles", zap.Int("count", n), zap.Time("cutoff", cutoff))
	}
	return n, nil
}
