package service

import (
	"context"
	"fmt"
	"time"

	"detective_game/internal/domain"
	"detective_game/internal/logger"

	"github.com/go-co-op/gocron/v2"
)

// Tick advances the cycle and auto-locks matches whose time is up, so that
// deadlines move even when no client is polling.
func (s *GameService) Tick(ctx context.Context) error {
	if err := s.tracker.Heartbeat(ctx); err != nil {
		logger.Warn("instance heartbeat failed", "error", err)
	}
	snap, err := s.currentCycle(ctx)
	if err != nil {
		return err
	}
	if snap.Cycle != nil && snap.Cycle.Phase == domain.PhaseLive {
		s.sweepMatches(ctx, false)
	}
	return nil
}

// StartScheduler runs Tick every interval until the returned scheduler is
// shut down.
func (s *GameService) StartScheduler(interval time.Duration) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			defer cancel()
			if err := s.Tick(ctx); err != nil {
				logger.Component("scheduler").Warn("tick failed", "error", err)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("schedule tick: %w", err)
	}

	sched.Start()
	logger.Component("scheduler").Info("cycle scheduler started", "interval", interval)
	return sched, nil
}
