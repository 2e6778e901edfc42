package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

const DefaultSweepInterval = 30 * time.Second

// FightSweeper periodically resolves full cars whose fight never ran.
type FightSweeper struct {
	scheduler gocron.Scheduler
	trains    *TrainService
	logger    *slog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
}

func NewFightSweeper(trains *TrainService, interval time.Duration, logger *slog.Logger) (*FightSweeper, error) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &FightSweeper{scheduler: scheduler, trains: trains, logger: logger, ctx: ctx, cancel: cancel}
	_, err = scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.sweep),
		gocron.WithName("pending-fight-sweeper"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		cancel()
		_ = scheduler.Shutdown()
		return nil, fmt.Errorf("schedule sweeper: %w", err)
	}
	return s, nil
}

func (s *FightSweeper) sweep() {
	ctx := s.ctx
	resolved, err := s.trains.SweepPendingFights(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "pending fight sweep failed", slog.Any("error", err))
		return
	}
	if resolved > 0 {
		s.logger.InfoContext(ctx, "pending fights resolved", slog.Int("count", resolved))
	}
}

func (s *FightSweeper) Start() {
	s.scheduler.Start()
	s.logger.Info("pending fight sweeper started")
}

// Shutdown cancels a running sweep and stops the scheduler.
func (s *FightSweeper) Shutdown() error {
	s.cancel()
	return s.scheduler.Shutdown()
}
