package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/windfall/engapp_service/internal/observe"
	"github.com/windfall/engapp_service/internal/repository"
)

// IdleSweeper periodically abandons IN_PROGRESS sessions started longer than
// the idle timeout ago.
type IdleSweeper struct {
	repo        repository.AssessmentRepository
	notifier    Notifier
	metrics     *observe.Metrics
	idleTimeout time.Duration
	interval    time.Duration
	now         func() time.Time
	log         zerolog.Logger
}

// NewIdleSweeper creates a new IdleSweeper.
func NewIdleSweeper(
	repo repository.AssessmentRepository,
	notifier Notifier,
	metrics *observe.Metrics,
	idleTimeout, interval time.Duration,
	log zerolog.Logger,
) *IdleSweeper {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if metrics == nil {
		metrics = observe.NewNop()
	}
	return &IdleSweeper{
		repo:        repo,
		notifier:    notifier,
		metrics:     metrics,
		idleTimeout: idleTimeout,
		interval:    interval,
		now:         time.Now,
		log:         log,
	}
}

// Run sweeps on every tick until ctx is done.
func (s *IdleSweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info().
		Dur("interval", s.interval).
		Dur("idle_timeout", s.idleTimeout).
		Msg("Idle session sweeper started")

	for {
		select {
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.log.Error().Err(err).Msg("Idle session sweep failed")
			}
		case <-ctx.Done():
			s.log.Info().Msg("Idle session sweeper shutting down")
			return nil
		}
	}
}

// SweepOnce abandons every IN_PROGRESS session idle for longer than the
// timeout and returns how many were closed.
func (s *IdleSweeper) SweepOnce(ctx context.Context) (int, error) {
	now := s.now()
	abandoned, err := s.repo.AbandonIdle(ctx, now.Add(-s.idleTimeout))
	if err != nil {
		return 0, err
	}
	if len(abandoned) == 0 {
		return 0, nil
	}

	s.metrics.AssessmentsAbandoned.Add(ctx, int64(len(abandoned)))
	for _, a := range abandoned {
		s.log.Info().
			Str("session_id", a.ID).
			Str("user_id", a.UserID).
			Msg("Assessment abandoned after inactivity")
		_ = s.notifier.Notify(ctx, Event{
			Type:       EventAssessmentAbandoned,
			SessionID:  a.ID,
			UserID:     a.UserID,
			OccurredAt: now,
		})
	}
	return len(abandoned), nil
}
