package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type lapsedExpirer interface {
	ExpireLapsed(ctx context.Context) (int, error)
}

// ExpirySweeper periodically expires approved requests whose code window
// ended without use. Start runs one sweep immediately, then one per interval.
type ExpirySweeper struct {
	expirer  lapsedExpirer
	interval time.Duration
	logger   *zap.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewExpirySweeper creates a sweeper but does not start it.
func NewExpirySweeper(expirer lapsedExpirer, interval time.Duration, logger *zap.Logger) *ExpirySweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &ExpirySweeper{expirer: expirer, interval: interval, logger: logger, done: make(chan struct{})}
}

// Start launches the sweep loop. It exits when ctx is cancelled or Stop is called.
func (s *ExpirySweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.loop(ctx)
	s.logger.Info("expiry sweeper started", zap.Duration("interval", s.interval))
}

// Stop signals the loop to exit and waits for it.
func (s *ExpirySweeper) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

func (s *ExpirySweeper) loop(ctx context.Context) {
	defer close(s.done)

	s.Sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one expiry pass and returns the number of expired requests.
func (s *ExpirySweeper) Sweep(ctx context.Context) int {
	expired, err := s.expirer.ExpireLapsed(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("expiry sweep failed", zap.Error(err))
		}
		return 0
	}
	if expired > 0 {
		s.logger.Info("expiry sweep", zap.Int("expired", expired))
	}
	return expired
}
