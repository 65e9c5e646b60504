package processor

import (
	"context"
	"time"

	"github.com/nimasrn/sms-credits/internal/services"
	"github.com/nimasrn/sms-credits/pkg/logger"
)

type PendingSweeper interface {
	Sweep(ctx context.Context) (services.SweepStats, error)
}

// Sweeper settles payments whose callback never arrived. It sweeps once on
// start and then on every tick until ctx is done.
type Sweeper struct {
	target   PendingSweeper
	interval time.Duration
	log      *logger.ZapLogger
}

func NewSweeper(target PendingSweeper, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{target: target, interval: interval, log: logger.With("component", "sweeper")}
}

func (s *Sweeper) Run(ctx context.Context) error {
	s.log.Info("started", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.sweepOnce(ctx)

		select {
		case <-ctx.Done():
			s.log.Info("stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	start := time.Now()
	stats, err := s.target.Sweep(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Error("sweep failed", "error", err)
		}
		return
	}
	if stats.Checked == 0 {
		return
	}
	s.log.Info("sweep finished",
		"checked", stats.Checked,
		"succeeded", stats.Succeeded,
		"failed", stats.Failed,
		"pending", stats.Pending,
		"took", time.Since(start))
}
