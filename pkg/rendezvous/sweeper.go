package rendezvous

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"go.brendoncarroll.net/stdctx/logctx"
)

const DefaultSweepPeriod = 60 * time.Second

type Evictor interface {
	EvictExpired(now time.Time) int
}

// Sweeper periodically evicts expired records.
// Peers are not notified when their record is evicted.
type Sweeper struct {
	Peers   Evictor
	Period  time.Duration
	Clock   clock.Clock
	OnEvict func(n int)
}

// NewSweeper returns a Sweeper for the Coordinator's map, which reports evictions to its Metrics.
func (c *Coordinator) NewSweeper(period time.Duration, clk clock.Clock) *Sweeper {
	return &Sweeper{
		Peers:   c.peers,
		Period:  period,
		Clock:   clk,
		OnEvict: c.metrics.addEvicted,
	}
}

// Run sweeps every Period until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	clk := s.Clock
	if clk == nil {
		clk = clock.New()
	}
	period := s.Period
	if period <= 0 {
		period = DefaultSweepPeriod
	}
	ticker := clk.Ticker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		s.SweepOnce(ctx, clk.Now())
	}
}

// SweepOnce evicts every record expired at now.
func (s *Sweeper) SweepOnce(ctx context.Context, now time.Time) int {
	n := s.Peers.EvictExpired(now)
	if n > 0 {
		logctx.Infof(ctx, "evicted %d expired peers", n)
		if s.OnEvict != nil {
			s.OnEvict(n)
		}
	}
	return n
}
