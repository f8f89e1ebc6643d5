// Package coordination holds the optional components around the
// dispatch core: the lease-based scheduler leader gate and the orphan
// reaper.
// The core runs correctly without either.
package coordination

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/pmehra7/gridflow/logging"
	"github.com/pmehra7/gridflow/store"
)

// LeaderLeaseKey is the lease guarding the active scheduler.
const LeaderLeaseKey = "scheduler:leader"

// LeaderGate serializes an activity behind a store lease. Concurrent
// schedulers are tolerated by the core, so the gate exists purely to
// avoid wasted duplicate work.
type LeaderGate struct {
	coord  store.Coordinator
	id     string
	ttl    time.Duration
	logger zerolog.Logger
}

// NewLeaderGate creates a gate identified by id (typically hostname plus
// a random suffix).
func NewLeaderGate(coord store.Coordinator, id string, ttl time.Duration) *LeaderGate {
	return &LeaderGate{
		coord:  coord,
		id:     id,
		ttl:    ttl,
		logger: logging.WithComponent("leader-gate"),
	}
}

// RunWhileLeader repeatedly acquires the lease and, while holding it,
// runs fn with a context that is cancelled once a renewal is refused or
// errors twice in a row.
// It returns when ctx is cancelled.
func (g *LeaderGate) RunWhileLeader(ctx context.Context, fn func(ctx context.Context)) {
	retry := g.ttl / 3
	for {
		if ctx.Err() != nil {
			return
		}
		ok, err := g.coord.AcquireLease(ctx, LeaderLeaseKey, g.id, g.ttl)
		if err != nil {
			g.logger.Error().Err(err).Msg("Lease acquire failed")
			wait(ctx, retry)
			continue
		}
		if !ok {
			wait(ctx, retry)
			continue
		}

		g.logger.Info().Str("owner", g.id).Msg("Leadership acquired")
		leaderCtx, cancel := context.WithCancel(ctx)
		renewDone := make(chan struct{})
		go func() {
			defer close(renewDone)
			g.renewLoop(leaderCtx, cancel)
		}()

		fn(leaderCtx)

		cancel()
		<-renewDone
		if err := g.coord.ReleaseLease(context.Background(), LeaderLeaseKey, g.id); err != nil {
			g.logger.Warn().Err(err).Msg("Lease release failed; it will lapse via TTL")
		}
		g.logger.Info().Str("owner", g.id).Msg("Leadership released")
	}
}

// renewLoop extends the lease every ttl/3 and cancels leadership when a
// renewal is refused or errors twice in a row.
func (g *LeaderGate) renewLoop(ctx context.Context, cancel context.CancelFunc) {
	ticker := time.NewTicker(g.ttl / 3)
	defer ticker.Stop()

	errStreak := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ok, err := g.coord.RenewLease(ctx, LeaderLeaseKey, g.id, g.ttl)
			if err != nil {
				errStreak++
				g.logger.Warn().Err(err).Int("streak", errStreak).Msg("Lease renewal error")
				if errStreak >= 2 {
					cancel()
					return
				}
				continue
			}
			errStreak = 0
			if !ok {
				g.logger.Warn().Msg("Lease lost to another owner")
				cancel()
				return
			}
		}
	}
}

func wait(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}
