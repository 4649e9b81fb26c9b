// Package liveness runs the periodic sweep that reconciles disconnected
// members: prolonged absence is treated as an automatic pass on the
// member's pending chain step.
package liveness

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Sweeper is what the monitor needs from the session core.
type Sweeper interface {
	// SweepStale auto-resolves the pending chain step of every member
	// disconnected beyond the grace period, returning how many were
	// resolved.
	SweepStale() int
}

// Monitor ticks on a fixed period, independent of any individual
// request.
type Monitor struct {
	clock    clockwork.Clock
	interval time.Duration
	sweeper  Sweeper
}

// New creates a monitor.
func New(clock clockwork.Clock, interval time.Duration, sweeper Sweeper) *Monitor {
	return &Monitor{
		clock:    clock,
		interval: interval,
		sweeper:  sweeper,
	}
}

// Run loops until the context is cancelled, sweeping once per interval.
func (m *Monitor) Run(ctx context.Context) {
	log.Info().Dur("interval", m.interval).Msg("liveness monitor started")

	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("liveness monitor shutting down")
			return
		case <-ticker.Chan():
			if n := m.sweeper.SweepStale(); n > 0 {
				log.Info().Int("auto_resolved", n).Msg("liveness sweep resolved stale members")
			}
		}
	}
}
