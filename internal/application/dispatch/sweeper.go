package dispatch

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/scrapco/scrapco-go/internal/domain/pickup"
	"github.com/scrapco/scrapco-go/internal/domain/shared"
)

// Sweeper periodically reconciles pickups whose offer deadline passed without
// a timer firing. It is the recovery path for offers whose arming process
// crashed: liveness never depends on in-memory state surviving a restart.
type Sweeper struct {
	pickups  pickup.Repository
	engine   *Engine
	clock    shared.Clock
	logger   zerolog.Logger
	interval time.Duration
	limit    int
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewSweeper creates an expiry sweeper
func NewSweeper(pickups pickup.Repository, engine *Engine, clock shared.Clock, logger zerolog.Logger, interval time.Duration, limit int) *Sweeper {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	if interval == 0 {
		interval = 10 * time.Second
	}
	if limit == 0 {
		limit = 50
	}

	return &Sweeper{
		pickups:  pickups,
		engine:   engine,
		clock:    clock,
		logger:   logger,
		interval: interval,
		limit:    limit,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the sweep loop in a goroutine
func (s *Sweeper) Start() {
	go func() {
		defer close(s.doneCh)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.RunOnce(context.Background())
			case <-s.stopCh:
				return
			}
		}
	}()
}

// Stop signals the sweep loop to exit and waits for it
func (s *Sweeper) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

// RunOnce performs one sweep pass. Failures log and continue: the sweeper
// must never take the process down.
func (s *Sweeper) RunOnce(ctx context.Context) {
	now := s.clock.Now()

	expired, err := s.pickups.SweepExpired(ctx, now, s.limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("expiry sweep query failed")
		return
	}

	for _, p := range expired {
		vendorRef := pickup.AnyVendor
		if p.AssignedVendorRef != nil {
			vendorRef = *p.AssignedVendorRef
		}

		s.logger.Info().
			Str("pickup_id", p.ID).
			Str("vendor_ref", vendorRef).
			Msg("sweeper recovering expired offer")

		if err := s.engine.OnTimeout(ctx, p.ID, vendorRef); err != nil {
			s.logger.Error().Err(err).Str("pickup_id", p.ID).Msg("sweeper timeout handling failed")
		}
	}
}
