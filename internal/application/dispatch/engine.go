package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	domain "github.com/scrapco/scrapco-go/internal/domain/dispatch"
	"github.com/scrapco/scrapco-go/internal/domain/pickup"
	"github.com/scrapco/scrapco-go/internal/domain/shared"
	"github.com/scrapco/scrapco-go/internal/domain/vendor"
)

// opTimeout bounds store work done from timer callbacks, which have no caller context
const opTimeout = 10 * time.Second

// Recorder counts dispatch outcomes for monitoring. Implementations must be
// safe for concurrent use.
type Recorder interface {
	OfferSent()
	OfferAccepted()
	OfferRejected()
	OfferExpired()
	GaveUp()
}

type noopRecorder struct{}

func (noopRecorder) OfferSent()     {}
func (noopRecorder) OfferAccepted() {}
func (noopRecorder) OfferRejected() {}
func (noopRecorder) OfferExpired()  {}
func (noopRecorder) GaveUp()        {}

// Engine orchestrates dispatch for pickups: candidate iteration, offer
// emission, timer management and terminal outcomes.
//
// The persisted pickup row is authoritative; the in-memory session is a cache
// plus scheduler. Every operation re-reads the row before acting and every
// mutation is a conditional update, so concurrent actors (vendor callbacks,
// timers, the sweeper, customer actions) are serialized by the store, not by
// the engine.
type Engine struct {
	pickups    pickup.Repository
	rejections pickup.RejectionRepository
	vendors    vendor.Directory
	sender     domain.OfferSender
	sessions   *domain.SessionStore
	clock      shared.Clock
	logger     zerolog.Logger
	metrics    Recorder

	offerTTL   time.Duration
	timerSlack time.Duration
}

// Options holds the engine timing knobs
type Options struct {
	// OfferTTL is how long a vendor holds an exclusive offer (default 2m)
	OfferTTL time.Duration

	// TimerSlack is added to OfferTTL before the timeout timer fires so the
	// timer never races the persisted deadline (default 1s)
	TimerSlack time.Duration

	// Metrics counts dispatch outcomes; nil disables counting
	Metrics Recorder
}

// NewEngine creates a dispatch engine
func NewEngine(
	pickups pickup.Repository,
	rejections pickup.RejectionRepository,
	vendors vendor.Directory,
	sender domain.OfferSender,
	clock shared.Clock,
	logger zerolog.Logger,
	opts Options,
) *Engine {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	if opts.OfferTTL == 0 {
		opts.OfferTTL = 2 * time.Minute
	}
	if opts.TimerSlack == 0 {
		opts.TimerSlack = time.Second
	}
	if opts.Metrics == nil {
		opts.Metrics = noopRecorder{}
	}

	return &Engine{
		pickups:    pickups,
		rejections: rejections,
		vendors:    vendors,
		sender:     sender,
		sessions:   domain.NewSessionStore(),
		clock:      clock,
		logger:     logger,
		metrics:    opts.Metrics,
		offerTTL:   opts.OfferTTL,
		timerSlack: opts.TimerSlack,
	}
}

// Dispatch is the entry point for new pickups, customer retries, and
// restart recovery. skipRefs excludes vendors beyond the persisted rejections.
func (e *Engine) Dispatch(ctx context.Context, pickupID string, skipRefs []string) error {
	p, err := e.pickups.FindByID(ctx, pickupID)
	if err != nil {
		var notFound *shared.NotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return err
	}

	if p.Status.IsTerminalForDispatch() {
		e.sessions.Drop(pickupID)
		return nil
	}

	// A live unexpired offer means another actor is already dispatching
	if p.HasActiveOffer(e.clock.Now()) {
		return nil
	}

	if _, modified, err := e.pickups.BeginFinding(ctx, pickupID); err != nil {
		return err
	} else if !modified {
		// Status moved to a terminal state between the read and the update
		return nil
	}

	backends := e.vendors.ListVendors(ctx)
	if len(backends) == 0 {
		e.logger.Info().Str("pickup_id", pickupID).Msg("no vendors registered, giving up")
		_, _, err := e.pickups.GiveUp(ctx, pickupID)
		e.sessions.Drop(pickupID)
		e.metrics.GaveUp()
		return err
	}

	persisted, err := e.rejections.List(ctx, pickupID)
	if err != nil {
		e.logger.Warn().Err(err).Str("pickup_id", pickupID).Msg("rejection log unavailable, proceeding without it")
	}

	excluded := domain.ExclusionSet(skipRefs, persisted)
	candidates := domain.Exclude(domain.Rank(p.Latitude, p.Longitude, backends), excluded)

	session := domain.NewSession(pickupID, candidates)
	e.sessions.Put(session)

	return e.advance(ctx, session)
}

// advance tries candidates in ranked order until one holds an offer, the
// pickup reaches a terminal state, or the list is exhausted.
func (e *Engine) advance(ctx context.Context, session *domain.Session) error {
	pickupID := session.PickupID

	for {
		candidate := session.Current()
		if candidate == nil {
			break
		}

		vendorRef := candidate.Vendor.VendorRef
		if session.IsRejected(vendorRef) {
			session.Index++
			continue
		}

		now := e.clock.Now()

		// Release a stale offer row that lost its timer across a restart
		if _, _, err := e.pickups.ClearExpiredOffer(ctx, pickupID, pickup.AnyVendor, now); err != nil {
			return err
		}

		expiresAt := now.Add(e.offerTTL)
		row, modified, err := e.pickups.ReserveOffer(ctx, pickupID, vendorRef, expiresAt)
		if err != nil {
			return err
		}

		if !modified {
			current, err := e.pickups.FindByID(ctx, pickupID)
			if err != nil {
				e.sessions.Drop(pickupID)
				return fmt.Errorf("failed to reload pickup after lost reservation: %w", err)
			}
			if current.Status.IsTerminalForDispatch() {
				e.sessions.Drop(pickupID)
				return nil
			}
			if current.HasActiveOffer(e.clock.Now()) {
				// Another thread holds the dispatch baton
				return nil
			}
			session.Index++
			continue
		}

		items, err := e.pickups.ListItems(ctx, pickupID)
		if err != nil {
			e.logger.Warn().Err(err).Str("pickup_id", pickupID).Msg("failed to load items for offer payload")
		}

		if err := e.sender.SendOffer(ctx, candidate.Vendor, row, items); err != nil {
			e.logger.Warn().Err(err).
				Str("pickup_id", pickupID).
				Str("vendor_ref", vendorRef).
				Msg("offer send failed, advancing")

			// Roll back the reservation before trying the next candidate
			if _, _, err := e.pickups.ClearOffer(ctx, pickupID, vendorRef); err != nil {
				return err
			}
			session.Index++
			continue
		}

		e.logger.Info().
			Str("pickup_id", pickupID).
			Str("vendor_ref", vendorRef).
			Float64("distance_km", candidate.DistanceKm).
			Time("expires_at", expiresAt).
			Msg("offer sent")

		e.metrics.OfferSent()
		e.armTimer(session, pickupID, vendorRef)
		return nil
	}

	e.logger.Info().Str("pickup_id", pickupID).Msg("candidates exhausted, no vendor available")
	_, _, err := e.pickups.GiveUp(ctx, pickupID)
	e.sessions.Drop(pickupID)
	e.metrics.GaveUp()
	return err
}

// armTimer schedules the offer timeout at TTL plus slack, so the timer never
// fires before the persisted deadline has actually passed.
func (e *Engine) armTimer(session *domain.Session, pickupID, vendorRef string) {
	session.ArmTimer(time.AfterFunc(e.offerTTL+e.timerSlack, func() {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()

		if err := e.OnTimeout(ctx, pickupID, vendorRef); err != nil {
			e.logger.Error().Err(err).
				Str("pickup_id", pickupID).
				Str("vendor_ref", vendorRef).
				Msg("offer timeout handling failed")
		}
	}))
}

// OnAccept handles a vendor acceptance callback. A nil pickup with nil error
// means the accept lost its race (expired, wrong vendor, or terminal) and the
// caller should surface a conflict.
func (e *Engine) OnAccept(ctx context.Context, pickupID, vendorRef string) (*pickup.Pickup, error) {
	row, modified, err := e.pickups.ConfirmAssignment(ctx, pickupID, vendorRef, e.clock.Now())
	if err != nil {
		return nil, err
	}
	if !modified {
		return nil, nil
	}

	e.sessions.Drop(pickupID)
	e.metrics.OfferAccepted()

	e.logger.Info().
		Str("pickup_id", pickupID).
		Str("vendor_ref", vendorRef).
		Msg("vendor accepted, pickup assigned")

	return row, nil
}

// OnReject handles a vendor rejection callback. The rejection is recorded even
// when the offer-clearing update loses (a late reject still counts toward
// future-session exclusion). A nil pickup with nil error is a lost race.
func (e *Engine) OnReject(ctx context.Context, pickupID, vendorRef string) (*pickup.Pickup, error) {
	if err := e.rejections.Record(ctx, pickupID, vendorRef, e.clock.Now()); err != nil {
		e.logger.Warn().Err(err).
			Str("pickup_id", pickupID).
			Str("vendor_ref", vendorRef).
			Msg("failed to record rejection")
	}

	row, modified, err := e.pickups.RejectOffer(ctx, pickupID, vendorRef)
	if err != nil {
		return nil, err
	}
	if !modified {
		return nil, nil
	}

	e.metrics.OfferRejected()
	e.logger.Info().
		Str("pickup_id", pickupID).
		Str("vendor_ref", vendorRef).
		Msg("vendor rejected offer")

	session := e.sessions.Get(pickupID)
	if session == nil {
		// Session lost to a restart: rebuild from persistent state
		if err := e.Dispatch(ctx, pickupID, []string{vendorRef}); err != nil {
			e.logger.Error().Err(err).Str("pickup_id", pickupID).Msg("dispatch restart after rejection failed")
		}
		return row, nil
	}

	session.MarkRejected(vendorRef)
	if current := session.Current(); current != nil && current.Vendor.VendorRef == vendorRef {
		session.CancelTimer()
		session.Index++
	}

	if err := e.advance(ctx, session); err != nil {
		e.logger.Error().Err(err).Str("pickup_id", pickupID).Msg("dispatch advance after rejection failed")
	}
	return row, nil
}

// OnTimeout handles an expired offer, fired by the armed timer or the sweeper
func (e *Engine) OnTimeout(ctx context.Context, pickupID, vendorRef string) error {
	p, err := e.pickups.FindByID(ctx, pickupID)
	if err != nil {
		var notFound *shared.NotFoundError
		if errors.As(err, &notFound) {
			e.sessions.Drop(pickupID)
			return nil
		}
		return err
	}

	if p.Status.IsTerminalForDispatch() {
		e.sessions.Drop(pickupID)
		return nil
	}

	now := e.clock.Now()

	// Clock skew or a re-offer: the deadline is still ahead, leave it alone
	if p.AssignmentExpiresAt != nil && p.AssignmentExpiresAt.After(now) {
		return nil
	}

	if _, modified, err := e.pickups.ClearExpiredOffer(ctx, pickupID, vendorRef, now); err != nil {
		return err
	} else if !modified {
		e.logger.Debug().
			Str("pickup_id", pickupID).
			Str("vendor_ref", vendorRef).
			Msg("expired offer already cleared by another actor")
	} else {
		e.metrics.OfferExpired()
		e.logger.Info().
			Str("pickup_id", pickupID).
			Str("vendor_ref", vendorRef).
			Msg("offer expired")
	}

	session := e.sessions.Get(pickupID)
	if session == nil {
		return e.Dispatch(ctx, pickupID, []string{vendorRef})
	}

	session.Index++
	return e.advance(ctx, session)
}

// RecoverStalled restarts dispatch for pickups that were mid-iteration when
// the process died: REQUESTED or FINDING_VENDOR with no offer out. Expired
// offers are the sweeper's job; this covers rows the sweeper cannot see.
func (e *Engine) RecoverStalled(ctx context.Context, limit int) error {
	stalled, err := e.pickups.ListStuckFinding(ctx, limit)
	if err != nil {
		return err
	}

	for _, p := range stalled {
		e.logger.Info().Str("pickup_id", p.ID).Msg("recovering stalled pickup")
		if err := e.Dispatch(ctx, p.ID, nil); err != nil {
			e.logger.Error().Err(err).Str("pickup_id", p.ID).Msg("stalled pickup recovery failed")
		}
	}
	return nil
}

// DiscardSession drops any in-memory dispatch state and cancels the armed
// timer. Called after customer cancel and vendor completion; best-effort, the
// sweeper remains the correctness backstop.
func (e *Engine) DiscardSession(pickupID string) {
	e.sessions.Drop(pickupID)
}

// Shutdown cancels every armed timer and drops all sessions
func (e *Engine) Shutdown() {
	e.sessions.DropAll()
}
