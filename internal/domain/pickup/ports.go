package pickup

import (
	"context"
	"time"
)

// Repository is the store gateway for pickups. Every transition primitive is a
// conditional update: it mutates the row only when the WHERE clause matches the
// state the caller believes is true, and reports a lost race as modified=false
// rather than an error. Transport failures are returned as errors.
type Repository interface {
	// Create inserts a pickup and its items in one transaction
	Create(ctx context.Context, p *Pickup, items []Item) error

	// FindByID returns the pickup or a NotFoundError
	FindByID(ctx context.Context, id string) (*Pickup, error)

	// FindOwnedByID returns the pickup only when owned by the customer
	FindOwnedByID(ctx context.Context, id, customerID string) (*Pickup, error)

	// ListItems returns the items of a pickup
	ListItems(ctx context.Context, pickupID string) ([]Item, error)

	// BeginFinding sets status FINDING_VENDOR iff the current status allows it.
	// Idempotent over {REQUESTED, NO_VENDOR_AVAILABLE, FINDING_VENDOR}.
	BeginFinding(ctx context.Context, id string) (*Pickup, bool, error)

	// ReserveOffer writes the exclusive offer row iff status is FINDING_VENDOR
	// and no vendor currently holds the pickup
	ReserveOffer(ctx context.Context, id, vendorRef string, expiresAt time.Time) (*Pickup, bool, error)

	// ClearExpiredOffer releases an offer that has passed its deadline. The
	// vendorRef match prevents a late timer from clobbering a newer offer;
	// pass AnyVendor to release regardless of holder.
	ClearExpiredOffer(ctx context.Context, id, vendorRef string, now time.Time) (*Pickup, bool, error)

	// ClearOffer releases the offer held by vendorRef without the expiry guard.
	// Used to roll back a reservation whose offer send failed.
	ClearOffer(ctx context.Context, id, vendorRef string) (*Pickup, bool, error)

	// ConfirmAssignment sets status ASSIGNED iff the offer to vendorRef is
	// still unexpired. Strict expiry: a passed deadline cannot be accepted.
	ConfirmAssignment(ctx context.Context, id, vendorRef string, now time.Time) (*Pickup, bool, error)

	// RejectOffer clears the offer held by vendorRef, keeping FINDING_VENDOR
	RejectOffer(ctx context.Context, id, vendorRef string) (*Pickup, bool, error)

	// GiveUp sets status NO_VENDOR_AVAILABLE and clears offer fields
	GiveUp(ctx context.Context, id string) (*Pickup, bool, error)

	// Cancel sets status CANCELLED iff owned by the customer and not COMPLETED
	Cancel(ctx context.Context, id, customerID string, now time.Time) (*Pickup, bool, error)

	// Complete sets status COMPLETED iff vendorRef owns the assignment and
	// status is ASSIGNED or ON_THE_WAY
	Complete(ctx context.Context, id, vendorRef string, now time.Time) (*Pickup, bool, error)

	// SetOnTheWay sets status ON_THE_WAY iff vendorRef owns the assignment
	SetOnTheWay(ctx context.Context, id, vendorRef string) (*Pickup, bool, error)

	// Retry moves {FINDING_VENDOR, NO_VENDOR_AVAILABLE} back to FINDING_VENDOR,
	// clearing any stale offer fields, iff owned by the customer
	Retry(ctx context.Context, id, customerID string) (*Pickup, bool, error)

	// SweepExpired returns up to limit pickups in FINDING_VENDOR whose
	// outstanding offer deadline has passed
	SweepExpired(ctx context.Context, now time.Time, limit int) ([]*Pickup, error)

	// ListStuckFinding returns up to limit pickups in REQUESTED or
	// FINDING_VENDOR with no outstanding offer. Used at startup to restart
	// dispatch for pickups orphaned by a crash mid-iteration.
	ListStuckFinding(ctx context.Context, limit int) ([]*Pickup, error)
}

// AnyVendor matches any offer holder in ClearExpiredOffer
const AnyVendor = ""

// RejectionRepository is the append-only, best-effort rejection log. A missing
// log table degrades to an empty set so dispatch never fails on it.
type RejectionRepository interface {
	Record(ctx context.Context, pickupID, vendorRef string, at time.Time) error
	List(ctx context.Context, pickupID string) ([]string, error)
}
