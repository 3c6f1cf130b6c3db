package pickup

import "time"

// Pickup is a customer request to collect recyclable material at a location
// and time window. The persisted row is authoritative: every in-memory view
// of a pickup is a snapshot that may be stale by the next store call.
type Pickup struct {
	ID         string
	CustomerID string
	Address    string
	Latitude   float64
	Longitude  float64
	TimeSlot   string

	Status Status

	// AssignedVendorRef identifies the vendor holding an active offer, or the
	// accepted vendor once status reaches ASSIGNED. Nil when no offer is out.
	AssignedVendorRef *string

	// AssignmentExpiresAt is the absolute deadline of an outstanding offer.
	// Nil when no offer is outstanding and after acceptance.
	AssignmentExpiresAt *time.Time

	CreatedAt   time.Time
	CancelledAt *time.Time
	CompletedAt *time.Time
}

// Item is one scrap line owned by a pickup, cascade-deleted with it
type Item struct {
	ID                int64
	PickupID          string
	ScrapTypeID       string
	ScrapTypeName     string
	EstimatedQuantity string
}

// HasActiveOffer reports whether an unexpired offer is outstanding at the given moment
func (p *Pickup) HasActiveOffer(now time.Time) bool {
	return p.Status == StatusFindingVendor &&
		p.AssignedVendorRef != nil &&
		p.AssignmentExpiresAt != nil &&
		p.AssignmentExpiresAt.After(now)
}

// OfferedTo reports whether the pickup currently carries an offer to the given vendor
func (p *Pickup) OfferedTo(vendorRef string) bool {
	return p.AssignedVendorRef != nil && *p.AssignedVendorRef == vendorRef
}
