package persistence

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RejectionRepositoryGORM implements the append-only rejection log.
// The log is best-effort: a deployment without the table must never take
// dispatch down, so reads degrade to an empty set.
type RejectionRepositoryGORM struct {
	db *gorm.DB
}

// NewRejectionRepository creates a new GORM-based rejection repository
func NewRejectionRepository(db *gorm.DB) *RejectionRepositoryGORM {
	return &RejectionRepositoryGORM{db: db}
}

// Record appends a (pickup, vendor) rejection. Duplicate pairs are ignored.
func (r *RejectionRepositoryGORM) Record(ctx context.Context, pickupID, vendorRef string, at time.Time) error {
	model := &PickupVendorRejectionModel{
		PickupID:   pickupID,
		VendorRef:  vendorRef,
		RejectedAt: at,
	}

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(model).Error
}

// List returns the vendor refs rejected for a pickup. Store errors (including
// a missing table) degrade to an empty set.
func (r *RejectionRepositoryGORM) List(ctx context.Context, pickupID string) ([]string, error) {
	var models []PickupVendorRejectionModel
	err := r.db.WithContext(ctx).
		Where("pickup_id = ?", pickupID).
		Order("rejected_at").
		Find(&models).Error
	if err != nil {
		return nil, nil
	}

	refs := make([]string, len(models))
	for i, m := range models {
		refs[i] = m.VendorRef
	}
	return refs, nil
}
