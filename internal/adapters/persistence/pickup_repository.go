package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/scrapco/scrapco-go/internal/domain/pickup"
	"github.com/scrapco/scrapco-go/internal/domain/shared"
)

// PickupRepositoryGORM implements the pickup store gateway using GORM.
// Every transition is a conditional UPDATE whose WHERE clause encodes the
// expected current state; RowsAffected == 0 is a lost race, not an error.
type PickupRepositoryGORM struct {
	db *gorm.DB
}

// NewPickupRepository creates a new GORM-based pickup repository
func NewPickupRepository(db *gorm.DB) *PickupRepositoryGORM {
	return &PickupRepositoryGORM{db: db}
}

// Create inserts a pickup and its items in one transaction
func (r *PickupRepositoryGORM) Create(ctx context.Context, p *pickup.Pickup, items []pickup.Item) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model := pickupToModel(p)
		if err := tx.Create(model).Error; err != nil {
			return fmt.Errorf("failed to insert pickup: %w", err)
		}

		for _, item := range items {
			itemModel := &PickupItemModel{
				PickupID:          p.ID,
				ScrapTypeID:       item.ScrapTypeID,
				ScrapTypeName:     item.ScrapTypeName,
				EstimatedQuantity: item.EstimatedQuantity,
			}
			if err := tx.Create(itemModel).Error; err != nil {
				return fmt.Errorf("failed to insert pickup item: %w", err)
			}
		}

		return nil
	})
}

// FindByID returns the pickup or a NotFoundError
func (r *PickupRepositoryGORM) FindByID(ctx context.Context, id string) (*pickup.Pickup, error) {
	var model PickupModel
	result := r.db.WithContext(ctx).Where("id = ?", id).First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("pickup", id)
		}
		return nil, fmt.Errorf("failed to get pickup: %w", result.Error)
	}
	return modelToPickup(&model), nil
}

// FindOwnedByID returns the pickup only when owned by the customer
func (r *PickupRepositoryGORM) FindOwnedByID(ctx context.Context, id, customerID string) (*pickup.Pickup, error) {
	var model PickupModel
	result := r.db.WithContext(ctx).Where("id = ? AND customer_id = ?", id, customerID).First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("pickup", id)
		}
		return nil, fmt.Errorf("failed to get pickup: %w", result.Error)
	}
	return modelToPickup(&model), nil
}

// ListItems returns the items of a pickup
func (r *PickupRepositoryGORM) ListItems(ctx context.Context, pickupID string) ([]pickup.Item, error) {
	var models []PickupItemModel
	if err := r.db.WithContext(ctx).Where("pickup_id = ?", pickupID).Order("id").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list pickup items: %w", err)
	}

	items := make([]pickup.Item, len(models))
	for i, m := range models {
		items[i] = pickup.Item{
			ID:                m.ID,
			PickupID:          m.PickupID,
			ScrapTypeID:       m.ScrapTypeID,
			ScrapTypeName:     m.ScrapTypeName,
			EstimatedQuantity: m.EstimatedQuantity,
		}
	}
	return items, nil
}

// BeginFinding sets status FINDING_VENDOR iff the current status allows it
func (r *PickupRepositoryGORM) BeginFinding(ctx context.Context, id string) (*pickup.Pickup, bool, error) {
	return r.conditionalUpdate(ctx, id,
		r.db.WithContext(ctx).Model(&PickupModel{}).
			Where("id = ? AND status IN ?", id, []string{
				string(pickup.StatusRequested),
				string(pickup.StatusNoVendorAvailable),
				string(pickup.StatusFindingVendor),
			}),
		map[string]interface{}{
			"status": string(pickup.StatusFindingVendor),
		})
}

// ReserveOffer writes the exclusive offer row iff no vendor currently holds the pickup
func (r *PickupRepositoryGORM) ReserveOffer(ctx context.Context, id, vendorRef string, expiresAt time.Time) (*pickup.Pickup, bool, error) {
	return r.conditionalUpdate(ctx, id,
		r.db.WithContext(ctx).Model(&PickupModel{}).
			Where("id = ? AND status = ? AND assigned_vendor_ref IS NULL",
				id, string(pickup.StatusFindingVendor)),
		map[string]interface{}{
			"assigned_vendor_ref":   vendorRef,
			"assignment_expires_at": expiresAt,
		})
}

// ClearExpiredOffer releases an offer that has passed its deadline. The
// vendorRef match prevents a late timer from clobbering a newer offer.
func (r *PickupRepositoryGORM) ClearExpiredOffer(ctx context.Context, id, vendorRef string, now time.Time) (*pickup.Pickup, bool, error) {
	query := r.db.WithContext(ctx).Model(&PickupModel{}).
		Where("id = ? AND status = ? AND assigned_vendor_ref IS NOT NULL AND assignment_expires_at < ?",
			id, string(pickup.StatusFindingVendor), now)
	if vendorRef != pickup.AnyVendor {
		query = query.Where("assigned_vendor_ref = ?", vendorRef)
	}

	return r.conditionalUpdate(ctx, id, query, clearOfferFields())
}

// ClearOffer releases the offer held by vendorRef without the expiry guard
func (r *PickupRepositoryGORM) ClearOffer(ctx context.Context, id, vendorRef string) (*pickup.Pickup, bool, error) {
	return r.conditionalUpdate(ctx, id,
		r.db.WithContext(ctx).Model(&PickupModel{}).
			Where("id = ? AND status = ? AND assigned_vendor_ref = ?",
				id, string(pickup.StatusFindingVendor), vendorRef),
		clearOfferFields())
}

// ConfirmAssignment sets status ASSIGNED iff the offer to vendorRef is still
// unexpired. Strict expiry: a passed deadline cannot be accepted.
func (r *PickupRepositoryGORM) ConfirmAssignment(ctx context.Context, id, vendorRef string, now time.Time) (*pickup.Pickup, bool, error) {
	return r.conditionalUpdate(ctx, id,
		r.db.WithContext(ctx).Model(&PickupModel{}).
			Where("id = ? AND status = ? AND assigned_vendor_ref = ? AND assignment_expires_at >= ?",
				id, string(pickup.StatusFindingVendor), vendorRef, now),
		map[string]interface{}{
			"status":                string(pickup.StatusAssigned),
			"assignment_expires_at": nil,
		})
}

// RejectOffer clears the offer held by vendorRef, keeping FINDING_VENDOR
func (r *PickupRepositoryGORM) RejectOffer(ctx context.Context, id, vendorRef string) (*pickup.Pickup, bool, error) {
	return r.conditionalUpdate(ctx, id,
		r.db.WithContext(ctx).Model(&PickupModel{}).
			Where("id = ? AND status = ? AND assigned_vendor_ref = ?",
				id, string(pickup.StatusFindingVendor), vendorRef),
		clearOfferFields())
}

// GiveUp sets status NO_VENDOR_AVAILABLE and clears offer fields
func (r *PickupRepositoryGORM) GiveUp(ctx context.Context, id string) (*pickup.Pickup, bool, error) {
	return r.conditionalUpdate(ctx, id,
		r.db.WithContext(ctx).Model(&PickupModel{}).
			Where("id = ? AND status = ?", id, string(pickup.StatusFindingVendor)),
		map[string]interface{}{
			"status":                string(pickup.StatusNoVendorAvailable),
			"assigned_vendor_ref":   nil,
			"assignment_expires_at": nil,
		})
}

// Cancel sets status CANCELLED iff owned by the customer and not already terminal
func (r *PickupRepositoryGORM) Cancel(ctx context.Context, id, customerID string, now time.Time) (*pickup.Pickup, bool, error) {
	return r.conditionalUpdate(ctx, id,
		r.db.WithContext(ctx).Model(&PickupModel{}).
			Where("id = ? AND customer_id = ? AND status NOT IN ?", id, customerID, []string{
				string(pickup.StatusCompleted),
				string(pickup.StatusCancelled),
			}),
		map[string]interface{}{
			"status":                string(pickup.StatusCancelled),
			"cancelled_at":          now,
			"assigned_vendor_ref":   nil,
			"assignment_expires_at": nil,
		})
}

// Complete sets status COMPLETED iff vendorRef owns the assignment
func (r *PickupRepositoryGORM) Complete(ctx context.Context, id, vendorRef string, now time.Time) (*pickup.Pickup, bool, error) {
	return r.conditionalUpdate(ctx, id,
		r.db.WithContext(ctx).Model(&PickupModel{}).
			Where("id = ? AND assigned_vendor_ref = ? AND status IN ?", id, vendorRef, []string{
				string(pickup.StatusAssigned),
				string(pickup.StatusOnTheWay),
			}),
		map[string]interface{}{
			"status":       string(pickup.StatusCompleted),
			"completed_at": now,
		})
}

// SetOnTheWay sets status ON_THE_WAY iff vendorRef owns the assignment
func (r *PickupRepositoryGORM) SetOnTheWay(ctx context.Context, id, vendorRef string) (*pickup.Pickup, bool, error) {
	return r.conditionalUpdate(ctx, id,
		r.db.WithContext(ctx).Model(&PickupModel{}).
			Where("id = ? AND assigned_vendor_ref = ? AND status IN ?", id, vendorRef, []string{
				string(pickup.StatusAssigned),
				string(pickup.StatusOnTheWay),
			}),
		map[string]interface{}{
			"status": string(pickup.StatusOnTheWay),
		})
}

// Retry moves {FINDING_VENDOR, NO_VENDOR_AVAILABLE} back to FINDING_VENDOR,
// clearing any stale offer fields
func (r *PickupRepositoryGORM) Retry(ctx context.Context, id, customerID string) (*pickup.Pickup, bool, error) {
	return r.conditionalUpdate(ctx, id,
		r.db.WithContext(ctx).Model(&PickupModel{}).
			Where("id = ? AND customer_id = ? AND status IN ?", id, customerID, []string{
				string(pickup.StatusFindingVendor),
				string(pickup.StatusNoVendorAvailable),
			}),
		map[string]interface{}{
			"status":                string(pickup.StatusFindingVendor),
			"assigned_vendor_ref":   nil,
			"assignment_expires_at": nil,
		})
}

// SweepExpired returns up to limit pickups in FINDING_VENDOR whose outstanding
// offer deadline has passed
func (r *PickupRepositoryGORM) SweepExpired(ctx context.Context, now time.Time, limit int) ([]*pickup.Pickup, error) {
	var models []PickupModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND assignment_expires_at IS NOT NULL AND assignment_expires_at < ?",
			string(pickup.StatusFindingVendor), now).
		Order("assignment_expires_at").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to sweep expired offers: %w", err)
	}

	pickups := make([]*pickup.Pickup, len(models))
	for i := range models {
		pickups[i] = modelToPickup(&models[i])
	}
	return pickups, nil
}

// ListStuckFinding returns up to limit pickups in REQUESTED or FINDING_VENDOR
// carrying no outstanding offer, oldest first
func (r *PickupRepositoryGORM) ListStuckFinding(ctx context.Context, limit int) ([]*pickup.Pickup, error) {
	var models []PickupModel
	err := r.db.WithContext(ctx).
		Where("status IN ? AND assignment_expires_at IS NULL",
			[]string{string(pickup.StatusRequested), string(pickup.StatusFindingVendor)}).
		Order("created_at").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list stuck pickups: %w", err)
	}

	pickups := make([]*pickup.Pickup, len(models))
	for i := range models {
		pickups[i] = modelToPickup(&models[i])
	}
	return pickups, nil
}

// conditionalUpdate applies the updates through the given query and reloads
// the row when exactly it was modified. Zero rows modified is the lost-race
// signal, returned as modified=false with no error.
func (r *PickupRepositoryGORM) conditionalUpdate(ctx context.Context, id string, query *gorm.DB, updates map[string]interface{}) (*pickup.Pickup, bool, error) {
	result := query.Updates(updates)
	if result.Error != nil {
		return nil, false, fmt.Errorf("failed to update pickup: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, false, nil
	}

	row, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return row, true, nil
}

func clearOfferFields() map[string]interface{} {
	return map[string]interface{}{
		"assigned_vendor_ref":   nil,
		"assignment_expires_at": nil,
	}
}

func pickupToModel(p *pickup.Pickup) *PickupModel {
	return &PickupModel{
		ID:                  p.ID,
		CustomerID:          p.CustomerID,
		Address:             p.Address,
		Latitude:            p.Latitude,
		Longitude:           p.Longitude,
		TimeSlot:            p.TimeSlot,
		Status:              string(p.Status),
		AssignedVendorRef:   p.AssignedVendorRef,
		AssignmentExpiresAt: p.AssignmentExpiresAt,
		CreatedAt:           p.CreatedAt,
		CancelledAt:         p.CancelledAt,
		CompletedAt:         p.CompletedAt,
	}
}

func modelToPickup(m *PickupModel) *pickup.Pickup {
	return &pickup.Pickup{
		ID:                  m.ID,
		CustomerID:          m.CustomerID,
		Address:             m.Address,
		Latitude:            m.Latitude,
		Longitude:           m.Longitude,
		TimeSlot:            m.TimeSlot,
		Status:              pickup.Status(m.Status),
		AssignedVendorRef:   m.AssignedVendorRef,
		AssignmentExpiresAt: m.AssignmentExpiresAt,
		CreatedAt:           m.CreatedAt,
		CancelledAt:         m.CancelledAt,
		CompletedAt:         m.CompletedAt,
	}
}
