package persistence

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"gorm.io/gorm"

	"github.com/scrapco/scrapco-go/internal/domain/shared"
	"github.com/scrapco/scrapco-go/internal/domain/vendor"
)

// VendorDirectoryGORM implements the vendor directory using GORM.
//
// Two column layouts exist in the wild: the canonical
// (vendor_ref, last_latitude, last_longitude) and the legacy
// (vendor_id, latitude, longitude). The directory tries the canonical layout
// first and switches to the legacy one on the first column failure.
type VendorDirectoryGORM struct {
	db     *gorm.DB
	legacy atomic.Bool
	clock  shared.Clock
}

// NewVendorDirectory creates a new GORM-based vendor directory
func NewVendorDirectory(db *gorm.DB, clock shared.Clock) *VendorDirectoryGORM {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	return &VendorDirectoryGORM{db: db, clock: clock}
}

const legacyVendorSelect = `SELECT vendor_id AS vendor_ref, offer_url,
latitude AS last_latitude, longitude AS last_longitude, updated_at
FROM vendor_backends`

// ListVendors returns a snapshot of all registered backends. A store error
// degrades to an empty list so dispatch yields NO_VENDOR_AVAILABLE instead of
// failing the pickup.
func (r *VendorDirectoryGORM) ListVendors(ctx context.Context) []*vendor.Backend {
	models, err := r.listModels(ctx, "")
	if err != nil {
		return nil
	}

	backends := make([]*vendor.Backend, len(models))
	for i := range models {
		backends[i] = modelToBackend(&models[i])
	}
	return backends
}

// FindByRef returns the backend for a vendor ref, or a NotFoundError
func (r *VendorDirectoryGORM) FindByRef(ctx context.Context, vendorRef string) (*vendor.Backend, error) {
	models, err := r.listModels(ctx, vendorRef)
	if err != nil {
		return nil, fmt.Errorf("failed to get vendor backend: %w", err)
	}
	if len(models) == 0 {
		return nil, shared.NewNotFoundError("vendor", vendorRef)
	}
	return modelToBackend(&models[0]), nil
}

// Upsert creates or updates the directory row keyed by VendorRef. When the
// incoming OfferURL is empty the previously stored one is kept.
func (r *VendorDirectoryGORM) Upsert(ctx context.Context, b *vendor.Backend) (*vendor.Backend, error) {
	offerURL := b.OfferURL
	if offerURL == "" {
		existing, err := r.FindByRef(ctx, b.VendorRef)
		if err != nil {
			var notFound *shared.NotFoundError
			if !errors.As(err, &notFound) {
				return nil, err
			}
			return nil, shared.NewValidationError("offer_url", "required for first registration")
		}
		offerURL = existing.OfferURL
	}

	model := &VendorBackendModel{
		VendorRef:     b.VendorRef,
		OfferURL:      offerURL,
		LastLatitude:  b.Latitude,
		LastLongitude: b.Longitude,
		UpdatedAt:     r.clock.Now(),
	}

	if r.legacy.Load() {
		if err := r.legacyUpsert(ctx, model); err != nil {
			return nil, fmt.Errorf("failed to upsert vendor backend: %w", err)
		}
		return modelToBackend(model), nil
	}

	if err := r.db.WithContext(ctx).Save(model).Error; err != nil {
		// Column failure: remember the legacy layout and retry there
		r.legacy.Store(true)
		if lerr := r.legacyUpsert(ctx, model); lerr != nil {
			return nil, fmt.Errorf("failed to upsert vendor backend: %w", err)
		}
	}

	return modelToBackend(model), nil
}

// legacyUpsert writes the legacy column layout: update first, insert when the
// ref is new.
func (r *VendorDirectoryGORM) legacyUpsert(ctx context.Context, m *VendorBackendModel) error {
	res := r.db.WithContext(ctx).Exec(
		"UPDATE vendor_backends SET offer_url = ?, latitude = ?, longitude = ?, updated_at = ? WHERE vendor_id = ?",
		m.OfferURL, m.LastLatitude, m.LastLongitude, m.UpdatedAt, m.VendorRef)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	return r.db.WithContext(ctx).Exec(
		"INSERT INTO vendor_backends (vendor_id, offer_url, latitude, longitude, updated_at) VALUES (?, ?, ?, ?, ?)",
		m.VendorRef, m.OfferURL, m.LastLatitude, m.LastLongitude, m.UpdatedAt).Error
}

// listModels queries the directory, retrying with the legacy column layout
// when the canonical one is missing. vendorRef filters to one row when set.
func (r *VendorDirectoryGORM) listModels(ctx context.Context, vendorRef string) ([]VendorBackendModel, error) {
	var models []VendorBackendModel

	if !r.legacy.Load() {
		query := r.db.WithContext(ctx)
		if vendorRef != "" {
			query = query.Where("vendor_ref = ?", vendorRef)
		}
		err := query.Find(&models).Error
		if err == nil {
			return models, nil
		}
		// Column failure: remember the legacy layout and fall through
		r.legacy.Store(true)
	}

	raw := legacyVendorSelect
	args := []interface{}{}
	if vendorRef != "" {
		raw += " WHERE vendor_id = ?"
		args = append(args, vendorRef)
	}
	if err := r.db.WithContext(ctx).Raw(raw, args...).Scan(&models).Error; err != nil {
		return nil, err
	}
	return models, nil
}

func modelToBackend(m *VendorBackendModel) *vendor.Backend {
	return &vendor.Backend{
		VendorRef: m.VendorRef,
		OfferURL:  m.OfferURL,
		Latitude:  m.LastLatitude,
		Longitude: m.LastLongitude,
		UpdatedAt: m.UpdatedAt,
	}
}
