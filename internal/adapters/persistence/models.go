package persistence

import (
	"time"
)

// PickupModel represents the pickups table
type PickupModel struct {
	ID         string  `gorm:"column:id;primaryKey"`
	CustomerID string  `gorm:"column:customer_id;index;not null"`
	Address    string  `gorm:"column:address;not null"`
	Latitude   float64 `gorm:"column:latitude;not null"`
	Longitude  float64 `gorm:"column:longitude;not null"`
	TimeSlot   string  `gorm:"column:time_slot"`

	Status string `gorm:"column:status;index;not null"`

	AssignedVendorRef   *string    `gorm:"column:assigned_vendor_ref"`
	AssignmentExpiresAt *time.Time `gorm:"column:assignment_expires_at;index"`

	CreatedAt   time.Time  `gorm:"column:created_at;not null"`
	CancelledAt *time.Time `gorm:"column:cancelled_at"`
	CompletedAt *time.Time `gorm:"column:completed_at"`
}

func (PickupModel) TableName() string {
	return "pickups"
}

// PickupItemModel represents the pickup_items table, cascade-deleted with the parent
type PickupItemModel struct {
	ID                int64        `gorm:"column:id;primaryKey;autoIncrement"`
	PickupID          string       `gorm:"column:pickup_id;index;not null"`
	Pickup            *PickupModel `gorm:"foreignKey:PickupID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	ScrapTypeID       string       `gorm:"column:scrap_type_id;not null"`
	ScrapTypeName     string       `gorm:"column:scrap_type_name"`
	EstimatedQuantity string       `gorm:"column:estimated_quantity"`
}

func (PickupItemModel) TableName() string {
	return "pickup_items"
}

// VendorBackendModel represents the vendor_backends table (canonical layout).
// Deployments migrated from the legacy layout keep vendor_id/latitude/longitude
// columns instead; the repository falls back to that shape on first failure.
type VendorBackendModel struct {
	VendorRef     string    `gorm:"column:vendor_ref;primaryKey"`
	OfferURL      string    `gorm:"column:offer_url;not null"`
	LastLatitude  *float64  `gorm:"column:last_latitude"`
	LastLongitude *float64  `gorm:"column:last_longitude"`
	UpdatedAt     time.Time `gorm:"column:updated_at;not null;autoUpdateTime"`
}

func (VendorBackendModel) TableName() string {
	return "vendor_backends"
}

// PickupVendorRejectionModel represents the pickup_vendor_rejections table.
// Append-only: one row per (pickup, vendor) pair.
type PickupVendorRejectionModel struct {
	ID         int64     `gorm:"column:id;primaryKey;autoIncrement"`
	PickupID   string    `gorm:"column:pickup_id;uniqueIndex:idx_pickup_vendor;not null"`
	VendorRef  string    `gorm:"column:vendor_ref;uniqueIndex:idx_pickup_vendor;not null"`
	RejectedAt time.Time `gorm:"column:rejected_at;not null"`
}

func (PickupVendorRejectionModel) TableName() string {
	return "pickup_vendor_rejections"
}
