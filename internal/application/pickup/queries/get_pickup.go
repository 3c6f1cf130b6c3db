package queries

import (
	"context"
	"fmt"
	"math"

	"github.com/scrapco/scrapco-go/internal/application/mediator"
	domaindispatch "github.com/scrapco/scrapco-go/internal/domain/dispatch"
	"github.com/scrapco/scrapco-go/internal/domain/pickup"
	"github.com/scrapco/scrapco-go/internal/domain/vendor"
)

// GetPickupQuery fetches a pickup with items, assigned vendor info and ETA
type GetPickupQuery struct {
	PickupID   string
	CustomerID string
}

// AssignedVendorInfo is the vendor enrichment of a pickup view
type AssignedVendorInfo struct {
	VendorRef  string   `json:"vendor_ref"`
	Latitude   *float64 `json:"latitude,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty"`
	EtaMinutes *int     `json:"eta_minutes,omitempty"`
}

// GetPickupResponse is the full pickup view
type GetPickupResponse struct {
	Pickup         *pickup.Pickup
	Items          []pickup.Item
	AssignedVendor *AssignedVendorInfo
}

// GetPickupHandler handles pickup status polling
type GetPickupHandler struct {
	pickups pickup.Repository
	vendors vendor.Directory
}

// NewGetPickupHandler creates a new get pickup handler
func NewGetPickupHandler(pickups pickup.Repository, vendors vendor.Directory) *GetPickupHandler {
	return &GetPickupHandler{pickups: pickups, vendors: vendors}
}

// Handle loads the pickup with items and, when a vendor holds the assignment,
// its current location and a rough driving ETA.
func (h *GetPickupHandler) Handle(ctx context.Context, request mediator.Request) (mediator.Response, error) {
	query, ok := request.(*GetPickupQuery)
	if !ok {
		return nil, fmt.Errorf("invalid request type")
	}

	p, err := h.pickups.FindOwnedByID(ctx, query.PickupID, query.CustomerID)
	if err != nil {
		return nil, err
	}

	items, err := h.pickups.ListItems(ctx, query.PickupID)
	if err != nil {
		return nil, err
	}

	response := &GetPickupResponse{Pickup: p, Items: items}

	if p.AssignedVendorRef != nil {
		info := &AssignedVendorInfo{VendorRef: *p.AssignedVendorRef}

		if backend, err := h.vendors.FindByRef(ctx, *p.AssignedVendorRef); err == nil {
			info.Latitude = backend.Latitude
			info.Longitude = backend.Longitude
			if backend.HasLocation() {
				eta := EstimateEtaMinutes(domaindispatch.HaversineKm(
					p.Latitude, p.Longitude, *backend.Latitude, *backend.Longitude))
				info.EtaMinutes = &eta
			}
		}

		response.AssignedVendor = info
	}

	return response, nil
}

// EstimateEtaMinutes converts a distance to a driving estimate at 20 km/h,
// clamped to [5, 180] minutes.
func EstimateEtaMinutes(distanceKm float64) int {
	minutes := int(math.Round(distanceKm / 20 * 60))
	if minutes < 5 {
		return 5
	}
	if minutes > 180 {
		return 180
	}
	return minutes
}
