package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/scrapco/scrapco-go/internal/application/mediator"
	"github.com/scrapco/scrapco-go/internal/domain/pickup"
	"github.com/scrapco/scrapco-go/internal/domain/shared"
)

// FindVendorAgainCommand restarts dispatch for a pickup stuck in
// FINDING_VENDOR or parked in NO_VENDOR_AVAILABLE
type FindVendorAgainCommand struct {
	PickupID   string
	CustomerID string
}

// FindVendorAgainResponse carries the pickup back in FINDING_VENDOR
type FindVendorAgainResponse struct {
	Pickup *pickup.Pickup
}

// FindVendorAgainHandler handles customer dispatch retries
type FindVendorAgainHandler struct {
	pickups    pickup.Repository
	dispatcher Dispatcher
	logger     zerolog.Logger
}

// NewFindVendorAgainHandler creates a new retry handler
func NewFindVendorAgainHandler(pickups pickup.Repository, dispatcher Dispatcher, logger zerolog.Logger) *FindVendorAgainHandler {
	return &FindVendorAgainHandler{pickups: pickups, dispatcher: dispatcher, logger: logger}
}

// Handle clears any stale offer, returns the pickup to FINDING_VENDOR, and
// restarts dispatch in the background
func (h *FindVendorAgainHandler) Handle(ctx context.Context, request mediator.Request) (mediator.Response, error) {
	cmd, ok := request.(*FindVendorAgainCommand)
	if !ok {
		return nil, fmt.Errorf("invalid request type")
	}

	current, err := h.pickups.FindOwnedByID(ctx, cmd.PickupID, cmd.CustomerID)
	if err != nil {
		return nil, err
	}
	if current.Status.IsTerminalForDispatch() {
		return nil, shared.NewLostRaceError(fmt.Sprintf("cannot retry dispatch from status %s", current.Status))
	}

	row, modified, err := h.pickups.Retry(ctx, cmd.PickupID, cmd.CustomerID)
	if err != nil {
		return nil, err
	}
	if !modified {
		return nil, shared.NewLostRaceError("pickup changed state before retry, try again")
	}

	// Any armed timer belongs to the offer just cleared
	h.dispatcher.DiscardSession(cmd.PickupID)

	go func() {
		if err := h.dispatcher.Dispatch(context.Background(), cmd.PickupID, nil); err != nil {
			h.logger.Error().Err(err).Str("pickup_id", cmd.PickupID).Msg("retry dispatch failed")
		}
	}()

	return &FindVendorAgainResponse{Pickup: row}, nil
}
