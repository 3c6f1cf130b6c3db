package commands

import (
	"context"
	"fmt"

	"github.com/scrapco/scrapco-go/internal/application/mediator"
	"github.com/scrapco/scrapco-go/internal/domain/pickup"
	"github.com/scrapco/scrapco-go/internal/domain/shared"
)

// CancelPickupCommand cancels a pickup on behalf of its owner.
// Idempotent: cancelling an already-cancelled pickup returns it unchanged.
type CancelPickupCommand struct {
	PickupID   string
	CustomerID string
}

// CancelPickupResponse carries the cancelled pickup
type CancelPickupResponse struct {
	Pickup *pickup.Pickup
}

// CancelPickupHandler handles customer cancellation
type CancelPickupHandler struct {
	pickups    pickup.Repository
	dispatcher Dispatcher
	clock      shared.Clock
}

// NewCancelPickupHandler creates a new cancel pickup handler
func NewCancelPickupHandler(pickups pickup.Repository, dispatcher Dispatcher, clock shared.Clock) *CancelPickupHandler {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	return &CancelPickupHandler{pickups: pickups, dispatcher: dispatcher, clock: clock}
}

// Handle cancels the pickup, then drops any dispatch session and armed timer
func (h *CancelPickupHandler) Handle(ctx context.Context, request mediator.Request) (mediator.Response, error) {
	cmd, ok := request.(*CancelPickupCommand)
	if !ok {
		return nil, fmt.Errorf("invalid request type")
	}

	row, modified, err := h.pickups.Cancel(ctx, cmd.PickupID, cmd.CustomerID, h.clock.Now())
	if err != nil {
		return nil, err
	}

	if !modified {
		current, err := h.pickups.FindOwnedByID(ctx, cmd.PickupID, cmd.CustomerID)
		if err != nil {
			return nil, err
		}
		if current.Status == pickup.StatusCancelled {
			// Second cancel is a no-op
			return &CancelPickupResponse{Pickup: current}, nil
		}
		return nil, shared.NewLostRaceError("pickup is already completed and cannot be cancelled")
	}

	h.dispatcher.DiscardSession(cmd.PickupID)

	return &CancelPickupResponse{Pickup: row}, nil
}
