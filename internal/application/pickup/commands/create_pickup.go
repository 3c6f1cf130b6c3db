package commands

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/scrapco/scrapco-go/internal/application/mediator"
	"github.com/scrapco/scrapco-go/internal/domain/pickup"
	"github.com/scrapco/scrapco-go/internal/domain/shared"
)

// Dispatcher is the slice of the dispatch engine the pickup commands need
type Dispatcher interface {
	Dispatch(ctx context.Context, pickupID string, skipRefs []string) error
	DiscardSession(pickupID string)
}

// ItemInput is one scrap line of a new pickup
type ItemInput struct {
	ScrapTypeID       string `json:"scrap_type_id" validate:"required"`
	ScrapTypeName     string `json:"scrap_type_name"`
	EstimatedQuantity string `json:"estimated_quantity" validate:"required"`
}

// CreatePickupCommand creates a pickup and kicks off dispatch in the background
type CreatePickupCommand struct {
	CustomerID string      `validate:"required"`
	Address    string      `validate:"required"`
	Latitude   float64     `validate:"min=-90,max=90"`
	Longitude  float64     `validate:"min=-180,max=180"`
	TimeSlot   string      `validate:"required"`
	Items      []ItemInput `validate:"required,min=1,dive"`
}

// CreatePickupResponse carries the new pickup
type CreatePickupResponse struct {
	Pickup *pickup.Pickup
}

// CreatePickupHandler handles pickup creation
type CreatePickupHandler struct {
	pickups    pickup.Repository
	dispatcher Dispatcher
	clock      shared.Clock
	validate   *validator.Validate
	logger     zerolog.Logger
}

// NewCreatePickupHandler creates a new create pickup handler
func NewCreatePickupHandler(pickups pickup.Repository, dispatcher Dispatcher, clock shared.Clock, logger zerolog.Logger) *CreatePickupHandler {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	return &CreatePickupHandler{
		pickups:    pickups,
		dispatcher: dispatcher,
		clock:      clock,
		validate:   validator.New(),
		logger:     logger,
	}
}

// Handle validates the command, persists the pickup with its items, and
// starts dispatch in the background.
func (h *CreatePickupHandler) Handle(ctx context.Context, request mediator.Request) (mediator.Response, error) {
	cmd, ok := request.(*CreatePickupCommand)
	if !ok {
		return nil, fmt.Errorf("invalid request type")
	}

	if err := h.validate.Struct(cmd); err != nil {
		return nil, shared.NewInvalidInputError(err.Error())
	}

	p := &pickup.Pickup{
		ID:         uuid.NewString(),
		CustomerID: cmd.CustomerID,
		Address:    cmd.Address,
		Latitude:   cmd.Latitude,
		Longitude:  cmd.Longitude,
		TimeSlot:   cmd.TimeSlot,
		Status:     pickup.StatusRequested,
		CreatedAt:  h.clock.Now(),
	}

	items := make([]pickup.Item, len(cmd.Items))
	for i, item := range cmd.Items {
		items[i] = pickup.Item{
			ScrapTypeID:       item.ScrapTypeID,
			ScrapTypeName:     item.ScrapTypeName,
			EstimatedQuantity: item.EstimatedQuantity,
		}
	}

	if err := h.pickups.Create(ctx, p, items); err != nil {
		return nil, err
	}

	go func() {
		if err := h.dispatcher.Dispatch(context.Background(), p.ID, nil); err != nil {
			h.logger.Error().Err(err).Str("pickup_id", p.ID).Msg("background dispatch failed")
		}
	}()

	return &CreatePickupResponse{Pickup: p}, nil
}
