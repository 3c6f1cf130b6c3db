package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/scrapco/scrapco-go/internal/application/mediator"
	"github.com/scrapco/scrapco-go/internal/application/pickup/commands"
	"github.com/scrapco/scrapco-go/internal/application/pickup/queries"
	"github.com/scrapco/scrapco-go/internal/domain/shared"
)

// PickupHandlers serves the customer-facing pickup endpoints
type PickupHandlers struct {
	mediator mediator.Mediator
}

// NewPickupHandlers creates the customer pickup handler set
func NewPickupHandlers(m mediator.Mediator) *PickupHandlers {
	return &PickupHandlers{mediator: m}
}

type createPickupRequest struct {
	Address   string               `json:"address"`
	Latitude  float64              `json:"latitude"`
	Longitude float64              `json:"longitude"`
	TimeSlot  string               `json:"time_slot"`
	Items     []commands.ItemInput `json:"items"`
}

// Create handles POST /api/pickups
func (h *PickupHandlers) Create(w http.ResponseWriter, r *http.Request) {
	customerID, ok := CustomerIDFromContext(r.Context())
	if !ok {
		writeError(w, shared.NewAuthError("missing customer identity"))
		return
	}

	var body createPickupRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, shared.NewInvalidInputError("malformed JSON body"))
		return
	}

	response, err := h.mediator.Send(r.Context(), &commands.CreatePickupCommand{
		CustomerID: customerID,
		Address:    body.Address,
		Latitude:   body.Latitude,
		Longitude:  body.Longitude,
		TimeSlot:   body.TimeSlot,
		Items:      body.Items,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	created := response.(*commands.CreatePickupResponse)
	writeJSON(w, http.StatusCreated, toPickupView(created.Pickup))
}

// Get handles GET /api/pickups/{id}
func (h *PickupHandlers) Get(w http.ResponseWriter, r *http.Request) {
	customerID, ok := CustomerIDFromContext(r.Context())
	if !ok {
		writeError(w, shared.NewAuthError("missing customer identity"))
		return
	}

	response, err := h.mediator.Send(r.Context(), &queries.GetPickupQuery{
		PickupID:   mux.Vars(r)["id"],
		CustomerID: customerID,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	detail := response.(*queries.GetPickupResponse)
	writeJSON(w, http.StatusOK, pickupDetailView{
		pickupView:     toPickupView(detail.Pickup),
		Items:          toItemViews(detail.Items),
		AssignedVendor: detail.AssignedVendor,
	})
}

// Cancel handles POST /api/pickups/{id}/cancel
func (h *PickupHandlers) Cancel(w http.ResponseWriter, r *http.Request) {
	customerID, ok := CustomerIDFromContext(r.Context())
	if !ok {
		writeError(w, shared.NewAuthError("missing customer identity"))
		return
	}

	response, err := h.mediator.Send(r.Context(), &commands.CancelPickupCommand{
		PickupID:   mux.Vars(r)["id"],
		CustomerID: customerID,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	cancelled := response.(*commands.CancelPickupResponse)
	writeJSON(w, http.StatusOK, toPickupView(cancelled.Pickup))
}

// FindVendorAgain handles POST /api/pickups/{id}/find-vendor
func (h *PickupHandlers) FindVendorAgain(w http.ResponseWriter, r *http.Request) {
	customerID, ok := CustomerIDFromContext(r.Context())
	if !ok {
		writeError(w, shared.NewAuthError("missing customer identity"))
		return
	}

	response, err := h.mediator.Send(r.Context(), &commands.FindVendorAgainCommand{
		PickupID:   mux.Vars(r)["id"],
		CustomerID: customerID,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	retried := response.(*commands.FindVendorAgainResponse)
	writeJSON(w, http.StatusOK, toPickupView(retried.Pickup))
}
