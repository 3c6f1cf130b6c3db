package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/scrapco/scrapco-go/internal/application/pickup/queries"
	"github.com/scrapco/scrapco-go/internal/domain/pickup"
	"github.com/scrapco/scrapco-go/internal/domain/shared"
)

// pickupView is the wire shape of a pickup
type pickupView struct {
	ID                  string     `json:"id"`
	CustomerID          string     `json:"customer_id"`
	Address             string     `json:"address"`
	Latitude            float64    `json:"latitude"`
	Longitude           float64    `json:"longitude"`
	TimeSlot            string     `json:"time_slot"`
	Status              string     `json:"status"`
	AssignedVendorRef   *string    `json:"assigned_vendor_ref,omitempty"`
	AssignmentExpiresAt *time.Time `json:"assignment_expires_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	CancelledAt         *time.Time `json:"cancelled_at,omitempty"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
}

type itemView struct {
	ScrapTypeID       string `json:"scrap_type_id"`
	ScrapTypeName     string `json:"scrap_type_name,omitempty"`
	EstimatedQuantity string `json:"estimated_quantity"`
}

type pickupDetailView struct {
	pickupView
	Items          []itemView                  `json:"items,omitempty"`
	AssignedVendor *queries.AssignedVendorInfo `json:"assigned_vendor,omitempty"`
}

func toPickupView(p *pickup.Pickup) pickupView {
	return pickupView{
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

func toItemViews(items []pickup.Item) []itemView {
	views := make([]itemView, len(items))
	for i, item := range items {
		views[i] = itemView{
			ScrapTypeID:       item.ScrapTypeID,
			ScrapTypeName:     item.ScrapTypeName,
			EstimatedQuantity: item.EstimatedQuantity,
		}
	}
	return views
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps domain errors onto HTTP statuses
func writeError(w http.ResponseWriter, err error) {
	var (
		invalidInput *shared.InvalidInputError
		validation   *shared.ValidationError
		auth         *shared.AuthError
		notFound     *shared.NotFoundError
		lostRace     *shared.LostRaceError
		upstream     *shared.UpstreamError
	)

	switch {
	case errors.As(err, &invalidInput), errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case errors.As(err, &auth):
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: err.Error()})
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.As(err, &lostRace):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	case errors.As(err, &upstream):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}
