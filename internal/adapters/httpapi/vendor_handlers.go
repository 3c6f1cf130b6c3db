package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/scrapco/scrapco-go/internal/domain/pickup"
	"github.com/scrapco/scrapco-go/internal/domain/shared"
	"github.com/scrapco/scrapco-go/internal/domain/vendor"
)

// maxCallbackBody caps vendor callback payload size
const maxCallbackBody = 64 * 1024

// OfferEngine is the slice of the dispatch engine the vendor callbacks need
type OfferEngine interface {
	OnAccept(ctx context.Context, pickupID, vendorRef string) (*pickup.Pickup, error)
	OnReject(ctx context.Context, pickupID, vendorRef string) (*pickup.Pickup, error)
	DiscardSession(pickupID string)
}

// OfferURLValidator validates a vendor-supplied callback URL at registration
type OfferURLValidator interface {
	NormalizeOfferURL(raw string) (string, error)
}

// VendorHandlers serves the signed vendor callback endpoints
type VendorHandlers struct {
	engine       OfferEngine
	pickups      pickup.Repository
	vendors      vendor.Directory
	urlValidator OfferURLValidator
	secret       string
	clock        shared.Clock
	logger       zerolog.Logger
}

// NewVendorHandlers creates the vendor callback handler set
func NewVendorHandlers(
	engine OfferEngine,
	pickups pickup.Repository,
	vendors vendor.Directory,
	urlValidator OfferURLValidator,
	secret string,
	clock shared.Clock,
	logger zerolog.Logger,
) *VendorHandlers {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	return &VendorHandlers{
		engine:       engine,
		pickups:      pickups,
		vendors:      vendors,
		urlValidator: urlValidator,
		secret:       secret,
		clock:        clock,
		logger:       logger,
	}
}

// callbackPayload accepts the field aliases different vendor backend versions
// send for the same two identifiers
type callbackPayload struct {
	PickupIDCamel  string `json:"pickupId"`
	PickupIDSnake  string `json:"pickup_id"`
	RequestIDSnake string `json:"request_id"`
	RequestIDCamel string `json:"requestId"`

	AssignedVendorRef string `json:"assignedVendorRef"`
	VendorIDSnake     string `json:"vendor_id"`
	VendorIDCamel     string `json:"vendorId"`
}

func (p callbackPayload) pickupID() string {
	return firstNonEmpty(p.PickupIDCamel, p.PickupIDSnake, p.RequestIDSnake, p.RequestIDCamel)
}

func (p callbackPayload) vendorRef() string {
	return firstNonEmpty(p.AssignedVendorRef, p.VendorIDSnake, p.VendorIDCamel)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// readSignedCallback verifies the callback signature against the raw body,
// then decodes and normalizes the payload
func (h *VendorHandlers) readSignedCallback(w http.ResponseWriter, r *http.Request) (pickupID, vendorRef string, ok bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody))
	if err != nil {
		writeError(w, shared.NewInvalidInputError("failed to read request body"))
		return "", "", false
	}

	if !VerifySignature(h.secret, body, r.Header.Get(SignatureHeader)) {
		writeError(w, shared.NewAuthError("invalid callback signature"))
		return "", "", false
	}

	var payload callbackPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		writeError(w, shared.NewInvalidInputError("malformed JSON body"))
		return "", "", false
	}

	pickupID = payload.pickupID()
	vendorRef = payload.vendorRef()
	if pickupID == "" {
		writeError(w, shared.NewInvalidInputError("missing pickup id"))
		return "", "", false
	}
	if vendorRef == "" {
		writeError(w, shared.NewInvalidInputError("missing vendor ref"))
		return "", "", false
	}

	return pickupID, vendorRef, true
}

// Accept handles POST /api/vendor/accept
func (h *VendorHandlers) Accept(w http.ResponseWriter, r *http.Request) {
	pickupID, vendorRef, ok := h.readSignedCallback(w, r)
	if !ok {
		return
	}

	row, err := h.engine.OnAccept(r.Context(), pickupID, vendorRef)
	if err != nil {
		writeError(w, err)
		return
	}
	if row == nil {
		writeError(w, shared.NewLostRaceError("offer is no longer available for this vendor"))
		return
	}

	writeJSON(w, http.StatusOK, toPickupView(row))
}

// Reject handles POST /api/vendor/reject
func (h *VendorHandlers) Reject(w http.ResponseWriter, r *http.Request) {
	pickupID, vendorRef, ok := h.readSignedCallback(w, r)
	if !ok {
		return
	}

	row, err := h.engine.OnReject(r.Context(), pickupID, vendorRef)
	if err != nil {
		writeError(w, err)
		return
	}
	if row == nil {
		writeError(w, shared.NewLostRaceError("offer is no longer held by this vendor"))
		return
	}

	writeJSON(w, http.StatusOK, toPickupView(row))
}

// OnTheWay handles POST /api/vendor/on-the-way
func (h *VendorHandlers) OnTheWay(w http.ResponseWriter, r *http.Request) {
	pickupID, vendorRef, ok := h.readSignedCallback(w, r)
	if !ok {
		return
	}

	row, modified, err := h.pickups.SetOnTheWay(r.Context(), pickupID, vendorRef)
	if err != nil {
		writeError(w, err)
		return
	}
	if !modified {
		writeError(w, shared.NewLostRaceError("pickup is not assigned to this vendor"))
		return
	}

	writeJSON(w, http.StatusOK, toPickupView(row))
}

// PickupDone handles POST /api/vendor/pickup-done
func (h *VendorHandlers) PickupDone(w http.ResponseWriter, r *http.Request) {
	pickupID, vendorRef, ok := h.readSignedCallback(w, r)
	if !ok {
		return
	}

	row, modified, err := h.pickups.Complete(r.Context(), pickupID, vendorRef, h.clock.Now())
	if err != nil {
		writeError(w, err)
		return
	}
	if !modified {
		writeError(w, shared.NewLostRaceError("pickup is not assigned to this vendor"))
		return
	}

	// Completion ends any leftover dispatch bookkeeping
	h.engine.DiscardSession(pickupID)

	writeJSON(w, http.StatusOK, toPickupView(row))
}

// locationPayload is the vendor registration/heartbeat body
type locationPayload struct {
	VendorRef     string   `json:"vendor_ref"`
	VendorIDSnake string   `json:"vendor_id"`
	VendorIDCamel string   `json:"vendorId"`
	OfferURL      string   `json:"offer_url"`
	Latitude      *float64 `json:"latitude"`
	Longitude     *float64 `json:"longitude"`
}

// UpdateLocation handles POST /api/vendor/location. It upserts the directory
// row: first registration requires an offer URL, heartbeats may omit it.
func (h *VendorHandlers) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody))
	if err != nil {
		writeError(w, shared.NewInvalidInputError("failed to read request body"))
		return
	}

	if !VerifySignature(h.secret, body, r.Header.Get(SignatureHeader)) {
		writeError(w, shared.NewAuthError("invalid callback signature"))
		return
	}

	var payload locationPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		writeError(w, shared.NewInvalidInputError("malformed JSON body"))
		return
	}

	vendorRef := firstNonEmpty(payload.VendorRef, payload.VendorIDSnake, payload.VendorIDCamel)
	if vendorRef == "" {
		writeError(w, shared.NewInvalidInputError("missing vendor ref"))
		return
	}

	if payload.OfferURL != "" {
		if _, err := h.urlValidator.NormalizeOfferURL(payload.OfferURL); err != nil {
			writeError(w, err)
			return
		}
	}

	backend, err := h.vendors.Upsert(r.Context(), &vendor.Backend{
		VendorRef: vendorRef,
		OfferURL:  payload.OfferURL,
		Latitude:  payload.Latitude,
		Longitude: payload.Longitude,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, vendorBackendView{
		VendorRef: backend.VendorRef,
		OfferURL:  backend.OfferURL,
		Latitude:  backend.Latitude,
		Longitude: backend.Longitude,
		UpdatedAt: backend.UpdatedAt,
	})
}

type vendorBackendView struct {
	VendorRef string    `json:"vendor_ref"`
	OfferURL  string    `json:"offer_url"`
	Latitude  *float64  `json:"latitude,omitempty"`
	Longitude *float64  `json:"longitude,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}
