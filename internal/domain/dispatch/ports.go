package dispatch

import (
	"context"

	"github.com/scrapco/scrapco-go/internal/domain/pickup"
	"github.com/scrapco/scrapco-go/internal/domain/vendor"
)

// OfferSender delivers a pickup offer to a vendor backend. Any non-2xx
// response, network error, or URL validation failure surfaces as an error;
// the engine treats all send failures uniformly and advances.
type OfferSender interface {
	SendOffer(ctx context.Context, v *vendor.Backend, p *pickup.Pickup, items []pickup.Item) error
}
