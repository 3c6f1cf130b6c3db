package offer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/scrapco/scrapco-go/internal/domain/pickup"
	"github.com/scrapco/scrapco-go/internal/domain/shared"
	"github.com/scrapco/scrapco-go/internal/domain/vendor"
)

// offerPath is the path every vendor backend accepts offers on
const offerPath = "/api/offer"

// defaultTimeout is the hard cap on one offer HTTP exchange
const defaultTimeout = 10 * time.Second

// Client delivers pickup offers to vendor backends over HTTP.
// All delivery failures look the same to the engine: the candidate failed.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	bearer     string
	production bool
	logger     zerolog.Logger
}

// Config holds offer client settings
type Config struct {
	// Timeout caps the HTTP exchange; defaults to 10s
	Timeout time.Duration

	// Bearer is an optional outbound Authorization token; empty sends none
	Bearer string

	// Production rejects loopback offer URLs instead of warning
	Production bool

	// RatePerSec / Burst bound outbound offer traffic
	RatePerSec float64
	Burst      int
}

// NewClient creates an offer client
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	ratePerSec := cfg.RatePerSec
	if ratePerSec == 0 {
		ratePerSec = 5
	}
	burst := cfg.Burst
	if burst == 0 {
		burst = 2
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(ratePerSec), burst),
		bearer:     cfg.Bearer,
		production: cfg.Production,
		logger:     logger,
	}
}

// payload is the offer body POSTed to vendors. The pickup id is duplicated
// under three keys for cross-version compatibility.
type payload struct {
	VendorID     string  `json:"vendor_id"`
	RequestID    string  `json:"request_id"`
	PickupIDCaml string  `json:"pickupId"`
	PickupID     string  `json:"pickup_id"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	ScrapSummary string  `json:"scrap_summary,omitempty"`
}

// SendOffer POSTs the offer to the vendor's normalized callback URL.
// Success is any 2xx response.
func (c *Client) SendOffer(ctx context.Context, v *vendor.Backend, p *pickup.Pickup, items []pickup.Item) error {
	target, err := c.NormalizeOfferURL(v.OfferURL)
	if err != nil {
		return err
	}

	body, err := json.Marshal(payload{
		VendorID:     v.VendorRef,
		RequestID:    p.ID,
		PickupIDCaml: p.ID,
		PickupID:     p.ID,
		Latitude:     p.Latitude,
		Longitude:    p.Longitude,
		ScrapSummary: SummarizeItems(items),
	})
	if err != nil {
		return fmt.Errorf("failed to encode offer payload: %w", err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("offer rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build offer request: %w", err)
	}
	req.Header.Set("content-type", "application/json")
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return shared.NewUpstreamError(fmt.Sprintf("offer to %s failed: %v", v.VendorRef, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain a little of the body for the error message
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return shared.NewUpstreamError(fmt.Sprintf("offer to %s returned %d: %s",
			v.VendorRef, resp.StatusCode, strings.TrimSpace(string(snippet))))
	}

	return nil
}

// NormalizeOfferURL validates the recorded vendor URL and rewrites it so the
// POST targets /api/offer. A URL already ending in /api/offer is preserved;
// otherwise path, query and fragment are replaced. This allows vendors to
// register a base URL.
func (c *Client) NormalizeOfferURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", shared.NewInvalidInputError(fmt.Sprintf("invalid offer URL: %v", err))
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return "", shared.NewInvalidInputError(fmt.Sprintf("offer URL scheme must be http or https, got %q", u.Scheme))
	}
	if u.Host == "" {
		return "", shared.NewInvalidInputError("offer URL has no host")
	}

	if isLoopbackHost(u.Hostname()) {
		if c.production {
			return "", shared.NewInvalidInputError(fmt.Sprintf("loopback offer URL %q rejected in production", raw))
		}
		c.logger.Warn().Str("url", raw).Msg("loopback offer URL permitted outside production")
	}

	if !strings.HasSuffix(strings.TrimSuffix(u.Path, "/"), offerPath) {
		u.Path = offerPath
		u.RawQuery = ""
		u.Fragment = ""
	}

	return u.String(), nil
}

// SummarizeItems renders a human-readable "{name}: {quantity}" list
func SummarizeItems(items []pickup.Item) string {
	if len(items) == 0 {
		return ""
	}

	parts := make([]string, 0, len(items))
	for _, item := range items {
		name := item.ScrapTypeName
		if name == "" {
			name = item.ScrapTypeID
		}
		parts = append(parts, fmt.Sprintf("%s: %s", name, item.EstimatedQuantity))
	}
	return strings.Join(parts, ", ")
}

func isLoopbackHost(host string) bool {
	switch strings.ToLower(host) {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}
