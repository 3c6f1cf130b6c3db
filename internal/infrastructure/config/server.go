package config

import "time"

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	// TCP port to listen on
	Port int `mapstructure:"port" validate:"required,min=1,max=65535"`

	// Deployment environment: production, staging, development.
	// Production rejects loopback vendor offer URLs.
	Environment string `mapstructure:"environment" validate:"required,oneof=production staging development"`

	// Grace period for in-flight requests on shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// PIDFile guards against a second dispatcher arming duplicate offer
	// timers against the same store. Empty disables the check.
	PIDFile string `mapstructure:"pid_file"`
}

// IsProduction reports whether loopback vendor URLs must be rejected
func (c *ServerConfig) IsProduction() bool {
	return c.Environment == "production"
}

// VendorConfig holds the shared secrets of the vendor integration
type VendorConfig struct {
	// WebhookSecret signs inbound vendor callbacks (HMAC-SHA256 over the raw body)
	WebhookSecret string `mapstructure:"webhook_secret" validate:"required"`

	// OfferBearer is an optional outbound bearer sent with offers. The literal
	// placeholder "change_me" is treated as unset.
	OfferBearer string `mapstructure:"offer_bearer"`
}

// BearerPlaceholder is the scaffold value that must never be sent to vendors
const BearerPlaceholder = "change_me"

// EffectiveOfferBearer returns the outbound bearer, or "" when unset or still
// the placeholder.
func (c *VendorConfig) EffectiveOfferBearer() string {
	if c.OfferBearer == "" || c.OfferBearer == BearerPlaceholder {
		return ""
	}
	return c.OfferBearer
}
