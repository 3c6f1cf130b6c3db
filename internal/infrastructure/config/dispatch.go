package config

import "time"

// DispatchConfig holds the timing knobs of the dispatch engine
type DispatchConfig struct {
	// OfferTTL is how long a vendor holds an exclusive offer
	OfferTTL time.Duration `mapstructure:"offer_ttl"`

	// TimerSlack is added to OfferTTL before the in-memory timer fires, so the
	// timer never races the persisted deadline
	TimerSlack time.Duration `mapstructure:"timer_slack"`

	// OfferTimeout is the hard cap on one outbound offer HTTP exchange
	OfferTimeout time.Duration `mapstructure:"offer_timeout"`

	// SweepInterval is how often the expiry sweeper runs
	SweepInterval time.Duration `mapstructure:"sweep_interval"`

	// SweepLimit is the max pickups reconciled per sweep
	SweepLimit int `mapstructure:"sweep_limit" validate:"min=1"`

	// OfferRatePerSec and OfferBurst bound outbound offer traffic
	OfferRatePerSec float64 `mapstructure:"offer_rate_per_sec"`
	OfferBurst      int     `mapstructure:"offer_burst" validate:"min=1"`
}
