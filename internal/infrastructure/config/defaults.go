package config

import "time"

// SetDefaults applies default values for any missing configuration
func SetDefaults(cfg *Config) {
	if cfg.Database.Type == "" {
		cfg.Database.Type = "postgres"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.Pool.MaxOpen == 0 {
		cfg.Database.Pool.MaxOpen = 10
	}
	if cfg.Database.Pool.MaxIdle == 0 {
		cfg.Database.Pool.MaxIdle = 5
	}
	if cfg.Database.Pool.MaxLifetime == 0 {
		cfg.Database.Pool.MaxLifetime = 30 * time.Minute
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Environment == "" {
		cfg.Server.Environment = "development"
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}

	if cfg.Dispatch.OfferTTL == 0 {
		cfg.Dispatch.OfferTTL = 2 * time.Minute
	}
	if cfg.Dispatch.TimerSlack == 0 {
		cfg.Dispatch.TimerSlack = time.Second
	}
	if cfg.Dispatch.OfferTimeout == 0 {
		cfg.Dispatch.OfferTimeout = 10 * time.Second
	}
	if cfg.Dispatch.SweepInterval == 0 {
		cfg.Dispatch.SweepInterval = 10 * time.Second
	}
	if cfg.Dispatch.SweepLimit == 0 {
		cfg.Dispatch.SweepLimit = 50
	}
	if cfg.Dispatch.OfferRatePerSec == 0 {
		cfg.Dispatch.OfferRatePerSec = 5
	}
	if cfg.Dispatch.OfferBurst == 0 {
		cfg.Dispatch.OfferBurst = 2
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}
