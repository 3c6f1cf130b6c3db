package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/scrapco/scrapco-go/internal/domain/shared"
)

// Config is the main configuration struct combining all sub-configs
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Vendor   VendorConfig   `mapstructure:"vendor"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// LoadConfig loads configuration from multiple sources with priority:
// 1. Environment variables (highest priority)
// 2. Config file (config.yaml)
// 3. Defaults (lowest priority)
func LoadConfig(configPath string) (*Config, error) {
	// Load .env file if it exists (doesn't error if missing)
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/scrapco")
	}

	v.SetEnvPrefix("SCRAPCO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file is optional; env vars and defaults cover everything
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, shared.NewConfigError(fmt.Sprintf("failed to read config file: %v", err))
		}
	}

	// Common deployment variables honored without the SCRAPCO_ prefix
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		v.Set("database.url", dbURL)
	}
	if port := os.Getenv("PORT"); port != "" {
		v.Set("server.port", port)
	}
	if secret := os.Getenv("VENDOR_WEBHOOK_SECRET"); secret != "" {
		v.Set("vendor.webhook_secret", secret)
	}
	if bearer := os.Getenv("VENDOR_OFFER_BEARER"); bearer != "" {
		v.Set("vendor.offer_bearer", bearer)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, shared.NewConfigError(fmt.Sprintf("failed to unmarshal config: %v", err))
	}

	SetDefaults(&cfg)

	if err := ValidateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// MustLoadConfig loads configuration and panics on error (for use in main.go)
func MustLoadConfig(configPath string) *Config {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}
