package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/scrapco/scrapco-go/internal/domain/shared"
)

// ValidateConfig validates the full configuration using struct tags
func ValidateConfig(cfg *Config) error {
	validate := validator.New()

	if err := validate.Struct(cfg); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range errs {
				return shared.NewConfigError(fmt.Sprintf("config field %s failed %q validation", fe.Namespace(), fe.Tag()))
			}
		}
		return shared.NewConfigError(err.Error())
	}

	if cfg.Database.Type == "postgres" && cfg.Database.URL == "" && cfg.Database.Host == "" {
		return shared.NewConfigError("postgres database requires url or host")
	}

	return nil
}
