package logging

import (
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/scrapco/scrapco-go/internal/infrastructure/config"
)

// NewLogger builds the process logger from configuration
func NewLogger(cfg *config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Format == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		logger = zerolog.New(os.Stderr)
	}

	return logger.Level(level).With().Timestamp().Logger()
}
