package logging

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/vetle/clinicd/internal/config"
)

// NewLogger creates a structured zerolog.Logger for the service. The level
// comes from config and falls back to info if unparsable.
func NewLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", "clinicd").
		Logger()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	return logger.Level(level)
}
