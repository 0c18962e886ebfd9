package logging

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LevelEnv names the environment variable read by Init.
const LevelEnv = "LITTER_LOG_LEVEL"

// Init initializes the global logger with the level from LITTER_LOG_LEVEL:
// debug, info, warn, error (default: info).
func Init() {
	SetLevel(os.Getenv(LevelEnv))
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

// SetLevel applies a level name, falling back to info for unknown names.
func SetLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
