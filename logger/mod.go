package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the logger shared by every subsystem of a node. The level is
// read from the VEIL_LOG environment variable (trace, debug, info, warn,
// error). Default: info.
var Logger zerolog.Logger

func init() {
	level, err := zerolog.ParseLevel(os.Getenv("VEIL_LOG"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	logout := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}

	Logger = zerolog.New(logout).
		Level(level).
		With().Timestamp().
		Logger()
}
