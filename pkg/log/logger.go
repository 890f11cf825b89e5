package log

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Thin printf-style facade over zerolog. Level and format come from
// LOG_LEVEL (debug|info|warn|error) and LOG_FORMAT (console|json).

var logger = newLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))

// Init reconfigures the global logger. Called once from main after the
// environment is loaded; package-level default covers tests.
func Init(level, format string) {
	logger = newLogger(level, format)
}

func newLogger(level, format string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	var zl zerolog.Logger
	if strings.ToLower(format) == "json" {
		zl = zerolog.New(os.Stdout)
	} else {
		zl = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	return zl.Level(lvl).With().Timestamp().Logger()
}

func Debug(format string, args ...any) {
	logger.Debug().Msgf(format, args...)
}

func Info(format string, args ...any) {
	logger.Info().Msgf(format, args...)
}

func Warn(format string, args ...any) {
	logger.Warn().Msgf(format, args...)
}

func Error(format string, args ...any) {
	logger.Error().Msgf(format, args...)
}

func Fatal(format string, args ...any) {
	logger.Fatal().Msgf(format, args...)
}
