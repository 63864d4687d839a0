package logger

import (
    "os"
    "time"

    "github.com/example/okr-pulse/internal/config"
    "github.com/rs/zerolog"
    "github.com/rs/zerolog/log"
)

// New builds the process logger: human-readable console output in dev, JSON
// elsewhere, filtered to cfg.LogLevel. The result is also installed as the
// global zerolog logger.
func New(cfg config.Config) zerolog.Logger {
    level, err := zerolog.ParseLevel(cfg.LogLevel)
    if err != nil || level == zerolog.NoLevel { level = zerolog.InfoLevel }

    var out = os.Stdout
    logger := zerolog.New(out)
    if cfg.AppEnv == "dev" {
        logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
    } else {
        zerolog.TimeFieldFormat = time.RFC3339
    }
    logger = logger.Level(level).With().Timestamp().Logger()
    log.Logger = logger
    return logger
}
