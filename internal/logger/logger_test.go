package logger

import (
    "testing"

    "github.com/rs/zerolog"
    "github.com/stretchr/testify/assert"

    "github.com/example/okr-pulse/internal/config"
)

func TestNewHonorsLogLevel(t *testing.T) {
    l := New(config.Config{AppEnv: "prod", LogLevel: "debug"})
    assert.Equal(t, zerolog.DebugLevel, l.GetLevel())

    l = New(config.Config{AppEnv: "dev", LogLevel: "warn"})
    assert.Equal(t, zerolog.WarnLevel, l.GetLevel())
}

func TestNewFallsBackToInfo(t *testing.T) {
    l := New(config.Config{AppEnv: "prod", LogLevel: "nonsense"})
    assert.Equal(t, zerolog.InfoLevel, l.GetLevel())

    l = New(config.Config{AppEnv: "prod"})
    assert.Equal(t, zerolog.InfoLevel, l.GetLevel())
}
