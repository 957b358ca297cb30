package internal

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	DriverBadger = "badger"
	DriverSQLite = "sqlite"
)

type Config struct {
	LogLevel            string        `env:"LOG_LEVEL,required=true"`
	StoreDriver         string        `env:"STORE_DRIVER,default=badger" validate:"oneof=badger sqlite"`
	BadgerFilepath      string        `env:"BADGER_FILEPATH" validate:"required_if=StoreDriver badger"`
	SQLiteFilepath      string        `env:"SQLITE_FILEPATH" validate:"required_if=StoreDriver sqlite"`
	FeedBufferSize      int           `env:"FEED_BUFFER_SIZE,default=256" validate:"gt=0"`
	FeedRestartInterval time.Duration `env:"FEED_RESTART_INTERVAL,default=500ms" validate:"gt=0"`
	ReopenInterval      time.Duration `env:"REOPEN_INTERVAL,default=1s" validate:"gt=0"`
	TypingTimeout       time.Duration `env:"TYPING_TIMEOUT,default=5s" validate:"gt=0"`
	LatencyThreshold    time.Duration `env:"LATENCY_THRESHOLD,required=true"`
	MaxContentLength    int           `env:"MAX_CONTENT_LENGTH,required=true" validate:"gte=0"`
	TelemetryInterval   time.Duration `env:"TELEMETRY_INTERVAL,default=30s" validate:"gt=0"`
}

// LoadConfig reads an optional .env file, then the process environment.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if err := validator.New().Struct(config); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return config, nil
}
