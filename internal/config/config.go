package config

import (
	"errors"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration for the auth service.
type Config struct {
	Addr         string        `envconfig:"FLEETGRID_ADDR" default:":8080"`
	ReadTimeout  time.Duration `envconfig:"FLEETGRID_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `envconfig:"FLEETGRID_WRITE_TIMEOUT" default:"15s"`
	IdleTimeout  time.Duration `envconfig:"FLEETGRID_IDLE_TIMEOUT" default:"60s"`

	PGDSN string `envconfig:"FLEETGRID_PG_DSN"`

	TokenSecret string        `envconfig:"FLEETGRID_TOKEN_SECRET" required:"true"`
	TokenIssuer string        `envconfig:"FLEETGRID_TOKEN_ISSUER" default:"fleetgrid"`
	AccessTTL   time.Duration `envconfig:"FLEETGRID_ACCESS_TTL" default:"15m"`
	RefreshTTL  time.Duration `envconfig:"FLEETGRID_REFRESH_TTL" default:"168h"`
	CodeTTL     time.Duration `envconfig:"FLEETGRID_CODE_TTL" default:"24h"`

	LockoutThreshold int           `envconfig:"FLEETGRID_LOCKOUT_THRESHOLD" default:"5"`
	LockoutWindow    time.Duration `envconfig:"FLEETGRID_LOCKOUT_WINDOW" default:"15m"`

	FingerprintSalt string `envconfig:"FLEETGRID_FINGERPRINT_SALT" default:"fleetgrid-fp"`

	PasswordMinLength      int  `envconfig:"FLEETGRID_PASSWORD_MIN_LENGTH" default:"8"`
	PasswordMaxLength      int  `envconfig:"FLEETGRID_PASSWORD_MAX_LENGTH" default:"72"`
	PasswordRequireUpper   bool `envconfig:"FLEETGRID_PASSWORD_REQUIRE_UPPER" default:"true"`
	PasswordRequireLower   bool `envconfig:"FLEETGRID_PASSWORD_REQUIRE_LOWER" default:"true"`
	PasswordRequireDigit   bool `envconfig:"FLEETGRID_PASSWORD_REQUIRE_DIGIT" default:"true"`
	PasswordRequireSpecial bool `envconfig:"FLEETGRID_PASSWORD_REQUIRE_SPECIAL" default:"false"`

	SweepInterval    time.Duration `envconfig:"FLEETGRID_SWEEP_INTERVAL" default:"1h"`
	AttemptRetention time.Duration `envconfig:"FLEETGRID_ATTEMPT_RETENTION" default:"2160h"`

	RefreshRotation bool `envconfig:"FLEETGRID_REFRESH_ROTATION" default:"false"`

	RateLimitBurst     int `envconfig:"FLEETGRID_RATE_BURST" default:"20"`
	RateLimitPerSecond int `envconfig:"FLEETGRID_RATE_PER_SECOND" default:"10"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if cfg.TokenSecret == "" {
		return nil, errors.New("token secret must be provided")
	}
	return &cfg, nil
}
