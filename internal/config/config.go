package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Port                 string        `mapstructure:"PORT"`
	Env                  string        `mapstructure:"ENV"`
	DatabaseURL          string        `mapstructure:"DATABASE_URL"`
	DBMaxConns           int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns           int32         `mapstructure:"DB_MIN_CONNS"`
	TimeZone             string        `mapstructure:"TIMEZONE"`
	JWTSigningKey        string        `mapstructure:"JWT_SIGNING_KEY"`
	JWTTTL               time.Duration `mapstructure:"JWT_TTL"`
	AppointmentTypesFile string        `mapstructure:"APPOINTMENT_TYPES_FILE"`
	DemoEnabled          bool          `mapstructure:"DEMO_ENABLED"`
	RedisURL             string        `mapstructure:"REDIS_URL"`
	CORSOrigins          []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS         float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst       int           `mapstructure:"RATE_LIMIT_BURST"`
	MetricsEnabled       bool          `mapstructure:"METRICS_ENABLED"`
}

var envKeys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "TIMEZONE",
	"JWT_SIGNING_KEY", "JWT_TTL", "APPOINTMENT_TYPES_FILE", "DEMO_ENABLED",
	"REDIS_URL", "CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"METRICS_ENABLED",
}

// devSigningKey is only accepted when ENV=development.
const devSigningKey = "dev-only-signing-key"

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("TIMEZONE", "Local")
	v.SetDefault("JWT_TTL", "12h")
	v.SetDefault("DEMO_ENABLED", true)
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("METRICS_ENABLED", true)

	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	// A missing .env file is fine; the environment alone is enough.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}
	for i, o := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(o)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		if cfg.JWTSigningKey == "" {
			cfg.JWTSigningKey = devSigningKey
		}
		log.Warn().Msg("running in development mode: dev auth is active and the signing key may be a placeholder")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Location resolves TIMEZONE. "Local" and "" mean the process time zone.
func (c *Config) Location() (*time.Location, error) {
	if c.TimeZone == "" || c.TimeZone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE %q: %w", c.TimeZone, err)
	}
	return loc, nil
}

// Validate refuses configurations that are unsafe or cannot run.
func (c *Config) Validate() error {
	if !c.IsDev() {
		if c.JWTSigningKey == "" {
			return fmt.Errorf("JWT_SIGNING_KEY is required outside development (ENV=%q)", c.Env)
		}
		if c.JWTSigningKey == devSigningKey {
			return fmt.Errorf("JWT_SIGNING_KEY must not be the development placeholder")
		}
		if len(c.JWTSigningKey) < 32 {
			return fmt.Errorf("JWT_SIGNING_KEY must be at least 32 bytes, got %d", len(c.JWTSigningKey))
		}
	}
	if c.JWTTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be positive, got %s", c.JWTTTL)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.DBMinConns > c.DBMaxConns && c.DBMaxConns > 0 {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must not be negative")
	}
	return nil
}
