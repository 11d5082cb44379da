package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	defaultAppName         = "Dompet"
	defaultAppEnv          = "development"
	defaultPort            = "3001"
	defaultLogLevel        = "info"
	defaultLogFormat       = "json"
	defaultShutdownDelay   = 10 * time.Second
	defaultIdempotencyTTL  = 24 * time.Hour
	defaultLockTimeout     = 5 * time.Second
	defaultReportTimezone  = "UTC"
	defaultCORSOrigins     = "*"
	defaultRateLimit       = 120
	defaultNodeID          = 1
	idemTTLSecondsEnvVar   = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar       = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar  = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar = "SHUTDOWN_TIMEOUT"
	lockTimeoutEnvVar      = "LEDGER_LOCK_TIMEOUT"
	rateLimitEnvVar        = "RATE_LIMIT_PER_MINUTE"
	nodeIDEnvVar           = "NODE_ID"
	autoMigrateEnvVar      = "AUTO_MIGRATE"
	reportTimezoneEnvVar   = "REPORT_TIMEZONE"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName            string
	AppEnv             string
	Port               string
	LogLevel           string
	LogFormat          string
	DatabaseURL        string
	RedisURL           string
	ShutdownPeriod     time.Duration
	IdempotencyTTL     time.Duration
	LockTimeout        time.Duration
	ReportLocation     *time.Location
	CORSAllowOrigins   string
	RateLimitPerMinute int
	NodeID             int64
	AutoMigrate        bool
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("APP_NAME", defaultAppName)
	v.SetDefault("APP_ENV", defaultAppEnv)
	v.SetDefault("PORT", defaultPort)
	v.SetDefault("LOG_LEVEL", defaultLogLevel)
	v.SetDefault("LOG_FORMAT", defaultLogFormat)
	v.SetDefault("CORS_ALLOW_ORIGINS", defaultCORSOrigins)
	v.SetDefault(reportTimezoneEnvVar, defaultReportTimezone)
	v.SetDefault(autoMigrateEnvVar, "true")

	cfg := Config{
		AppName:            v.GetString("APP_NAME"),
		AppEnv:             v.GetString("APP_ENV"),
		Port:               v.GetString("PORT"),
		LogLevel:           strings.ToLower(v.GetString("LOG_LEVEL")),
		LogFormat:          strings.ToLower(v.GetString("LOG_FORMAT")),
		DatabaseURL:        v.GetString("DATABASE_URL"),
		RedisURL:           v.GetString("REDIS_URL"),
		CORSAllowOrigins:   v.GetString("CORS_ALLOW_ORIGINS"),
		ShutdownPeriod:     defaultShutdownDelay,
		IdempotencyTTL:     defaultIdempotencyTTL,
		LockTimeout:        defaultLockTimeout,
		RateLimitPerMinute: defaultRateLimit,
		NodeID:             defaultNodeID,
	}

	var err error
	if cfg.ShutdownPeriod, err = durationFrom(v, shutdownSecondsEnvVar, shutdownDurationEnvVar, cfg.ShutdownPeriod); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationFrom(v, idemTTLSecondsEnvVar, idemTTLDurEnvVar, cfg.IdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.LockTimeout, err = durationFrom(v, "", lockTimeoutEnvVar, cfg.LockTimeout); err != nil {
		return Config{}, err
	}
	if cfg.LockTimeout <= 0 {
		return Config{}, fmt.Errorf("invalid %s: must be positive", lockTimeoutEnvVar)
	}

	if raw := v.GetString(rateLimitEnvVar); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return Config{}, fmt.Errorf("invalid %s: %q", rateLimitEnvVar, raw)
		}
		cfg.RateLimitPerMinute = n
	}

	if raw := v.GetString(nodeIDEnvVar); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", nodeIDEnvVar, err)
		}
		cfg.NodeID = n
	}

	cfg.AutoMigrate, err = strconv.ParseBool(v.GetString(autoMigrateEnvVar))
	if err != nil {
		return Config{}, fmt.Errorf("invalid %s: %w", autoMigrateEnvVar, err)
	}

	tz := v.GetString(reportTimezoneEnvVar)
	cfg.ReportLocation, err = time.LoadLocation(tz)
	if err != nil {
		return Config{}, fmt.Errorf("invalid %s: %w", reportTimezoneEnvVar, err)
	}

	if !cfg.IsDev() {
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set when APP_ENV=%s", cfg.AppEnv)
		}
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set when APP_ENV=%s", cfg.AppEnv)
		}
	}

	return cfg, nil
}

// IsDev reports whether the service may run without Postgres and Redis.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// durationFrom reads a whole-seconds variable first and falls back to a Go
// duration string.
func durationFrom(v *viper.Viper, secondsKey, durationKey string, fallback time.Duration) (time.Duration, error) {
	if secondsKey != "" {
		if raw := v.GetString(secondsKey); raw != "" {
			seconds, err := strconv.Atoi(raw)
			if err != nil {
				return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
			}
			return time.Duration(seconds) * time.Second, nil
		}
	}
	if raw := v.GetString(durationKey); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", durationKey, err)
		}
		return d, nil
	}
	return fallback, nil
}
