package observability

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/storefront/internal/config"
	gormlogger "gorm.io/gorm/logger"
)

// Config is the observability view of the process configuration. Identity
// comes from config.Config; exporter and log tuning from OTEL_* and LOG_* env.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	Log  LogConfig
	SQL  SQLLogConfig
	Otel OtelConfig
}

type LogConfig struct {
	Level  string
	Format string
}

// SQLLogConfig tunes the gorm statement logger.
type SQLLogConfig struct {
	Level         string
	SlowThreshold time.Duration
}

type OtelConfig struct {
	Enabled       bool
	Endpoint      string
	Protocol      string
	SamplingRatio float64
}

func LoadConfig(cfg config.Config) Config {
	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "storefront"
	}

	protocol := envLower("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	if traces := envLower("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", ""); traces != "" {
		protocol = traces
	}

	return Config{
		ServiceName: serviceName,
		Environment: strings.TrimSpace(cfg.Environment),
		Version:     strings.TrimSpace(cfg.AppVersion),
		Log: LogConfig{
			Level:  envLower("LOG_LEVEL", "info"),
			Format: envLower("LOG_FORMAT", "json"),
		},
		SQL: SQLLogConfig{
			Level:         envLower("LOG_SQL_LEVEL", "warn"),
			SlowThreshold: envDuration("LOG_SQL_SLOW_THRESHOLD", 200*time.Millisecond),
		},
		Otel: OtelConfig{
			Enabled:       envBool("OTEL_ENABLED", false),
			Endpoint:      envString("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint),
			Protocol:      protocol,
			SamplingRatio: envFloat("OTEL_SAMPLING_RATIO", 0.2),
		},
	}
}

// Debug turns on gin debug mode, verbose request logs and error stacks.
func (c Config) Debug() bool {
	if c.Log.Level == "debug" {
		return true
	}
	switch strings.ToLower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func (c SQLLogConfig) gormLevel() gormlogger.LogLevel {
	switch c.Level {
	case "silent", "off":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info", "debug":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}

func envString(key, def string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return def
}

func envLower(key, def string) string {
	return strings.ToLower(envString(key, def))
}

func envBool(key string, def bool) bool {
	value, err := strconv.ParseBool(envLower(key, ""))
	if err != nil {
		return def
	}
	return value
}

func envFloat(key string, def float64) float64 {
	value, err := strconv.ParseFloat(envString(key, ""), 64)
	if err != nil {
		return def
	}
	return value
}

func envDuration(key string, def time.Duration) time.Duration {
	value, err := time.ParseDuration(envString(key, ""))
	if err != nil || value <= 0 {
		return def
	}
	return value
}
