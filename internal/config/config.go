// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database dialect, background sweep timing,
// notification delivery, rate limiting, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-tenancy-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DBConfig selects the storage dialect and its connection settings.
type DBConfig struct {
	Driver      string        // DB_DRIVER: sqlite|postgres
	Path        string        // DB_PATH (sqlite)
	URL         string        // DATABASE_URL (postgres)
	LockTimeout time.Duration // LOCK_TIMEOUT, bounded wait on row locks
}

// SweepConfig controls the periodic reveal/status sweep.
type SweepConfig struct {
	Enabled  bool          // SWEEP_ENABLED
	Interval time.Duration // SWEEP_INTERVAL
	Workers  int           // SWEEP_WORKERS, tenancies processed in parallel
	RedisURL string        // REDIS_URL, optional cluster-wide lease
	LockTTL  time.Duration // SWEEP_LOCK_TTL, lease lifetime
}

// NotifyConfig controls asynchronous notification delivery.
type NotifyConfig struct {
	QueueSize    int           // NOTIFY_QUEUE_SIZE
	Workers      int           // NOTIFY_WORKERS
	MaxAttempts  int           // NOTIFY_MAX_ATTEMPTS
	RetryBackoff time.Duration // NOTIFY_RETRY_BACKOFF (doubled per attempt)
	KafkaBrokers []string      // KAFKA_BROKERS (csv); empty disables the Kafka sink
	KafkaTopic   string        // KAFKA_TOPIC
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Storage
	DB DBConfig

	// Background work
	Sweep  SweepConfig
	Notify NotifyConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// Storage
		DB: DBConfig{
			Driver:      strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			Path:        getenv("DB_PATH", "tenancy.db"),
			URL:         getenv("DATABASE_URL", ""),
			LockTimeout: getdur("LOCK_TIMEOUT", 2*time.Second),
		},

		// Background work
		Sweep: SweepConfig{
			Enabled:  getbool("SWEEP_ENABLED", true),
			Interval: getdur("SWEEP_INTERVAL", 5*time.Minute),
			Workers:  getint("SWEEP_WORKERS", 4),
			RedisURL: getenv("REDIS_URL", ""),
			LockTTL:  getdur("SWEEP_LOCK_TTL", 10*time.Minute),
		},
		Notify: NotifyConfig{
			QueueSize:    getint("NOTIFY_QUEUE_SIZE", 1024),
			Workers:      getint("NOTIFY_WORKERS", 2),
			MaxAttempts:  getint("NOTIFY_MAX_ATTEMPTS", 3),
			RetryBackoff: getdur("NOTIFY_RETRY_BACKOFF", 200*time.Millisecond),
			KafkaBrokers: splitCSV(getenv("KAFKA_BROKERS", "")),
			KafkaTopic:   getenv("KAFKA_TOPIC", "tenancy.notifications"),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-tenancy-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	cfg.normalize()
	return cfg, cfg.Validate()
}

func (c *Config) normalize() {
	if c.LogLevel == "warning" {
		c.LogLevel = "warn"
	}
	switch c.GinMode {
	case "debug", "release", "test":
	default:
		c.GinMode = "release"
	}
	switch c.DB.Driver {
	case "postgresql", "pg":
		c.DB.Driver = "postgres"
	}
}

// Validate reports every invalid setting at once, joined into one error.
func (c Config) Validate() error {
	var errs []error
	check := func(bad bool, msg string) {
		if bad {
			errs = append(errs, errors.New(msg))
		}
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		errs = append(errs, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic"))
	}
	check(strings.TrimSpace(c.Port) == "", "PORT must not be empty")
	check(c.ReadTimeout <= 0 || c.ReadHeaderTimeout <= 0 || c.WriteTimeout <= 0 || c.IdleTimeout <= 0,
		"timeouts must be positive durations")
	check(c.MaxHeaderBytes <= 0, "MAX_HEADER_BYTES must be > 0")

	switch c.DB.Driver {
	case "sqlite":
		check(strings.TrimSpace(c.DB.Path) == "", "DB_PATH must not be empty")
	case "postgres":
		check(strings.TrimSpace(c.DB.URL) == "", "DATABASE_URL must be set when DB_DRIVER=postgres")
	default:
		errs = append(errs, errors.New("DB_DRIVER must be one of: sqlite, postgres"))
	}
	check(c.DB.LockTimeout <= 0, "LOCK_TIMEOUT must be > 0")

	check(c.Sweep.Interval <= 0, "SWEEP_INTERVAL must be > 0")
	check(c.Sweep.Workers < 1, "SWEEP_WORKERS must be >= 1")
	check(c.Sweep.LockTTL <= 0, "SWEEP_LOCK_TTL must be > 0")

	check(c.Notify.QueueSize < 1 || c.Notify.Workers < 1, "NOTIFY_QUEUE_SIZE and NOTIFY_WORKERS must be >= 1")
	check(c.Notify.MaxAttempts < 1, "NOTIFY_MAX_ATTEMPTS must be >= 1")
	check(c.Notify.RetryBackoff < 0, "NOTIFY_RETRY_BACKOFF must be >= 0")
	check(len(c.Notify.KafkaBrokers) > 0 && strings.TrimSpace(c.Notify.KafkaTopic) == "",
		"KAFKA_TOPIC must not be empty when KAFKA_BROKERS is set")

	check(c.RateRPS < 0, "RATE_RPS must be >= 0")
	check(c.RateBurst < 1, "RATE_BURST must be >= 1")
	check(c.Security.HSTSMaxAge < 0, "HSTS_MAX_AGE must be >= 0")
	check(c.IdempotencyTTL <= 0, "IDEMPOTENCY_TTL must be > 0")
	check(c.OTEL.SampleRatio < 0 || c.OTEL.SampleRatio > 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]")

	return errors.Join(errs...)
}

// Environment readers. A set but unparsable value falls back to def.

func lookup[T any](k string, def T, parse func(string) (T, error)) T {
	v, ok := os.LookupEnv(k)
	if !ok || v == "" {
		return def
	}
	out, err := parse(v)
	if err != nil {
		return def
	}
	return out
}

func getenv(k, def string) string {
	return lookup(k, def, func(v string) (string, error) { return v, nil })
}

func getfloat(k string, def float64) float64 {
	return lookup(k, def, func(v string) (float64, error) { return strconv.ParseFloat(v, 64) })
}

func getint(k string, def int) int { return lookup(k, def, strconv.Atoi) }

func getdur(k string, def time.Duration) time.Duration { return lookup(k, def, time.ParseDuration) }

var errNotBool = errors.New("not a boolean")

func getbool(k string, def bool) bool {
	return lookup(k, def, func(v string) (bool, error) {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true, nil
		case "0", "false", "no", "n", "off":
			return false, nil
		}
		return false, errNotBool
	})
}

// splitCSV drops blank entries; an empty input yields nil.
func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath returns p with one leading slash and no trailing slash;
// blank input is the root.
func normalizeBasePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	return "/" + p
}
