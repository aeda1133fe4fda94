// Package config loads the marketplace service settings from environment
// variables, applies defaults and validates the result. It covers the HTTP
// server, the database, authentication, the media CDN, event delivery,
// rate limiting and observability.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Supported authentication modes.
const (
	AuthModeJWT    = "jwt"
	AuthModeHeader = "header"
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
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DBConfig selects and addresses the backing SQL store.
type DBConfig struct {
	Driver string // DB_DRIVER: sqlite|postgres
	Path   string // DB_PATH, sqlite file
	URL    string // DATABASE_URL, postgres DSN
}

// AuthConfig controls how callers are identified.
//
// In "jwt" mode a bearer token signed with Secret is required. In "header"
// mode the X-User-ID header is trusted as-is, which is only meant for local
// development and tests.
type AuthConfig struct {
	Mode     string
	Secret   string
	Issuer   string
	Audience string
}

// MediaConfig addresses the image CDN used for listing photos and videos.
type MediaConfig struct {
	CloudName    string
	UploadPreset string
	BaseURL      string
	Folder       string
	VideoFolder  string
	MaxBytes     int64
	Timeout      time.Duration
}

// Configured reports whether uploads can be forwarded to the CDN.
func (m MediaConfig) Configured() bool {
	return strings.TrimSpace(m.CloudName) != "" && strings.TrimSpace(m.UploadPreset) != ""
}

// EventsConfig configures the optional message broker.
type EventsConfig struct {
	RabbitURL string
	Exchange  string
}

// MarketConfig holds marketplace defaults.
type MarketConfig struct {
	DefaultRentalDays int
	SearchRadiusKM    float64
	MaxRadiusKM       float64

	// MaxSearchCandidates caps the listings ranked per search.
	MaxSearchCandidates int
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	MaxHeaderBytes    int
	GinMode           string // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool
	SwaggerEnabled bool
	APIBasePath    string

	DB     DBConfig
	Auth   AuthConfig
	Media  MediaConfig
	Events EventsConfig
	Market MarketConfig

	// Rate limiting
	RateRPS   float64
	RateBurst int

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	IdempotencyTTL time.Duration

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
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:   getdur("SHUTDOWN_TIMEOUT", 10*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		DB: DBConfig{
			Driver: strings.ToLower(getenv("DB_DRIVER", DriverSQLite)),
			Path:   getenv("DB_PATH", "rentshare.db"),
			URL:    getenv("DATABASE_URL", ""),
		},
		Auth: AuthConfig{
			Mode:     strings.ToLower(getenv("AUTH_MODE", AuthModeHeader)),
			Secret:   getenv("JWT_SECRET", ""),
			Issuer:   getenv("JWT_ISSUER", ""),
			Audience: getenv("JWT_AUDIENCE", ""),
		},
		Media: MediaConfig{
			CloudName:    getenv("MEDIA_CLOUD_NAME", ""),
			UploadPreset: getenv("MEDIA_UPLOAD_PRESET", ""),
			BaseURL:      strings.TrimRight(getenv("MEDIA_BASE_URL", "https://api.cloudinary.com"), "/"),
			Folder:       getenv("MEDIA_FOLDER", "rent-share/listings"),
			VideoFolder:  getenv("MEDIA_VIDEO_FOLDER", "rent-share/videos"),
			MaxBytes:     int64(getint("MEDIA_MAX_BYTES", 20<<20)),
			Timeout:      getdur("MEDIA_TIMEOUT", 60*time.Second),
		},
		Events: EventsConfig{
			RabbitURL: getenv("RABBITMQ_URL", ""),
			Exchange:  getenv("RABBITMQ_EXCHANGE", "rentshare.events"),
		},
		Market: MarketConfig{
			DefaultRentalDays: getint("DEFAULT_RENTAL_DAYS", 7),
			SearchRadiusKM:    getfloat("SEARCH_RADIUS_KM", 25),
			MaxRadiusKM:       getfloat("MAX_RADIUS_KM", 200),

			MaxSearchCandidates: getint("SEARCH_MAX_CANDIDATES", 1000),
		},

		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "rent-share-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.DB.Driver == "postgresql" || cfg.DB.Driver == "pg" {
		cfg.DB.Driver = DriverPostgres
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (cfg Config) validate() error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 ||
		cfg.IdleTimeout <= 0 || cfg.ShutdownTimeout <= 0 {
		return errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return errors.New("MAX_HEADER_BYTES must be > 0")
	}

	switch cfg.DB.Driver {
	case DriverSQLite:
		if strings.TrimSpace(cfg.DB.Path) == "" {
			return errors.New("DB_PATH must not be empty")
		}
	case DriverPostgres:
		if strings.TrimSpace(cfg.DB.URL) == "" {
			return errors.New("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("DB_DRIVER must be one of: sqlite, postgres (got %q)", cfg.DB.Driver)
	}

	switch cfg.Auth.Mode {
	case AuthModeJWT:
		if strings.TrimSpace(cfg.Auth.Secret) == "" {
			return errors.New("JWT_SECRET is required when AUTH_MODE=jwt")
		}
	case AuthModeHeader:
	default:
		return fmt.Errorf("AUTH_MODE must be one of: jwt, header (got %q)", cfg.Auth.Mode)
	}

	if cfg.Media.MaxBytes <= 0 {
		return errors.New("MEDIA_MAX_BYTES must be > 0")
	}
	if cfg.Media.Timeout <= 0 {
		return errors.New("MEDIA_TIMEOUT must be > 0")
	}
	if cfg.Events.RabbitURL != "" && strings.TrimSpace(cfg.Events.Exchange) == "" {
		return errors.New("RABBITMQ_EXCHANGE must not be empty when RABBITMQ_URL is set")
	}

	if cfg.Market.DefaultRentalDays < 1 {
		return errors.New("DEFAULT_RENTAL_DAYS must be >= 1")
	}
	if cfg.Market.SearchRadiusKM <= 0 || cfg.Market.MaxRadiusKM <= 0 {
		return errors.New("SEARCH_RADIUS_KM and MAX_RADIUS_KM must be > 0")
	}
	if cfg.Market.SearchRadiusKM > cfg.Market.MaxRadiusKM {
		return errors.New("SEARCH_RADIUS_KM must not exceed MAX_RADIUS_KM")
	}

	if cfg.Market.MaxSearchCandidates < 1 {
		return errors.New("SEARCH_MAX_CANDIDATES must be >= 1")
	}

	if cfg.RateRPS < 0 {
		return errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	return nil
}

// ---- helpers ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
