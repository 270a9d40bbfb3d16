package config

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	RedisURL           string
	RedisKeyPrefix     string
	CORSAllowedOrigins []string

	GatePassword       string
	GatePasswordHash   string
	GateSessionSecret  string
	GateSessionTTL     time.Duration
	GateLoginRateMax   int
	GateLoginRateWin   time.Duration
	RateLimitStrategy  string
	CookieDomain       string
	CookieSecure       bool
	CookieSameSite     http.SameSite
	CSRFEnabled        bool
	SecurityHeaders    bool
	BodyLimitBytes     int64
	IdempotencyTTL     time.Duration
	ShutdownTimeout    time.Duration
	SessionTTL         time.Duration
	DefaultCurrency    string
	DisplayLocale      string
	TaxTablePath       string
	CatalogDefaultPage int
	CatalogDefaultLim  int
	CatalogMaxLimit    int
	CatalogSearchTTL   time.Duration
	OrderHistoryLimit  int
	NoticeBufferSize   int

	Obs ObsConfig
}

// ObsConfig groups logging, metrics and tracing settings.
type ObsConfig struct {
	LogFormat        string
	LogLevel         string
	MetricsEnabled   bool
	MetricsNamespace string
	MetricsBuckets   string
	TracingEnabled   bool
	TracingExporter  string
	OTLPEndpoint     string
	SamplingRatio    float64
	PprofEnabled     bool
	PprofUser        string
	PprofPass        string
	RedisPingTimeout time.Duration
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		RedisURL:           k.String("REDIS_URL"),
		RedisKeyPrefix:     valueOrDefault(k.String("REDIS_KEY_PREFIX"), "storefront:"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		GatePassword:       k.String("GATE_PASSWORD"),
		GatePasswordHash:   strings.TrimSpace(k.String("GATE_PASSWORD_HASH")),
		GateSessionSecret:  k.String("GATE_SESSION_SECRET"),
		GateSessionTTL:     parseDuration(k.String("GATE_SESSION_TTL"), "720h"),
		GateLoginRateMax:   parseInt(k.String("GATE_LOGIN_RATE_MAX"), 10),
		GateLoginRateWin:   parseDuration(k.String("GATE_LOGIN_RATE_WINDOW"), "1m"),
		RateLimitStrategy:  strings.ToLower(valueOrDefault(k.String("RATE_LIMIT_STRATEGY"), "sliding")),
		CookieDomain:       strings.TrimSpace(k.String("COOKIE_DOMAIN")),
		CookieSecure:       parseBool(k.String("GATE_COOKIE_SECURE")),
		CookieSameSite:     parseSameSite(k.String("COOKIE_SAMESITE")),
		CSRFEnabled:        parseBoolDefault(k.String("CSRF_ENABLED"), true),
		SecurityHeaders:    parseBoolDefault(k.String("SECURITY_HEADERS_ENABLED"), true),
		BodyLimitBytes:     int64(parseInt(k.String("BODY_LIMIT_BYTES"), 1<<20)),
		IdempotencyTTL:     parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		ShutdownTimeout:    parseDuration(k.String("SHUTDOWN_TIMEOUT"), "10s"),
		SessionTTL:         parseDuration(k.String("SESSION_TTL"), "720h"),
		DefaultCurrency:    strings.ToUpper(valueOrDefault(k.String("DEFAULT_CURRENCY"), "USD")),
		DisplayLocale:      valueOrDefault(k.String("DISPLAY_LOCALE"), "en-US"),
		TaxTablePath:       strings.TrimSpace(k.String("TAX_TABLE_PATH")),
		CatalogDefaultPage: parseInt(k.String("CATALOG_DEFAULT_PAGE"), 1),
		CatalogDefaultLim:  parseInt(k.String("CATALOG_DEFAULT_LIMIT"), 12),
		CatalogMaxLimit:    parseInt(k.String("CATALOG_MAX_LIMIT"), 100),
		CatalogSearchTTL:   parseDuration(k.String("CATALOG_SEARCH_CACHE_TTL"), "1h"),
		OrderHistoryLimit:  parseInt(k.String("ORDER_HISTORY_LIMIT"), 50),
		NoticeBufferSize:   parseInt(k.String("NOTICE_BUFFER_SIZE"), 20),
		Obs: ObsConfig{
			LogFormat:        valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
			LogLevel:         valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
			MetricsEnabled:   parseBoolDefault(k.String("OBS_ENABLE_PROMETHEUS"), true),
			MetricsNamespace: valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "storefront"),
			MetricsBuckets:   k.String("OBS_METRICS_BUCKETS_MS"),
			TracingEnabled:   parseBoolDefault(k.String("OBS_ENABLE_TRACING"), false),
			TracingExporter:  valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp"),
			OTLPEndpoint:     k.String("OBS_OTLP_ENDPOINT"),
			SamplingRatio:    parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1.0),
			PprofEnabled:     parseBoolDefault(k.String("OBS_ENABLE_PPROF"), false),
			PprofUser:        k.String("SECURE_PPROF_BASIC_AUTH_USER"),
			PprofPass:        k.String("SECURE_PPROF_BASIC_AUTH_PASS"),
			RedisPingTimeout: time.Duration(parseInt(k.String("HEALTH_READY_REDIS_TIMEOUT_MS"), 300)) * time.Millisecond,
		},
	}

	if cfg.CookieSameSite == http.SameSiteDefaultMode {
		cfg.CookieSameSite = http.SameSiteLaxMode
	}

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.GateSessionSecret == "" {
		return nil, errors.New("GATE_SESSION_SECRET is required")
	}
	if cfg.GatePassword == "" && cfg.GatePasswordHash == "" {
		return nil, errors.New("GATE_PASSWORD or GATE_PASSWORD_HASH is required")
	}
	switch cfg.RateLimitStrategy {
	case "sliding", "fixed":
	default:
		return nil, fmt.Errorf("RATE_LIMIT_STRATEGY must be sliding or fixed, got %q", cfg.RateLimitStrategy)
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func parseBool(value string) bool {
	return parseBoolDefault(value, false)
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "t", "true", "yes", "on":
		return true
	case "0", "f", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseSameSite(value string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	case "lax":
		return http.SameSiteLaxMode
	default:
		return http.SameSiteDefaultMode
	}
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
