// Package config defines the global configuration structure for the HRDPS
// point weather service. Configuration is loaded once at process
// initialization and is immutable thereafter. It follows 12-Factor App
// principles by strictly separating code from configuration.
//
// Values are resolved from the OS environment, with a local .env file as a
// fallback. Any missing required value or invalid format causes the
// application to exit immediately on startup (fail fast).
package config

import "time"

// Config is the top-level configuration struct for the service.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"hrdpswx"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server        ServerConfig
	WCS           WCSConfig
	Assessment    AssessmentConfig
	Security      SecurityConfig
	Observability ObservabilityConfig

	// Build Metadata (injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server tuning parameters.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`

	// RequestTimeout is the upper bound on total request wall-clock,
	// including all upstream coverage fetches.
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"29s"`
}

// WCSConfig holds the upstream Web Coverage Service endpoint and the
// coverage-request shaping parameters.
type WCSConfig struct {
	BaseURL string `envconfig:"WCS_BASE_URL" default:"https://geo.weather.gc.ca/geomet" validate:"required,url"`

	// FetchTimeout bounds a single GetCoverage round trip.
	FetchTimeout time.Duration `envconfig:"WCS_FETCH_TIMEOUT" default:"10s"`

	// BufferDeg is the half-width in degrees of the bounding window
	// requested around a point. 0.05 degrees is roughly 5 km at HRDPS
	// latitudes, enough to always capture the containing 2.5 km grid cell.
	BufferDeg float64 `envconfig:"WCS_BUFFER_DEG" default:"0.05" validate:"gt=0,lte=1"`

	MaxRetries int    `envconfig:"WCS_MAX_RETRIES" default:"2" validate:"gte=0,lte=5"`
	UserAgent  string `envconfig:"WCS_USER_AGENT" default:"hrdpswx/1.0"`

	// FetchConcurrency caps simultaneous per-layer GetCoverage calls
	// within a single observation request.
	FetchConcurrency int `envconfig:"WCS_FETCH_CONCURRENCY" default:"8" validate:"gt=0,lte=16"`
}

// AssessmentConfig holds defaults and tuning for the go/no-go rule set.
type AssessmentConfig struct {
	DefaultMaxWindKts float64 `envconfig:"DEFAULT_MAX_WIND_KTS" default:"20" validate:"gt=0,lte=200"`
	DefaultMaxGustKts float64 `envconfig:"DEFAULT_MAX_GUST_KTS" default:"25" validate:"gt=0,lte=200"`

	// CautionMargin is the fraction of a threshold below which a reading is
	// flagged as borderline. 0.10 means a wind reading above 90% of the
	// limit (but not over it) yields a YELLOW status.
	CautionMargin float64 `envconfig:"CAUTION_MARGIN" default:"0.10" validate:"gte=0,lt=1"`
}

// SecurityConfig holds CORS settings for browser consumers.
type SecurityConfig struct {
	CorsAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// ObservabilityConfig holds telemetry settings. Metrics are emitted to
// CloudWatch only when enabled; local runs default to a no-op collector.
type ObservabilityConfig struct {
	MetricsEnabled  bool   `envconfig:"METRICS_ENABLED" default:"false"`
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"HRDPSWeather"`
	AWSRegion       string `envconfig:"AWS_REGION" default:"us-east-1"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
