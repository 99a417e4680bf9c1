// Package config defines the global configuration structure for the Listwright
// platform. Configuration is loaded once at process initialization and is
// immutable thereafter. It follows 12-Factor App principles by strictly
// separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File (Lowest)
//
// Any missing required value or invalid format causes the application to fail
// immediately on startup (fail fast).
package config

import (
	"time"

	"listwright/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type used
// throughout configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the Listwright platform.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"listwright-api"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server     ServerConfig
	Database   DatabaseConfig
	Billing    BillingConfig
	Generation GenerationConfig
	Redis      RedisConfig
	Security   SecurityConfig
	Metrics    MetricsConfig
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// Public URL of the front-end app; used to derive checkout redirect URLs
	// when the request carries no Origin header (no trailing slash).
	AppURL string `envconfig:"APP_URL" validate:"required,url"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	// Tuning Parameters
	MaxConns        int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
}

// BillingConfig holds Stripe payment integration credentials and the
// price-identifier-to-plan mapping. The price IDs are the configured signals
// used to resolve a completed checkout to a plan tier; the legacy fixed
// amounts (7900/2900/1900/3900 cents) are recognized alongside them for
// events created before price IDs were introduced.
type BillingConfig struct {
	StripeSecretKey     SecretString `envconfig:"STRIPE_SECRET_KEY" validate:"required"`
	StripeWebhookSecret SecretString `envconfig:"STRIPE_WEBHOOK_SECRET" validate:"required"`

	PriceIDProfessional string `envconfig:"STRIPE_PRICE_PROFESSIONAL" validate:"required"`
	PriceIDAgency       string `envconfig:"STRIPE_PRICE_AGENCY" validate:"required"`
	// Legacy $79 unlimited subscription price; optional because the plan is
	// no longer sold, but cancellations and renewals still reference it.
	PriceIDUnlimited string `envconfig:"STRIPE_PRICE_UNLIMITED"`
}

// GenerationConfig holds the text-generation collaborator settings.
type GenerationConfig struct {
	APIKey  SecretString  `envconfig:"ANTHROPIC_API_KEY" validate:"required"`
	Model   string        `envconfig:"GENERATION_MODEL" default:"claude-sonnet-4-20250514"`
	Timeout time.Duration `envconfig:"GENERATION_TIMEOUT" default:"45s"`
}

// RedisConfig holds the webhook event dedupe store settings. Addr may be
// empty, in which case dedupe is disabled and the service relies on the
// deterministic state transitions alone.
type RedisConfig struct {
	Addr     string        `envconfig:"REDIS_ADDR"`
	Password SecretString  `envconfig:"REDIS_PASSWORD"`
	DB       int           `envconfig:"REDIS_DB" default:"0"`
	EventTTL time.Duration `envconfig:"REDIS_EVENT_TTL" default:"72h"`
}

// SecurityConfig holds security-related configuration.
type SecurityConfig struct {
	CorsAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// MetricsConfig holds telemetry settings. Namespace is the CloudWatch
// namespace; Enabled gates the collector so local runs emit nothing.
type MetricsConfig struct {
	Enabled   bool   `envconfig:"METRICS_ENABLED" default:"false"`
	Namespace string `envconfig:"METRIC_NAMESPACE" default:"Listwright"`
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
