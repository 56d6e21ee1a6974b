package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "STOREFRONT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv         = "STOREFRONT_APP_ENV"
	EnvPort           = "STOREFRONT_APP_PORT"
	EnvGatewayBaseURL = "STOREFRONT_GATEWAY_BASE_URL"
	EnvStorageDriver  = "STOREFRONT_STORAGE_DRIVER"
	EnvStorageDSN     = "STOREFRONT_STORAGE_DSN"
	EnvRedisURL       = "STOREFRONT_REDIS_URL"
	EnvRedisAddr      = "STOREFRONT_REDIS_ADDR"
	EnvStripeAPIKey   = "STOREFRONT_STRIPE_API_KEY"
	EnvStripeEnv      = "STOREFRONT_STRIPE_ENV"
)

// Storage drivers accepted by StorageConfig.Driver.
const (
	StorageDriverMemory   = "memory"
	StorageDriverRedis    = "redis"
	StorageDriverSQLite   = "sqlite"
	StorageDriverPostgres = "postgres"
)

type Config struct {
	App      AppConfig
	Gateway  GatewayConfig
	Checkout CheckoutConfig
	Storage  StorageConfig
	Redis    RedisConfig
	Stripe   StripeConfig
	Device   DeviceConfig
	Metrics  MetricsConfig

	AuthRateLimit AuthRateLimitConfig
	CORS          CORSConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Gateway.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Storage.validate(cfg.Redis); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port         string `envconfig:"STOREFRONT_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// GatewayConfig points at the remote catalog/auth/orders REST API.
type GatewayConfig struct {
	BaseURL        string        `envconfig:"STOREFRONT_GATEWAY_BASE_URL" required:"true"`
	RequestTimeout time.Duration `envconfig:"STOREFRONT_GATEWAY_REQUEST_TIMEOUT" default:"15s"`

	BreakerMaxFailures uint32        `envconfig:"STOREFRONT_GATEWAY_BREAKER_MAX_FAILURES" default:"5"`
	BreakerOpenTimeout time.Duration `envconfig:"STOREFRONT_GATEWAY_BREAKER_OPEN_TIMEOUT" default:"30s"`
	BreakerInterval    time.Duration `envconfig:"STOREFRONT_GATEWAY_BREAKER_INTERVAL" default:"60s"`
}

func (g GatewayConfig) validate() error {
	parsed, err := url.Parse(strings.TrimSpace(g.BaseURL))
	if err != nil {
		return fmt.Errorf("parsing %s: %w", EnvGatewayBaseURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s must be an http(s) url", EnvGatewayBaseURL)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host", EnvGatewayBaseURL)
	}
	return nil
}

type CheckoutConfig struct {
	StepTimeout time.Duration `envconfig:"STOREFRONT_CHECKOUT_STEP_TIMEOUT" default:"20s"`
	SuccessPath string        `envconfig:"STOREFRONT_CHECKOUT_SUCCESS_PATH" default:"/order-success/%d"`
}

// StorageConfig selects the device key/value backend that stands in for browser storage.
type StorageConfig struct {
	Driver string `envconfig:"STOREFRONT_STORAGE_DRIVER" default:"memory"`
	DSN    string `envconfig:"STOREFRONT_STORAGE_DSN"`

	MaxOpenConns    int           `envconfig:"STOREFRONT_STORAGE_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"STOREFRONT_STORAGE_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"STOREFRONT_STORAGE_CONN_MAX_LIFETIME" default:"1h"`

	// AutoMigrate applies pending goose migrations on boot for the sql drivers.
	AutoMigrate bool `envconfig:"STOREFRONT_STORAGE_AUTO_MIGRATE" default:"true"`
}

func (s *StorageConfig) validate(redis RedisConfig) error {
	s.Driver = strings.ToLower(strings.TrimSpace(s.Driver))
	if s.Driver == "" {
		s.Driver = StorageDriverMemory
	}
	switch s.Driver {
	case StorageDriverMemory:
		return nil
	case StorageDriverRedis:
		if redis.URL == "" && redis.Address == "" {
			return fmt.Errorf("storage driver redis requires %s or %s", EnvRedisURL, EnvRedisAddr)
		}
		return nil
	case StorageDriverSQLite:
		if s.DSN == "" {
			s.DSN = "storefront.db"
		}
		return nil
	case StorageDriverPostgres:
		if s.DSN == "" {
			return fmt.Errorf("storage driver postgres requires %s", EnvStorageDSN)
		}
		return nil
	default:
		return fmt.Errorf("%s must be one of memory, redis, sqlite, postgres (got %q)", EnvStorageDriver, s.Driver)
	}
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
	// EntryTTL bounds how long an idle device's storage survives; zero keeps it forever.
	EntryTTL time.Duration `envconfig:"STOREFRONT_REDIS_ENTRY_TTL" default:"720h"`
}

type StripeConfig struct {
	APIKey string `envconfig:"STOREFRONT_STRIPE_API_KEY"`
	Env    string `envconfig:"STOREFRONT_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// Enabled reports whether a Stripe key was supplied; without one the dev processor is used.
func (s StripeConfig) Enabled() bool {
	return strings.TrimSpace(s.APIKey) != ""
}

type DeviceConfig struct {
	CookieName   string        `envconfig:"STOREFRONT_DEVICE_COOKIE" default:"sf_device"`
	CookieTTL    time.Duration `envconfig:"STOREFRONT_DEVICE_COOKIE_TTL" default:"8760h"`
	CookieSecure bool          `envconfig:"STOREFRONT_DEVICE_COOKIE_SECURE" default:"false"`
	MaxDevices   int           `envconfig:"STOREFRONT_DEVICE_MAX_RESIDENT" default:"10000"`
}

type MetricsConfig struct {
	Enabled bool   `envconfig:"STOREFRONT_METRICS_ENABLED" default:"true"`
	Path    string `envconfig:"STOREFRONT_METRICS_PATH" default:"/metrics"`
}

// AuthRateLimitConfig throttles login and registration. Counters live in
// redis; without a redis connection the limits are not enforced.
type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"STOREFRONT_AUTH_LOGIN_WINDOW" default:"15m"`
	LoginIPLimit       int           `envconfig:"STOREFRONT_AUTH_LOGIN_IP_LIMIT" default:"20"`
	LoginAccountLimit  int           `envconfig:"STOREFRONT_AUTH_LOGIN_ACCOUNT_LIMIT" default:"5"`
	RegisterWindow     time.Duration `envconfig:"STOREFRONT_AUTH_REGISTER_WINDOW" default:"1h"`
	RegisterIPLimit    int           `envconfig:"STOREFRONT_AUTH_REGISTER_IP_LIMIT" default:"10"`
	RegisterEmailLimit int           `envconfig:"STOREFRONT_AUTH_REGISTER_EMAIL_LIMIT" default:"3"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"STOREFRONT_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}
