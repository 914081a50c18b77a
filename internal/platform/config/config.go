package config

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	defaultEnvFile              = ".env"
	defaultPort                 = "8080"
	defaultReadTimeout          = 15 * time.Second
	defaultWriteTimeout         = 30 * time.Second
	defaultIdleTimeout          = 120 * time.Second
	defaultRequestTimeout       = 20 * time.Second
	defaultShutdownTimeout      = 15 * time.Second
	defaultEnvironment          = "local"
	defaultLogLevel             = "info"
	defaultDatabaseDriver       = "sqlite"
	defaultMaxOpenConns         = 10
	defaultMaxIdleConns         = 5
	defaultConnMaxLifetime      = 30 * time.Minute
	defaultSlowQueryThreshold   = 200 * time.Millisecond
	defaultCatalogSource        = "file"
	defaultCatalogCacheTTL      = 5 * time.Minute
	defaultStoreCurrency        = "USD"
	defaultSetupFeeMode         = "per_unit"
	defaultWeeklyCapacity       = 50
	defaultAlmostFullThreshold  = 3
	defaultCapacityMaxRetries   = 5
	defaultStudioTimezone       = "UTC"
	defaultPubSubOrderTopic     = "order-events"
	defaultIdempotencyHeader    = "Idempotency-Key"
	defaultIdempotencyTTL       = 24 * time.Hour
	defaultIdempotencyInterval  = time.Hour
	defaultIdempotencyBatchSize = 200
	defaultAdminClockSkew       = 5 * time.Minute
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Firestore   FirestoreConfig
	Catalog     CatalogConfig
	Pricing     PricingConfig
	Capacity    CapacityConfig
	Studio      StudioConfig
	PSP         PSPConfig
	PubSub      PubSubConfig
	Redis       RedisConfig
	Idempotency IdempotencyConfig
	Admin       AdminConfig
	Runtime     RuntimeConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig selects the relational store. Driver is "postgres" or "sqlite".
type DatabaseConfig struct {
	Driver             string
	DSN                string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetime    time.Duration
	SlowQueryThreshold time.Duration
	AutoMigrate        bool
}

// FirestoreConfig stores Firestore parameters for the catalog source.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// CatalogConfig selects where shapes and delivery methods are read from.
type CatalogConfig struct {
	Source   string
	File     string
	CacheTTL time.Duration
}

// PricingConfig holds the store-wide pricing constants.
type PricingConfig struct {
	Currency     string
	SetupFee     int64
	SetupFeeMode string
}

// CapacityConfig tunes weekly admission control.
type CapacityConfig struct {
	DefaultWeekly       int
	AlmostFullThreshold int
	MaxRetries          int
}

// StudioConfig describes the studio's calendar.
type StudioConfig struct {
	Timezone string
}

// PSPConfig collects secrets for the payment provider.
type PSPConfig struct {
	StripeAPIKey        string
	StripeWebhookSecret string
}

// PubSubConfig configures order event publishing. An empty ProjectID disables publishing.
type PubSubConfig struct {
	ProjectID  string
	OrderTopic string
}

// RedisConfig configures the shared idempotency store. An empty Addr selects the in-memory store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header           string
	TTL              time.Duration
	CleanupInterval  time.Duration
	CleanupBatchSize int
}

// AdminConfig protects studio routes with signed requests. An empty SigningSecret leaves the admin
// routes unmounted.
type AdminConfig struct {
	SigningSecret string
	ClockSkew     time.Duration
}

// RuntimeConfig carries deployment metadata and logging settings.
type RuntimeConfig struct {
	Environment string
	LogLevel    string
	Version     string
	CommitSHA   string
}

// ValidationError lists every field that is missing, out of range or unparsable.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

func (e *ValidationError) Fields() []string {
	return append([]string(nil), e.fields...)
}

// Load reads configuration from, in order of precedence, WithEnvMap values, the process
// environment and the dotenv file, then resolves secret references and validates the result.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := defaultOptions(opts)
	env, err := newSource(options)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Server: ServerConfig{
			Port:            env.str("API_SERVER_PORT", defaultPort),
			ReadTimeout:     env.duration("API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:    env.duration("API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:     env.duration("API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			RequestTimeout:  env.duration("API_SERVER_REQUEST_TIMEOUT", defaultRequestTimeout),
			ShutdownTimeout: env.duration("API_SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		},
		Database: DatabaseConfig{
			Driver:             env.lower("API_DATABASE_DRIVER", defaultDatabaseDriver),
			DSN:                env.str("API_DATABASE_DSN", ""),
			MaxOpenConns:       env.int("API_DATABASE_MAX_OPEN_CONNS", defaultMaxOpenConns),
			MaxIdleConns:       env.int("API_DATABASE_MAX_IDLE_CONNS", defaultMaxIdleConns),
			ConnMaxLifetime:    env.duration("API_DATABASE_CONN_MAX_LIFETIME", defaultConnMaxLifetime),
			SlowQueryThreshold: env.duration("API_DATABASE_SLOW_QUERY_THRESHOLD", defaultSlowQueryThreshold),
			AutoMigrate:        env.bool("API_DATABASE_AUTO_MIGRATE", true),
		},
		Firestore: FirestoreConfig{
			ProjectID:    env.str("API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: env.str("API_FIRESTORE_EMULATOR_HOST", ""),
		},
		Catalog: CatalogConfig{
			Source:   env.lower("API_CATALOG_SOURCE", defaultCatalogSource),
			File:     env.str("API_CATALOG_FILE", ""),
			CacheTTL: env.duration("API_CATALOG_CACHE_TTL", defaultCatalogCacheTTL),
		},
		Pricing: PricingConfig{
			Currency:     strings.ToUpper(strings.TrimSpace(env.str("API_STORE_CURRENCY", defaultStoreCurrency))),
			SetupFee:     env.int64("API_PRICING_SETUP_FEE", 0),
			SetupFeeMode: env.lower("API_PRICING_SETUP_FEE_MODE", defaultSetupFeeMode),
		},
		Capacity: CapacityConfig{
			DefaultWeekly:       env.int("API_CAPACITY_DEFAULT_WEEKLY", defaultWeeklyCapacity),
			AlmostFullThreshold: env.int("API_CAPACITY_ALMOST_FULL_THRESHOLD", defaultAlmostFullThreshold),
			MaxRetries:          env.int("API_CAPACITY_MAX_RETRIES", defaultCapacityMaxRetries),
		},
		Studio: StudioConfig{
			Timezone: env.str("API_STUDIO_TIMEZONE", defaultStudioTimezone),
		},
		PSP: PSPConfig{
			StripeAPIKey:        env.str("API_PSP_STRIPE_API_KEY", ""),
			StripeWebhookSecret: env.str("API_PSP_STRIPE_WEBHOOK_SECRET", ""),
		},
		PubSub: PubSubConfig{
			// Order events go to the catalog's project unless configured separately.
			ProjectID:  env.str("API_PUBSUB_PROJECT_ID", env.str("API_FIRESTORE_PROJECT_ID", "")),
			OrderTopic: env.str("API_PUBSUB_ORDER_TOPIC", defaultPubSubOrderTopic),
		},
		Redis: RedisConfig{
			Addr:     env.str("API_REDIS_ADDR", ""),
			Password: env.str("API_REDIS_PASSWORD", ""),
			DB:       env.int("API_REDIS_DB", 0),
		},
		Idempotency: IdempotencyConfig{
			Header:           env.str("API_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:              env.duration("API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval:  env.duration("API_IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencyInterval),
			CleanupBatchSize: env.int("API_IDEMPOTENCY_CLEANUP_BATCH", defaultIdempotencyBatchSize),
		},
		Admin: AdminConfig{
			SigningSecret: env.str("API_ADMIN_SIGNING_SECRET", ""),
			ClockSkew:     env.duration("API_ADMIN_CLOCK_SKEW", defaultAdminClockSkew),
		},
		Runtime: RuntimeConfig{
			Environment: env.lower("API_ENVIRONMENT", defaultEnvironment),
			LogLevel:    env.lower("LOG_LEVEL", defaultLogLevel),
			Version:     env.str("API_VERSION", ""),
			CommitSHA:   env.str("API_COMMIT_SHA", ""),
		},
	}

	if err := resolveSecrets(ctx, &cfg, options.secret); err != nil {
		return Config{}, err
	}
	if fields := append(env.invalid, cfg.problems()...); len(fields) > 0 {
		return Config{}, &ValidationError{fields: fields}
	}
	if err := checkRequiredSecrets(&cfg, options.requiredSecrets); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Location resolves the studio timezone, falling back to UTC for an empty name.
func (c StudioConfig) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Timezone)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("config: studio timezone %q: %w", name, err)
	}
	return loc, nil
}

// problems returns the names of fields whose values cannot work.
func (cfg Config) problems() []string {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	switch cfg.Database.Driver {
	case "postgres":
		if strings.TrimSpace(cfg.Database.DSN) == "" {
			missing = append(missing, "Database.DSN")
		}
	case "sqlite":
	default:
		missing = append(missing, "Database.Driver")
	}
	switch cfg.Catalog.Source {
	case "firestore":
		if cfg.Firestore.ProjectID == "" {
			missing = append(missing, "Firestore.ProjectID")
		}
	case "file":
		if strings.TrimSpace(cfg.Catalog.File) == "" {
			missing = append(missing, "Catalog.File")
		}
	default:
		missing = append(missing, "Catalog.Source")
	}
	if cfg.Catalog.CacheTTL < 0 {
		missing = append(missing, "Catalog.CacheTTL")
	}
	if len(cfg.Pricing.Currency) != 3 {
		missing = append(missing, "Pricing.Currency")
	}
	if cfg.Pricing.SetupFee < 0 {
		missing = append(missing, "Pricing.SetupFee")
	}
	if cfg.Pricing.SetupFeeMode != "per_unit" && cfg.Pricing.SetupFeeMode != "flat" {
		missing = append(missing, "Pricing.SetupFeeMode")
	}
	if cfg.Capacity.DefaultWeekly < 1 {
		missing = append(missing, "Capacity.DefaultWeekly")
	}
	if cfg.Capacity.MaxRetries < 1 {
		missing = append(missing, "Capacity.MaxRetries")
	}
	if _, err := cfg.Studio.Location(); err != nil {
		missing = append(missing, "Studio.Timezone")
	}
	if strings.TrimSpace(cfg.Idempotency.Header) == "" {
		missing = append(missing, "Idempotency.Header")
	}
	if cfg.Idempotency.TTL <= 0 {
		missing = append(missing, "Idempotency.TTL")
	}
	if cfg.Idempotency.CleanupInterval <= 0 {
		missing = append(missing, "Idempotency.CleanupInterval")
	}
	if cfg.Idempotency.CleanupBatchSize <= 0 {
		missing = append(missing, "Idempotency.CleanupBatchSize")
	}
	if cfg.Admin.ClockSkew <= 0 {
		missing = append(missing, "Admin.ClockSkew")
	}

	return missing
}
