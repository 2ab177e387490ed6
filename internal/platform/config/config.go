package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile         = ".env"
	defaultPort            = "8080"
	defaultReadTimeout     = 15 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultIdleTimeout     = 120 * time.Second
	defaultStoreBackend    = StoreBackendFirestore
	defaultProductsTable   = "Products"
	defaultOrdersTable     = "Orders"
	defaultCustomersTable  = "Customers"
	defaultRedisAddr       = "localhost:6379"
	defaultRedisPrefix     = "retailops"
	defaultRedisTimeout    = 5 * time.Second
	defaultIdemHeader      = "Idempotency-Key"
	defaultIdemTTL         = 24 * time.Hour
	defaultIdemTable       = "IdempotencyKeys"
	defaultIdemCleanup     = 15 * time.Minute
	defaultPostgresTable   = "entities"
	defaultPostgresConns   = 10
	defaultEventsBackend   = EventsBackendPubSub
	defaultEventsTopic     = "systemevents"
	defaultPublishTimeout  = 5 * time.Second
	defaultStockAttempts   = 5
	defaultStockBackoff    = 20 * time.Millisecond
	defaultEnrichmentMode  = EnrichmentPerOrder
	defaultSecretsEnv      = "local"
	defaultSecretsFallback = ".secrets.local"
	defaultServiceName     = "retailops-api"
	defaultSampleRatio     = 1.0
)

// Store backends.
const (
	StoreBackendMemory    = "memory"
	StoreBackendFirestore = "firestore"
	StoreBackendRedis     = "redis"
	StoreBackendPostgres  = "postgres"
)

// Event notifier backends.
const (
	EventsBackendPubSub = "pubsub"
	EventsBackendKafka  = "kafka"
	EventsBackendLog    = "log"
	EventsBackendNone   = "none"
)

// Order enrichment modes.
const (
	EnrichmentPerOrder = "per-order"
	EnrichmentBulk     = "bulk"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server      ServerConfig
	Firestore   FirestoreConfig
	Store       StoreConfig
	Redis       RedisConfig
	Postgres    PostgresConfig
	Events      EventsConfig
	Orders      OrdersConfig
	Idempotency IdempotencyConfig
	Secrets     SecretsConfig
	Telemetry   TelemetryConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// StoreConfig selects the entity store backend and its table names.
type StoreConfig struct {
	Backend        string
	ProductsTable  string
	OrdersTable    string
	CustomersTable string
}

// RedisConfig configures the Redis entity store backend.
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	DialTimeout time.Duration
	KeyPrefix   string
}

// PostgresConfig configures the Postgres entity store backend.
type PostgresConfig struct {
	DSN          string
	Table        string
	MaxOpenConns int
}

// EventsConfig selects where lifecycle events are sent.
type EventsConfig struct {
	Backend        string
	ProjectID      string
	Topic          string
	Brokers        []string
	PublishTimeout time.Duration
}

// OrdersConfig tunes the order lifecycle manager.
type OrdersConfig struct {
	StockAttempts  int
	StockBackoff   time.Duration
	EnrichmentMode string
}

// IdempotencyConfig controls replay of POST requests carrying an idempotency key.
type IdempotencyConfig struct {
	Header          string
	TTL             time.Duration
	Table           string
	CleanupInterval time.Duration
}

// SecretsConfig controls resolution of secret:// references.
type SecretsConfig struct {
	Environment      string
	DefaultProjectID string
	FallbackFile     string
}

// TelemetryConfig controls tracing export.
type TelemetryConfig struct {
	ServiceName      string
	ExporterEndpoint string
	ExporterInsecure bool
	SampleRatio      float64
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	secret       SecretResolver
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// Load assembles the configuration from defaults, .env overrides, environment variables
// and secret references, in increasing precedence (explicit env map wins).
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "API_FIRESTORE_EMULATOR_HOST", ""),
		},
		Store: StoreConfig{
			Backend:        strings.ToLower(stringWithDefault(lookup, "API_STORE_BACKEND", defaultStoreBackend)),
			ProductsTable:  stringWithDefault(lookup, "API_STORE_PRODUCTS_TABLE", defaultProductsTable),
			OrdersTable:    stringWithDefault(lookup, "API_STORE_ORDERS_TABLE", defaultOrdersTable),
			CustomersTable: stringWithDefault(lookup, "API_STORE_CUSTOMERS_TABLE", defaultCustomersTable),
		},
		Redis: RedisConfig{
			Addr:        stringWithDefault(lookup, "API_REDIS_ADDR", defaultRedisAddr),
			Password:    stringWithDefault(lookup, "API_REDIS_PASSWORD", ""),
			DB:          intWithDefault(lookup, "API_REDIS_DB", 0),
			DialTimeout: durationWithDefault(lookup, "API_REDIS_DIAL_TIMEOUT", defaultRedisTimeout),
			KeyPrefix:   stringWithDefault(lookup, "API_REDIS_KEY_PREFIX", defaultRedisPrefix),
		},
		Postgres: PostgresConfig{
			DSN:          stringWithDefault(lookup, "API_POSTGRES_DSN", ""),
			Table:        stringWithDefault(lookup, "API_POSTGRES_TABLE", defaultPostgresTable),
			MaxOpenConns: intWithDefault(lookup, "API_POSTGRES_MAX_OPEN_CONNS", defaultPostgresConns),
		},
		Events: EventsConfig{
			Backend:        strings.ToLower(stringWithDefault(lookup, "API_EVENTS_BACKEND", defaultEventsBackend)),
			ProjectID:      stringWithDefault(lookup, "API_EVENTS_PROJECT_ID", ""),
			Topic:          stringWithDefault(lookup, "API_EVENTS_TOPIC", defaultEventsTopic),
			Brokers:        csvWithDefault(lookup, "API_EVENTS_KAFKA_BROKERS"),
			PublishTimeout: durationWithDefault(lookup, "API_EVENTS_PUBLISH_TIMEOUT", defaultPublishTimeout),
		},
		Orders: OrdersConfig{
			StockAttempts:  intWithDefault(lookup, "API_ORDERS_STOCK_ATTEMPTS", defaultStockAttempts),
			StockBackoff:   durationWithDefault(lookup, "API_ORDERS_STOCK_BACKOFF", defaultStockBackoff),
			EnrichmentMode: strings.ToLower(stringWithDefault(lookup, "API_ORDERS_ENRICHMENT_MODE", defaultEnrichmentMode)),
		},
		Idempotency: IdempotencyConfig{
			Header:          stringWithDefault(lookup, "API_IDEMPOTENCY_HEADER", defaultIdemHeader),
			TTL:             durationWithDefault(lookup, "API_IDEMPOTENCY_TTL", defaultIdemTTL),
			Table:           stringWithDefault(lookup, "API_IDEMPOTENCY_TABLE", defaultIdemTable),
			CleanupInterval: durationWithDefault(lookup, "API_IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdemCleanup),
		},
		Secrets: SecretsConfig{
			Environment:      strings.ToLower(stringWithDefault(lookup, "API_SECRETS_ENVIRONMENT", defaultSecretsEnv)),
			DefaultProjectID: stringWithDefault(lookup, "API_SECRETS_PROJECT_ID", ""),
			FallbackFile:     stringWithDefault(lookup, "API_SECRETS_FALLBACK_FILE", defaultSecretsFallback),
		},
		Telemetry: TelemetryConfig{
			ServiceName:      stringWithDefault(lookup, "API_OTEL_SERVICE_NAME", defaultServiceName),
			ExporterEndpoint: stringWithDefault(lookup, "API_OTEL_EXPORTER_ENDPOINT", ""),
			ExporterInsecure: boolWithDefault(lookup, "API_OTEL_EXPORTER_INSECURE", false),
			SampleRatio:      floatWithDefault(lookup, "API_OTEL_SAMPLE_RATIO", defaultSampleRatio),
		},
	}

	// Events and secrets default to the Firestore project.
	if cfg.Events.ProjectID == "" {
		cfg.Events.ProjectID = cfg.Firestore.ProjectID
	}
	if cfg.Secrets.DefaultProjectID == "" {
		cfg.Secrets.DefaultProjectID = cfg.Firestore.ProjectID
	}

	resolved, err := resolveSecret(ctx, cfg.Redis.Password, options.secret)
	if err != nil {
		return Config{}, err
	}
	cfg.Redis.Password = resolved

	resolved, err = resolveSecret(ctx, cfg.Postgres.DSN, options.secret)
	if err != nil {
		return Config{}, err
	}
	cfg.Postgres.DSN = resolved

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// EnvironmentValues returns the effective key/value map using the same precedence as Load.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	values, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}
	if values == nil {
		values = make(map[string]string)
	}
	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			if !ok || strings.TrimSpace(key) == "" {
				continue
			}
			values[strings.TrimSpace(key)] = value
		}
	}
	for key, value := range options.envMap {
		values[key] = value
	}
	return values, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if !isSecretReference(value) {
		return value, nil
	}
	normalized := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: normalized, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}

	switch cfg.Store.Backend {
	case StoreBackendMemory:
	case StoreBackendFirestore:
		if cfg.Firestore.ProjectID == "" {
			missing = append(missing, "Firestore.ProjectID")
		}
	case StoreBackendRedis:
		if strings.TrimSpace(cfg.Redis.Addr) == "" {
			missing = append(missing, "Redis.Addr")
		}
	case StoreBackendPostgres:
		if strings.TrimSpace(cfg.Postgres.DSN) == "" {
			missing = append(missing, "Postgres.DSN")
		}
		if !validIdentifier(cfg.Postgres.Table) {
			missing = append(missing, "Postgres.Table")
		}
	default:
		missing = append(missing, "Store.Backend")
	}
	if cfg.Store.ProductsTable == "" || cfg.Store.OrdersTable == "" || cfg.Store.CustomersTable == "" {
		missing = append(missing, "Store.Tables")
	}

	switch cfg.Events.Backend {
	case EventsBackendLog, EventsBackendNone:
	case EventsBackendPubSub:
		if cfg.Events.ProjectID == "" {
			missing = append(missing, "Events.ProjectID")
		}
	case EventsBackendKafka:
		if len(cfg.Events.Brokers) == 0 {
			missing = append(missing, "Events.Brokers")
		}
	default:
		missing = append(missing, "Events.Backend")
	}

	if cfg.Orders.StockAttempts <= 0 {
		missing = append(missing, "Orders.StockAttempts")
	}
	if cfg.Orders.StockBackoff < 0 {
		missing = append(missing, "Orders.StockBackoff")
	}
	if cfg.Orders.EnrichmentMode != EnrichmentPerOrder && cfg.Orders.EnrichmentMode != EnrichmentBulk {
		missing = append(missing, "Orders.EnrichmentMode")
	}

	if strings.TrimSpace(cfg.Idempotency.Header) == "" || cfg.Idempotency.TTL <= 0 || cfg.Idempotency.Table == "" {
		missing = append(missing, "Idempotency")
	}

	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		missing = append(missing, "Telemetry.SampleRatio")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

// validIdentifier accepts lower-case SQL identifiers that need no quoting.
func validIdentifier(name string) bool {
	if name == "" || len(name) > 63 {
		return false
	}
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r == '_':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func floatWithDefault(lookup func(string) (string, bool), key string, fallback float64) float64 {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func csvWithDefault(lookup func(string) (string, bool), key string) []string {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
