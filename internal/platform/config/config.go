package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	_ "time/tzdata"

	"github.com/joho/godotenv"
)

const (
	defaultEnvFile              = ".env"
	defaultPort                 = "8080"
	defaultReadTimeout          = 15 * time.Second
	defaultWriteTimeout         = 30 * time.Second
	defaultIdleTimeout          = 120 * time.Second
	defaultShutdownTimeout      = 10 * time.Second
	defaultEnvironment          = "local"
	defaultStoreDriver          = StoreDriverFirestore
	defaultAuthMode             = AuthModeFirebase
	defaultJWTIssuer            = "rentwheel"
	defaultOIDCJWKSURL          = "https://www.googleapis.com/oauth2/v3/certs"
	defaultOIDCIssuer           = "https://accounts.google.com"
	defaultEventsDriver         = EventsDriverNone
	defaultEventsTopic          = "booking-events"
	defaultAMQPExchange         = "rentwheel.events"
	defaultSignedURLTTL         = 15 * time.Minute
	defaultBookingTimezone      = "Asia/Kolkata"
	defaultReferenceAttempts    = 5
	defaultCurrency             = "INR"
	defaultIdempotencyHeader    = "Idempotency-Key"
	defaultIdempotencyTTL       = 24 * time.Hour
	defaultIdempotencyInterval  = time.Hour
	defaultIdempotencyBatchSize = 200
	defaultReconcileInterval    = 5 * time.Minute
	defaultReconcileBatchSize   = 100
	defaultReconcileLookback    = 72 * time.Hour
	defaultRateLimitWindow      = time.Minute
	defaultBookingRateLimit     = 10
	defaultPaymentRateLimit     = 5
	defaultServiceName          = "rentwheel-api"
	defaultTraceSampleRatio     = 0.1
)

// Store drivers.
const (
	StoreDriverFirestore = "firestore"
	StoreDriverMemory    = "memory"
)

// Identity token verification modes.
const (
	AuthModeFirebase = "firebase"
	AuthModeJWT      = "jwt"
)

// Domain event transports.
const (
	EventsDriverNone   = "none"
	EventsDriverPubSub = "pubsub"
	EventsDriverAMQP   = "amqp"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Environment string
	Server      ServerConfig
	Firebase    FirebaseConfig
	Firestore   FirestoreConfig
	Store       StoreConfig
	Storage     StorageConfig
	Auth        AuthConfig
	Security    SecurityConfig
	Events      EventsConfig
	Booking     BookingConfig
	Payments    PaymentsConfig
	Idempotency IdempotencyConfig
	RateLimit   RateLimitConfig
	Jobs        JobsConfig
	Telemetry   TelemetryConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// FirebaseConfig stores Firebase project settings.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	DatabaseID   string
	EmulatorHost string
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver string
}

// StorageConfig controls vehicle image signing.
type StorageConfig struct {
	VehicleImagesBucket string
	SignedURLTTL        time.Duration
	SignerEmail         string
	SignerPrivateKey    string
}

// AuthConfig selects how end-user bearer tokens are verified.
type AuthConfig struct {
	Mode      string
	JWTSecret string
	JWTIssuer string
}

// SecurityConfig groups server-to-server authentication settings.
type SecurityConfig struct {
	OIDC OIDCConfig
}

// OIDCConfig controls Google-signed token verification for internal endpoints.
type OIDCConfig struct {
	JWKSURL  string
	Audience string
	Issuers  []string
}

// EventsConfig selects the domain event transport.
type EventsConfig struct {
	Driver          string
	PubSubProjectID string
	PubSubTopic     string
	AMQPURL         string
	AMQPExchange    string
}

// BookingConfig tunes booking rules.
type BookingConfig struct {
	Timezone          string
	Location          *time.Location
	ReferenceAttempts int
}

// PaymentsConfig tunes the payment simulator.
type PaymentsConfig struct {
	Currency string
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header           string
	TTL              time.Duration
	CleanupInterval  time.Duration
	CleanupBatchSize int
}

// RateLimitConfig caps write requests per user. A zero limit disables the cap.
type RateLimitConfig struct {
	Window          time.Duration
	BookingCreates  int
	PaymentAttempts int
}

// JobsConfig controls background jobs.
type JobsConfig struct {
	ReconcileInterval  time.Duration
	ReconcileBatchSize int
	ReconcileLookback  time.Duration
}

// TelemetryConfig controls tracing export.
type TelemetryConfig struct {
	ServiceName      string
	OTLPEndpoint     string
	TraceSampleRatio float64
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

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	return append([]string(nil), e.fields...)
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

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

// WithEnvMap injects an explicit key/value map that takes precedence over the process environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading the process environment.
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

func newLoaderOptions(opts []Option) loaderOptions {
	options := loaderOptions{envFile: defaultEnvFile, useSystemEnv: true}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return options
}

// EnvironmentValues returns the effective environment after applying Load's precedence rules
// (.env < process environment < explicit map). main uses it to build the secret fetcher before
// the full configuration can be resolved.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := newLoaderOptions(opts)

	values, err := readDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}
	if values == nil {
		values = make(map[string]string)
	}
	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			if ok && strings.TrimSpace(key) != "" {
				values[key] = value
			}
		}
	}
	for key, value := range options.envMap {
		values[key] = value
	}
	return values, nil
}

// Load assembles the application configuration from defaults, .env overrides, the process
// environment and secret references.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)

	dotEnv, err := readDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if value, ok := options.envMap[key]; ok {
			return value, true
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		value, ok := dotEnv[key]
		return value, ok
	}

	cfg := Config{
		Environment: strings.ToLower(stringWithDefault(lookup, "API_ENVIRONMENT", defaultEnvironment)),
		Server: ServerConfig{
			Port:            stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			ReadTimeout:     durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:    durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:     durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			ShutdownTimeout: durationWithDefault(lookup, "API_SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		},
		Firebase: FirebaseConfig{
			ProjectID:       stringWithDefault(lookup, "API_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: stringWithDefault(lookup, "API_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "API_FIRESTORE_PROJECT_ID", ""),
			DatabaseID:   stringWithDefault(lookup, "API_FIRESTORE_DATABASE_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "API_FIRESTORE_EMULATOR_HOST", ""),
		},
		Store: StoreConfig{
			Driver: strings.ToLower(stringWithDefault(lookup, "API_STORE_DRIVER", defaultStoreDriver)),
		},
		Storage: StorageConfig{
			VehicleImagesBucket: stringWithDefault(lookup, "API_STORAGE_VEHICLE_IMAGES_BUCKET", ""),
			SignedURLTTL:        durationWithDefault(lookup, "API_STORAGE_SIGNED_URL_TTL", defaultSignedURLTTL),
			SignerEmail:         stringWithDefault(lookup, "API_STORAGE_SIGNER_EMAIL", ""),
			SignerPrivateKey:    stringWithDefault(lookup, "API_STORAGE_SIGNER_PRIVATE_KEY", ""),
		},
		Auth: AuthConfig{
			Mode:      strings.ToLower(stringWithDefault(lookup, "API_AUTH_MODE", defaultAuthMode)),
			JWTSecret: stringWithDefault(lookup, "API_AUTH_JWT_SECRET", ""),
			JWTIssuer: stringWithDefault(lookup, "API_AUTH_JWT_ISSUER", defaultJWTIssuer),
		},
		Security: SecurityConfig{
			OIDC: OIDCConfig{
				JWKSURL:  stringWithDefault(lookup, "API_SECURITY_OIDC_JWKS_URL", defaultOIDCJWKSURL),
				Audience: stringWithDefault(lookup, "API_SECURITY_OIDC_AUDIENCE", ""),
				Issuers:  csvWithDefault(lookup, "API_SECURITY_OIDC_ISSUERS"),
			},
		},
		Events: EventsConfig{
			Driver:          strings.ToLower(stringWithDefault(lookup, "API_EVENTS_DRIVER", defaultEventsDriver)),
			PubSubProjectID: stringWithDefault(lookup, "API_EVENTS_PUBSUB_PROJECT_ID", ""),
			PubSubTopic:     stringWithDefault(lookup, "API_EVENTS_PUBSUB_TOPIC", defaultEventsTopic),
			AMQPURL:         stringWithDefault(lookup, "API_EVENTS_AMQP_URL", ""),
			AMQPExchange:    stringWithDefault(lookup, "API_EVENTS_AMQP_EXCHANGE", defaultAMQPExchange),
		},
		Booking: BookingConfig{
			Timezone:          stringWithDefault(lookup, "API_BOOKING_TIMEZONE", defaultBookingTimezone),
			ReferenceAttempts: intWithDefault(lookup, "API_BOOKING_REFERENCE_ATTEMPTS", defaultReferenceAttempts),
		},
		Payments: PaymentsConfig{
			Currency: strings.ToUpper(stringWithDefault(lookup, "API_PAYMENTS_CURRENCY", defaultCurrency)),
		},
		Idempotency: IdempotencyConfig{
			Header:           stringWithDefault(lookup, "API_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:              durationWithDefault(lookup, "API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval:  durationWithDefault(lookup, "API_IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencyInterval),
			CleanupBatchSize: intWithDefault(lookup, "API_IDEMPOTENCY_CLEANUP_BATCH", defaultIdempotencyBatchSize),
		},
		RateLimit: RateLimitConfig{
			Window:          durationWithDefault(lookup, "API_RATELIMIT_WINDOW", defaultRateLimitWindow),
			BookingCreates:  intWithDefault(lookup, "API_RATELIMIT_BOOKING_CREATES", defaultBookingRateLimit),
			PaymentAttempts: intWithDefault(lookup, "API_RATELIMIT_PAYMENT_ATTEMPTS", defaultPaymentRateLimit),
		},
		Jobs: JobsConfig{
			ReconcileInterval:  durationWithDefault(lookup, "API_JOBS_RECONCILE_INTERVAL", defaultReconcileInterval),
			ReconcileBatchSize: intWithDefault(lookup, "API_JOBS_RECONCILE_BATCH", defaultReconcileBatchSize),
			ReconcileLookback:  durationWithDefault(lookup, "API_JOBS_RECONCILE_LOOKBACK", defaultReconcileLookback),
		},
		Telemetry: TelemetryConfig{
			ServiceName:      stringWithDefault(lookup, "API_TELEMETRY_SERVICE_NAME", defaultServiceName),
			OTLPEndpoint:     stringWithDefault(lookup, "API_TELEMETRY_OTLP_ENDPOINT", ""),
			TraceSampleRatio: floatWithDefault(lookup, "API_TELEMETRY_TRACE_SAMPLE_RATIO", defaultTraceSampleRatio),
		},
	}

	// Firestore and Pub/Sub default to the Firebase project.
	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.Events.PubSubProjectID == "" {
		cfg.Events.PubSubProjectID = cfg.Firebase.ProjectID
	}
	if len(cfg.Security.OIDC.Issuers) == 0 {
		cfg.Security.OIDC.Issuers = []string{defaultOIDCIssuer}
	}

	secretFields := []*string{
		&cfg.Auth.JWTSecret,
		&cfg.Events.AMQPURL,
		&cfg.Storage.SignerPrivateKey,
	}
	for _, field := range secretFields {
		resolved, err := resolveSecret(ctx, *field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*field = resolved
	}

	if loc, err := time.LoadLocation(cfg.Booking.Timezone); err == nil {
		cfg.Booking.Location = loc
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if !isSecretReference(value) {
		return value, nil
	}
	ref := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, ref)
	if err != nil {
		return "", &SecretError{Ref: ref, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var missing []string
	require := func(ok bool, field string) {
		if !ok {
			missing = append(missing, field)
		}
	}

	require(cfg.Server.Port != "", "Server.Port")

	switch cfg.Store.Driver {
	case StoreDriverFirestore:
		require(cfg.Firestore.ProjectID != "", "Firestore.ProjectID")
	case StoreDriverMemory:
	default:
		missing = append(missing, "Store.Driver")
	}

	switch cfg.Auth.Mode {
	case AuthModeFirebase:
		require(cfg.Firebase.ProjectID != "", "Firebase.ProjectID")
	case AuthModeJWT:
		require(len(cfg.Auth.JWTSecret) >= 16, "Auth.JWTSecret")
	default:
		missing = append(missing, "Auth.Mode")
	}

	switch cfg.Events.Driver {
	case EventsDriverNone:
	case EventsDriverPubSub:
		require(cfg.Events.PubSubProjectID != "", "Events.PubSubProjectID")
		require(cfg.Events.PubSubTopic != "", "Events.PubSubTopic")
	case EventsDriverAMQP:
		require(cfg.Events.AMQPURL != "", "Events.AMQPURL")
		require(cfg.Events.AMQPExchange != "", "Events.AMQPExchange")
	default:
		missing = append(missing, "Events.Driver")
	}

	require(cfg.Booking.Location != nil, "Booking.Timezone")
	require(cfg.Booking.ReferenceAttempts > 0, "Booking.ReferenceAttempts")
	require(len(cfg.Payments.Currency) == 3, "Payments.Currency")
	require(strings.TrimSpace(cfg.Idempotency.Header) != "", "Idempotency.Header")
	require(cfg.Idempotency.TTL > 0, "Idempotency.TTL")
	require(cfg.Idempotency.CleanupInterval > 0, "Idempotency.CleanupInterval")
	require(cfg.Idempotency.CleanupBatchSize > 0, "Idempotency.CleanupBatchSize")
	require(cfg.RateLimit.Window > 0, "RateLimit.Window")
	require(cfg.RateLimit.BookingCreates >= 0, "RateLimit.BookingCreates")
	require(cfg.RateLimit.PaymentAttempts >= 0, "RateLimit.PaymentAttempts")
	require(cfg.Jobs.ReconcileBatchSize > 0, "Jobs.ReconcileBatchSize")
	require(cfg.Jobs.ReconcileLookback > 0, "Jobs.ReconcileLookback")
	require(cfg.Telemetry.TraceSampleRatio >= 0 && cfg.Telemetry.TraceSampleRatio <= 1, "Telemetry.TraceSampleRatio")

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if rest, ok := strings.CutPrefix(trimmed, "sm://"); ok {
		return "secret://" + rest
	}
	return trimmed
}

func readDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	values, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
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
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func floatWithDefault(lookup func(string) (string, bool), key string, fallback float64) float64 {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func csvWithDefault(lookup func(string) (string, bool), key string) []string {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
