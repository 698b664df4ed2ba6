package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const minSecretLength = 32

var (
	ErrMissingSecret = errors.New("signing secret not set")
	ErrWeakSecret    = fmt.Errorf("signing secret shorter than %d bytes", minSecretLength)
	ErrSharedSecret  = errors.New("access and refresh secrets must differ")
	ErrInvalidValue  = errors.New("invalid configuration value")
)

// ConfigError reports a startup configuration problem for a specific key.
type ConfigError struct {
	Key string
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Key, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Environment names the deployment topology cookies are derived for.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvPreview     Environment = "preview"
	EnvProduction  Environment = "production"
)

// PrincipalSource selects where the guard takes the caller's role from.
type PrincipalSource string

const (
	// PrincipalSourceToken trusts the role claim embedded in the access credential.
	PrincipalSourceToken PrincipalSource = "token"
	// PrincipalSourceStorage re-reads the account on every guarded request.
	PrincipalSourceStorage PrincipalSource = "storage"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Cookie       CookieConfig
	Kafka        KafkaConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   Environment
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
	CORSOrigins           []string
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32

	// ApplicationName tags the service's connections in pg_stat_activity.
	ApplicationName    string
	// StatementTimeoutMs bounds every account query; a slow database fails
	// the login instead of holding the request.
	StatementTimeoutMs int
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines credential parameters. Secrets have no defaults.
type AuthConfig struct {
	AccessSecret          []byte
	RefreshSecret         []byte
	Issuer                string
	AccessTokenTTLMinutes int
	RefreshTokenTTLHours  int
	BcryptCost            int
	PrincipalSource       PrincipalSource
}

// CookieConfig describes the cookie topology of the deployment.
type CookieConfig struct {
	Domain string
	// CrossSite is set when the API and the front end live on different sites.
	CrossSite bool
}

// KafkaConfig enables the auth event stream when brokers are set.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// NotificationConfig holds stub notification endpoints.
type NotificationConfig struct {
	EmailFrom  string
	WebhookURL string
}

// Load reads configuration from environment variables, applying defaults where
// possible. Signing secrets are mandatory and are never defaulted.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, &ConfigError{Key: "REDIS_DB", Err: err}
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "storefront-auth"),
			Env:                   Environment(strings.ToLower(getEnv("APP_ENV", string(EnvDevelopment)))),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
			CORSOrigins:           getEnvAsList("CORS_ALLOWED_ORIGINS"),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,

			ApplicationName:    getEnv("POSTGRES_APPLICATION_NAME", "storefront-auth"),
			StatementTimeoutMs: getEnvAsInt("POSTGRES_STATEMENT_TIMEOUT_MS", 3000),
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:  os.Getenv("REDIS_PASSWORD"),
			DB:        redisDB,
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "storefront:auth:"),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			AccessSecret:          []byte(os.Getenv("JWT_ACCESS_SECRET")),
			RefreshSecret:         []byte(os.Getenv("JWT_REFRESH_SECRET")),
			Issuer:                getEnv("AUTH_ISSUER", "storefront"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 15),
			RefreshTokenTTLHours:  getEnvAsInt("AUTH_REFRESH_TOKEN_TTL_HOURS", 24*7),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
			PrincipalSource:       PrincipalSource(strings.ToLower(getEnv("AUTH_PRINCIPAL_SOURCE", string(PrincipalSourceToken)))),
		},
		Cookie: CookieConfig{
			Domain:    os.Getenv("COOKIE_DOMAIN"),
			CrossSite: getEnvAsBool("COOKIE_CROSS_SITE", false),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvAsList("KAFKA_BROKERS"),
			Topic:   getEnv("KAFKA_AUTH_TOPIC", "user_events"),
		},
		Notification: NotificationConfig{
			EmailFrom:  getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports configuration the service must refuse to start with.
func (c *Config) Validate() error {
	if err := validateSecret("JWT_ACCESS_SECRET", c.Auth.AccessSecret); err != nil {
		return err
	}
	if err := validateSecret("JWT_REFRESH_SECRET", c.Auth.RefreshSecret); err != nil {
		return err
	}
	if string(c.Auth.AccessSecret) == string(c.Auth.RefreshSecret) {
		return &ConfigError{Key: "JWT_REFRESH_SECRET", Err: ErrSharedSecret}
	}

	switch c.App.Env {
	case EnvDevelopment, EnvPreview, EnvProduction:
	default:
		return &ConfigError{Key: "APP_ENV", Err: fmt.Errorf("%w: %q", ErrInvalidValue, c.App.Env)}
	}

	switch c.Auth.PrincipalSource {
	case PrincipalSourceToken, PrincipalSourceStorage:
	default:
		return &ConfigError{Key: "AUTH_PRINCIPAL_SOURCE", Err: fmt.Errorf("%w: %q", ErrInvalidValue, c.Auth.PrincipalSource)}
	}

	if c.Auth.AccessTokenTTLMinutes <= 0 {
		return &ConfigError{Key: "AUTH_ACCESS_TOKEN_TTL_MINUTES", Err: ErrInvalidValue}
	}
	if c.Auth.RefreshTokenTTLHours <= 0 {
		return &ConfigError{Key: "AUTH_REFRESH_TOKEN_TTL_HOURS", Err: ErrInvalidValue}
	}
	if c.AccessTTL() >= c.RefreshTTL() {
		return &ConfigError{Key: "AUTH_ACCESS_TOKEN_TTL_MINUTES", Err: fmt.Errorf("%w: access TTL must be shorter than refresh TTL", ErrInvalidValue)}
	}
	return nil
}

func validateSecret(key string, secret []byte) error {
	if len(secret) == 0 {
		return &ConfigError{Key: key, Err: ErrMissingSecret}
	}
	if len(secret) < minSecretLength {
		return &ConfigError{Key: key, Err: ErrWeakSecret}
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// AccessTTL returns the access credential lifetime.
func (c *Config) AccessTTL() time.Duration {
	return time.Duration(c.Auth.AccessTokenTTLMinutes) * time.Minute
}

// RefreshTTL returns the refresh credential lifetime.
func (c *Config) RefreshTTL() time.Duration {
	return time.Duration(c.Auth.RefreshTokenTTLHours) * time.Hour
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
