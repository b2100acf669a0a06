package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Store backends
const (
	StoreSQL    = "sql"
	StoreBadger = "badger"
)

// Database drivers for the SQL store
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Cache backends for the head-id cache
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// DevSessionSecret signs sessions when SESSION_SECRET is unset
const DevSessionSecret = "dev-session-secret-do-not-use-in-production"

// Config holds all application configuration
type Config struct {
	Server struct {
		Port    string
		Env     string
		Timeout time.Duration
		BaseURL string
	}

	// Store selects where messages live
	Store struct {
		Backend    string
		BadgerPath string
	}

	Database struct {
		Driver   string
		Path     string
		Host     string
		Port     string
		User     string
		Password string
		Name     string
		SSLMode  string
		MaxConns int
		Retries  int
		Timeout  time.Duration
	}

	Session struct {
		Secret     string
		CookieName string
		Expiry     time.Duration
		Secure     bool
	}

	Security struct {
		RateLimit      float64
		RateLimitBurst int
		AllowedOrigins []string
		TrustedProxies []string
		MaxBodySize    int64
	}

	Logging struct {
		Level  string
		Format string
	}

	// Feed paging limits
	Feed struct {
		DefaultLimit int
		MaxLimit     int
	}

	Cache struct {
		Enabled     bool
		Backend     string
		RedisURL    string
		TTL         time.Duration
		MaxSize     int
		PurgeWindow time.Duration
	}

	Observability struct {
		TracingEnabled bool
		ServiceName    string
	}

	GRPC struct {
		Enabled bool
		Port    string
	}

	OpenAPI struct {
		SchemaPath string
	}

	Features struct {
		EnableWebSockets bool
	}

	// Vault optionally supplies the session secret
	Vault struct {
		Enabled   bool
		Address   string
		Token     string
		Namespace string
		Mount     string
		Path      string
		CacheTTL  time.Duration
	}
}

var (
	instance *Config
	once     sync.Once
)

// New returns the process-wide Config, loading it from the environment
// (and a .env file if present) on first use.
func New() *Config {
	once.Do(func() {
		_ = godotenv.Load()
		instance = Load()
	})
	return instance
}

// Get returns the singleton Config instance
func Get() *Config {
	if instance == nil {
		return New()
	}
	return instance
}

// Load reads a fresh Config from the current environment
func Load() *Config {
	cfg := &Config{}

	cfg.Server.Port = getEnvString("PORT", "3000")
	cfg.Server.Env = getEnvString("APP_ENV", "development")
	cfg.Server.Timeout = getEnvDuration("SERVER_TIMEOUT", 30*time.Second)
	cfg.Server.BaseURL = getEnvString("BASE_URL", "http://localhost:"+cfg.Server.Port)

	cfg.Store.Backend = strings.ToLower(getEnvString("STORE_BACKEND", StoreSQL))
	cfg.Store.BadgerPath = getEnvString("BADGER_PATH", "data/badger")

	cfg.Database.Driver = strings.ToLower(getEnvString("DB_DRIVER", DriverSQLite))
	cfg.Database.Path = getEnvString("DB_PATH", "chat.sqlite3")
	cfg.Database.Host = getEnvString("DB_HOST", "localhost")
	cfg.Database.Port = getEnvString("DB_PORT", "5432")
	cfg.Database.User = getEnvString("DB_USER", "postgres")
	cfg.Database.Password = getEnvString("DB_PASSWORD", "postgres")
	cfg.Database.Name = getEnvString("DB_NAME", "quacker")
	cfg.Database.SSLMode = getEnvString("DB_SSL_MODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 20)
	cfg.Database.Retries = getEnvInt("DB_RETRIES", 5)
	cfg.Database.Timeout = getEnvDuration("DB_TIMEOUT", 5*time.Second)

	cfg.Session.Secret = getEnvString("SESSION_SECRET", DevSessionSecret)
	cfg.Session.CookieName = getEnvString("SESSION_COOKIE", "quacker_session")
	cfg.Session.Expiry = getEnvDuration("SESSION_EXPIRY", 30*24*time.Hour)
	cfg.Session.Secure = getEnvBool("SESSION_SECURE", false)

	cfg.Security.RateLimit = getEnvFloat("RATE_LIMIT", 5)
	cfg.Security.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", 10)
	cfg.Security.AllowedOrigins = getEnvStringSlice("ALLOWED_ORIGINS", []string{"*"})
	cfg.Security.TrustedProxies = getEnvStringSlice("TRUSTED_PROXIES", []string{"127.0.0.1"})
	cfg.Security.MaxBodySize = getEnvInt64("MAX_BODY_SIZE", 64<<10)

	cfg.Logging.Level = getEnvString("LOG_LEVEL", "info")
	cfg.Logging.Format = getEnvString("LOG_FORMAT", "json")

	cfg.Feed.DefaultLimit = getEnvInt("FEED_DEFAULT_LIMIT", 10)
	cfg.Feed.MaxLimit = getEnvInt("FEED_MAX_LIMIT", 100)
	if cfg.Feed.DefaultLimit <= 0 {
		cfg.Feed.DefaultLimit = 10
	}
	if cfg.Feed.MaxLimit < cfg.Feed.DefaultLimit {
		cfg.Feed.MaxLimit = cfg.Feed.DefaultLimit
	}

	cfg.Cache.Enabled = getEnvBool("CACHE_ENABLED", true)
	cfg.Cache.Backend = strings.ToLower(getEnvString("CACHE_BACKEND", CacheMemory))
	cfg.Cache.RedisURL = getEnvString("REDIS_URL", "redis://localhost:6379/0")
	cfg.Cache.TTL = getEnvDuration("CACHE_TTL", 5*time.Minute)
	cfg.Cache.MaxSize = getEnvInt("CACHE_MAX_SIZE", 1000)
	cfg.Cache.PurgeWindow = getEnvDuration("CACHE_PURGE_WINDOW", 10*time.Minute)

	cfg.Observability.TracingEnabled = getEnvBool("TRACING_ENABLED", false)
	cfg.Observability.ServiceName = getEnvString("SERVICE_NAME", "quacker")

	cfg.GRPC.Enabled = getEnvBool("GRPC_ENABLED", false)
	cfg.GRPC.Port = getEnvString("GRPC_PORT", "9094")

	cfg.OpenAPI.SchemaPath = getEnvString("OPENAPI_SCHEMA_PATH", "")

	cfg.Features.EnableWebSockets = getEnvBool("ENABLE_WEBSOCKETS", true)

	cfg.Vault.Enabled = getEnvBool("VAULT_ENABLED", false)
	cfg.Vault.Address = getEnvString("VAULT_ADDR", "")
	cfg.Vault.Token = getEnvString("VAULT_TOKEN", "")
	cfg.Vault.Namespace = getEnvString("VAULT_NAMESPACE", "")
	cfg.Vault.Mount = getEnvString("VAULT_MOUNT", "secret")
	cfg.Vault.Path = getEnvString("VAULT_SECRETS_PATH", "quacker")
	cfg.Vault.CacheTTL = getEnvDuration("VAULT_CACHE_TTL", 5*time.Minute)

	return cfg
}

// IsProduction reports whether APP_ENV is production
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		parts := strings.Split(value, ",")
		out := parts[:0]
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}
