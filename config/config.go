package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	App       AppConfig
	Store     StoreConfig
	Redis     RedisConfig
	Database  DatabaseConfig
	Lock      LockConfig
	AI        AIConfig
	Search    SearchConfig
	Retention RetentionConfig
	Telemetry TelemetryConfig
}

type ServerConfig struct {
	Port        string
	CORSOrigins []string
}

type AppConfig struct {
	Environment string
	LogLevel    string
	Version     string
	DataDir     string
}

type StoreConfig struct {
	Backend           string
	SQLitePath        string
	// SnapshotCacheSize enables the in-process snapshot cache. Only safe when
	// this server is the sole writer; leave it at zero when spacesctl or
	// another instance writes the same store.
	SnapshotCacheSize int
	// TTL expires idle projects in the Redis store; zero keeps them.
	TTL time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type DatabaseConfig struct {
	DSN string
}

type LockConfig struct {
	Backend string
	Wait    time.Duration
	TTL     time.Duration
}

type AIConfig struct {
	BaseURL     string
	APIKey      string
	TextModel   string
	VisionModel string
	ImageModel  string
	RateLimit   float64
	RateBurst   int
}

type SearchConfig struct {
	SerpAPIKey string
	SerpURL    string
}

type RetentionConfig struct {
	MaxAge   time.Duration
	Schedule string
}

type TelemetryConfig struct {
	OTelEnabled  bool
	OTLPEndpoint string
}

const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"

	LockLocal = "local"
	LockRedis = "redis"
)

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv reads the configuration from the process environment without
// validating it.
func FromEnv() *Config {
	dataDir := getEnv("DATA_DIR", "data")
	return &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			CORSOrigins: getEnvAsList("CORS_ORIGINS", []string{"http://localhost:3000"}),
		},
		App: AppConfig{
			Environment: getEnv("APP_ENV", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			Version:     getEnv("APP_VERSION", "1.0.0"),
			DataDir:     dataDir,
		},
		Store: StoreConfig{
			Backend:           strings.ToLower(getEnv("STORE_BACKEND", BackendRedis)),
			SQLitePath:        getEnv("SQLITE_PATH", dataDir+"/projects.db"),
			SnapshotCacheSize: getEnvAsInt("SNAPSHOT_CACHE_SIZE", 0),
			TTL:               getEnvAsDuration("STORE_TTL", 0),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Database: DatabaseConfig{
			DSN: getEnv("DB_DSN", ""),
		},
		Lock: LockConfig{
			Backend: strings.ToLower(getEnv("LOCK_BACKEND", LockLocal)),
			Wait:    getEnvAsDuration("LOCK_WAIT", 0),
			TTL:     getEnvAsDuration("LOCK_TTL", 3*time.Minute),
		},
		AI: AIConfig{
			BaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com"),
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			TextModel:   getEnv("OPENAI_TEXT_MODEL", "gpt-4o-mini"),
			VisionModel: getEnv("OPENAI_VISION_MODEL", "gpt-4o"),
			ImageModel:  getEnv("OPENAI_IMAGE_MODEL", "gpt-image-1"),
			RateLimit:   getEnvAsFloat("AI_RATE_LIMIT", 2),
			RateBurst:   getEnvAsInt("AI_RATE_BURST", 4),
		},
		Search: SearchConfig{
			SerpAPIKey: getEnv("SERP_API_KEY", ""),
			SerpURL:    getEnv("SERP_BASE_URL", "https://serpapi.com"),
		},
		Retention: RetentionConfig{
			MaxAge:   getEnvAsDuration("PROJECT_RETENTION", 0),
			Schedule: getEnv("RETENTION_SCHEDULE", "0 0 3 * * *"),
		},
		Telemetry: TelemetryConfig{
			OTelEnabled:  getEnvAsBool("OTEL_ENABLED", false),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		},
	}
}

func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	switch c.Store.Backend {
	case BackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("REDIS_ADDR is required for the redis store")
		}
	case BackendPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("DB_DSN is required for the postgres store")
		}
	case BackendSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite store")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be redis, postgres or sqlite, got %q", c.Store.Backend)
	}

	switch c.Lock.Backend {
	case LockLocal:
	case LockRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("REDIS_ADDR is required for the redis lock")
		}
		if c.Lock.TTL <= 0 {
			return fmt.Errorf("LOCK_TTL must be positive for the redis lock")
		}
	default:
		return fmt.Errorf("LOCK_BACKEND must be local or redis, got %q", c.Lock.Backend)
	}

	if c.Lock.Wait < 0 {
		return fmt.Errorf("LOCK_WAIT must not be negative")
	}
	if c.AI.RateLimit < 0 || c.AI.RateBurst < 0 {
		return fmt.Errorf("AI_RATE_LIMIT and AI_RATE_BURST must not be negative")
	}
	if c.Retention.MaxAge < 0 {
		return fmt.Errorf("PROJECT_RETENTION must not be negative")
	}
	if c.App.DataDir == "" {
		return fmt.Errorf("DATA_DIR is required")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid integer for %s, using default: %d", key, defaultValue)
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		log.Printf("Warning: Invalid number for %s, using default: %g", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid boolean for %s, using default: %t", key, defaultValue)
		return defaultValue
	}
	return value
}

// getEnvAsDuration accepts Go durations ("90s", "72h") and bare seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	log.Printf("Warning: Invalid duration for %s, using default: %s", key, defaultValue)
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
