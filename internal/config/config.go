// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	JWT         JWTConfig
	Redis       RedisConfig
	AWS         AWSConfig
	Broadcast   BroadcastConfig
	Sweeper     SweeperConfig
	Bridge      BridgeConfig
	Cron        CronConfig
	Log         LogConfig
}

type ServerConfig struct {
	Port           string
	Host           string
	ReadTimeout    int
	WriteTimeout   int
	IdleTimeout    int
	RequestTimeout int
	AllowedOrigins []string
	// RateLimitRPS is the per-IP request rate; zero disables rate limiting.
	RateLimitRPS   int
	RateLimitBurst int
}

type DatabaseConfig struct {
	// Driver is "postgres" or "memory". The memory driver keeps everything in
	// process and is meant for local runs.
	Driver       string
	Host         string
	Port         string
	User         string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  int
	LogLevel     string
}

type JWTConfig struct {
	SecretKey      string
	AccessTokenTTL int // in hours
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	S3Bucket        string
	PresignTTL      time.Duration
}

// BroadcastConfig holds the protocol limits. Defaults follow the merchant
// custom-order settings of the marketplace.
type BroadcastConfig struct {
	MaxMerchants        int
	MaxImages           int
	PricingTimeout      time.Duration
	AutoCancelAfter     time.Duration
	QuoteValidityWindow time.Duration
	MaxQuoteValidity    time.Duration
	MaxItemsPerQuote    int
}

type SweeperConfig struct {
	Enabled            bool
	Interval           time.Duration
	BatchSize          int
	RelabelStaleQuotes bool
}

type BridgeConfig struct {
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	MaxAttempts   int
	RelayInterval time.Duration
	RelayBatch    int
	UseQueue      bool
	Queue         string

	// WorkerConcurrency bounds parallel deliveries in cmd/worker.
	WorkerConcurrency int
}

type CronConfig struct {
	// SecretHash is the bcrypt hash of the bearer token accepted by the
	// internal sweep endpoint.
	SecretHash string
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	config := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:           getEnv("SERVER_PORT", "8080"),
			Host:           getEnv("SERVER_HOST", "localhost"),
			ReadTimeout:    getEnvAsInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeout:   getEnvAsInt("SERVER_WRITE_TIMEOUT", 15),
			IdleTimeout:    getEnvAsInt("SERVER_IDLE_TIMEOUT", 60),
			RequestTimeout: getEnvAsInt("SERVER_REQUEST_TIMEOUT", 10),
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			RateLimitRPS:   getEnvAsInt("RATE_LIMIT_RPS", 10),
			RateLimitBurst: getEnvAsInt("RATE_LIMIT_BURST", 20),
		},
		Database: DatabaseConfig{
			Driver:       getEnv("DB_DRIVER", "postgres"),
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", ""),
			Database:     getEnv("DB_NAME", "custom_orders"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  getEnvAsInt("DB_MAX_LIFETIME", 300),
			LogLevel:     getEnv("DB_LOG_LEVEL", "silent"),
		},
		JWT: JWTConfig{
			SecretKey:      getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
			AccessTokenTTL: getEnvAsInt("JWT_ACCESS_TTL", 24), // 24 hours
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			S3Bucket:        getEnv("AWS_S3_BUCKET", "custom-order-media"),
			PresignTTL:      getEnvAsDuration("AWS_PRESIGN_TTL", 15*time.Minute),
		},
		Broadcast: BroadcastConfig{
			MaxMerchants:        getEnvAsInt("BROADCAST_MAX_MERCHANTS", 3),
			MaxImages:           getEnvAsInt("BROADCAST_MAX_IMAGES", 5),
			PricingTimeout:      getEnvAsDuration("BROADCAST_PRICING_TIMEOUT", 24*time.Hour),
			AutoCancelAfter:     getEnvAsDuration("BROADCAST_AUTO_CANCEL_AFTER", 48*time.Hour),
			QuoteValidityWindow: getEnvAsDuration("QUOTE_VALIDITY_WINDOW", 2*time.Hour),
			MaxQuoteValidity:    getEnvAsDuration("QUOTE_MAX_VALIDITY", 24*time.Hour),
			MaxItemsPerQuote:    getEnvAsInt("QUOTE_MAX_ITEMS", 50),
		},
		Sweeper: SweeperConfig{
			Enabled:            getEnvAsBool("SWEEPER_ENABLED", true),
			Interval:           getEnvAsDuration("SWEEPER_INTERVAL", time.Minute),
			BatchSize:          getEnvAsInt("SWEEPER_BATCH_SIZE", 200),
			RelabelStaleQuotes: getEnvAsBool("SWEEPER_RELABEL_STALE_QUOTES", true),
		},
		Bridge: BridgeConfig{
			BaseURL:       getEnv("BRIDGE_BASE_URL", ""),
			APIKey:        getEnv("BRIDGE_API_KEY", ""),
			Timeout:       getEnvAsDuration("BRIDGE_TIMEOUT", 5*time.Second),
			MaxAttempts:   getEnvAsInt("BRIDGE_MAX_ATTEMPTS", 10),
			RelayInterval: getEnvAsDuration("BRIDGE_RELAY_INTERVAL", 5*time.Second),
			RelayBatch:    getEnvAsInt("BRIDGE_RELAY_BATCH", 100),
			UseQueue:      getEnvAsBool("BRIDGE_USE_QUEUE", false),
			Queue:         getEnv("BRIDGE_QUEUE", "critical"),

			WorkerConcurrency: getEnvAsInt("BRIDGE_WORKER_CONCURRENCY", 10),
		},
		Cron: CronConfig{
			SecretHash: getEnv("CRON_SECRET_HASH", ""),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", ""),
		},
	}

	return config, config.Validate()
}

func (c *Config) Validate() error {
	if c.JWT.SecretKey == "your-secret-key-change-in-production" && c.Environment == "production" {
		return fmt.Errorf("JWT secret key must be changed in production")
	}

	if c.Database.Driver != "postgres" && c.Database.Driver != "memory" {
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	if c.Database.Password == "" && c.Environment == "production" && c.Database.Driver == "postgres" {
		return fmt.Errorf("database password is required in production")
	}

	if c.Broadcast.MaxMerchants < 1 {
		return fmt.Errorf("BROADCAST_MAX_MERCHANTS must be at least 1")
	}

	if c.Broadcast.MaxItemsPerQuote < 1 {
		return fmt.Errorf("QUOTE_MAX_ITEMS must be at least 1")
	}

	if c.Broadcast.PricingTimeout >= c.Broadcast.AutoCancelAfter {
		return fmt.Errorf("pricing timeout (%s) must be shorter than auto-cancel window (%s)",
			c.Broadcast.PricingTimeout, c.Broadcast.AutoCancelAfter)
	}

	if c.Broadcast.QuoteValidityWindow <= 0 || c.Broadcast.QuoteValidityWindow > c.Broadcast.MaxQuoteValidity {
		return fmt.Errorf("quote validity window must be positive and at most %s", c.Broadcast.MaxQuoteValidity)
	}

	if c.Sweeper.Interval <= 0 || c.Bridge.RelayInterval <= 0 {
		return fmt.Errorf("sweeper and relay intervals must be positive")
	}

	return nil
}

func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(strings.ToLower(value)); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
