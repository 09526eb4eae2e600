package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"lanchat/internal/cipher"
)

// Store drivers
const (
	DriverMemory = "memory"
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
	DriverRedis  = "redis"
)

// DevJWTSecret signs and verifies tokens when JWT_SECRET is unset. Refused in production.
const DevJWTSecret = "lanchat-dev-jwt-secret"

// Config holds application configuration
type Config struct {
	// サーバー設定
	ServerPort string
	Env        string
	LogLevel   string

	// CORS / WebSocket origin
	AllowedOrigins []string

	// 認証・暗号化
	JWTSecret     string
	EncryptionKey string

	// メッセージストア
	StoreDriver        string
	StoreTimeout       time.Duration
	BreakerMaxFailures uint32
	BreakerOpenTimeout time.Duration

	// MariaDB接続設定
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	SQLitePath string
	MongoURI   string
	MongoDB    string
	RedisURL   string

	// イベント配信 (任意)
	KafkaBrokers []string
	KafkaTopic   string
	NATSURL      string
	NATSSubject  string

	// 接続ごとの制限
	MaxMessageSize     int64
	RateLimitBurst     int
	RateLimitPerSecond float64
}

// Load loads configuration from environment variables
func Load() Config {
	cfg := Config{
		ServerPort: getEnv("SERVER_PORT", "8080"),
		Env:        getEnv("ENV", "development"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),

		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://127.0.0.1:3000")),

		JWTSecret:     getEnv("JWT_SECRET", DevJWTSecret),
		EncryptionKey: getEnv("CHAT_ENCRYPTION_KEY", cipher.DefaultSecret),

		StoreDriver:        strings.ToLower(getEnv("STORE_DRIVER", DriverMemory)),
		StoreTimeout:       getDuration("STORE_TIMEOUT", 5*time.Second),
		BreakerMaxFailures: uint32(getInt("BREAKER_MAX_FAILURES", 5)),
		BreakerOpenTimeout: getDuration("BREAKER_OPEN_TIMEOUT", 30*time.Second),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),

		SQLitePath: getEnv("SQLITE_PATH", "lanchat.db"),
		MongoURI:   getEnv("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDB:    getEnv("MONGODB_DB", "lanchat"),
		RedisURL:   getEnv("REDIS_URL", "redis://localhost:6379/0"),

		KafkaBrokers: splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "chat.messages"),
		NATSURL:      os.Getenv("NATS_URL"),
		NATSSubject:  getEnv("NATS_SUBJECT", "chat.message.created"),

		MaxMessageSize:     int64(getInt("MAX_MESSAGE_SIZE", 4096)),
		RateLimitBurst:     getInt("RATE_LIMIT_BURST", 5),
		RateLimitPerSecond: getFloat("RATE_LIMIT_PER_SECOND", 1),
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// UsesDefaultEncryptionKey reports whether message bodies are encrypted with the built-in key
func (c Config) UsesDefaultEncryptionKey() bool {
	return cipher.IsDefaultSecret(c.EncryptionKey)
}

// MySQLDSN builds the go-sql-driver DSN for the MariaDB backend
func (c Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&loc=UTC&charset=utf8mb4",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

// Validate rejects settings that are unsafe or unusable
func (c Config) Validate() error {
	var errs []error

	switch c.StoreDriver {
	case DriverMemory, DriverMySQL, DriverSQLite, DriverMongo, DriverRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}
	if c.StoreDriver == DriverMySQL && c.DBName == "" {
		errs = append(errs, errors.New("DB_NAME is required for the mysql store"))
	}
	if c.MaxMessageSize <= 0 {
		errs = append(errs, errors.New("MAX_MESSAGE_SIZE must be positive"))
	}
	if c.RateLimitBurst <= 0 || c.RateLimitPerSecond <= 0 {
		errs = append(errs, errors.New("rate limit must be positive"))
	}

	if c.IsProduction() {
		if c.UsesDefaultEncryptionKey() {
			errs = append(errs, errors.New("CHAT_ENCRYPTION_KEY must be set in production"))
		}
		if c.JWTSecret == "" || c.JWTSecret == DevJWTSecret {
			errs = append(errs, errors.New("JWT_SECRET must be set in production"))
		}
		for _, o := range c.AllowedOrigins {
			if o == "*" {
				errs = append(errs, errors.New("ALLOWED_ORIGINS must not contain * in production"))
				break
			}
		}
	}

	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getFloat(key string, defaultValue float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
