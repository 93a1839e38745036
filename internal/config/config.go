package config

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Server             ServerConfig   `env:",prefix=SERVER_"`
	Postgres           PostgresConfig `env:",prefix=POSTGRES_"`
	Redis              RedisConfig    `env:",prefix=REDIS_"`
	JWT                JWTConfig      `env:",prefix=JWT_"`
	Kafka              KafkaConfig    `env:",prefix=KAFKA_"`
	Sync               SyncConfig     `env:",prefix=SYNC_"`
	Apple              VendorConfig   `env:",prefix=APPLE_"`
	Fitbit             VendorConfig   `env:",prefix=FITBIT_"`
	CORS               CORSConfig     `env:",prefix=CORS_"`
	TokenEncryptionKey string         `env:"TOKEN_ENCRYPTION_KEY,required"`
	MigrationsPath     string         `env:"MIGRATIONS_PATH,default=migrations"`
	Env                string         `env:"ENV,default=development"`
}

type ServerConfig struct {
	Port         string   `env:"PORT,default=8080"`
	Host         string   `env:"HOST,default=0.0.0.0"`
	ReadTimeout  Duration `env:"READ_TIMEOUT,default=15s"`
	WriteTimeout Duration `env:"WRITE_TIMEOUT,default=60s"`
}

type PostgresConfig struct {
	Host            string   `env:"HOST,default=localhost"`
	Port            string   `env:"PORT,default=5432"`
	User            string   `env:"USER,default=wearable_sync"`
	Password        string   `env:"PASSWORD,default=wearable_sync_password"`
	DBName          string   `env:"DB,default=wearable_sync_db"`
	SSLMode         string   `env:"SSLMODE,default=disable"`
	MaxOpenConns    int      `env:"MAX_OPEN_CONNS,default=25"`
	MaxIdleConns    int      `env:"MAX_IDLE_CONNS,default=5"`
	ConnMaxLifetime Duration `env:"CONN_MAX_LIFETIME,default=30m"`
}

type RedisConfig struct {
	Host     string `env:"HOST,default=localhost"`
	Port     string `env:"PORT,default=6379"`
	Password string `env:"PASSWORD,default="`
	DB       int    `env:"DB,default=0"`
}

// JWTConfig holds the shared secret of the platform identity service that issues API tokens
type JWTConfig struct {
	Secret            string   `env:"SECRET,required"`
	AccessTokenExpiry Duration `env:"ACCESS_TOKEN_EXPIRY,default=15m"`
}

// KafkaConfig configures sync event publishing. No brokers disables publishing.
type KafkaConfig struct {
	Brokers []string `env:"BROKERS"`
	Topic   string   `env:"TOPIC,default=device_sync_events"`
}

type SyncConfig struct {
	Interval          Duration `env:"INTERVAL,default=1h"`
	LockTTL           Duration `env:"LOCK_TTL,default=5m"`
	RateLimitRequests int      `env:"RATE_LIMIT_REQUESTS,default=6"`
	RateLimitWindow   Duration `env:"RATE_LIMIT_WINDOW,default=1m"`
	BatchConcurrency  int      `env:"BATCH_CONCURRENCY,default=8"`
}

// VendorConfig configures one vendor's fault-tolerant API client
type VendorConfig struct {
	BaseURL          string   `env:"BASE_URL"`
	ClientID         string   `env:"CLIENT_ID"`
	Timeout          Duration `env:"TIMEOUT,default=10s"`
	RetryAttempts    int      `env:"RETRY_ATTEMPTS,default=3"`
	FailureThreshold int      `env:"FAILURE_THRESHOLD,default=5"`
	RecoveryTimeout  Duration `env:"RECOVERY_TIMEOUT,default=60s"`
	MonitoringPeriod Duration `env:"MONITORING_PERIOD,default=5m"`
}

type CORSConfig struct {
	AllowedOrigins []string `env:"ALLOWED_ORIGINS,default=http://localhost:3000"`
	AllowedMethods []string `env:"ALLOWED_METHODS,default=GET,POST,OPTIONS"`
	AllowedHeaders []string `env:"ALLOWED_HEADERS,default=Content-Type,Authorization"`
}

// DSN returns PostgreSQL connection string
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}

// Address returns Redis connection address
func (r RedisConfig) Address() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// Load loads configuration from environment variables
func Load(ctx context.Context) (*Config, error) {
	return LoadFrom(ctx, envconfig.OsLookuper())
}

// LoadFrom loads configuration from the given lookuper
func LoadFrom(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var config Config

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &config,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validate() error {
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters long")
	}

	key, err := hex.DecodeString(c.TokenEncryptionKey)
	if err != nil || len(key) != 32 {
		return fmt.Errorf("TOKEN_ENCRYPTION_KEY must be 64 hex characters")
	}

	if c.Sync.Interval.Duration <= 0 {
		return fmt.Errorf("SYNC_INTERVAL must be positive")
	}

	if c.Sync.BatchConcurrency < 1 {
		return fmt.Errorf("SYNC_BATCH_CONCURRENCY must be at least 1")
	}

	return nil
}
