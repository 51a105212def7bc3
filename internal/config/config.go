package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	ExchangeAPI ExchangeAPIConfig `yaml:"exchange_api"`
	Acquirer    AcquirerConfig    `yaml:"acquirer"`
	Store       StoreConfig       `yaml:"store"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Log         LogConfig         `yaml:"log"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" env:"SERVER_PORT" env-default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT" env-default:"5s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT" env-default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"SERVER_IDLE_TIMEOUT" env-default:"120s"`
	InspectInterval time.Duration `yaml:"inspect_interval" env:"INSPECT_INTERVAL" env-default:"5s"`
	FetchOnStartup  bool          `yaml:"fetch_on_startup" env:"FETCH_ON_STARTUP" env-default:"true"`
}

type ExchangeAPIConfig struct {
	BaseURL string `yaml:"base_url" env:"EXCHANGE_API_BASE_URL" env-default:"https://v6.exchangerate-api.com"`
	APIKey  string `yaml:"api_key" env:"EXCHANGE_API_KEY"`
}

type AcquirerConfig struct {
	MaxPerHour   int           `yaml:"max_per_hour" env:"ACQUIRER_MAX_PER_HOUR" env-default:"100"`
	QuotaWindow  time.Duration `yaml:"quota_window" env:"ACQUIRER_QUOTA_WINDOW" env-default:"1h"`
	CacheTTL     time.Duration `yaml:"cache_ttl" env:"CACHE_TTL" env-default:"1h"`
	Timeout      time.Duration `yaml:"timeout" env:"EXCHANGE_API_TIMEOUT" env-default:"8s"`
	Baseline     float64       `yaml:"baseline" env:"ACQUIRER_BASELINE" env-default:"83.5"`
	SingleFlight bool          `yaml:"single_flight" env:"ACQUIRER_SINGLE_FLIGHT" env-default:"true"`
}

type StoreConfig struct {
	Backend       string `yaml:"backend" env:"STORE_BACKEND" env-default:"file"`
	Dir           string `yaml:"dir" env:"STORE_DIR" env-default:".savings-rate"`
	RedisAddr     string `yaml:"redis_addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	RedisPassword string `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" env:"REDIS_DB" env-default:"0"`
	RedisTLS      bool   `yaml:"redis_tls" env:"REDIS_TLS" env-default:"false"`
	RedisPrefix   string `yaml:"redis_prefix" env:"REDIS_PREFIX" env-default:"savings-rate:"`
	PostgresDSN   string `yaml:"postgres_dsn" env:"POSTGRES_DSN"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS" env-separator:","`
	Topic   string   `yaml:"topic" env:"KAFKA_TOPIC" env-default:"exchange-rate-samples"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}

const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// LoadConfig reads CONFIG_PATH (YAML) when set, otherwise the environment
// alone. Environment variables override file values.
func LoadConfig() (*Config, error) {
	var cfg Config

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendFile, BackendRedis:
	case BackendPostgres:
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	if c.Acquirer.MaxPerHour < 0 {
		return fmt.Errorf("quota must not be negative, got %d", c.Acquirer.MaxPerHour)
	}
	if c.Acquirer.QuotaWindow <= 0 || c.Acquirer.CacheTTL <= 0 || c.Acquirer.Timeout <= 0 {
		return fmt.Errorf("quota window, cache ttl and timeout must be positive")
	}
	if c.Server.InspectInterval <= 0 {
		return fmt.Errorf("inspect interval must be positive, got %v", c.Server.InspectInterval)
	}
	if c.Acquirer.Baseline <= 1 {
		return fmt.Errorf("baseline must be greater than 1, got %v", c.Acquirer.Baseline)
	}
	return nil
}
