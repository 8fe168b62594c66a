package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "subvault"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App    AppConfig
	Redis  RedisConfig
	JWT    JWTConfig
	Vault  VaultConfig
	Worker WorkerConfig
	PubSub PubSubConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SUBVAULT_APP_ENV" required:"true"`
	Port         string `envconfig:"SUBVAULT_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"SUBVAULT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SUBVAULT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type RedisConfig struct {
	URL          string        `envconfig:"SUBVAULT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SUBVAULT_REDIS_ADDR"`
	Password     string        `envconfig:"SUBVAULT_REDIS_PASSWORD"`
	DB           int           `envconfig:"SUBVAULT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SUBVAULT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SUBVAULT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SUBVAULT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SUBVAULT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SUBVAULT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"SUBVAULT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"SUBVAULT_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"SUBVAULT_JWT_EXPIRATION_MINUTES" default:"60"`
}

type VaultConfig struct {
	// BatchMaxSize caps the number of ids accepted by one batch charge call.
	BatchMaxSize int `envconfig:"SUBVAULT_VAULT_BATCH_MAX_SIZE" default:"100"`
}

type WorkerConfig struct {
	CycleInterval time.Duration `envconfig:"SUBVAULT_WORKER_CYCLE_INTERVAL" default:"5m"`
	LockKey       string        `envconfig:"SUBVAULT_WORKER_LOCK_KEY" default:"subvault:worker:lock"`
	LockTTL       time.Duration `envconfig:"SUBVAULT_WORKER_LOCK_TTL" default:"10m"`
}

type PubSubConfig struct {
	ProjectID     string `envconfig:"SUBVAULT_PUBSUB_PROJECT_ID"`
	TransferTopic string `envconfig:"SUBVAULT_PUBSUB_TRANSFER_TOPIC" default:"vault-transfers"`
}
