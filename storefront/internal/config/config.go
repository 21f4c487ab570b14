package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMongo  = "mongo"
)

type Config struct {
	APIURL        string        `envconfig:"API_URL" default:"http://localhost:8080"`
	SubmitTimeout time.Duration `envconfig:"SUBMIT_TIMEOUT" default:"15s"`

	CartBackend string        `envconfig:"CART_BACKEND" default:"sqlite"`
	CartSlot    string        `envconfig:"CART_SLOT" default:"cart"`
	CartDBPath  string        `envconfig:"CART_DB_PATH" default:"shopctl.db"`
	CartTTL     time.Duration `envconfig:"CART_TTL" default:"720h"`
	SessionID   string        `envconfig:"SESSION_ID" default:"default"`
	RedisAddr   string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	MongoURI    string        `envconfig:"MONGO_URI" default:"mongodb://localhost:27017"`
	MongoDBName string        `envconfig:"MONGO_DB_NAME" default:"storefront"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"warn"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	switch cfg.CartBackend {
	case BackendSQLite, BackendRedis, BackendMongo:
	default:
		return nil, fmt.Errorf("unknown CART_BACKEND %q", cfg.CartBackend)
	}
	if cfg.SubmitTimeout <= 0 {
		return nil, fmt.Errorf("SUBMIT_TIMEOUT must be positive, got %s", cfg.SubmitTimeout)
	}
	return &cfg, nil
}
