// Package config loads process configuration from the environment, optionally
// seeded from a .env file.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"claimgate/pkg/platform/strings"
)

// Session store backends.
const (
	StoreMemory  = "memory"
	StoreRedis   = "redis"
	StoreLevelDB = "leveldb"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `env:"CLAIMGATE_ADDR" env-default:":8080"`
	ShutdownTimeout time.Duration `env:"CLAIMGATE_SHUTDOWN_TIMEOUT" env-default:"10s"`
	MaxUploadBytes  int64         `env:"CLAIMGATE_MAX_UPLOAD_BYTES" env-default:"67108864"`
}

// Portal points at the claim backend.
type Portal struct {
	BaseURL       string        `env:"PORTAL_BASE_URL" env-required:"true"`
	KeyPath       string        `env:"PORTAL_KEY_PATH" env-default:"/auth/pubkey"`
	UploadPath    string        `env:"PORTAL_UPLOAD_PATH" env-default:"/upload"`
	ProductPath   string        `env:"PORTAL_PRODUCT_PATH" env-default:"/product"`
	ContractsPath string        `env:"PORTAL_CONTRACTS_PATH" env-default:"/contracts"`
	ClaimPath     string        `env:"PORTAL_CLAIM_PATH" env-default:"/accident"`
	MetadataField string        `env:"PORTAL_METADATA_FIELD" env-default:"data"`
	Timeout       time.Duration `env:"PORTAL_TIMEOUT" env-default:"30s"`
	KeyTimeout    time.Duration `env:"PORTAL_KEY_TIMEOUT" env-default:"10s"`
}

// Session covers tokens and wizard state storage.
type Session struct {
	SigningKey    string        `env:"SESSION_SIGNING_KEY" env-required:"true"`
	Issuer        string        `env:"SESSION_ISSUER" env-default:"claimgate"`
	Audience      string        `env:"SESSION_AUDIENCE" env-default:"claimgate-wizard"`
	TTL           time.Duration `env:"SESSION_TTL" env-default:"30m"`
	Store         string        `env:"SESSION_STORE" env-default:"memory"`
	LevelDBPath   string        `env:"SESSION_LEVELDB_PATH" env-default:"data/sessions"`
	SweepInterval time.Duration `env:"SESSION_SWEEP_INTERVAL" env-default:"5m"`
}

// RedisConfig configures the shared Redis client. An empty URL disables Redis.
type RedisConfig struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" env-default:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" env-default:"2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" env-default:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" env-default:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" env-default:"3s"`
}

// Postgres configures the submission ledger. An empty DSN keeps the ledger in memory.
type Postgres struct {
	DSN          string `env:"DATABASE_URL"`
	MaxOpenConns int    `env:"DATABASE_MAX_OPEN_CONNS" env-default:"10"`
}

// Kafka configures the audit sink. No brokers keeps audit events in memory.
type Kafka struct {
	Brokers     []string `env:"KAFKA_BROKERS" env-separator:","`
	Topic       string   `env:"KAFKA_AUDIT_TOPIC" env-default:"claimgate.audit"`
	Partitions  int32    `env:"KAFKA_AUDIT_PARTITIONS" env-default:"3"`
	Replication int16    `env:"KAFKA_AUDIT_REPLICATION" env-default:"1"`
}

type Upload struct {
	Categories  []string      `env:"UPLOAD_CATEGORIES" env-separator:"," env-default:"diagnosis,receipt,detail,etc"`
	FileTimeout time.Duration `env:"UPLOAD_FILE_TIMEOUT" env-default:"60s"`
	MaxFileSize int64         `env:"UPLOAD_MAX_FILE_SIZE" env-default:"20971520"`
}

type Claim struct {
	SuccessCode string `env:"CLAIM_SUCCESS_CODE" env-default:"0000"`
}

type Product struct {
	CacheTTL     time.Duration `env:"PRODUCT_CACHE_TTL" env-default:"5m"`
	FetchTimeout time.Duration `env:"PRODUCT_FETCH_TIMEOUT" env-default:"10s"`
}

type Log struct {
	Level  string `env:"LOG_LEVEL" env-default:"info"`
	Format string `env:"LOG_FORMAT" env-default:"json"`
}

type Config struct {
	Server   Server
	Portal   Portal
	Session  Session
	Redis    RedisConfig
	Postgres Postgres
	Kafka    Kafka
	Upload   Upload
	Claim    Claim
	Product  Product
	Log      Log
}

// Load reads the environment into a Config. When envFile is set it is loaded
// first; variables already in the environment win.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// normalize trims list settings and drops blanks and repeats so
// "receipt, receipt,," configures one category.
func (c *Config) normalize() {
	c.Upload.Categories = strings.DedupeAndTrim(c.Upload.Categories)
	c.Kafka.Brokers = strings.DedupeAndTrim(c.Kafka.Brokers)
}

func (c *Config) validate() error {
	switch c.Session.Store {
	case StoreMemory, StoreLevelDB:
	case StoreRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("SESSION_STORE=redis needs REDIS_URL")
		}
	default:
		return fmt.Errorf("SESSION_STORE must be memory, redis or leveldb, got %q", c.Session.Store)
	}
	if len(c.Session.SigningKey) < 32 {
		return fmt.Errorf("SESSION_SIGNING_KEY must be at least 32 bytes")
	}
	if len(c.Upload.Categories) == 0 {
		return fmt.Errorf("UPLOAD_CATEGORIES must not be empty")
	}
	return nil
}

// MustLoad reads the optional -config flag and panics on any error.
func MustLoad() *Config {
	var path string
	flag.StringVar(&path, "config", "", "path to .env file")
	flag.Parse()

	cfg, err := Load(path)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}
