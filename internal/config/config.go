// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type APIConfig struct {
	Port           int           `yaml:"port"`
	JWTSecret      string        `yaml:"jwt_secret"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// RetryConfig describes how a declined recurring charge is retried.
// BackoffDays[i] is the delay after the (i+1)-th consecutive failure; the last
// entry repeats.
type RetryConfig struct {
	MaxRetries  int   `yaml:"max_retries"`
	BackoffDays []int `yaml:"backoff_days"`
}

type BillingConfig struct {
	Interval      time.Duration `yaml:"interval"`
	BatchSize     int           `yaml:"batch_size"`
	Concurrency   int           `yaml:"concurrency"`
	HostRateLimit int           `yaml:"host_rate_limit"` // charges per host per minute, 0 = unlimited
	LockTTL       time.Duration `yaml:"lock_ttl"`

	Retry            RetryConfig            `yaml:"retry"`
	RetryByProcessor map[string]RetryConfig `yaml:"retry_by_processor"`
}

type RefundConfig struct {
	// Hosts whose processor account was connected before this date get their
	// processor fee refunded when the processor does not say otherwise.
	FeeRefundCutoff string    `yaml:"fee_refund_cutoff"`
	Cutoff          time.Time `yaml:"-"`
}

type LedgerConfig struct {
	SeparateHostFee   bool  `yaml:"separate_host_fee"`
	PlatformAccountID int64 `yaml:"platform_account_id"`
	// Account ids allowed to act as platform operators.
	OperatorIDs []int64 `yaml:"operator_ids"`
}

type FxConfig struct {
	// "USD/EUR": "0.92" means 1 USD = 0.92 EUR.
	Rates map[string]string `yaml:"rates"`
}

type TelegramConfig struct {
	Token   string  `yaml:"token"`
	ChatIDs []int64 `yaml:"chat_ids"`
	Lang    string  `yaml:"lang"` // message catalog, en|fa
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type NotifyConfig struct {
	Workers  int            `yaml:"workers"`
	Telegram TelegramConfig `yaml:"telegram"`
	Kafka    KafkaConfig    `yaml:"kafka"`
}

type SecurityConfig struct {
	// TokenKey is a base64 AES key (16, 24 or 32 bytes) used to seal stored
	// payment method tokens. Empty stores them in clear.
	TokenKey string `yaml:"token_key"`
}

// ProcessorConfig selects the payment processor. Name "noop" uses the
// in-process processor; any other name is a REST processor at BaseURL.
type ProcessorConfig struct {
	Name       string        `yaml:"name"`
	BaseURL    string        `yaml:"base_url"`
	APIKey     string        `yaml:"api_key"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	FeePercent int64         `yaml:"fee_percent"` // noop only
}

type Config struct {
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	API       APIConfig       `yaml:"api"`
	Billing   BillingConfig   `yaml:"billing"`
	Refund    RefundConfig    `yaml:"refund"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Fx        FxConfig        `yaml:"fx"`
	Notify    NotifyConfig    `yaml:"notify"`
	Processor ProcessorConfig `yaml:"processor"`
	Security  SecurityConfig  `yaml:"security"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path, applies an optional .env file and
// environment overrides, fills defaults and validates the result.
func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// .env is optional; a missing file is not an error.
	_ = godotenv.Load()
	applyEnv(&cfg)

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if !strings.EqualFold(cfg.Processor.Name, "noop") && cfg.Processor.BaseURL == "" {
		return nil, fmt.Errorf("processor.base_url is required for processor %q", cfg.Processor.Name)
	}
	if cfg.API.JWTSecret == "" && !dev {
		return nil, errors.New("api.jwt_secret is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("API_JWT_SECRET"); v != "" {
		cfg.API.JWTSecret = v
	}
	if v := os.Getenv("PROCESSOR_API_KEY"); v != "" {
		cfg.Processor.APIKey = v
	}
	if v := os.Getenv("TOKEN_ENCRYPTION_KEY"); v != "" {
		cfg.Security.TokenKey = v
	}
	if v := os.Getenv("TELEGRAM_TOKEN"); v != "" {
		cfg.Notify.Telegram.Token = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Notify.Kafka.Brokers = strings.Split(v, ",")
	}
}

func (cfg *Config) applyDefaults() error {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)

	if cfg.API.Port == 0 {
		cfg.API.Port = 8080
	}
	if cfg.API.RequestTimeout <= 0 {
		cfg.API.RequestTimeout = 30 * time.Second
	}

	if cfg.Billing.Interval <= 0 {
		cfg.Billing.Interval = time.Hour
	}
	if cfg.Billing.BatchSize <= 0 {
		cfg.Billing.BatchSize = 100
	}
	if cfg.Billing.Concurrency <= 0 {
		cfg.Billing.Concurrency = 4
	}
	if cfg.Billing.LockTTL <= 0 {
		cfg.Billing.LockTTL = 30 * time.Minute
	}
	cfg.Billing.Retry = normalizeRetry(cfg.Billing.Retry)
	for k, v := range cfg.Billing.RetryByProcessor {
		cfg.Billing.RetryByProcessor[k] = normalizeRetry(v)
	}

	if cfg.Refund.FeeRefundCutoff == "" {
		cfg.Refund.FeeRefundCutoff = "2017-09-01"
	}
	cutoff, err := time.Parse("2006-01-02", cfg.Refund.FeeRefundCutoff)
	if err != nil {
		return fmt.Errorf("refund.fee_refund_cutoff: %w", err)
	}
	cfg.Refund.Cutoff = cutoff

	if cfg.Notify.Workers <= 0 {
		cfg.Notify.Workers = 2
	}
	if cfg.Processor.Name == "" {
		cfg.Processor.Name = "noop"
	}
	if cfg.Processor.Timeout <= 0 {
		cfg.Processor.Timeout = 15 * time.Second
	}
	if cfg.Processor.MaxRetries < 0 {
		cfg.Processor.MaxRetries = 0
	}
	return nil
}

func normalizeRetry(r RetryConfig) RetryConfig {
	if r.MaxRetries <= 0 {
		r.MaxRetries = 3
	}
	if len(r.BackoffDays) == 0 {
		r.BackoffDays = []int{2, 5, 7}
	}
	return r
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
