package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig captures all tunable parameters for the HTTP API process.
// Values come from the environment or an optional .env file, with defaults
// that let the binary run against a local development node.
type ServerConfig struct {
	HTTPAddr        string        `mapstructure:"HTTP_ADDR"`
	ReadTimeout     time.Duration `mapstructure:"HTTP_READ_TIMEOUT"`
	WriteTimeout    time.Duration `mapstructure:"HTTP_WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `mapstructure:"HTTP_IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `mapstructure:"HTTP_SHUTDOWN_TIMEOUT"`
	CORSOrigins     []string      `mapstructure:"CORS_ORIGINS"`

	LedgerRPCURL          string        `mapstructure:"LEDGER_RPC_URL"`
	LedgerArtifactPath    string        `mapstructure:"LEDGER_ARTIFACT_PATH"`
	LedgerContractAddress string        `mapstructure:"LEDGER_CONTRACT_ADDRESS"`
	LedgerConnectAttempts int           `mapstructure:"LEDGER_CONNECT_ATTEMPTS"`
	LedgerConnectBackoff  time.Duration `mapstructure:"LEDGER_CONNECT_BACKOFF"`
	LedgerTxGas           uint64        `mapstructure:"LEDGER_TX_GAS"`
	LedgerRideGas         uint64        `mapstructure:"LEDGER_RIDE_GAS"`
	LedgerPaymentGas      uint64        `mapstructure:"LEDGER_PAYMENT_GAS"`
	LedgerReceiptTimeout  time.Duration `mapstructure:"LEDGER_RECEIPT_TIMEOUT"`

	PaymentStore         string `mapstructure:"PAYMENT_STORE"`
	PaymentLocalFallback bool   `mapstructure:"PAYMENT_LOCAL_FALLBACK"`
	PassengerPolicy      string `mapstructure:"PASSENGER_POLICY"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	PGDSN         string `mapstructure:"PG_DSN"`
	RunMigrations bool   `mapstructure:"MIGRATE"`

	KafkaBrokers []string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic   string   `mapstructure:"KAFKA_TOPIC"`

	WatchInterval         time.Duration `mapstructure:"WATCH_INTERVAL"`
	FallbackAuditSchedule string        `mapstructure:"FALLBACK_AUDIT_SCHEDULE"`
	AuditS3Bucket         string        `mapstructure:"AUDIT_S3_BUCKET"`
	AuditS3Region         string        `mapstructure:"AUDIT_S3_REGION"`
	AuditS3Endpoint       string        `mapstructure:"AUDIT_S3_ENDPOINT"`
	ActivityMaxEntries    int           `mapstructure:"ACTIVITY_MAX_ENTRIES"`

	LogLevel string `mapstructure:"LOG_LEVEL"`
}

// ConsumerConfig configures the activity projector.
type ConsumerConfig struct {
	KafkaBrokers       []string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic         string   `mapstructure:"KAFKA_TOPIC"`
	KafkaGroup         string   `mapstructure:"KAFKA_GROUP"`
	RedisAddr          string   `mapstructure:"REDIS_ADDR"`
	RedisPassword      string   `mapstructure:"REDIS_PASSWORD"`
	ActivityMaxEntries int      `mapstructure:"ACTIVITY_MAX_ENTRIES"`
	MetricsAddr        string   `mapstructure:"METRICS_ADDR"`
	LogLevel           string   `mapstructure:"LOG_LEVEL"`
}

var serverDefaults = map[string]any{
	"HTTP_ADDR":               ":8080",
	"HTTP_READ_TIMEOUT":       "5s",
	"HTTP_WRITE_TIMEOUT":      "15s",
	"HTTP_IDLE_TIMEOUT":       "120s",
	"HTTP_SHUTDOWN_TIMEOUT":   "15s",
	"CORS_ORIGINS":            "http://localhost:3000,http://localhost:3001",
	"LEDGER_RPC_URL":          "http://localhost:8545",
	"LEDGER_ARTIFACT_PATH":    "contracts/ChainRideContract.json",
	"LEDGER_CONNECT_ATTEMPTS": 5,
	"LEDGER_CONNECT_BACKOFF":  "5s",
	"LEDGER_TX_GAS":           3000000,
	"LEDGER_RIDE_GAS":         5000000,
	"LEDGER_PAYMENT_GAS":      500000,
	"LEDGER_RECEIPT_TIMEOUT":  "30s",
	"PAYMENT_STORE":           "memory",
	"PAYMENT_LOCAL_FALLBACK":  true,
	"PASSENGER_POLICY":        "lenient",
	"MIGRATE":                 false,
	"KAFKA_TOPIC":             "ride-events",
	"WATCH_INTERVAL":          "3s",
	"FALLBACK_AUDIT_SCHEDULE": "@every 5m",
	"AUDIT_S3_REGION":         "us-east-1",
	"ACTIVITY_MAX_ENTRIES":    100,
	"LOG_LEVEL":               "info",
}

var serverEnv = []string{
	"LEDGER_CONTRACT_ADDRESS", "REDIS_ADDR", "REDIS_PASSWORD", "PG_DSN", "KAFKA_BROKERS",
	"AUDIT_S3_BUCKET", "AUDIT_S3_ENDPOINT",
}

var consumerDefaults = map[string]any{
	"KAFKA_TOPIC":          "ride-events",
	"KAFKA_GROUP":          "chainride-activity",
	"ACTIVITY_MAX_ENTRIES": 100,
	"METRICS_ADDR":         ":2112",
	"LOG_LEVEL":            "info",
}

var consumerEnv = []string{"KAFKA_BROKERS", "REDIS_ADDR", "REDIS_PASSWORD"}

// LoadServerConfig reads the API configuration and reports every invalid
// value at once.
func LoadServerConfig() (ServerConfig, error) {
	var cfg ServerConfig
	if err := load(&cfg, serverDefaults, serverEnv); err != nil {
		return cfg, err
	}
	cfg.CORSOrigins = splitAndTrim(cfg.CORSOrigins)
	cfg.KafkaBrokers = splitAndTrim(cfg.KafkaBrokers)
	cfg.PaymentStore = strings.ToLower(strings.TrimSpace(cfg.PaymentStore))
	cfg.PassengerPolicy = strings.ToLower(strings.TrimSpace(cfg.PassengerPolicy))
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	var errs []error
	switch cfg.PaymentStore {
	case "memory":
	case "redis":
		if cfg.RedisAddr == "" {
			errs = append(errs, fmt.Errorf("REDIS_ADDR is required when PAYMENT_STORE=redis"))
		}
	case "postgres":
		if cfg.PGDSN == "" {
			errs = append(errs, fmt.Errorf("PG_DSN is required when PAYMENT_STORE=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("PAYMENT_STORE must be memory, redis or postgres, got %q", cfg.PaymentStore))
	}
	if cfg.PassengerPolicy != "lenient" && cfg.PassengerPolicy != "strict" {
		errs = append(errs, fmt.Errorf("PASSENGER_POLICY must be lenient or strict, got %q", cfg.PassengerPolicy))
	}
	if cfg.LedgerConnectAttempts <= 0 {
		errs = append(errs, fmt.Errorf("LEDGER_CONNECT_ATTEMPTS must be > 0"))
	}
	if cfg.WatchInterval <= 0 {
		errs = append(errs, fmt.Errorf("WATCH_INTERVAL must be > 0"))
	}
	if cfg.ActivityMaxEntries <= 0 {
		errs = append(errs, fmt.Errorf("ACTIVITY_MAX_ENTRIES must be > 0"))
	}
	return cfg, errors.Join(errs...)
}

func LoadConsumerConfig() (ConsumerConfig, error) {
	var cfg ConsumerConfig
	if err := load(&cfg, consumerDefaults, consumerEnv); err != nil {
		return cfg, err
	}
	cfg.KafkaBrokers = splitAndTrim(cfg.KafkaBrokers)
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	var errs []error
	if len(cfg.KafkaBrokers) == 0 {
		errs = append(errs, fmt.Errorf("KAFKA_BROKERS is required"))
	}
	if cfg.RedisAddr == "" {
		errs = append(errs, fmt.Errorf("REDIS_ADDR is required"))
	}
	if cfg.ActivityMaxEntries <= 0 {
		errs = append(errs, fmt.Errorf("ACTIVITY_MAX_ENTRIES must be > 0"))
	}
	return cfg, errors.Join(errs...)
}

func load(out any, defaults map[string]any, env []string) error {
	v := viper.New()
	v.AddConfigPath(".")
	v.SetConfigName(".env")
	v.SetConfigType("env")
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.AutomaticEnv()
	for _, k := range env {
		_ = v.BindEnv(k)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read .env: %w", err)
		}
	}
	if err := v.Unmarshal(out); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

// splitAndTrim flattens comma separated entries, which viper leaves intact
// when a list comes from a single env var.
func splitAndTrim(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		for _, r := range strings.Split(v, ",") {
			r = strings.TrimSpace(r)
			if r == "" {
				continue
			}
			out = append(out, r)
		}
	}
	return out
}
