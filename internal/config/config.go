package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultSecretKey is only meant for local development.
const DefaultSecretKey = "dev-secret-key-change-in-prod"

type Config struct {
	// HTTP Server
	Port            string        `toml:"port"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`

	// Database
	DataBackend  string `toml:"data_backend"`
	SQLiteDBPath string `toml:"sqlite_db_path"`

	// AMQP, disabled when AMQPURL is empty
	AMQPURL      string `toml:"amqp_url"`
	AMQPExchange string `toml:"amqp_exchange"`
	AMQPQueue    string `toml:"amqp_queue"`

	// Bank feed
	BankProvider  string `toml:"bank_provider"`
	BankAPIKey    string `toml:"bank_api_key"`
	BankAPISecret string `toml:"bank_api_secret"`
	BankMockSeed  int64  `toml:"bank_mock_seed"`
	SyncDaysBack  int    `toml:"sync_days_back"`

	// Users
	Currency             string  `toml:"currency"`
	DefaultMonthlyBudget float64 `toml:"default_monthly_budget"`
	SecretKey            string  `toml:"secret_key"`

	// Analytics
	HighSpendThreshold   float64       `toml:"high_spend_threshold"`
	MaterialityThreshold float64       `toml:"materiality_threshold"`
	SnapshotCacheSize    int           `toml:"snapshot_cache_size"`
	SnapshotCacheTTL     time.Duration `toml:"snapshot_cache_ttl"`

	LogLevel string `toml:"log_level"`
}

var (
	validBackends  = []string{"memory", "sqlite"}
	validProviders = []string{"mock", "plaid", "gocardless"}
	validLevels    = []string{"debug", "info", "warn", "error"}
)

// Defaults returns the configuration used when nothing else is set.
func Defaults() Config {
	return Config{
		Port:            "8080",
		ShutdownTimeout: 10 * time.Second,

		DataBackend:  "sqlite",
		SQLiteDBPath: "./data/finance_flow.db",

		AMQPExchange: "financeflow",
		AMQPQueue:    "transactions_imported",

		BankProvider: "mock",
		SyncDaysBack: 30,

		Currency:             "EUR",
		DefaultMonthlyBudget: 3000,
		SecretKey:            DefaultSecretKey,

		HighSpendThreshold:   3000,
		MaterialityThreshold: 500,
		SnapshotCacheSize:    256,
		SnapshotCacheTTL:     10 * time.Minute,

		LogLevel: "info",
	}
}

// Load builds the configuration from defaults, the optional TOML file named
// by FINANCEFLOW_CONFIG, and the environment, in increasing precedence.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("FINANCEFLOW_CONFIG"); path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("decode config file %s: %w", path, err)
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)

	cfg.DataBackend = getEnv("DATA_BACKEND", cfg.DataBackend)
	cfg.SQLiteDBPath = getEnv("SQLITE_DB_PATH", cfg.SQLiteDBPath)

	cfg.AMQPURL = getEnv("AMQP_URL", cfg.AMQPURL)
	cfg.AMQPExchange = getEnv("AMQP_EXCHANGE", cfg.AMQPExchange)
	cfg.AMQPQueue = getEnv("AMQP_QUEUE", cfg.AMQPQueue)

	cfg.BankProvider = strings.ToLower(getEnv("BANK_API_PROVIDER", cfg.BankProvider))
	cfg.BankAPIKey = getEnv("BANK_API_KEY", cfg.BankAPIKey)
	cfg.BankAPISecret = getEnv("BANK_API_SECRET", cfg.BankAPISecret)
	cfg.BankMockSeed = int64(getEnvInt("BANK_MOCK_SEED", int(cfg.BankMockSeed)))
	cfg.SyncDaysBack = getEnvInt("SYNC_DAYS_BACK", cfg.SyncDaysBack)

	cfg.Currency = strings.ToUpper(getEnv("CURRENCY", cfg.Currency))
	cfg.DefaultMonthlyBudget = getEnvFloat("DEFAULT_MONTHLY_BUDGET", cfg.DefaultMonthlyBudget)
	cfg.SecretKey = getEnv("SECRET_KEY", cfg.SecretKey)

	cfg.HighSpendThreshold = getEnvFloat("HIGH_SPEND_THRESHOLD", cfg.HighSpendThreshold)
	cfg.MaterialityThreshold = getEnvFloat("MATERIALITY_THRESHOLD", cfg.MaterialityThreshold)
	cfg.SnapshotCacheSize = getEnvInt("SNAPSHOT_CACHE_SIZE", cfg.SnapshotCacheSize)
	cfg.SnapshotCacheTTL = getEnvDuration("SNAPSHOT_CACHE_TTL", cfg.SnapshotCacheTTL)

	cfg.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", cfg.LogLevel))

	return &cfg, nil
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if !slices.Contains(validProviders, c.BankProvider) {
		errors = append(errors, fmt.Sprintf("invalid bank provider '%s': must be one of %v", c.BankProvider, validProviders))
	} else if c.BankProvider != "mock" && c.BankAPIKey == "" {
		errors = append(errors, fmt.Sprintf("BANK_API_KEY is required for bank provider '%s'", c.BankProvider))
	}
	if c.SyncDaysBack < 1 || c.SyncDaysBack > 365 {
		errors = append(errors, fmt.Sprintf("invalid sync days back %d: must be between 1 and 365", c.SyncDaysBack))
	}

	if len(c.Currency) != 3 {
		errors = append(errors, fmt.Sprintf("invalid currency '%s': must be a 3-letter code", c.Currency))
	}
	if c.DefaultMonthlyBudget < 0 {
		errors = append(errors, fmt.Sprintf("invalid default monthly budget %v: must not be negative", c.DefaultMonthlyBudget))
	}
	if c.SecretKey == "" {
		errors = append(errors, "secret key cannot be empty")
	}

	if c.HighSpendThreshold < 0 || c.MaterialityThreshold < 0 {
		errors = append(errors, "analytics thresholds must not be negative")
	}
	if c.SnapshotCacheSize < 0 {
		errors = append(errors, fmt.Sprintf("invalid snapshot cache size %d: must not be negative", c.SnapshotCacheSize))
	}
	if c.SnapshotCacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid snapshot cache ttl %v: must not be negative", c.SnapshotCacheTTL))
	}

	if !slices.Contains(validLevels, c.LogLevel) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of %v", c.LogLevel, validLevels))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// UsesDefaultSecret reports whether the development secret key is in use.
func (c *Config) UsesDefaultSecret() bool {
	return c.SecretKey == DefaultSecretKey
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
