package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Config holds the full pipeline configuration. It is built once per
// invocation and never mutated afterwards.
type Config struct {
	Debug     bool
	LogFormat string

	API       API
	Warehouse Warehouse
	Redis     Redis
	Ingest    Ingest

	// Warnings collected while resolving the configuration.
	Warnings []string `mapstructure:"-"`
}

// API configures the simtom streaming API client.
type API struct {
	BaseURL        string
	Dataset        string
	Timeout        time.Duration
	MaxRetries     int
	RetryInterval  time.Duration
	RateLimitDelay time.Duration
}

// Warehouse configures the SQL warehouse connection and table names.
type Warehouse struct {
	DSN               string
	Schema            string
	TransactionsTable string
	PredictionsTable  string
	// CachedTransactionsTable receives transactions drained from the ML
	// cache; schema-on-read, separate from the typed ingestion table.
	CachedTransactionsTable string
}

// Redis configures the ML prediction cache.
type Redis struct {
	URL     string
	EnvFile string
	TTL     time.Duration
}

// Ingest configures the historical ingestion run.
type Ingest struct {
	ProgressFile    string
	BatchDays       int
	BaseDailyVolume int
	Seed            int64
	FetchPolicy     string // "per_date" or "per_range"
	BatchPause      time.Duration
	// ParallelWorkers is accepted for CLI compatibility but the pipeline
	// runs single-threaded regardless of its value.
	ParallelWorkers int
}

var mu sync.Mutex

// Load reads configuration from defaults, an optional config file, and
// FLITPIPE_* environment variables.
func Load(opts ...LoaderOption) (*Config, error) {
	mu.Lock()
	defer mu.Unlock()

	loader := &loader{}
	for _, opt := range opts {
		opt(loader)
	}

	v := viper.New()
	v.SetEnvPrefix("flitpipe")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if loader.configFile != "" {
		v.SetConfigFile(loader.configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", loader.configFile, err)
		}
	} else {
		v.SetConfigName("flitpipe")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/flitpipe")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.Ingest.ParallelWorkers > 1 {
		cfg.Warnings = append(cfg.Warnings,
			"ingest.parallelWorkers > 1 has no effect; the pipeline runs single-threaded")
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logFormat", "text")

	v.SetDefault("api.baseURL", "https://simtom-production.up.railway.app")
	v.SetDefault("api.dataset", "bnpl")
	v.SetDefault("api.timeout", "30s")
	v.SetDefault("api.maxRetries", 3)
	v.SetDefault("api.retryInterval", "1s")
	v.SetDefault("api.rateLimitDelay", "100ms")

	v.SetDefault("warehouse.dsn", "postgres://localhost:5432/flit?sslmode=disable")
	v.SetDefault("warehouse.schema", "flit_bnpl_raw")
	v.SetDefault("warehouse.transactionsTable", "raw_bnpl_transactions")
	v.SetDefault("warehouse.predictionsTable", "raw_bnpl_prediction_logs")
	v.SetDefault("warehouse.cachedTransactionsTable", "raw_bnpl_txs_json")

	v.SetDefault("redis.url", "redis://localhost:6379")
	v.SetDefault("redis.envFile", "")
	v.SetDefault("redis.ttl", "168h") // 7 days, data drained daily

	v.SetDefault("ingest.progressFile", "bnpl_ingestion_progress.json")
	v.SetDefault("ingest.batchDays", 30)
	v.SetDefault("ingest.baseDailyVolume", 5000)
	v.SetDefault("ingest.seed", 42)
	v.SetDefault("ingest.fetchPolicy", "per_date")
	v.SetDefault("ingest.batchPause", "500ms")
	v.SetDefault("ingest.parallelWorkers", 1)
}

func (c *Config) validate() error {
	if c.Ingest.BatchDays < 1 {
		return fmt.Errorf("ingest.batchDays must be at least 1, got %d", c.Ingest.BatchDays)
	}
	switch c.Ingest.FetchPolicy {
	case "per_date", "per_range":
	default:
		return fmt.Errorf("ingest.fetchPolicy must be per_date or per_range, got %q", c.Ingest.FetchPolicy)
	}
	return nil
}

type loader struct {
	configFile string
}

// LoaderOption defines a functional option for configuring Load.
type LoaderOption func(*loader)

// WithConfigFile sets an explicit configuration file path.
func WithConfigFile(configFile string) LoaderOption {
	return func(l *loader) {
		l.configFile = configFile
	}
}
