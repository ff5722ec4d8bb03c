package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/paystream-hq/paystreamer/pkg/logger"
	"github.com/spf13/viper"
)

// WalletMode selects the wallet backend.
type WalletMode string

const (
	// WalletModeSim runs against in-memory simulated wallets, for local
	// development and tests.
	WalletModeSim WalletMode = "sim"
	// WalletModeContract runs against on-chain wallet contracts over RPC.
	WalletModeContract WalletMode = "contract"
)

// Config holds the configuration for the scheduler service.
type Config struct {
	HTTPPort        string
	PollingInterval time.Duration
	WorkerCount     int
	MaxRetries      int
	CircuitBreaker  CircuitBreakerConfig
	LoggerConfig    LoggerConfig
	Schedule        ScheduleConfig
	IndexerDBPath   string
	WalletMode      WalletMode
	WalletRPCURL    string
	PrivateKey      string
	SimGenesis      []GenesisFunding
	MetricsAPIKey   string
	OwnerAPIKey     string
}

// CircuitBreakerConfig holds circuit breaker configuration.
type CircuitBreakerConfig struct {
	Enabled        bool
	Threshold      int
	WindowDuration time.Duration
	ResetTimeout   time.Duration
}

// LoggerConfig holds the configuration for logging.
type LoggerConfig struct {
	Level    logger.Level
	Coloring bool
}

// ScheduleConfig holds the bounds applied to submitted schedules.
type ScheduleConfig struct {
	MaxRecipients int
	MinInterval   time.Duration
	MaxDuration   time.Duration
}

// LoadConfig loads the configuration from environment variables. A .env file
// in the working directory is read first if present.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	pollingInterval, err := GetEnvPollingInterval(v)
	if err != nil {
		return nil, err
	}

	workerCount, err := GetEnvWorkerCount(v)
	if err != nil {
		return nil, err
	}

	httpPort, err := GetEnvHTTPPort(v)
	if err != nil {
		return nil, err
	}

	maxRetries, err := GetEnvMaxRetries(v)
	if err != nil {
		return nil, err
	}

	cbThreshold, err := GetEnvCircuitBreakerThreshold(v)
	if err != nil {
		return nil, err
	}

	logLevel, err := GetEnvLogLevel(v)
	if err != nil {
		return nil, err
	}

	schedule, err := GetEnvScheduleConfig(v)
	if err != nil {
		return nil, err
	}

	walletMode, err := GetEnvWalletMode(v)
	if err != nil {
		return nil, err
	}

	simGenesis, err := GetEnvSimGenesis(v)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPPort:        httpPort,
		PollingInterval: pollingInterval,
		WorkerCount:     workerCount,
		MaxRetries:      maxRetries,
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:        v.GetBool("CIRCUIT_BREAKER_ENABLED"),
			Threshold:      cbThreshold,
			WindowDuration: v.GetDuration("CIRCUIT_BREAKER_WINDOW"),
			ResetTimeout:   v.GetDuration("CIRCUIT_BREAKER_RESET"),
		},
		LoggerConfig: LoggerConfig{
			Level:    logLevel,
			Coloring: v.GetBool("LOG_COLORING"),
		},
		Schedule:      schedule,
		IndexerDBPath: v.GetString("INDEXER_DB_PATH"),
		WalletMode:    walletMode,
		WalletRPCURL:  v.GetString("WALLET_RPC_URL"),
		PrivateKey:    v.GetString("PRIVATE_KEY"),
		SimGenesis:    simGenesis,
		MetricsAPIKey: v.GetString("METRICS_API_KEY"),
		OwnerAPIKey:   v.GetString("OWNER_API_KEY"),
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_PORT", DefaultHTTPPort)
	v.SetDefault("POLLING_INTERVAL", DefaultPollingInterval)
	v.SetDefault("WORKER_COUNT", DefaultWorkerCount)
	v.SetDefault("MAX_RETRIES", DefaultMaxRetries)
	v.SetDefault("CIRCUIT_BREAKER_ENABLED", DefaultCircuitBreakerEnabled)
	v.SetDefault("CIRCUIT_BREAKER_THRESHOLD", DefaultCircuitBreakerThreshold)
	v.SetDefault("CIRCUIT_BREAKER_WINDOW", DefaultCircuitBreakerWindow*time.Second)
	v.SetDefault("CIRCUIT_BREAKER_RESET", DefaultCircuitBreakerReset*time.Second)
	v.SetDefault("LOG_LEVEL", DefaultLogLevel)
	v.SetDefault("LOG_COLORING", DefaultLogColoring)
	v.SetDefault("MAX_RECIPIENTS", DefaultMaxRecipients)
	v.SetDefault("MIN_INTERVAL", DefaultMinInterval)
	v.SetDefault("MAX_DURATION", DefaultMaxDuration)
	v.SetDefault("INDEXER_DB_PATH", DefaultIndexerDBPath)
	v.SetDefault("WALLET_MODE", string(DefaultWalletMode))
}

// validateConfig validates the configuration.
func validateConfig(cfg *Config) error {
	if cfg.WalletMode == WalletModeContract {
		if cfg.WalletRPCURL == "" {
			return fmt.Errorf("WALLET_RPC_URL environment variable is required in contract mode")
		}
		if cfg.PrivateKey == "" {
			return fmt.Errorf("PRIVATE_KEY environment variable is required in contract mode")
		}
	}
	if cfg.Schedule.MinInterval <= 0 {
		return fmt.Errorf("MIN_INTERVAL must be greater than 0")
	}
	if cfg.Schedule.MaxDuration < cfg.Schedule.MinInterval {
		return fmt.Errorf("MAX_DURATION must cover at least one interval")
	}
	return nil
}
