package config

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/paystream-hq/paystreamer/pkg/logger"
	"github.com/spf13/viper"
)

const (
	// DefaultHTTPPort defines the default port for the API server
	DefaultHTTPPort = "8080"

	// DefaultPollingInterval defines the default keeper polling interval in seconds
	DefaultPollingInterval = 5

	// DefaultWorkerCount defines the default number of keeper workers
	DefaultWorkerCount = 5

	// DefaultMaxRetries defines the maximum number of retries for failed executions
	DefaultMaxRetries = 3

	// DefaultCircuitBreakerEnabled defines whether the circuit breaker is enabled
	DefaultCircuitBreakerEnabled = true

	// DefaultCircuitBreakerThreshold defines the number of failures before the circuit breaker trips
	DefaultCircuitBreakerThreshold = 5

	// DefaultCircuitBreakerWindow defines the time window for the circuit breaker in seconds
	DefaultCircuitBreakerWindow = 5

	// DefaultCircuitBreakerReset defines the reset timeout for the circuit breaker in seconds
	DefaultCircuitBreakerReset = 15

	// DefaultLogLevel defines the default log level
	DefaultLogLevel = "info"

	// DefaultLogColoring defines whether log output is colored
	DefaultLogColoring = true

	// DefaultMaxRecipients defines the maximum number of recipients per intent
	DefaultMaxRecipients = 10

	// DefaultMinInterval defines the minimum execution interval
	DefaultMinInterval = 30 * time.Second

	// DefaultMaxDuration defines the maximum schedule duration
	DefaultMaxDuration = 365 * 24 * time.Hour

	// DefaultIndexerDBPath defines the default path of the indexer database
	DefaultIndexerDBPath = "paystreamer.db"

	// DefaultWalletMode defines the default wallet backend
	DefaultWalletMode = WalletModeSim
)

// GetEnvHTTPPort returns the API server port from environment variables.
func GetEnvHTTPPort(v *viper.Viper) (string, error) {
	port := v.GetString("HTTP_PORT")
	if _, err := strconv.Atoi(port); err != nil {
		return "", fmt.Errorf("invalid HTTP_PORT value: %s, must be a valid integer", port)
	}
	return port, nil
}

// GetEnvPollingInterval returns the polling interval from environment
// variables. A bare integer is taken as seconds.
func GetEnvPollingInterval(v *viper.Viper) (time.Duration, error) {
	raw := v.GetString("POLLING_INTERVAL")
	if seconds, err := strconv.Atoi(raw); err == nil {
		if seconds <= 0 {
			return 0, fmt.Errorf("POLLING_INTERVAL must be greater than 0")
		}
		return time.Duration(seconds) * time.Second, nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid POLLING_INTERVAL value: %s, must be an integer or duration", raw)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("POLLING_INTERVAL must be greater than 0")
	}
	return parsed, nil
}

// GetEnvWorkerCount returns the number of keeper workers from environment
// variables.
func GetEnvWorkerCount(v *viper.Viper) (int, error) {
	count := v.GetInt("WORKER_COUNT")
	if count <= 0 {
		return 0, fmt.Errorf("WORKER_COUNT must be greater than 0")
	}
	return count, nil
}

// GetEnvMaxRetries returns the maximum number of retries from environment
// variables.
func GetEnvMaxRetries(v *viper.Viper) (int, error) {
	maxRetries := v.GetInt("MAX_RETRIES")
	if maxRetries < 0 {
		return 0, fmt.Errorf("MAX_RETRIES must be greater than or equal to 0")
	}
	return maxRetries, nil
}

// GetEnvCircuitBreakerThreshold returns the circuit breaker threshold from
// environment variables.
func GetEnvCircuitBreakerThreshold(v *viper.Viper) (int, error) {
	threshold := v.GetInt("CIRCUIT_BREAKER_THRESHOLD")
	if threshold <= 0 {
		return 0, fmt.Errorf("CIRCUIT_BREAKER_THRESHOLD must be greater than 0")
	}
	return threshold, nil
}

// GetEnvLogLevel returns the log level from environment variables.
func GetEnvLogLevel(v *viper.Viper) (logger.Level, error) {
	level, err := logger.ParseLevel(v.GetString("LOG_LEVEL"))
	if err != nil {
		return 0, fmt.Errorf("invalid LOG_LEVEL value: %v", err)
	}
	return level, nil
}

// GetEnvScheduleConfig returns the schedule bounds from environment
// variables.
func GetEnvScheduleConfig(v *viper.Viper) (ScheduleConfig, error) {
	maxRecipients := v.GetInt("MAX_RECIPIENTS")
	if maxRecipients <= 0 {
		return ScheduleConfig{}, fmt.Errorf("MAX_RECIPIENTS must be greater than 0")
	}
	minInterval := v.GetDuration("MIN_INTERVAL")
	if minInterval <= 0 {
		return ScheduleConfig{}, fmt.Errorf("invalid MIN_INTERVAL value: must be a positive duration")
	}
	maxDuration := v.GetDuration("MAX_DURATION")
	if maxDuration <= 0 {
		return ScheduleConfig{}, fmt.Errorf("invalid MAX_DURATION value: must be a positive duration")
	}
	return ScheduleConfig{
		MaxRecipients: maxRecipients,
		MinInterval:   minInterval,
		MaxDuration:   maxDuration,
	}, nil
}

// GetEnvWalletMode returns the wallet backend mode from environment
// variables.
func GetEnvWalletMode(v *viper.Viper) (WalletMode, error) {
	mode := WalletMode(v.GetString("WALLET_MODE"))
	if mode != WalletModeSim && mode != WalletModeContract {
		return "", fmt.Errorf("invalid WALLET_MODE value: %s, must be 'sim' or 'contract'", mode)
	}
	return mode, nil
}

// GenesisFunding is one initial balance for a simulated wallet.
type GenesisFunding struct {
	Wallet common.Address
	Asset  common.Address
	Amount *big.Int
}

// GetEnvSimGenesis parses SIM_GENESIS, a comma-separated list of
// wallet:asset:amount entries used to fund simulated wallets at startup.
func GetEnvSimGenesis(v *viper.Viper) ([]GenesisFunding, error) {
	raw := strings.TrimSpace(v.GetString("SIM_GENESIS"))
	if raw == "" {
		return nil, nil
	}

	var fundings []GenesisFunding
	for _, entry := range strings.Split(raw, ",") {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid SIM_GENESIS entry %q, must be wallet:asset:amount", entry)
		}
		if !common.IsHexAddress(parts[0]) {
			return nil, fmt.Errorf("invalid SIM_GENESIS wallet address: %s", parts[0])
		}
		if !common.IsHexAddress(parts[1]) {
			return nil, fmt.Errorf("invalid SIM_GENESIS asset address: %s", parts[1])
		}
		amount, ok := new(big.Int).SetString(parts[2], 10)
		if !ok || amount.Sign() <= 0 {
			return nil, fmt.Errorf("invalid SIM_GENESIS amount: %s", parts[2])
		}
		fundings = append(fundings, GenesisFunding{
			Wallet: common.HexToAddress(parts[0]),
			Asset:  common.HexToAddress(parts[1]),
			Amount: amount,
		})
	}
	return fundings, nil
}
