// Package config loads runtime configuration from flags, environment
// variables, and an optional config file, and carries the per-chain
// presets (contract addresses, default block ranges).
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	Chain               string
	RPCURL              string
	FromBlock           uint64
	ToBlock             uint64
	SettlementChunkSize uint64
	StakingChunkSize    uint64
	Concurrency         int
	Cooldown            time.Duration
	MaxRetries          int
	RetryBackoff        time.Duration
	PGDSN               string
	PriceEndpoint       string
	PriceSymbol         string
	PriceDays           int
	LogLevel            string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BOOSTD")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("chain", "mainnet")
	v.SetDefault("settlement-chunk-size", uint64(1000))
	v.SetDefault("staking-chunk-size", uint64(10000))
	v.SetDefault("concurrency", 4)
	v.SetDefault("cooldown", 200*time.Millisecond)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("price-symbol", "ETH")
	v.SetDefault("price-days", 7)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		Chain:               v.GetString("chain"),
		RPCURL:              v.GetString("rpc"),
		FromBlock:           v.GetUint64("from"),
		ToBlock:             v.GetUint64("to"),
		SettlementChunkSize: v.GetUint64("settlement-chunk-size"),
		StakingChunkSize:    v.GetUint64("staking-chunk-size"),
		Concurrency:         v.GetInt("concurrency"),
		Cooldown:            v.GetDuration("cooldown"),
		MaxRetries:          v.GetInt("max-retries"),
		RetryBackoff:        v.GetDuration("retry-backoff"),
		PGDSN:               v.GetString("pg-dsn"),
		PriceEndpoint:       v.GetString("price-endpoint"),
		PriceSymbol:         v.GetString("price-symbol"),
		PriceDays:           v.GetInt("price-days"),
		LogLevel:            v.GetString("log-level"),
	}

	return cfg, nil
}

// ParseTimestamp parses a timestamp value (unix seconds or RFC3339).
func ParseTimestamp(input string) (uint64, error) {
	if strings.TrimSpace(input) == "" {
		return 0, nil
	}

	if isNumeric(input) {
		val, err := strconv.ParseUint(input, 10, 64)
		if err != nil {
			return 0, err
		}
		return val, nil
	}

	tm, err := time.Parse(time.RFC3339, input)
	if err != nil {
		return 0, err
	}
	return uint64(tm.Unix()), nil
}

func isNumeric(input string) bool {
	for _, r := range input {
		if r < '0' || r > '9' {
			return false
		}
	}
	return input != ""
}
