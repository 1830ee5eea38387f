package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds console settings loaded from flags, env, or config file.
type Config struct {
	ChainID      uint64
	FeeAdmin     string
	EventJournal string
	LogFile      string
	LogLevel     string
}

// LoadConfig merges config file, environment variables, and flags.
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AMM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("chain-id", uint64(1))
	v.SetDefault("event-journal", "./data/events.jsonl")
	v.SetDefault("log-file", "console.log")
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

	return Config{
		ChainID:      v.GetUint64("chain-id"),
		FeeAdmin:     v.GetString("fee-admin"),
		EventJournal: v.GetString("event-journal"),
		LogFile:      v.GetString("log-file"),
		LogLevel:     v.GetString("log-level"),
	}, nil
}

func logLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}
