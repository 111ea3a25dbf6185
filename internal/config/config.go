package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     Server     `mapstructure:"server"`
	Database   Database   `mapstructure:"database"`
	Auth       Auth       `mapstructure:"auth"`
	Trading    Trading    `mapstructure:"trading"`
	Options    Options    `mapstructure:"options"`
	Settlement Settlement `mapstructure:"settlement"`
	Cache      Cache      `mapstructure:"cache"`
}

type Server struct {
	Port string `mapstructure:"port"`
}

type Database struct {
	Path string `mapstructure:"path"`
}

type Auth struct {
	JWTSecret   string        `mapstructure:"jwt_secret"`
	TokenExpiry time.Duration `mapstructure:"token_expiry"`
}

type Trading struct {
	StartingCash   float64 `mapstructure:"starting_cash"`
	BrokerageFloor float64 `mapstructure:"brokerage_floor"`
	BrokerageRate  float64 `mapstructure:"brokerage_rate"`
}

type Options struct {
	// LadderCron fires the weekly contract ladder generation.
	LadderCron string `mapstructure:"ladder_cron"`
}

type Settlement struct {
	// SweepInterval is the delay between expiry settlement sweeps.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type Cache struct {
	IndexTTL        time.Duration `mapstructure:"index_ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// Load reads configuration from config.yaml (if present) with environment
// variable overrides, falling back to defaults suitable for local use.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	// A missing config file is fine; env vars and defaults still apply.
	_ = viper.ReadInConfig()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("database.path", "lifestock.db")
	viper.SetDefault("auth.jwt_secret", "lifestock-secret-key")
	viper.SetDefault("auth.token_expiry", 24*time.Hour)
	viper.SetDefault("trading.starting_cash", 1_000_000.0)
	viper.SetDefault("trading.brokerage_floor", 20.0)
	viper.SetDefault("trading.brokerage_rate", 0.0003)
	// Monday 00:05 local, just after the new trading week opens.
	viper.SetDefault("options.ladder_cron", "5 0 * * 1")
	viper.SetDefault("settlement.sweep_interval", 5*time.Minute)
	viper.SetDefault("cache.index_ttl", time.Minute)
	viper.SetDefault("cache.cleanup_interval", 5*time.Minute)
}
