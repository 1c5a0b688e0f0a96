// Package config defines exchangecore's configuration. Config is loaded
// from a YAML file with overrides from EXCHANGECORE_* environment
// variables, grounded on the same viper layering used across the
// retrieved market-making and exchange corpus.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level process configuration.
type Config struct {
	Server    ServerConfig     `mapstructure:"server"`
	Logging   LoggingConfig    `mapstructure:"logging"`
	Markets   []MarketConfig   `mapstructure:"markets"`
	MarketData MarketDataConfig `mapstructure:"market_data"`
}

// ServerConfig controls the ambient HTTP surface (health/metrics only;
// the full gateway is out of scope).
type ServerConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// LoggingConfig controls the zerolog setup in internal/logging.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MarketConfig is one market to register with the matching engine on
// startup. Amounts are decimal strings, matching the persisted layout
// (spec.md §6).
type MarketConfig struct {
	ID          string `mapstructure:"id"`
	BaseAsset   string `mapstructure:"base_asset"`
	QuoteAsset  string `mapstructure:"quote_asset"`
	TickSize    string `mapstructure:"tick_size"`
	StepSize    string `mapstructure:"step_size"`
	MinPrice    string `mapstructure:"min_price"`
	MaxPrice    string `mapstructure:"max_price"`
	MinQuantity string `mapstructure:"min_quantity"`
	MaxQuantity string `mapstructure:"max_quantity"`
}

// MarketDataConfig tunes the fan-out's bookkeeping.
type MarketDataConfig struct {
	RecentTradesCapacity int           `mapstructure:"recent_trades_capacity"`
	SubscriberBuffer     int           `mapstructure:"subscriber_buffer"`
	JanitorInterval      time.Duration `mapstructure:"janitor_interval"`
	RollingWindow        time.Duration `mapstructure:"rolling_window"`
}

// Load reads config from a YAML file, with EXCHANGECORE_* environment
// variables overriding any key (nested keys join with underscore, e.g.
// EXCHANGECORE_SERVER_LISTEN_ADDR).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("EXCHANGECORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("market_data.recent_trades_capacity", 1000)
	v.SetDefault("market_data.subscriber_buffer", 64)
	v.SetDefault("market_data.janitor_interval", 5*time.Minute)
	v.SetDefault("market_data.rolling_window", 24*time.Hour)
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}
	if len(c.Markets) == 0 {
		return fmt.Errorf("at least one market must be configured")
	}
	for _, m := range c.Markets {
		if m.ID == "" {
			return fmt.Errorf("markets: id is required")
		}
		if m.BaseAsset == "" || m.QuoteAsset == "" {
			return fmt.Errorf("market %s: base_asset and quote_asset are required", m.ID)
		}
	}
	if c.MarketData.RecentTradesCapacity <= 0 {
		return fmt.Errorf("market_data.recent_trades_capacity must be > 0")
	}
	if c.MarketData.SubscriberBuffer <= 0 {
		return fmt.Errorf("market_data.subscriber_buffer must be > 0")
	}
	return nil
}
