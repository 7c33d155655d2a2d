package config

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config is the full application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Market   MarketConfig   `mapstructure:"market"`
	Bot      BotConfig      `mapstructure:"bot"`
}

type AppConfig struct {
	LogLevel string `mapstructure:"log_level"`
	LogPath  string `mapstructure:"log_path"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type MarketConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	TimeoutSec int    `mapstructure:"timeout_sec"`
}

type BotConfig struct {
	CooldownMs     int64  `mapstructure:"cooldown_ms"`
	CandleInterval string `mapstructure:"candle_interval"`
	CandleLimit    int    `mapstructure:"candle_limit"`
	StartingCash   string `mapstructure:"starting_cash"`
	TradingShort   int    `mapstructure:"trading_short"`
	TradingLong    int    `mapstructure:"trading_long"`
	TrainingShort  int    `mapstructure:"training_short"`
	TrainingLong   int    `mapstructure:"training_long"`
}

// Load reads the yaml config at path, fills defaults and validates.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	applyDefaults(v)
	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration, used when no file is given.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(err)
	}
	return cfg
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_path", "")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("database.path", "data/tradebot.db")
	v.SetDefault("market.base_url", "")
	v.SetDefault("market.timeout_sec", 15)
	v.SetDefault("bot.cooldown_ms", 5000)
	v.SetDefault("bot.candle_interval", "1m")
	v.SetDefault("bot.candle_limit", 200)
	v.SetDefault("bot.starting_cash", "10000")
	v.SetDefault("bot.trading_short", 3)
	v.SetDefault("bot.trading_long", 8)
	v.SetDefault("bot.training_short", 5)
	v.SetDefault("bot.training_long", 20)
}

func validate(cfg *Config) error {
	if strings.TrimSpace(cfg.Database.Path) == "" {
		return fmt.Errorf("config: database.path is required")
	}
	if cfg.Bot.CooldownMs < 0 {
		return fmt.Errorf("config: bot.cooldown_ms cannot be negative")
	}
	if cfg.Bot.CandleLimit <= 0 {
		return fmt.Errorf("config: bot.candle_limit must be positive")
	}
	for _, w := range []struct {
		name        string
		short, long int
	}{
		{"trading", cfg.Bot.TradingShort, cfg.Bot.TradingLong},
		{"training", cfg.Bot.TrainingShort, cfg.Bot.TrainingLong},
	} {
		if w.short <= 0 || w.long <= 0 || w.short >= w.long {
			return fmt.Errorf("config: %s windows must satisfy 0 < short < long, got %d/%d", w.name, w.short, w.long)
		}
	}
	return nil
}
