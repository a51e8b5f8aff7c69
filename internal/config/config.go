package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Relays  []string      `mapstructure:"relays"`
	Filter  FilterConfig  `mapstructure:"filter"`
	Poll    PollConfig    `mapstructure:"poll"`
	Notify  NotifyConfig  `mapstructure:"notify"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type FilterConfig struct {
	Kind    int      `mapstructure:"kind"`
	Authors []string `mapstructure:"authors"`
}

type PollConfig struct {
	IntervalSec int    `mapstructure:"interval_sec"`
	TimeoutSec  int    `mapstructure:"timeout_sec"`
	LookbackSec int    `mapstructure:"lookback_sec"`
	StateFile   string `mapstructure:"state_file"`
}

type NotifyConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Topic           string `mapstructure:"topic"`
	CredentialsFile string `mapstructure:"credentials_file"`
	CooldownSec     int    `mapstructure:"cooldown_sec"`
}

type ServerConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("filter.kind", 1059)
	v.SetDefault("poll.interval_sec", 120)
	v.SetDefault("poll.timeout_sec", 30)
	v.SetDefault("poll.lookback_sec", 300)
	v.SetDefault("poll.state_file", "")
	v.SetDefault("notify.enabled", true)
	v.SetDefault("notify.cooldown_sec", 60)
	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("logging.level", "info")

	// Environment variable support
	v.SetEnvPrefix("RELAY_WATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Explicitly bind nested keys to env vars
	_ = v.BindEnv("notify.topic", "RELAY_WATCHER_NOTIFY_TOPIC")
	_ = v.BindEnv("notify.credentials_file", "RELAY_WATCHER_NOTIFY_CREDENTIALS_FILE")

	// Load config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("default")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if len(c.Relays) == 0 {
		return fmt.Errorf("at least one relay is required")
	}
	for _, r := range c.Relays {
		u, err := url.Parse(r)
		if err != nil {
			return fmt.Errorf("invalid relay URL %q: %w", r, err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("relay URL %q must use ws:// or wss://", r)
		}
	}
	if c.Filter.Kind <= 0 {
		return fmt.Errorf("filter.kind must be > 0")
	}
	if c.Poll.IntervalSec < 1 {
		return fmt.Errorf("poll.interval_sec must be >= 1")
	}
	if c.Poll.TimeoutSec < 1 {
		return fmt.Errorf("poll.timeout_sec must be >= 1")
	}
	if c.Notify.Enabled && c.Notify.Topic == "" {
		return fmt.Errorf("notify.topic is required when notify.enabled=true (set RELAY_WATCHER_NOTIFY_TOPIC)")
	}
	if c.Notify.CooldownSec < 1 {
		return fmt.Errorf("notify.cooldown_sec must be >= 1")
	}
	return nil
}
