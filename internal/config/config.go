package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete engine configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Screening ScreeningConfig `mapstructure:"screening"`
	Maneuver  ManeuverConfig  `mapstructure:"maneuver"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds the HTTP listener configuration.
type ServerConfig struct {
	Addr          string        `mapstructure:"addr"`
	MetricsAddr   string        `mapstructure:"metrics_addr"` // empty disables the metrics listener
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace"`
}

// ScreeningConfig tunes the two-phase screening pass.
type ScreeningConfig struct {
	WindowHours     float64 `mapstructure:"window_hours"`
	PruneRadiusKm   float64 `mapstructure:"prune_radius_km"`
	SaveThresholdKm float64 `mapstructure:"save_threshold_km"`
	Workers         int     `mapstructure:"workers"` // 0 = GOMAXPROCS
	HomeCountry     string  `mapstructure:"home_country"`
	BatchRetention  int     `mapstructure:"batch_retention"`
}

// ManeuverConfig tunes avoidance maneuver planning.
type ManeuverConfig struct {
	TargetMissKm  float64       `mapstructure:"target_miss_km"`
	DvBoundKmS    float64       `mapstructure:"dv_bound_km_s"`
	PenaltyWeight float64       `mapstructure:"penalty_weight"`
	LeadTime      time.Duration `mapstructure:"lead_time"` // burn at TCA minus lead time
}

// CatalogConfig holds catalog persistence configuration.
type CatalogConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// FetchConfig holds element-set fetch configuration.
type FetchConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Groups    []string      `mapstructure:"groups"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Interval  time.Duration `mapstructure:"interval"` // pause enforced between group fetches
	UserAgent string        `mapstructure:"user_agent"`
}

// NotifyConfig holds high-risk notification configuration.
type NotifyConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	BotToken       string  `mapstructure:"bot_token"`
	ChatID         string  `mapstructure:"chat_id"`
	ScoreThreshold float64 `mapstructure:"score_threshold"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from an optional file plus CONJ_-prefixed
// environment variables, layered over full defaults. An empty path skips the
// file and serves defaults with env overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CONJ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.metrics_addr", ":9090")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.shutdown_grace", "10s")

	v.SetDefault("screening.window_hours", 2.0)
	v.SetDefault("screening.prune_radius_km", 300.0)
	v.SetDefault("screening.save_threshold_km", 150.0)
	v.SetDefault("screening.workers", 0)
	v.SetDefault("screening.home_country", "US")
	v.SetDefault("screening.batch_retention", 10)

	v.SetDefault("maneuver.target_miss_km", 2.0)
	v.SetDefault("maneuver.dv_bound_km_s", 0.002)
	v.SetDefault("maneuver.penalty_weight", 1e5)
	v.SetDefault("maneuver.lead_time", "1h")

	v.SetDefault("catalog.db_path", "./data/conjunction.db")

	v.SetDefault("fetch.base_url", "https://celestrak.org/NORAD/elements/gp.php")
	v.SetDefault("fetch.groups", []string{"stations", "active"})
	v.SetDefault("fetch.timeout", "30s")
	v.SetDefault("fetch.interval", "2s")
	v.SetDefault("fetch.user_agent", "conjunction-engine/1.0")

	v.SetDefault("notify.enabled", false)
	v.SetDefault("notify.score_threshold", 0.8)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks that all configuration values are usable together.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be positive")
	}
	if c.Server.ShutdownGrace <= 0 {
		return fmt.Errorf("server.shutdown_grace must be positive")
	}

	if c.Screening.WindowHours <= 0 {
		return fmt.Errorf("screening.window_hours must be positive")
	}
	if c.Screening.PruneRadiusKm <= 0 {
		return fmt.Errorf("screening.prune_radius_km must be positive")
	}
	if c.Screening.SaveThresholdKm <= 0 {
		return fmt.Errorf("screening.save_threshold_km must be positive")
	}
	if c.Screening.Workers < 0 {
		return fmt.Errorf("screening.workers must not be negative")
	}
	if c.Screening.BatchRetention < 1 {
		return fmt.Errorf("screening.batch_retention must be at least 1")
	}

	if c.Maneuver.TargetMissKm <= 0 {
		return fmt.Errorf("maneuver.target_miss_km must be positive")
	}
	if c.Maneuver.DvBoundKmS <= 0 {
		return fmt.Errorf("maneuver.dv_bound_km_s must be positive")
	}
	if c.Maneuver.PenaltyWeight <= 0 {
		return fmt.Errorf("maneuver.penalty_weight must be positive")
	}
	if c.Maneuver.LeadTime < time.Minute {
		return fmt.Errorf("maneuver.lead_time must be at least 1 minute")
	}

	if c.Catalog.DBPath == "" {
		return fmt.Errorf("catalog.db_path is required")
	}

	if c.Fetch.BaseURL == "" {
		return fmt.Errorf("fetch.base_url is required")
	}
	if len(c.Fetch.Groups) == 0 {
		return fmt.Errorf("fetch.groups must contain at least one group")
	}
	if c.Fetch.Timeout < time.Second {
		return fmt.Errorf("fetch.timeout must be at least 1 second")
	}
	if c.Fetch.Interval < 0 {
		return fmt.Errorf("fetch.interval must not be negative")
	}

	if c.Notify.Enabled {
		if c.Notify.BotToken == "" {
			return fmt.Errorf("notify.bot_token is required when notifications are enabled")
		}
		if c.Notify.ChatID == "" {
			return fmt.Errorf("notify.chat_id is required when notifications are enabled")
		}
	}
	if c.Notify.ScoreThreshold < 0 || c.Notify.ScoreThreshold > 1 {
		return fmt.Errorf("notify.score_threshold must be between 0.0 and 1.0")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
