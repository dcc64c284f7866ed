// Package config loads and validates scraper configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrInvalidPageRange marks a crawl range the scraper cannot execute.
var ErrInvalidPageRange = errors.New("invalid page range")

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Scraper ScraperConfig `mapstructure:"scraper"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	AntiBot AntiBotConfig `mapstructure:"antibot"`
	Render  RenderConfig  `mapstructure:"render"`
	Output  OutputConfig  `mapstructure:"output"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ScraperConfig governs the crawl range and the enrichment pool.
type ScraperConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	StartPage int    `mapstructure:"start_page"`
	EndPage   int    `mapstructure:"end_page"`
	Workers   int    `mapstructure:"workers"`
}

// HTTPConfig configures the plain HTTP fetch client.
type HTTPConfig struct {
	TimeoutSeconds  int    `mapstructure:"timeout_seconds"`
	UserAgent       string `mapstructure:"user_agent"`
	RotateUserAgent bool   `mapstructure:"rotate_user_agent"`
}

// AntiBotConfig parameterizes the backoff controller. Delays are in seconds.
// MaxRetries is the total attempt budget per page or detail fetch.
type AntiBotConfig struct {
	MinDelaySeconds        float64 `mapstructure:"min_delay_seconds"`
	MaxDelaySeconds        float64 `mapstructure:"max_delay_seconds"`
	MaxRetries             int     `mapstructure:"max_retries"`
	BackoffFactor          float64 `mapstructure:"backoff_factor"`
	FailureThreshold       int     `mapstructure:"failure_threshold"`
	SessionCooldownSeconds int     `mapstructure:"session_cooldown_seconds"`
	CapDelaySeconds        int     `mapstructure:"cap_delay_seconds"`
	FloorRPS               float64 `mapstructure:"floor_rps"`
}

// RenderConfig configures the optional headless rendered fetcher.
type RenderConfig struct {
	Enabled          bool `mapstructure:"enabled"`
	MaxParallel      int  `mapstructure:"max_parallel"`
	NavTimeoutSec    int  `mapstructure:"nav_timeout_seconds"`
	SimulateBehavior bool `mapstructure:"simulate_human_behavior"`
}

// OutputConfig selects the persistence target for scraped records.
type OutputConfig struct {
	Dir    string `mapstructure:"dir"`
	Target string `mapstructure:"target"`
	DSN    string `mapstructure:"dsn"`
}

// MetricsConfig toggles the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SAASDIR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("scraper.base_url", "https://getlatka.com/saas-companies")
	v.SetDefault("scraper.start_page", 1)
	v.SetDefault("scraper.end_page", 5)
	v.SetDefault("scraper.workers", 4)
	v.SetDefault("http.timeout_seconds", 10)
	v.SetDefault("http.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("http.rotate_user_agent", false)
	v.SetDefault("antibot.min_delay_seconds", 2)
	v.SetDefault("antibot.max_delay_seconds", 5)
	v.SetDefault("antibot.max_retries", 3)
	v.SetDefault("antibot.backoff_factor", 2)
	v.SetDefault("antibot.failure_threshold", 5)
	v.SetDefault("antibot.session_cooldown_seconds", 300)
	v.SetDefault("antibot.cap_delay_seconds", 120)
	v.SetDefault("antibot.floor_rps", 0)
	v.SetDefault("render.enabled", false)
	v.SetDefault("render.max_parallel", 1)
	v.SetDefault("render.nav_timeout_seconds", 25)
	v.SetDefault("render.simulate_human_behavior", true)
	v.SetDefault("output.dir", "output")
	v.SetDefault("output.target", "json")
	// Registered so SAASDIR_OUTPUT_DSN binds through AutomaticEnv.
	v.SetDefault("output.dsn", "")
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits. Configuration
// errors are the only fatal condition before any work begins.
func (c Config) Validate() error {
	if c.Scraper.BaseURL == "" {
		return fmt.Errorf("scraper.base_url must be set")
	}
	if c.Scraper.StartPage < 1 {
		return fmt.Errorf("scraper.start_page must be >= 1: %w", ErrInvalidPageRange)
	}
	if c.Scraper.EndPage < c.Scraper.StartPage {
		return fmt.Errorf("scraper.end_page must be >= scraper.start_page: %w", ErrInvalidPageRange)
	}
	if c.Scraper.Workers <= 0 {
		return fmt.Errorf("scraper.workers must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.UserAgent == "" {
		return fmt.Errorf("http.user_agent must be set")
	}
	if c.AntiBot.MinDelaySeconds < 0 {
		return fmt.Errorf("antibot.min_delay_seconds must be >= 0")
	}
	if c.AntiBot.MaxDelaySeconds < c.AntiBot.MinDelaySeconds {
		return fmt.Errorf("antibot.max_delay_seconds must be >= antibot.min_delay_seconds")
	}
	if c.AntiBot.MaxRetries < 1 {
		return fmt.Errorf("antibot.max_retries must be >= 1")
	}
	if c.AntiBot.BackoffFactor < 1 {
		return fmt.Errorf("antibot.backoff_factor must be >= 1")
	}
	if c.AntiBot.FailureThreshold <= 0 {
		return fmt.Errorf("antibot.failure_threshold must be > 0")
	}
	if c.Render.Enabled && c.Render.MaxParallel <= 0 {
		return fmt.Errorf("render.max_parallel must be > 0 when rendering is enabled")
	}
	switch c.Output.Target {
	case "json":
		if c.Output.Dir == "" {
			return fmt.Errorf("output.dir must be set for the json target")
		}
	case "postgres":
		if c.Output.DSN == "" {
			return fmt.Errorf("output.dsn must be set for the postgres target")
		}
	default:
		return fmt.Errorf("unknown output target: %s", c.Output.Target)
	}
	if c.Metrics.Enabled && c.Metrics.Port <= 0 {
		return fmt.Errorf("metrics.port must be > 0 when metrics are enabled")
	}
	return nil
}

// Timeout converts the HTTP timeout into a duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}
