package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the multidev tool.
type Config struct {
	// Logging settings
	LogLevel  string
	LogFormat string

	// Hosting platform API settings
	PlatformURL   string
	PlatformToken string

	// Source-hosting API settings
	GitHubURL   string
	GitHubToken string

	// Local git settings
	GitRemote string
	GitDir    string

	// Workflow polling settings
	WorkflowInterval time.Duration
	WorkflowTimeout  time.Duration

	// HTTP client timeout for API calls
	HTTPTimeout time.Duration

	// Metrics export settings
	MetricsPushgateway string
	MetricsTextfile    string
	MetricsJob         string
	MetricsNamespace   string
}

// Load reads configuration from environment variables, config file, and flags.
func Load() (*Config, error) {
	// Set defaults
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("platform.url", "https://terminus.pantheon.io/api")
	viper.SetDefault("platform.token", "")
	viper.SetDefault("github.url", "https://api.github.com")
	viper.SetDefault("github.token", "")
	viper.SetDefault("git.remote", "pantheon")
	viper.SetDefault("git.dir", ".")
	viper.SetDefault("workflow.interval", "5s")
	viper.SetDefault("workflow.timeout", "60s")
	viper.SetDefault("http.timeout", "30s")
	viper.SetDefault("metrics.pushgateway", "")
	viper.SetDefault("metrics.textfile", "")
	viper.SetDefault("metrics.job", "multidev")

	// Enable environment variable support with automatic replacement
	viper.SetEnvPrefix("MULTIDEV")
	viper.AutomaticEnv()
	// Replace . with _ in environment variable names (e.g., platform.token -> MULTIDEV_PLATFORM_TOKEN)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Try to read config file if it exists
	viper.SetConfigName("multidev")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.config/multidev/")

	// Reading config file is optional
	_ = viper.ReadInConfig()

	cfg := &Config{
		LogLevel:           strings.ToLower(viper.GetString("log.level")),
		LogFormat:          strings.ToLower(viper.GetString("log.format")),
		PlatformURL:        strings.TrimRight(viper.GetString("platform.url"), "/"),
		PlatformToken:      viper.GetString("platform.token"),
		GitHubURL:          strings.TrimRight(viper.GetString("github.url"), "/"),
		GitHubToken:        viper.GetString("github.token"),
		GitRemote:          viper.GetString("git.remote"),
		GitDir:             viper.GetString("git.dir"),
		MetricsPushgateway: viper.GetString("metrics.pushgateway"),
		MetricsTextfile:    viper.GetString("metrics.textfile"),
		MetricsJob:         viper.GetString("metrics.job"),
		MetricsNamespace:   "multidev", // Fixed value, not configurable
	}

	var err error
	if cfg.WorkflowInterval, err = time.ParseDuration(viper.GetString("workflow.interval")); err != nil {
		return nil, fmt.Errorf("invalid workflow interval: %w", err)
	}
	if cfg.WorkflowTimeout, err = time.ParseDuration(viper.GetString("workflow.timeout")); err != nil {
		return nil, fmt.Errorf("invalid workflow timeout: %w", err)
	}
	if cfg.HTTPTimeout, err = time.ParseDuration(viper.GetString("http.timeout")); err != nil {
		return nil, fmt.Errorf("invalid http timeout: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if the configuration is valid. Credentials are not
// checked here; commands that need them run preflight checks instead.
func (c *Config) Validate() error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	validLogFormats := map[string]bool{
		"json":    true,
		"console": true,
	}
	if !validLogFormats[c.LogFormat] {
		return fmt.Errorf("invalid log format: %s (must be json or console)", c.LogFormat)
	}

	if err := validateURL("platform url", c.PlatformURL); err != nil {
		return err
	}
	if err := validateURL("github url", c.GitHubURL); err != nil {
		return err
	}
	if c.MetricsPushgateway != "" {
		if err := validateURL("metrics pushgateway", c.MetricsPushgateway); err != nil {
			return err
		}
	}

	if c.GitRemote == "" {
		return fmt.Errorf("git remote name cannot be empty")
	}
	if c.GitDir == "" {
		return fmt.Errorf("git directory cannot be empty")
	}

	if c.WorkflowInterval <= 0 {
		return fmt.Errorf("invalid workflow interval: %s (must be positive)", c.WorkflowInterval)
	}
	if c.WorkflowTimeout < c.WorkflowInterval {
		return fmt.Errorf("invalid workflow timeout: %s (must be at least the interval %s)", c.WorkflowTimeout, c.WorkflowInterval)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("invalid http timeout: %s (must be positive)", c.HTTPTimeout)
	}

	if c.MetricsNamespace == "" {
		return fmt.Errorf("metrics namespace cannot be empty")
	}
	if (c.MetricsPushgateway != "" || c.MetricsTextfile != "") && c.MetricsJob == "" {
		return fmt.Errorf("metrics job cannot be empty when metrics export is enabled")
	}

	return nil
}

func validateURL(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid %s: %q (must be http or https)", name, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid %s: %q (missing host)", name, raw)
	}
	return nil
}
