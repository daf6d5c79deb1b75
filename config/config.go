// Package config loads vmshift settings from ~/.vmshift.yaml, VMSHIFT_*
// environment variables and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultFileName is looked up in the user's home directory.
const DefaultFileName = ".vmshift.yaml"

// Config is the resolved configuration.
type Config struct {
	BaseURL     string `mapstructure:"base_url"`
	Username    string `mapstructure:"username"`
	APIToken    string `mapstructure:"api_token"`
	VerifyCerts bool   `mapstructure:"verify_certs"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	MaxConcurrency      int           `mapstructure:"max_concurrency"`
	CheckPeriod         time.Duration `mapstructure:"check_period"`
	CapacityRetryPeriod time.Duration `mapstructure:"capacity_retry_period"`
	PollInterval        time.Duration `mapstructure:"poll_interval"`
	MaxWait             time.Duration `mapstructure:"max_wait"`

	StateDir    string `mapstructure:"state_dir"`
	MetricsAddr string `mapstructure:"metrics_addr"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("base_url", "https://cloud.skytap.com")
	v.SetDefault("username", "")
	v.SetDefault("api_token", "")
	v.SetDefault("verify_certs", true)
	v.SetDefault("log_level", "INFO")
	v.SetDefault("log_format", "text")
	v.SetDefault("max_concurrency", 5)
	v.SetDefault("check_period", 15*time.Second)
	v.SetDefault("capacity_retry_period", 15*time.Minute)
	v.SetDefault("poll_interval", 5*time.Second)
	v.SetDefault("max_wait", 48*time.Hour)
	v.SetDefault("state_dir", "")
	v.SetDefault("metrics_addr", "")
}

// DefaultPath returns ~/.vmshift.yaml, or "" when the home directory is
// unknown.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, DefaultFileName)
}

// Load reads configuration with precedence env > file > defaults. An empty
// path means DefaultPath; a missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("VMSHIFT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = DefaultPath()
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate rejects values the orchestrators cannot run with.
func (c *Config) Validate() error {
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("max_concurrency must be at least 1, got %d", c.MaxConcurrency)
	}
	for name, d := range map[string]time.Duration{
		"check_period":          c.CheckPeriod,
		"capacity_retry_period": c.CapacityRetryPeriod,
		"poll_interval":         c.PollInterval,
		"max_wait":              c.MaxWait,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	return nil
}

// Credentials reports whether an API username and token are configured.
func (c *Config) Credentials() error {
	if c.Username == "" || c.APIToken == "" {
		return errors.New("username and api_token must be set (config file or VMSHIFT_USERNAME / VMSHIFT_API_TOKEN)")
	}
	return nil
}
