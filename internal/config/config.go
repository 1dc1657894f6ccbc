// Package config loads Veritas server configuration.
//
// Configuration comes from a config.yaml (searched in the working directory,
// $XDG_CONFIG_HOME/veritas, and ~/.config/veritas) with VERITAS_-prefixed
// environment variables taking precedence. Everything has a default: running
// with no config file at all is the common case.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the server configuration.
type Config struct {
	// DataDir is where the two partition documents and their history
	// snapshots live.
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`
	// AuditDir is where the SQLite audit log lives.
	AuditDir string `yaml:"audit_dir" mapstructure:"audit_dir"`
	// AuditEnabled disables the audit subsystem when false.
	AuditEnabled bool `yaml:"audit_enabled" mapstructure:"audit_enabled"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	base := filepath.Join(home, ".veritas")
	return &Config{
		DataDir:      filepath.Join(base, "playbook"),
		AuditDir:     filepath.Join(base, "audit"),
		AuditEnabled: true,
	}
}

// Load reads the configuration, layering file and environment over defaults.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// Search paths
	v.AddConfigPath(".")
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		v.AddConfigPath(filepath.Join(xdg, "veritas"))
	}
	home, _ := os.UserHomeDir()
	v.AddConfigPath(filepath.Join(home, ".config", "veritas"))

	// Environment variables
	v.SetEnvPrefix("VERITAS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("data_dir", cfg.DataDir)
	v.SetDefault("audit_dir", cfg.AuditDir)
	v.SetDefault("audit_enabled", cfg.AuditEnabled)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// Config file not found; defaults and environment apply.
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("config: data_dir is required")
	}
	if c.AuditEnabled && c.AuditDir == "" {
		return fmt.Errorf("config: audit_dir is required when audit is enabled")
	}
	return nil
}
