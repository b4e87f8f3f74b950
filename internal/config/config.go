// Package config loads devicectl's process configuration: default dmap
// search paths, logging, and per-backend-type tunables (SharedDummy's
// shared-memory root, XDMA's health poll interval), plus the metrics
// server bind address. Configuration sources, highest precedence first:
// DEVICEACCESS_* environment variables, a YAML config file, then the
// defaults below — mirroring the teacher's spf13/viper +
// mitchellh/mapstructure + go-playground/validator layering
// (pkg/config/config.go, defaults.go).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/ctkgo/deviceaccess/internal/obslog"
)

// Config is devicectl's static process configuration.
type Config struct {
	// Logging controls internal/obslog's output.
	Logging obslog.Config `mapstructure:"logging"`

	// DMapSearchPath is the ordered list of directories devicectl
	// searches for the --dmap file and for map files named in a CDD
	// (spec §6's "thin dmap plumbing").
	DMapSearchPath []string `mapstructure:"dmap_search_path"`

	// SharedDummyShmRoot overrides backend/shareddummy.ShmRootDir: the
	// directory new shared-memory segments, lock files and fifo
	// directories are created under. Default: os.TempDir().
	SharedDummyShmRoot string `mapstructure:"shared_dummy_shm_root"`

	// XDMAPollInterval overrides backend/xdma.HealthPollPeriod: how
	// often an open xdma.Backend re-checks its device nodes for
	// disappearance.
	XDMAPollInterval time.Duration `mapstructure:"xdma_poll_interval" validate:"gt=0"`

	// Metrics configures devicectl's "serve-metrics" Prometheus endpoint.
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// MetricsConfig configures the Prometheus /metrics HTTP server.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address" validate:"omitempty,hostname_port"`
}

// Load reads configuration from configPath (or the default search
// location if empty), environment variables prefixed DEVICEACCESS_, and
// falls back to Defaults() for anything left unset, then validates the
// result.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if _, err := readConfigFile(v); err != nil {
		return nil, err
	}
	// AutomaticEnv only consults the environment for keys viper already
	// knows, so bind every key to apply DEVICEACCESS_* variables even
	// when no config file was found.
	for _, key := range []string{"logging.level", "logging.format", "logging.output", "dmap_search_path",
		"shared_dummy_shm_root", "xdma_poll_interval", "metrics.enabled", "metrics.address"} {
		_ = v.BindEnv(key)
	}

	cfg := Defaults()
	if err := v.Unmarshal(cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("config: unmarshalling: %w", err)
	}

	applyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}
	return cfg, nil
}

// Defaults returns a Config with every field set to its zero-config
// default, suitable as a Load fallback or a `devicectl config defaults`
// dump.
func Defaults() *Config {
	cfg := &Config{
		Logging: obslog.Config{
			Level:  "INFO",
			Format: "text",
			Output: "stdout",
		},
		DMapSearchPath:     []string{".", defaultConfigDir()},
		SharedDummyShmRoot: os.TempDir(),
		XDMAPollInterval:   500 * time.Millisecond,
		Metrics: MetricsConfig{
			Enabled: false,
			Address: "127.0.0.1:9321",
		},
	}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults fills any zero-valued field Load's unmarshal step left
// empty (a config file can legally omit sections entirely).
func applyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	cfg.Logging.Level = strings.ToUpper(cfg.Logging.Level)
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
	if len(cfg.DMapSearchPath) == 0 {
		cfg.DMapSearchPath = []string{".", defaultConfigDir()}
	}
	if cfg.SharedDummyShmRoot == "" {
		cfg.SharedDummyShmRoot = os.TempDir()
	}
	if cfg.XDMAPollInterval == 0 {
		cfg.XDMAPollInterval = 500 * time.Millisecond
	}
	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = "127.0.0.1:9321"
	}
}

// Validate runs struct-tag validation (go-playground/validator) over
// cfg, then the additional checks a validate tag cannot express.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return err
	}
	switch strings.ToUpper(cfg.Logging.Level) {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("logging.level: must be one of DEBUG, INFO, WARN, ERROR, got %q", cfg.Logging.Level)
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format: must be text or json, got %q", cfg.Logging.Format)
	}
	return nil
}

// Apply pushes cfg's per-backend tunables into the package-level
// variables those backends read, and initializes obslog. Called once at
// process startup after Load succeeds.
func Apply(cfg *Config) error {
	return applyBackendTunables(cfg)
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("DEVICEACCESS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(defaultConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("config: reading config file: %w", err)
	}
	return true, nil
}

func defaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "deviceaccess")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "deviceaccess")
}

// DefaultConfigPath returns the default configuration file path.
func DefaultConfigPath() string {
	return filepath.Join(defaultConfigDir(), "config.yaml")
}
