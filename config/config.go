// Package config loads connmand's daemon-level configuration: where to
// find the bus, the per-IMSI settings directory, the provisioning
// database, and how to log. It is distinct from the settings package,
// which persists per-IMSI Connection Manager state rather than static
// daemon configuration.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const envPrefix = "CONNMAND"

// Config is connmand's static daemon configuration.
//
// Precedence (highest to lowest): environment variables (CONNMAND_*),
// configuration file, defaults.
type Config struct {
	Bus       BusConfig       `mapstructure:"bus" yaml:"bus"`
	Settings  SettingsConfig  `mapstructure:"settings" yaml:"settings"`
	Provision ProvisionConfig `mapstructure:"provision" yaml:"provision"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
}

// BusConfig controls which bus connmand exports its objects on and the
// base object path of the managed modem.
type BusConfig struct {
	// System selects the D-Bus system bus instead of the session bus.
	System bool `mapstructure:"system" yaml:"system"`
	// BasePath is the modem's own object path, e.g. "/ril_0".
	BasePath string `mapstructure:"base_path" yaml:"base_path"`
}

// SettingsConfig locates the per-IMSI persistence store.
type SettingsConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// ProvisionConfig locates the provisioning database and, optionally, a
// YAML seed file upserted into the database at every startup when set.
type ProvisionConfig struct {
	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`
	SeedPath     string `mapstructure:"seed_path" yaml:"seed_path"`
}

// LoggingConfig mirrors logging.Config with mapstructure/yaml tags.
type LoggingConfig struct {
	Path       string `mapstructure:"path" yaml:"path"`
	Level      string `mapstructure:"level" yaml:"level"`
	Console    bool   `mapstructure:"console" yaml:"console"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
}

// MetricsConfig controls the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
}

// Defaults returns the configuration used when no file and no
// environment overrides are present.
func Defaults() *Config {
	return &Config{
		Bus: BusConfig{System: true, BasePath: "/ril_0"},
		Settings: SettingsConfig{
			Dir: "/var/lib/connmand",
		},
		Provision: ProvisionConfig{
			DatabasePath: "/var/lib/connmand/provision.db",
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: false,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Listen:  ":9090",
		},
	}
}

// Load reads configuration from configPath, or, when configPath is
// empty, from a connmand.yaml found in /etc/connmand or the working
// directory (none found is not an error); a non-empty configPath that
// does not exist is an error. It overlays environment variables prefixed
// CONNMAND_ and falls back to Defaults() for anything left unset.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	cfg := Defaults()
	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !found {
		applyEnv(v, cfg)
		return cfg, nil
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("connmand")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/connmand")
		v.AddConfigPath(".")
	}
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("config: read: %w", err)
	}
	return true, nil
}

// applyEnv lets environment variables override Defaults() even when no
// config file is present, since viper.Unmarshal only pulls values that
// exist in the merged config tree.
func applyEnv(v *viper.Viper, cfg *Config) {
	if s := v.GetString("bus.base_path"); s != "" {
		cfg.Bus.BasePath = s
	}
	if v.IsSet("bus.system") {
		cfg.Bus.System = v.GetBool("bus.system")
	}
	if s := v.GetString("settings.dir"); s != "" {
		cfg.Settings.Dir = s
	}
	if s := v.GetString("provision.database_path"); s != "" {
		cfg.Provision.DatabasePath = s
	}
	if s := v.GetString("provision.seed_path"); s != "" {
		cfg.Provision.SeedPath = s
	}
	if s := v.GetString("logging.level"); s != "" {
		cfg.Logging.Level = s
	}
	if s := v.GetString("logging.path"); s != "" {
		cfg.Logging.Path = s
	}
	if s := v.GetString("metrics.listen"); s != "" {
		cfg.Metrics.Listen = s
	}
	if v.IsSet("metrics.enabled") {
		cfg.Metrics.Enabled = v.GetBool("metrics.enabled")
	}
}
