package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	EnvPrefix      = "QUALITYDASH"
	configFileName = ".qualitydash"

	// MaxWindowDays keeps every day of the window on a distinct day/month
	// key. A longer window would show the same D/M label twice.
	MaxWindowDays = 365

	DriverMemory = "memory"
)

var drivers = []string{DriverMemory, "postgres", "mysql", "sqlite"}

// Config is the resolved configuration for every command.
type Config struct {
	Addr       string `mapstructure:"addr"`
	WindowDays int    `mapstructure:"window-days"`
	Timezone   string `mapstructure:"timezone"`

	DBDriver string `mapstructure:"db-driver"`
	DBDSN    string `mapstructure:"db-dsn"`

	ResultsDir string        `mapstructure:"results-dir"`
	CacheDir   string        `mapstructure:"cache-dir"`
	CacheTTL   time.Duration `mapstructure:"cache-ttl"`

	TestkubeURL       string        `mapstructure:"testkube-url"`
	TestkubeToken     string        `mapstructure:"testkube-token"`
	TestkubeNamespace string        `mapstructure:"testkube-namespace"`
	PollInterval      time.Duration `mapstructure:"poll-interval"`

	LogLevel  string `mapstructure:"log-level"`
	LogFormat string `mapstructure:"log-format"`

	// Location is Timezone resolved by Validate.
	Location *time.Location `mapstructure:"-"`
}

// NewViper returns a viper instance with defaults and environment binding.
// Every key can be set as QUALITYDASH_<KEY> with dashes as underscores.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("config", "")
	v.SetDefault("addr", ":8080")
	v.SetDefault("window-days", 30)
	v.SetDefault("timezone", "UTC")
	v.SetDefault("db-driver", DriverMemory)
	v.SetDefault("db-dsn", "")
	v.SetDefault("results-dir", "")
	v.SetDefault("cache-dir", filepath.Join(os.TempDir(), "qualitydash-artifacts"))
	v.SetDefault("cache-ttl", 24*time.Hour)
	v.SetDefault("testkube-url", "")
	v.SetDefault("testkube-token", "")
	v.SetDefault("testkube-namespace", "testkube")
	v.SetDefault("poll-interval", time.Minute)
	v.SetDefault("log-level", "info")
	v.SetDefault("log-format", "text")
	return v
}

// Load reads the optional config file, then resolves and validates the
// merged defaults, file, environment and bound flags.
func Load(v *viper.Viper) (*Config, error) {
	if configFile := v.GetString("config"); configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(configFileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once and resolves Location.
func (c *Config) Validate() error {
	var result *multierror.Error

	if c.WindowDays < 1 || c.WindowDays > MaxWindowDays {
		result = multierror.Append(result, fmt.Errorf("window-days must be between 1 and %d, got %d", MaxWindowDays, c.WindowDays))
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		result = multierror.Append(result, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err))
	} else {
		c.Location = loc
	}

	switch c.DBDriver {
	case DriverMemory, "sqlite":
		if c.DBDriver == "sqlite" && c.DBDSN == "" {
			c.DBDSN = "qualitydash.db"
		}
	case "postgres", "mysql":
		if c.DBDSN == "" {
			result = multierror.Append(result, fmt.Errorf("db-dsn is required for the %s driver", c.DBDriver))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("unsupported db-driver %q, want one of %s", c.DBDriver, strings.Join(drivers, ", ")))
	}

	if c.PollInterval <= 0 {
		result = multierror.Append(result, fmt.Errorf("poll-interval must be positive, got %s", c.PollInterval))
	}

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		result = multierror.Append(result, fmt.Errorf("invalid log-level: %w", err))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		result = multierror.Append(result, fmt.Errorf("log-format must be text or json, got %q", c.LogFormat))
	}

	return result.ErrorOrNil()
}

// NewLogger builds the process logger from the log settings.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	if level, err := logrus.ParseLevel(c.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	if c.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}
