// ============================================================================
// lazyApply Configuration
// ============================================================================
//
// Package: internal/config
// File: config.go
// Purpose: Load and validate the daemon configuration.
//
// Precedence (lowest to highest):
//   built-in defaults < config file < LAZYAPPLY_* environment variables
//
// Nested keys map to environment variables with "." replaced by "_",
// e.g. store.dsn -> LAZYAPPLY_STORE_DSN.
//
// ============================================================================

package config

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/sumanthpn07/lazyApply/internal/browser"
	"github.com/sumanthpn07/lazyApply/internal/governor"
	"github.com/sumanthpn07/lazyApply/internal/notify"
	"github.com/sumanthpn07/lazyApply/internal/orchestrator"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LAZYAPPLY"

// Config is the complete daemon configuration.
type Config struct {
	Log      LogConfig         `mapstructure:"log"`
	Store    StoreConfig       `mapstructure:"store"`
	Redis    notify.Options    `mapstructure:"redis"` // status events, off while url is empty
	Browser  browser.Options   `mapstructure:"browser"`
	Queue    QueueConfig       `mapstructure:"queue"`
	Snapshot SnapshotConfig    `mapstructure:"snapshot"`
	Metrics  MetricsConfig     `mapstructure:"metrics"`
	Server   ServerConfig      `mapstructure:"server"`
	Targets  governor.Policies `mapstructure:"targets" validate:"-"`
	// Profile answers form fields by key, e.g. phone or years_experience.
	Profile map[string]string `mapstructure:"profile"`
}

type LogConfig struct {
	JSON  bool   `mapstructure:"json"`
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver" validate:"oneof=sqlite3 mysql"`
	DSN    string `mapstructure:"dsn" validate:"required"`
}

type QueueConfig struct {
	AutoStart           bool `mapstructure:"auto_start"`
	orchestrator.Config `mapstructure:",squash"`
}

type SnapshotConfig struct {
	Path     string        `mapstructure:"path" validate:"required"`
	Interval time.Duration `mapstructure:"interval" validate:"gte=0"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr" validate:"required_if=Enabled true"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr" validate:"required"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// SetDefaults registers the built-in value of every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.json", false)
	v.SetDefault("log.level", "info")

	v.SetDefault("store.driver", "sqlite3")
	v.SetDefault("store.dsn", "lazyapply.db")

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.channel", notify.DefaultChannel)
	v.SetDefault("redis.timeout", 5*time.Second)

	v.SetDefault("browser.headless", false) // the operator must see the window to sign in
	v.SetDefault("browser.user_data_dir", "")
	v.SetDefault("browser.bin", "")
	v.SetDefault("browser.control_url", "")
	v.SetDefault("browser.incognito", false)

	def := orchestrator.DefaultConfig()
	v.SetDefault("queue.auto_start", true)
	v.SetDefault("queue.max_retries", def.MaxRetries)
	v.SetDefault("queue.max_rate_wait", def.MaxRateWait)

	v.SetDefault("snapshot.path", "lazyapply-queue.json")
	v.SetDefault("snapshot.interval", 30*time.Second)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9464")

	v.SetDefault("server.addr", "127.0.0.1:7878")
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// Load reads path, or searches ./lazyapply.yaml and $HOME/.lazyapply when
// path is empty. A missing searched file is not an error.
func Load(path string) (*Config, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("lazyapply")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.lazyapply")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "read config")
		}
	}
	return Decode(v)
}

// Decode unmarshals and validates the settings held by v.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if len(cfg.Targets) == 0 {
		cfg.Targets = governor.DefaultPolicies()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every section and the policy table.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	if err := c.Targets.Validate(); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	return nil
}
