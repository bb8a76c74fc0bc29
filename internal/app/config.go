package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/fieldvault/fieldvault/internal/cache"
	apperrors "github.com/fieldvault/fieldvault/pkg/errors"
)

// Config represents the runtime configuration for the FieldVault service.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Crypto      CryptoConfig      `mapstructure:"crypto"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// CacheConfig describes the optional current-key-id fast path.
type CacheConfig struct {
	Redis RedisCacheConfig `mapstructure:"redis"`
}

// RedisCacheConfig holds Redis connection options.
type RedisCacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Address  string        `mapstructure:"address"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TLS      bool          `mapstructure:"tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// RedisClientConfig translates the cache settings into client options.
func (c CacheConfig) RedisClientConfig() cache.RedisConfig {
	return cache.RedisConfig{
		Address:  c.Redis.Address,
		Username: c.Redis.Username,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		TLS:      c.Redis.TLS,
		Timeout:  c.Redis.Timeout,
	}
}

// CryptoConfig holds the key derivation and rotation parameters. The
// secret is the only required setting in the whole configuration.
type CryptoConfig struct {
	Secret                string        `mapstructure:"secret"`
	PBKDF2Iterations      int           `mapstructure:"pbkdf2_iterations"`
	KeyMaxAge             time.Duration `mapstructure:"key_max_age"`
	RotationWarningWindow time.Duration `mapstructure:"rotation_warning_window"`
}

// MaintenanceConfig controls background sweeps.
type MaintenanceConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	KeySweepSchedule   string `mapstructure:"key_sweep_schedule"`
	AuditSchedule      string `mapstructure:"audit_schedule"`
	AuditRetentionDays int    `mapstructure:"audit_retention_days"`
	CacheSweepSchedule string `mapstructure:"cache_sweep_schedule"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// LoadConfig reads configuration from ./config/config.yaml (plus any
// extra search paths) and FIELDVAULT_* environment variables.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("FIELDVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks the settings the service cannot run without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Crypto.Secret) == "" {
		return apperrors.ErrConfig.WithInternal(errors.New("crypto.secret is required"))
	}
	if c.Crypto.PBKDF2Iterations < 100_000 {
		return apperrors.ErrConfig.WithInternal(fmt.Errorf("crypto.pbkdf2_iterations must be at least 100000, got %d", c.Crypto.PBKDF2Iterations))
	}
	if c.Crypto.KeyMaxAge <= 0 {
		return apperrors.ErrConfig.WithInternal(errors.New("crypto.key_max_age must be positive"))
	}
	if c.Crypto.RotationWarningWindow <= 0 {
		return apperrors.ErrConfig.WithInternal(errors.New("crypto.rotation_warning_window must be positive"))
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/fieldvault.sqlite")

	v.SetDefault("cache.redis.enabled", false)
	v.SetDefault("cache.redis.address", "127.0.0.1:6379")
	v.SetDefault("cache.redis.username", "")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.tls", false)
	v.SetDefault("cache.redis.timeout", "5s")

	v.SetDefault("crypto.pbkdf2_iterations", 100_000)
	// 90 days and 14 days respectively.
	v.SetDefault("crypto.key_max_age", "2160h")
	v.SetDefault("crypto.rotation_warning_window", "336h")

	v.SetDefault("maintenance.enabled", true)
	v.SetDefault("maintenance.key_sweep_schedule", "@hourly")
	v.SetDefault("maintenance.audit_schedule", "@daily")
	v.SetDefault("maintenance.audit_retention_days", 90)
	v.SetDefault("maintenance.cache_sweep_schedule", "@hourly")

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
