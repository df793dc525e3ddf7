package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Recon    ReconConfig    `mapstructure:"recon"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsDir   string        `mapstructure:"migrations_dir"`
}

// RedisConfig holds the batch lock redis connection. Addr empty disables the
// distributed duplicate-trigger guard.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ReconConfig holds the default tolerance policy and batch bounds. Tenants
// override these per supplier through the tolerance override API.
type ReconConfig struct {
	QuantityLowThreshold    float64       `mapstructure:"quantity_low_threshold"`
	QuantityMediumThreshold float64       `mapstructure:"quantity_medium_threshold"`
	PriceLowThreshold       float64       `mapstructure:"price_low_threshold"`
	PriceMediumThreshold    float64       `mapstructure:"price_medium_threshold"`
	MinorUnit               string        `mapstructure:"minor_unit"`
	LookbackWindow          time.Duration `mapstructure:"lookback_window"`
	AutoAdjustTypes         []string      `mapstructure:"auto_adjust_types"`
	AutoAdjustCeiling       string        `mapstructure:"auto_adjust_ceiling"`
	RetryAttempts           int           `mapstructure:"retry_attempts"`
	RetryBackoff            time.Duration `mapstructure:"retry_backoff"`
	RetryBackoffMax         time.Duration `mapstructure:"retry_backoff_max"`
	BatchWorkers            int           `mapstructure:"batch_workers"`
	BatchLockTTL            time.Duration `mapstructure:"batch_lock_ttl"`
}

// LoggerConfig holds logger configuration.
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	bindEnvVars()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)

	viper.SetDefault("database.path", "data/reconciliation.db")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	viper.SetDefault("database.migrations_dir", "migrations")

	viper.SetDefault("redis.addr", "")
	viper.SetDefault("redis.db", 0)

	// Documented defaults: 5%/15% quantity bands, 2%/10% price bands, one
	// cent minor unit, 7 day lookback, price-only auto-adjust up to 25.00.
	viper.SetDefault("recon.quantity_low_threshold", 0.05)
	viper.SetDefault("recon.quantity_medium_threshold", 0.15)
	viper.SetDefault("recon.price_low_threshold", 0.02)
	viper.SetDefault("recon.price_medium_threshold", 0.10)
	viper.SetDefault("recon.minor_unit", "0.01")
	viper.SetDefault("recon.lookback_window", 7*24*time.Hour)
	viper.SetDefault("recon.auto_adjust_types", []string{"PRICE"})
	viper.SetDefault("recon.auto_adjust_ceiling", "25.00")
	viper.SetDefault("recon.retry_attempts", 3)
	viper.SetDefault("recon.retry_backoff", 200*time.Millisecond)
	viper.SetDefault("recon.retry_backoff_max", 5*time.Second)
	viper.SetDefault("recon.batch_workers", 8)
	viper.SetDefault("recon.batch_lock_ttl", 30*time.Minute)

	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.output_path", "stdout")
	viper.SetDefault("logger.format", "json")
}

func bindEnvVars() {
	viper.BindEnv("database.path", "RECON_DATABASE_PATH")
	viper.BindEnv("redis.addr", "RECON_REDIS_ADDR")
	viper.BindEnv("redis.password", "RECON_REDIS_PASSWORD")
	viper.BindEnv("server.port", "RECON_SERVER_PORT")
	viper.BindEnv("logger.level", "RECON_LOG_LEVEL")
}

// Validate checks structural configuration. Tolerance values get their full
// validation when the policy is built; this catches what would make the
// process unable to start at all.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in (0, 65535], got %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Recon.BatchWorkers < 1 {
		return fmt.Errorf("recon.batch_workers must be at least 1")
	}
	return nil
}
