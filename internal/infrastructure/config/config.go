package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the service
type Config struct {
	Environment  string             `mapstructure:"environment"`
	LogLevel     string             `mapstructure:"log_level"`
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Attestation  AttestationConfig  `mapstructure:"attestation"`
	Wallet       WalletConfig       `mapstructure:"wallet"`
	Retention    RetentionConfig    `mapstructure:"retention"`
	Notification NotificationConfig `mapstructure:"notification"`
	Tracing      TracingConfig      `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	Host           string   `mapstructure:"host"`
	ReadTimeout    int      `mapstructure:"read_timeout"`
	WriteTimeout   int      `mapstructure:"write_timeout"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	URL             string `mapstructure:"url"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AttestationConfig controls the Iris API client and the poll loop
type AttestationConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	Environment     string        `mapstructure:"environment"` // "mainnet" or "testnet"
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	MaxPollDuration time.Duration `mapstructure:"max_poll_duration"` // 0 = unbounded
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
}

// WalletConfig points at the external signer that executes on-chain
// operations on the user's behalf
type WalletConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// RetentionConfig bounds durable storage growth
type RetentionConfig struct {
	KeepTransactions  int    `mapstructure:"keep_transactions"`
	KeepNotifications int    `mapstructure:"keep_notifications"`
	CronSpec          string `mapstructure:"cron_spec"`
}

type NotificationConfig struct {
	MirrorCapacity int    `mapstructure:"mirror_capacity"`
	EventChannel   string `mapstructure:"event_channel"`
}

type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	CollectorURL string  `mapstructure:"collector_url"`
	SampleRate   float64 `mapstructure:"sample_rate"`
}

// Load reads configuration from configs/config.yaml and the environment
func Load() (*Config, error) {
	// Load .env if present, ignore when absent
	godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if config.Database.URL == "" {
		config.Database.URL = fmt.Sprintf(
			"postgres://%s:%s@%s:%d/%s?sslmode=%s",
			config.Database.User,
			config.Database.Password,
			config.Database.Host,
			config.Database.Port,
			config.Database.Name,
			config.Database.SSLMode,
		)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", 30)
	viper.SetDefault("server.write_timeout", 30)
	viper.SetDefault("server.allowed_origins", []string{"*"})

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "relay_service")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 300)

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("attestation.environment", "testnet")
	viper.SetDefault("attestation.poll_interval", 5*time.Second)
	viper.SetDefault("attestation.max_poll_duration", time.Duration(0))
	viper.SetDefault("attestation.request_timeout", 30*time.Second)

	viper.SetDefault("wallet.base_url", "http://localhost:9090")
	viper.SetDefault("wallet.request_timeout", 60*time.Second)

	viper.SetDefault("retention.keep_transactions", 100)
	viper.SetDefault("retention.keep_notifications", 100)
	viper.SetDefault("retention.cron_spec", "0 */6 * * *")

	viper.SetDefault("notification.mirror_capacity", 50)
	viper.SetDefault("notification.event_channel", "relay:notifications")

	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.collector_url", "localhost:4317")
	viper.SetDefault("tracing.sample_rate", 1.0)
}

func validate(cfg *Config) error {
	if cfg.Attestation.PollInterval <= 0 {
		return fmt.Errorf("attestation.poll_interval must be positive")
	}
	if cfg.Retention.KeepTransactions < 0 || cfg.Retention.KeepNotifications < 0 {
		return fmt.Errorf("retention keep counts must not be negative")
	}
	if cfg.Notification.MirrorCapacity <= 0 {
		return fmt.Errorf("notification.mirror_capacity must be positive")
	}
	switch cfg.Attestation.Environment {
	case "mainnet", "testnet":
	default:
		return fmt.Errorf("attestation.environment must be mainnet or testnet, got %q", cfg.Attestation.Environment)
	}
	return nil
}
