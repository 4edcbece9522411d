package config

import (
	"log"
	"time"

	"github.com/spf13/viper"

	"github.com/wakewise/notification-engine/internal/scheduler"
)

// Config holds all configuration for the scheduling engine
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	API        APIConfig        `mapstructure:"api"`
	Firebase   FirebaseConfig   `mapstructure:"firebase"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Engine     EngineConfig     `mapstructure:"engine"`
	Scheduling scheduler.Config `mapstructure:"scheduling"`
}

// DatabaseConfig holds PostgreSQL configuration for the audit store
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// RedisConfig holds Redis configuration for the durable state store
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// KafkaConfig holds the lifecycle event stream configuration
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// APIConfig holds API server configuration
type APIConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// FirebaseConfig holds the platform notifier configuration
type FirebaseConfig struct {
	CredentialsPath string `mapstructure:"credentials_path"`
	DeviceToken     string `mapstructure:"device_token"`
}

// MetricsConfig holds monitoring configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// EngineConfig holds engine-internal cadences and retention
type EngineConfig struct {
	ContextRefreshInterval time.Duration `mapstructure:"context_refresh_interval"`
	AuditRetention         time.Duration `mapstructure:"audit_retention"`
	PurgeInterval          time.Duration `mapstructure:"purge_interval"`
}

// LoadConfig loads configuration from environment variables and config files
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Set default values
	setDefaults()

	// Read from environment variables
	viper.AutomaticEnv()

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		log.Println("Config file not found, using environment variables and defaults")
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.database", "wakewise")
	viper.SetDefault("database.ssl_mode", "disable")

	// Redis defaults
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// Kafka defaults
	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("kafka.topic", "notification-events")

	// API defaults
	viper.SetDefault("api.host", "0.0.0.0")
	viper.SetDefault("api.port", 8080)

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.port", 9091)
	viper.SetDefault("metrics.path", "/metrics")

	// Engine defaults
	viper.SetDefault("engine.context_refresh_interval", 5*time.Minute)
	viper.SetDefault("engine.audit_retention", 30*24*time.Hour)
	viper.SetDefault("engine.purge_interval", 24*time.Hour)

	// Scheduling defaults
	defaults := scheduler.DefaultConfig()
	viper.SetDefault("scheduling.adaptive_enabled", defaults.AdaptiveEnabled)
	viper.SetDefault("scheduling.respect_do_not_disturb", defaults.RespectDoNotDisturb)
	viper.SetDefault("scheduling.battery_optimization", defaults.BatteryOptimization)
	viper.SetDefault("scheduling.location_aware", defaults.LocationAware)
	viper.SetDefault("scheduling.progressive_escalation", defaults.ProgressiveEscalation)
	viper.SetDefault("scheduling.max_notifications_per_hour", defaults.MaxNotificationsPerHour)
	viper.SetDefault("scheduling.quiet_hours_start", defaults.QuietHoursStart)
	viper.SetDefault("scheduling.quiet_hours_end", defaults.QuietHoursEnd)
	viper.SetDefault("scheduling.emergency_override", defaults.EmergencyOverride)

	// Map environment variables
	viper.BindEnv("database.host", "DB_HOST")
	viper.BindEnv("database.port", "DB_PORT")
	viper.BindEnv("database.user", "DB_USER")
	viper.BindEnv("database.password", "DB_PASSWORD")
	viper.BindEnv("database.database", "DB_NAME")
	viper.BindEnv("redis.addr", "REDIS_ADDR")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	viper.BindEnv("firebase.credentials_path", "FIREBASE_CREDENTIALS_PATH")
	viper.BindEnv("firebase.device_token", "FIREBASE_DEVICE_TOKEN")
}
