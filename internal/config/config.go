package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const defaultSecretKey = "change-me-in-production"

// AppConfig represents the main application configuration
type AppConfig struct {
	Server     ServerConfig    `mapstructure:"server"`
	Database   DatabaseConfig  `mapstructure:"database"`
	Security   SecurityConfig  `mapstructure:"security"`
	JWT        JWTConfig       `mapstructure:"jwt"`
	Session    SessionConfig   `mapstructure:"session"`
	Storage    StorageConfig   `mapstructure:"storage"`
	Thumbnails ThumbnailConfig `mapstructure:"thumbnails"`
	Access     AccessConfig    `mapstructure:"access"`
	Redis      RedisConfig     `mapstructure:"redis"`
	Queue      QueueConfig     `mapstructure:"queue"`
	Events     EventsConfig    `mapstructure:"events"`
	Tracing    TracingConfig   `mapstructure:"tracing"`
	Logging    LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	Host         string        `mapstructure:"host"`
	Environment  string        `mapstructure:"environment"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	BodyLimitMB  int           `mapstructure:"body_limit_mb"`
}

// IsProduction reports whether the server runs with production settings
func (s ServerConfig) IsProduction() bool {
	return strings.EqualFold(s.Environment, "production")
}

// SecurityConfig holds the application secret
type SecurityConfig struct {
	SecretKey string `mapstructure:"secret_key"`
}

// JWTConfig represents API token configuration
type JWTConfig struct {
	AccessExpiry time.Duration `mapstructure:"access_expiry"`
}

// SessionConfig represents browser session configuration
type SessionConfig struct {
	CookieName string        `mapstructure:"cookie_name"`
	Expiration time.Duration `mapstructure:"expiration"`
	Secure     bool          `mapstructure:"secure"`
}

// StorageConfig describes where uploads live and what may be uploaded
type StorageConfig struct {
	UploadDir       string   `mapstructure:"upload_dir"`
	ThumbnailDir    string   `mapstructure:"thumbnail_dir"`
	VideoExtensions []string `mapstructure:"video_extensions"`
	ImageExtensions []string `mapstructure:"image_extensions"`
}

// ThumbnailConfig controls the thumbnail fallback chain
type ThumbnailConfig struct {
	FFmpegPath  string        `mapstructure:"ffmpeg_path"`
	FFprobePath string        `mapstructure:"ffprobe_path"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Width       int           `mapstructure:"width"`
	Height      int           `mapstructure:"height"`
	Quality     int           `mapstructure:"quality"`
	Strategies  []string      `mapstructure:"strategies"`
}

// AccessConfig controls the IP access gate
type AccessConfig struct {
	TrustedProxies []string      `mapstructure:"trusted_proxies"`
	ProxyHeaders   []string      `mapstructure:"proxy_headers"`
	ExemptPaths    []string      `mapstructure:"exempt_paths"`
	RequestLimit   int           `mapstructure:"request_limit"`
	RequestWindow  time.Duration `mapstructure:"request_window"`
	LoginLimit     int           `mapstructure:"login_limit"`
	LoginWindow    time.Duration `mapstructure:"login_window"`
}

// RedisConfig represents Redis configuration. An empty address disables Redis.
type RedisConfig struct {
	Address  string        `mapstructure:"address"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	PoolSize int           `mapstructure:"pool_size"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether a Redis address is configured
func (r RedisConfig) Enabled() bool {
	return r.Address != ""
}

// QueueConfig controls background thumbnail jobs
type QueueConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Concurrency   int    `mapstructure:"concurrency"`
	SweepSchedule string `mapstructure:"sweep_schedule"`
}

// EventsConfig controls library event publishing. An empty URL disables it.
type EventsConfig struct {
	AMQPURL string `mapstructure:"amqp_url"`
	Queue   string `mapstructure:"queue"`
}

// TracingConfig controls OpenTelemetry export
type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	UseOTLP  bool   `mapstructure:"use_otlp"`
	Endpoint string `mapstructure:"endpoint"`
}

// LoggingConfig controls the global logger
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ConfigLoader loads configuration into an isolated viper instance
type ConfigLoader struct {
	viper *viper.Viper
}

// NewConfigLoader creates a loader with search paths and defaults set
func NewConfigLoader() *ConfigLoader {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("REELVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	return &ConfigLoader{viper: v}
}

// SetConfigFile points the loader at an explicit config file
func (l *ConfigLoader) SetConfigFile(path string) {
	l.viper.SetConfigFile(path)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.read_timeout", 60*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Minute)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.body_limit_mb", 4096)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "reelvault.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "reelvault")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", DefaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", DefaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", DefaultConnMaxLifetime)
	v.SetDefault("database.conn_max_idle_time", DefaultConnMaxIdleTime)
	v.SetDefault("database.seed_file", "")

	v.SetDefault("security.secret_key", defaultSecretKey)
	v.SetDefault("jwt.access_expiry", 24*time.Hour)

	v.SetDefault("session.cookie_name", "reelvault_session")
	v.SetDefault("session.expiration", 7*24*time.Hour)
	v.SetDefault("session.secure", false)

	v.SetDefault("storage.upload_dir", "uploads/videos")
	v.SetDefault("storage.thumbnail_dir", "uploads/thumbnails")
	v.SetDefault("storage.video_extensions", []string{"mp4", "avi", "mkv", "mov", "wmv"})
	v.SetDefault("storage.image_extensions", []string{"png", "jpg", "jpeg", "gif"})

	v.SetDefault("thumbnails.ffmpeg_path", "ffmpeg")
	v.SetDefault("thumbnails.ffprobe_path", "ffprobe")
	v.SetDefault("thumbnails.timeout", 30*time.Second)
	v.SetDefault("thumbnails.width", 320)
	v.SetDefault("thumbnails.height", 240)
	v.SetDefault("thumbnails.quality", 85)
	v.SetDefault("thumbnails.strategies", []string{"frame", "first_frame", "placeholder"})

	v.SetDefault("access.trusted_proxies", []string{})
	v.SetDefault("access.proxy_headers", []string{"X-Forwarded-For", "X-Real-IP"})
	v.SetDefault("access.exempt_paths", []string{"/request-ip-access"})
	v.SetDefault("access.request_limit", 3)
	v.SetDefault("access.request_window", time.Hour)
	v.SetDefault("access.login_limit", 10)
	v.SetDefault("access.login_window", time.Minute)

	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.timeout", 5*time.Second)

	v.SetDefault("queue.enabled", false)
	v.SetDefault("queue.concurrency", 2)
	v.SetDefault("queue.sweep_schedule", "@every 1h")

	v.SetDefault("events.amqp_url", "")
	v.SetDefault("events.queue", "reelvault.library")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.use_otlp", false)
	v.SetDefault("tracing.endpoint", "localhost:4317")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// Load reads the config file (if any), applies env overrides and validates the result
func (l *ConfigLoader) Load() (*AppConfig, error) {
	if err := l.viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config AppConfig
	if err := l.viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

// LoadConfig loads .env (when present) and then the application configuration
func LoadConfig() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env: %w", err)
	}
	return NewConfigLoader().Load()
}

// validateConfig validates the configuration values
func validateConfig(config *AppConfig) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	if config.Security.SecretKey == "" {
		return fmt.Errorf("security.secret_key cannot be empty")
	}
	if config.Server.IsProduction() && config.Security.SecretKey == defaultSecretKey {
		return fmt.Errorf("security.secret_key is using default value - please change in production")
	}

	switch config.Database.Driver {
	case DriverSQLite:
		if config.Database.Path == "" {
			return fmt.Errorf("database.path cannot be empty for sqlite")
		}
	case DriverPostgres:
		if config.Database.Host == "" {
			return fmt.Errorf("database.host cannot be empty for postgres")
		}
	default:
		return fmt.Errorf("database.driver must be %q or %q", DriverSQLite, DriverPostgres)
	}

	if config.Storage.UploadDir == "" || config.Storage.ThumbnailDir == "" {
		return fmt.Errorf("storage.upload_dir and storage.thumbnail_dir cannot be empty")
	}
	if len(config.Storage.VideoExtensions) == 0 {
		return fmt.Errorf("storage.video_extensions cannot be empty")
	}

	if config.Thumbnails.Width <= 0 || config.Thumbnails.Height <= 0 {
		return fmt.Errorf("thumbnails.width and thumbnails.height must be positive")
	}
	if config.Thumbnails.Timeout <= 0 {
		return fmt.Errorf("thumbnails.timeout must be positive")
	}

	if config.JWT.AccessExpiry <= 0 {
		return fmt.Errorf("jwt.access_expiry must be positive")
	}

	if config.Queue.Enabled && !config.Redis.Enabled() {
		return fmt.Errorf("queue.enabled requires redis.address")
	}

	return nil
}
