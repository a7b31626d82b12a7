package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	defaultJWTSecret = "dev_secret"
	minJWTSecret     = 32
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string
	Timezone  string

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Rollbar       RollbarConfig
	Dashboard     DashboardConfig
	Notifications NotificationConfig
	Migrations    MigrationConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Issuer            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// RollbarConfig enables forwarding of error logs when a token is present.
type RollbarConfig struct {
	Token       string
	Environment string
	CodeVersion string
}

// DashboardConfig governs dashboard cache tuning.
type DashboardConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
	TrendMonths  int
}

// NotificationConfig selects the due-date reminder channel and its worker pool.
type NotificationConfig struct {
	Channel        string
	SendGridAPIKey string
	FromEmail      string
	FromName       string
	Workers        int
	MaxRetries     int
	RetryDelay     time.Duration
	SendTimeout    time.Duration
}

// MigrationConfig points the migrate command at SQL files on disk. An empty
// Dir selects the migrations embedded in the binary.
type MigrationConfig struct {
	Dir string
}

// Location resolves the school timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	if c == nil || c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsProduction reports whether the service runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// Addr is the listen address of the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate reports every setting that would make the service misbehave at
// runtime instead of failing on the first one.
func (c *Config) Validate() error {
	var problems []error
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		problems = append(problems, fmt.Errorf("TIMEZONE %q: %w", c.Timezone, err))
	}
	if c.IsProduction() && (c.JWT.Secret == defaultJWTSecret || len(c.JWT.Secret) < minJWTSecret) {
		problems = append(problems, fmt.Errorf("JWT_SECRET must be set to at least %d characters in production", minJWTSecret))
	}
	if c.JWT.RefreshExpiration <= c.JWT.Expiration {
		problems = append(problems, errors.New("REFRESH_TOKEN_EXPIRATION must outlive JWT_EXPIRATION"))
	}
	switch c.Notifications.Channel {
	case "log":
	case "sendgrid":
		if c.Notifications.SendGridAPIKey == "" {
			problems = append(problems, errors.New("SENDGRID_API_KEY is required for the sendgrid channel"))
		}
	default:
		problems = append(problems, fmt.Errorf("NOTIFY_CHANNEL %q is not supported", c.Notifications.Channel))
	}
	return errors.Join(problems...)
}

// Load reads .env (when present) and the process environment, the latter
// taking precedence.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func fromViper(v *viper.Viper) *Config {
	env := v.GetString("ENV")
	return &Config{
		Env:       env,
		Port:      v.GetInt("PORT"),
		APIPrefix: v.GetString("API_PREFIX"),
		Timezone:  v.GetString("TIMEZONE"),
		Database: DatabaseConfig{
			Host:         v.GetString("DB_HOST"),
			Port:         v.GetInt("DB_PORT"),
			User:         v.GetString("DB_USER"),
			Password:     v.GetString("DB_PASSWORD"),
			Name:         v.GetString("DB_NAME"),
			SSLMode:      v.GetString("DB_SSL_MODE"),
			MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("REDIS_ENABLED"),
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetInt("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		JWT: JWTConfig{
			Secret:            v.GetString("JWT_SECRET"),
			Issuer:            v.GetString("JWT_ISSUER"),
			Expiration:        duration(v, "JWT_EXPIRATION"),
			RefreshExpiration: duration(v, "REFRESH_TOKEN_EXPIRATION"),
		},
		CORS: CORSConfig{AllowedOrigins: list(v.GetString("ALLOWED_ORIGINS"))},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		Rollbar: RollbarConfig{
			Token:       v.GetString("ROLLBAR_TOKEN"),
			Environment: env,
			CodeVersion: v.GetString("BUILD_VERSION"),
		},
		Dashboard: DashboardConfig{
			CacheEnabled: v.GetBool("ENABLE_DASHBOARD_CACHE"),
			CacheTTL:     duration(v, "DASHBOARD_CACHE_TTL"),
			TrendMonths:  v.GetInt("DASHBOARD_TREND_MONTHS"),
		},
		Notifications: NotificationConfig{
			Channel:        strings.ToLower(strings.TrimSpace(v.GetString("NOTIFY_CHANNEL"))),
			SendGridAPIKey: v.GetString("SENDGRID_API_KEY"),
			FromEmail:      v.GetString("NOTIFY_FROM_EMAIL"),
			FromName:       v.GetString("NOTIFY_FROM_NAME"),
			Workers:        v.GetInt("NOTIFY_WORKERS"),
			MaxRetries:     v.GetInt("NOTIFY_RETRIES"),
			RetryDelay:     duration(v, "NOTIFY_RETRY_DELAY"),
			SendTimeout:    duration(v, "NOTIFY_SEND_TIMEOUT"),
		},
		Migrations: MigrationConfig{Dir: v.GetString("MIGRATIONS_DIR")},
	}
}

var defaults = map[string]interface{}{
	"ENV":        EnvDevelopment,
	"PORT":       8080,
	"API_PREFIX": "/api/v1",
	"TIMEZONE":   "America/Sao_Paulo",

	"DB_HOST":           "localhost",
	"DB_PORT":           5432,
	"DB_USER":           "postgres",
	"DB_PASSWORD":       "postgres",
	"DB_NAME":           "voxen",
	"DB_SSL_MODE":       "disable",
	"DB_MAX_OPEN_CONNS": 10,
	"DB_MAX_IDLE_CONNS": 5,

	"REDIS_ENABLED":  false,
	"REDIS_HOST":     "localhost",
	"REDIS_PORT":     6379,
	"REDIS_PASSWORD": "",
	"REDIS_DB":       0,

	"JWT_SECRET":               defaultJWTSecret,
	"JWT_ISSUER":               "voxen-api",
	"JWT_EXPIRATION":           "24h",
	"REFRESH_TOKEN_EXPIRATION": "168h",

	"ALLOWED_ORIGINS": "",
	"LOG_LEVEL":       "info",
	"LOG_FORMAT":      "json",
	"ROLLBAR_TOKEN":   "",
	"BUILD_VERSION":   "dev",

	"ENABLE_DASHBOARD_CACHE": false,
	"DASHBOARD_CACHE_TTL":    "1m",
	"DASHBOARD_TREND_MONTHS": 12,

	"NOTIFY_CHANNEL":      "log",
	"SENDGRID_API_KEY":    "",
	"NOTIFY_FROM_EMAIL":   "financeiro@voxen.com.br",
	"NOTIFY_FROM_NAME":    "Voxen",
	"NOTIFY_WORKERS":      4,
	"NOTIFY_RETRIES":      2,
	"NOTIFY_RETRY_DELAY":  "2s",
	"NOTIFY_SEND_TIMEOUT": "15s",

	"MIGRATIONS_DIR": "",
}

func setDefaults(v *viper.Viper) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// duration reads key as a Go duration. A malformed value falls back to the
// registered default.
func duration(v *viper.Viper, key string) time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(v.GetString(key))); err == nil {
		return d
	}
	d, _ := time.ParseDuration(fmt.Sprint(defaults[key]))
	return d
}

func list(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
