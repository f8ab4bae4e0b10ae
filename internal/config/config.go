// Package config loads the meetapp configuration.
//
// Values come from three layers, highest precedence first:
//
//  1. environment variables (a .env file in the working directory is loaded
//     into the environment first, without overriding variables already set)
//  2. an optional YAML file named by CONFIG_FILE or passed to Load
//  3. built-in defaults
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/mail"
	"os"
	"strconv"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DevJWTSecret is the signing secret used when none is configured.
const DevJWTSecret = "meetapp-dev-secret"

// Config is the complete application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Redis     RedisConfig     `yaml:"redis"`
	Mail      MailConfig      `yaml:"mail"`
	Uploads   UploadsConfig   `yaml:"uploads"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Worker    WorkerConfig    `yaml:"worker"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" env:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT"`

	// CORSOrigins lists allowed browser origins. In the environment the
	// entries are separated by semicolons.
	CORSOrigins []string `yaml:"cors_origins" env:"CORS_ORIGINS"`
}

type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `yaml:"driver" env:"DB_DRIVER"`
	Path   string `yaml:"path" env:"DB_PATH"`
	DSN    string `yaml:"dsn" env:"DATABASE_URL"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret" env:"JWT_SECRET"`
	TokenTTL  time.Duration `yaml:"token_ttl" env:"JWT_TTL"`
}

// RedisConfig configures the job queue. An empty Addr selects the
// in-process queue.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
	Prefix   string `yaml:"prefix" env:"REDIS_PREFIX"`
}

// MailConfig configures outgoing mail. An empty Host logs mail instead of
// sending it.
type MailConfig struct {
	Host     string `yaml:"host" env:"MAIL_HOST"`
	Port     int    `yaml:"port" env:"MAIL_PORT"`
	User     string `yaml:"user" env:"MAIL_USER"`
	Password string `yaml:"password" env:"MAIL_PASS"`
	From     string `yaml:"from" env:"MAIL_FROM"`
}

type UploadsConfig struct {
	Dir      string `yaml:"dir" env:"UPLOAD_DIR"`
	MaxBytes int64  `yaml:"max_bytes" env:"UPLOAD_MAX_BYTES"`

	// BaseURL prefixes public file URLs.
	BaseURL string `yaml:"base_url" env:"APP_URL"`
}

// RateLimitConfig configures per-client request limits. Zero RPS or Burst
// take the defaults; set Disabled to turn limiting off.
type RateLimitConfig struct {
	Disabled bool    `yaml:"disabled" env:"RATE_LIMIT_DISABLED"`
	RPS      float64 `yaml:"rps" env:"RATE_LIMIT_RPS"`
	Burst    int     `yaml:"burst" env:"RATE_LIMIT_BURST"`

	// Cleanup is the cron schedule for dropping idle limiters.
	Cleanup string        `yaml:"cleanup" env:"RATE_LIMIT_CLEANUP"`
	IdleTTL time.Duration `yaml:"idle_ttl" env:"RATE_LIMIT_IDLE_TTL"`
}

type WorkerConfig struct {
	// DepthSchedule is the cron schedule for sampling the queue backlog.
	DepthSchedule string `yaml:"depth_schedule" env:"WORKER_DEPTH_SCHEDULE"`
	MetricsPort   int    `yaml:"metrics_port" env:"WORKER_METRICS_PORT"`
}

type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level" env:"LOG_LEVEL"`
	// Format is "text" (colored) or "json".
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// Load builds the configuration. path names a YAML file; when empty the
// CONFIG_FILE environment variable is used, and when that is empty too no
// file is read.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{}

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("failed to decode environment: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	setDefault(&c.Server.Port, 8080)
	setDefault(&c.Server.ReadTimeout, 15*time.Second)
	setDefault(&c.Server.WriteTimeout, 30*time.Second)
	setDefault(&c.Server.ShutdownTimeout, 10*time.Second)
	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = []string{"*"}
	}

	setDefault(&c.Database.Driver, "sqlite")
	setDefault(&c.Database.Path, "data/meetapp.db")

	setDefault(&c.Auth.JWTSecret, DevJWTSecret)
	setDefault(&c.Auth.TokenTTL, 7*24*time.Hour)

	setDefault(&c.Redis.Prefix, "meetapp:")

	setDefault(&c.Mail.Port, 587)
	setDefault(&c.Mail.From, "Meetapp <noreply@meetapp.local>")

	setDefault(&c.Uploads.Dir, "tmp/uploads")
	setDefault(&c.Uploads.MaxBytes, 5<<20)
	setDefault(&c.Uploads.BaseURL, "http://localhost:"+strconv.Itoa(c.Server.Port))

	setDefault(&c.RateLimit.RPS, 10)
	setDefault(&c.RateLimit.Burst, 20)
	setDefault(&c.RateLimit.Cleanup, "@every 5m")
	setDefault(&c.RateLimit.IdleTTL, 10*time.Minute)

	setDefault(&c.Worker.DepthSchedule, "@every 15s")
	setDefault(&c.Worker.MetricsPort, 9091)

	setDefault(&c.Log.Level, "info")
	setDefault(&c.Log.Format, "text")
}

func setDefault[T comparable](field *T, value T) {
	var zero T
	if *field == zero {
		*field = value
	}
}

// Validate reports configuration that cannot work.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
	case "postgres":
		if c.Database.DSN == "" {
			return errors.New("database.dsn (DATABASE_URL) is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		return errors.New("rate limit values must not be negative")
	}
	if c.Mail.Host != "" {
		if _, err := mail.ParseAddress(c.Mail.From); err != nil {
			return fmt.Errorf("invalid mail sender %q: %w", c.Mail.From, err)
		}
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

// Addr returns the listen address of the API server.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Server.Port)
}
