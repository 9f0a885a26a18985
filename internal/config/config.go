// Package config loads service settings.
//
// Precedence, lowest first: built-in defaults, the YAML file (path from the
// --config flag or STARSWIPE_CONFIG), a .env file in the working directory,
// then real environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const configPathEnv = "STARSWIPE_CONFIG"

// Config holds every setting the process needs.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
	GitHub   GitHubConfig   `yaml:"github"`
	Log      LogConfig      `yaml:"log"`
	Jobs     JobsConfig     `yaml:"jobs"`
	Tasks    TasksConfig    `yaml:"tasks"`
}

// ServerConfig is the HTTP surface.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	FrontendURL     string        `yaml:"frontendUrl"`
	CORSOrigins     []string      `yaml:"corsOrigins"`
	CookieSecure    bool          `yaml:"cookieSecure"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// DatabaseConfig selects the store driver.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "postgres"
	DSN    string `yaml:"dsn"`
}

// RedisConfig is the fast cache and the job queue.
type RedisConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// AuthConfig holds secrets and the OAuth app.
type AuthConfig struct {
	JWTSecret          string `yaml:"jwtSecret"`
	EncryptionKey      string `yaml:"encryptionKey"`
	GitHubClientID     string `yaml:"githubClientId"`
	GitHubClientSecret string `yaml:"githubClientSecret"`
	GitHubCallbackURL  string `yaml:"githubCallbackUrl"`
}

// GitHubConfig is the outbound REST client.
type GitHubConfig struct {
	APIURL            string  `yaml:"apiUrl"`
	Token             string  `yaml:"token"`
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// JobsConfig holds cron specs for the periodic jobs and the lease length.
type JobsConfig struct {
	LeaderboardSchedule string        `yaml:"leaderboardSchedule"`
	VisibilitySchedule  string        `yaml:"visibilitySchedule"`
	AbuseSweepSchedule  string        `yaml:"abuseSweepSchedule"`
	GitHubSyncSchedule  string        `yaml:"githubSyncSchedule"`
	ReconcileSchedule   string        `yaml:"reconcileSchedule"`
	LeaseTTL            time.Duration `yaml:"leaseTtl"`
	Concurrency         int           `yaml:"concurrency"`
}

// TasksConfig sizes the in-process side-effect pool.
type TasksConfig struct {
	Workers     int           `yaml:"workers"`
	QueueSize   int           `yaml:"queueSize"`
	TaskTimeout time.Duration `yaml:"taskTimeout"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			FrontendURL:     "http://localhost:3000",
			CORSOrigins:     []string{"http://localhost:3000"},
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{Driver: "sqlite", DSN: "data/starswipe.db"},
		Redis:    RedisConfig{URL: "redis://localhost:6379/0", Timeout: 250 * time.Millisecond},
		GitHub:   GitHubConfig{APIURL: "https://api.github.com", RequestsPerSecond: 10},
		Log:      LogConfig{Level: "info", Format: "text"},
		Jobs: JobsConfig{
			LeaderboardSchedule: "@hourly",
			VisibilitySchedule:  "@hourly",
			AbuseSweepSchedule:  "@daily",
			GitHubSyncSchedule:  "@every 5m",
			ReconcileSchedule:   "@every 15m",
			LeaseTTL:            30 * time.Minute,
			Concurrency:         2,
		},
		Tasks: TasksConfig{Workers: 4, QueueSize: 256, TaskTimeout: 15 * time.Second},
	}
}

// Load builds the configuration. An explicit path that cannot be read or
// parsed is an error; an absent .env file is not.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	// godotenv never overrides variables that are already set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: loading .env: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if cfg.Auth.GitHubCallbackURL == "" {
		cfg.Auth.GitHubCallbackURL = fmt.Sprintf("http://localhost:%d/auth/github/callback", cfg.Server.Port)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: invalid PORT %q", v)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("COOKIE_SECURE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: invalid COOKIE_SECURE %q", v)
		}
		c.Server.CookieSecure = b
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.Server.CORSOrigins = splitList(v)
	}

	setString(&c.Server.FrontendURL, "FRONTEND_URL")
	setString(&c.Database.Driver, "DATABASE_DRIVER")
	setString(&c.Database.DSN, "DATABASE_DSN")
	setString(&c.Redis.URL, "REDIS_URL")
	setString(&c.Auth.JWTSecret, "JWT_SECRET")
	setString(&c.Auth.EncryptionKey, "ENCRYPTION_KEY")
	setString(&c.Auth.GitHubClientID, "GITHUB_CLIENT_ID")
	setString(&c.Auth.GitHubClientSecret, "GITHUB_CLIENT_SECRET")
	setString(&c.Auth.GitHubCallbackURL, "GITHUB_CALLBACK_URL")
	setString(&c.GitHub.APIURL, "GITHUB_API_URL")
	setString(&c.GitHub.Token, "GITHUB_TOKEN")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.Format, "LOG_FORMAT")
	return nil
}

// Validate reports every missing or malformed setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server port %d out of range", c.Server.Port))
	}
	switch strings.ToLower(c.Database.Driver) {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("unsupported database driver %q", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("DATABASE_DSN is required"))
	}
	if c.Redis.URL == "" {
		errs = append(errs, errors.New("REDIS_URL is required"))
	}
	if len(c.Auth.JWTSecret) < 16 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 16 characters"))
	}
	if len(c.Auth.EncryptionKey) < 16 {
		errs = append(errs, errors.New("ENCRYPTION_KEY must be at least 16 characters"))
	}
	if c.Auth.GitHubClientID == "" || c.Auth.GitHubClientSecret == "" {
		errs = append(errs, errors.New("GITHUB_CLIENT_ID and GITHUB_CLIENT_SECRET are required"))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("config: %w", errors.Join(errs...))
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
