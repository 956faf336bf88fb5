// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type DatabaseConfig struct {
	Filename string `yaml:"filename"`
}

type RemoteConfig struct {
	// Base URLs of the collaborating services, e.g. http://localhost:8081.
	ReservationURL string `yaml:"reservation_url"`
	CourtURL       string `yaml:"court_url"`
	ClubURL        string `yaml:"club_url"`
	UserURL        string `yaml:"user_url"`

	TimeoutSeconds int `yaml:"timeout_seconds"`
}

func (r RemoteConfig) Timeout() time.Duration {
	if r.TimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(r.TimeoutSeconds) * time.Second
}

type OutboxConfig struct {
	SweepCron   string `yaml:"sweep_cron"`
	MaxAttempts int    `yaml:"max_attempts"`
}

type NotifyConfig struct {
	SweepCron  string `yaml:"sweep_cron"`
	MaxRetries int    `yaml:"max_retries"`
	Sender     string `yaml:"sender"`
	SESRegion  string `yaml:"ses_region"`
	// Loaded from environment, never from YAML.
	SESAccessKeyID     string `yaml:"-"`
	SESSecretAccessKey string `yaml:"-"`
}

type CacheConfig struct {
	Capacity   int `yaml:"capacity"`
	TTLSeconds int `yaml:"ttl_seconds"`
}

func (c CacheConfig) TTL() time.Duration {
	if c.TTLSeconds <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.TTLSeconds) * time.Second
}

type PaymentConfig struct {
	// MaxAmount is the ceiling accepted for a single payment, as a
	// decimal string.
	MaxAmount string `yaml:"max_amount"`
}

type Config struct {
	App struct {
		Name        string `yaml:"name"`
		Environment string `yaml:"environment"`
		Port        int    `yaml:"port"`
	} `yaml:"app"`

	Database DatabaseConfig `yaml:"database"`
	Remotes  RemoteConfig   `yaml:"remotes"`
	Payment  PaymentConfig  `yaml:"payment"`
	Outbox   OutboxConfig   `yaml:"outbox"`
	Notify   NotifyConfig   `yaml:"notify"`
	Cache    CacheConfig    `yaml:"cache"`

	ShutdownTimeoutSeconds int `yaml:"shutdown_timeout_seconds"`
}

func (c *Config) ShutdownTimeout() time.Duration {
	if c.ShutdownTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// Load loads both .env and yaml configuration.
func Load(configPath string) (*Config, error) {
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	// Sensitive values come from the environment.
	cfg.Notify.SESAccessKeyID = os.Getenv("SES_ACCESS_KEY_ID")
	cfg.Notify.SESSecretAccessKey = os.Getenv("SES_SECRET_ACCESS_KEY")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}
	if c.App.Port == 0 {
		return fmt.Errorf("app port is required")
	}
	if c.Database.Filename == "" {
		return fmt.Errorf("database filename is required")
	}
	if c.Outbox.MaxAttempts < 0 {
		return fmt.Errorf("outbox max_attempts must not be negative")
	}
	if c.Cache.Capacity < 0 {
		return fmt.Errorf("cache capacity must not be negative")
	}
	return nil
}
