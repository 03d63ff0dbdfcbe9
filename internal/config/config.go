// Package config loads service configuration from an optional YAML file
// with environment variable overrides. Environment always wins so deploys
// can tweak a single knob without editing the file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// Config captures runtime settings for the API server, the Bling client,
// the webhook pipeline and the durable store.
type Config struct {
	ListenAddr  string `yaml:"listenAddr"`
	DatabaseURL string `yaml:"databaseUrl"`
	RedisURL    string `yaml:"redisUrl"`

	// OAuth client credentials for the Bling API.
	ClientID     string `yaml:"clientId"`
	ClientSecret string `yaml:"clientSecret"`
	TokenURL     string `yaml:"tokenUrl"`
	TokenFile    string `yaml:"tokenFile"`

	APIBaseURL string `yaml:"apiBaseUrl"`

	// WebhookSecret signs inbound notifications. Bling uses the OAuth
	// client secret for this; leave empty to reuse ClientSecret.
	WebhookSecret string `yaml:"webhookSecret"`

	RequestsPerSecond int `yaml:"requestsPerSecond"`
	RequestsPerDay    int `yaml:"requestsPerDay"`
	MaxRetries        int `yaml:"maxRetries"`

	QueueCapacity int `yaml:"queueCapacity"`

	// Intake limits for the webhook endpoint itself.
	IntakeRPS   float64 `yaml:"intakeRps"`
	IntakeBurst int     `yaml:"intakeBurst"`

	SyncLookbackDays int           `yaml:"syncLookbackDays"`
	RequestTimeout   time.Duration `yaml:"requestTimeout"`
}

// Default returns the baseline configuration before file/env layering.
func Default() Config {
	return Config{
		ListenAddr:        ":8080",
		TokenURL:          "https://www.bling.com.br/Api/v3/oauth/token",
		TokenFile:         "tokens.json",
		APIBaseURL:        "https://api.bling.com.br/Api/v3",
		RequestsPerSecond: 3,
		RequestsPerDay:    120000,
		MaxRetries:        3,
		QueueCapacity:     1024,
		IntakeRPS:         50,
		IntakeBurst:       100,
		SyncLookbackDays:  180,
		RequestTimeout:    30 * time.Second,
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if it
// exists), then environment overrides. An empty path skips the file layer.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return cfg, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if cfg.WebhookSecret == "" {
		cfg.WebhookSecret = cfg.ClientSecret
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.RequestsPerSecond <= 0 {
		return fmt.Errorf("requestsPerSecond must be > 0, got %d", c.RequestsPerSecond)
	}
	if c.RequestsPerDay <= 0 {
		return fmt.Errorf("requestsPerDay must be > 0, got %d", c.RequestsPerDay)
	}
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("queueCapacity must be > 0, got %d", c.QueueCapacity)
	}
	if c.MaxRetries <= 0 {
		return fmt.Errorf("maxRetries must be > 0, got %d", c.MaxRetries)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setStr("PORT_ADDR", &cfg.ListenAddr)
	if v := os.Getenv("PORT"); v != "" {
		cfg.ListenAddr = ":" + v
	}
	setStr("DATABASE_URL", &cfg.DatabaseURL)
	setStr("REDIS_URL", &cfg.RedisURL)
	setStr("CLIENT_ID", &cfg.ClientID)
	setStr("CLIENT_SECRET", &cfg.ClientSecret)
	setStr("TOKEN_URL", &cfg.TokenURL)
	setStr("TOKEN_FILE", &cfg.TokenFile)
	setStr("API_BASE_URL", &cfg.APIBaseURL)
	setStr("WEBHOOK_SECRET", &cfg.WebhookSecret)

	for _, e := range []struct {
		key string
		dst *int
	}{
		{"REQUESTS_PER_SECOND", &cfg.RequestsPerSecond},
		{"REQUESTS_PER_DAY", &cfg.RequestsPerDay},
		{"MAX_RETRIES", &cfg.MaxRetries},
		{"QUEUE_CAPACITY", &cfg.QueueCapacity},
		{"INTAKE_BURST", &cfg.IntakeBurst},
		{"SYNC_LOOKBACK_DAYS", &cfg.SyncLookbackDays},
	} {
		if v := os.Getenv(e.key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", e.key, err)
			}
			*e.dst = n
		}
	}
	if v := os.Getenv("INTAKE_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("INTAKE_RPS: %w", err)
		}
		cfg.IntakeRPS = f
	}
	if v := os.Getenv("REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("REQUEST_TIMEOUT: %w", err)
		}
		cfg.RequestTimeout = d
	}
	return nil
}
