package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location, relative to the working
// directory. Override with the CONFIG_PATH environment variable.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port                    string `yaml:"port"`
	DatabaseURL             string `yaml:"databaseURL"`
	RedisAddr               string `yaml:"redisAddr"`
	RedisPassword           string `yaml:"redisPassword"`
	SessionSecret           string `yaml:"sessionSecret"`
	ResetSecret             string `yaml:"resetSecret"`
	SessionTTL              string `yaml:"sessionTTL"`
	ResetTTL                string `yaml:"resetTTL"`
	LogLevel                string `yaml:"logLevel"`
	FrontendBaseURL         string `yaml:"frontendBaseURL"`
	TMDBBootstrapKey        string `yaml:"tmdbBootstrapKey"`
	SendGridAPIKey          string `yaml:"sendgridApiKey"`
	MailFromName            string `yaml:"mailFromName"`
	MailFromEmail           string `yaml:"mailFromEmail"`
	LoginRateLimitPerMinute int    `yaml:"loginRateLimitPerMinute"`
	ResetRateLimitPerMinute int    `yaml:"resetRateLimitPerMinute"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	// Override with environment variables
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("SESSION_SECRET"); v != "" {
		cfg.SessionSecret = v
	}
	if v := os.Getenv("RESET_SECRET"); v != "" {
		cfg.ResetSecret = v
	}
	if v := os.Getenv("SESSION_TTL"); v != "" {
		cfg.SessionTTL = v
	}
	if v := os.Getenv("RESET_TTL"); v != "" {
		cfg.ResetTTL = v
	}
	if v := os.Getenv("FRONTEND_BASE_URL"); v != "" {
		cfg.FrontendBaseURL = v
	}
	if v := os.Getenv("TMDB_BOOTSTRAP_KEY"); v != "" {
		cfg.TMDBBootstrapKey = v
	}
	if v := os.Getenv("SENDGRID_API_KEY"); v != "" {
		cfg.SendGridAPIKey = v
	}
	if v := os.Getenv("MAIL_FROM_NAME"); v != "" {
		cfg.MailFromName = v
	}
	if v := os.Getenv("MAIL_FROM_EMAIL"); v != "" {
		cfg.MailFromEmail = v
	}
	if v := os.Getenv("LOGIN_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LoginRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("RESET_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ResetRateLimitPerMinute = n
		}
	}
	if cfg.ResetSecret == "" {
		cfg.ResetSecret = cfg.SessionSecret
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml)")
	}
	if cfg.SessionSecret == "" {
		return errors.New("config: sessionSecret is required (set SESSION_SECRET)")
	}
	if cfg.LoginRateLimitPerMinute < 0 || cfg.ResetRateLimitPerMinute < 0 {
		return errors.New("config: rate limits must be >= 0")
	}
	return nil
}

// ParseTTL parses an optional TTL duration string.
func ParseTTL(ttlStr string) (time.Duration, error) {
	if ttlStr == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(ttlStr)
	if err != nil {
		return 0, fmt.Errorf("invalid TTL duration: %w", err)
	}
	return dur, nil
}
