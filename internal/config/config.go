package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port" env:"PORT"`
		// AdminToken elevates gateway clients and REST callers presenting it.
		AdminToken string `yaml:"admin_token" env:"ADMIN_TOKEN"`
	} `yaml:"server"`
	Store struct {
		Driver string `yaml:"driver" env:"STORE_DRIVER"`
		DSN    string `yaml:"dsn" env:"STORE_DSN"`
	} `yaml:"store"`
	Redis struct {
		Addr     string `yaml:"addr" env:"REDIS_ADDR"`
		Password string `yaml:"password" env:"REDIS_PASSWORD"`
		DB       int    `yaml:"db" env:"REDIS_DB"`
		TTL      string `yaml:"ttl" env:"REDIS_TTL"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url" env:"POSTGRES_URL"`
	} `yaml:"postgres"`
	Quiz struct {
		Timeout      int    `yaml:"timeout" env:"QUIZ_TIMEOUT_MINUTES"`
		MaxResponses int    `yaml:"max_responses" env:"QUIZ_MAX_RESPONSES"`
		TTL          string `yaml:"ttl" env:"QUIZ_CACHE_TTL"`
		Bank         string `yaml:"bank" env:"QUIZ_BANK_PATH"`
	} `yaml:"quiz"`
	Schedule struct {
		DefaultHour     int    `yaml:"default_hour" env:"SCHEDULE_DEFAULT_HOUR"`
		DefaultMinute   int    `yaml:"default_minute" env:"SCHEDULE_DEFAULT_MINUTE"`
		DefaultTimezone string `yaml:"default_timezone" env:"SCHEDULE_DEFAULT_TIMEZONE"`
		Tick            string `yaml:"tick" env:"SCHEDULE_TICK"`
		Dedupe          bool   `yaml:"dedupe" env:"SCHEDULE_DEDUPE"`
	} `yaml:"schedule"`
	Leaderboard struct {
		Limit int `yaml:"limit" env:"LEADERBOARD_LIMIT"`
	} `yaml:"leaderboard"`
	Log struct {
		Level  string `yaml:"level" env:"LOG_LEVEL"`
		Format string `yaml:"format" env:"LOG_FORMAT"`
	} `yaml:"log"`
}

// Default returns the configuration used when neither file nor env sets a key.
func Default() Config {
	var cfg Config
	cfg.Server.Port = "8080"
	cfg.Store.Driver = "memory"
	cfg.Redis.TTL = "10m"
	cfg.Quiz.Timeout = 5
	cfg.Quiz.TTL = "10m"
	cfg.Schedule.DefaultHour = 9
	cfg.Schedule.DefaultTimezone = "UTC"
	cfg.Schedule.Tick = "1m"
	cfg.Schedule.Dedupe = true
	cfg.Leaderboard.Limit = 10
	cfg.Log.Level = "info"
	cfg.Log.Format = "color"
	return cfg
}

// LoadDotEnv loads the first .env style file found; a missing file is not an error.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		err := godotenv.Load(path)
		if err == nil {
			return nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// Load reads YAML config from path on top of Default and applies env overrides.
// A missing file leaves the defaults in place.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, err
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Store.Driver {
	case "memory", "postgres", "sqlite", "mysql":
	default:
		return fmt.Errorf("store.driver %q: want memory, postgres, sqlite or mysql", c.Store.Driver)
	}
	if c.Store.Driver == "postgres" && c.PostgresURL() == "" {
		return errors.New("store.driver postgres needs postgres.url")
	}
	if (c.Store.Driver == "sqlite" || c.Store.Driver == "mysql") && c.Store.DSN == "" {
		return fmt.Errorf("store.driver %s needs store.dsn", c.Store.Driver)
	}
	if c.Quiz.Timeout <= 0 {
		return fmt.Errorf("quiz.timeout must be positive, got %d", c.Quiz.Timeout)
	}
	if c.Quiz.MaxResponses < 0 {
		return fmt.Errorf("quiz.max_responses must not be negative, got %d", c.Quiz.MaxResponses)
	}
	return nil
}

// PostgresURL prefers postgres.url and falls back to store.dsn.
func (c Config) PostgresURL() string {
	if c.Postgres.URL != "" {
		return c.Postgres.URL
	}
	if c.Store.Driver == "postgres" {
		return c.Store.DSN
	}
	return ""
}

func (c Config) QuizTimeout() time.Duration {
	return time.Duration(c.Quiz.Timeout) * time.Minute
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
