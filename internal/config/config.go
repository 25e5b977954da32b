package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port           string
	AppEnv         string
	LogLevel       string
	AllowedOrigins []string

	MaxTime        int
	TimeBonus      int
	TickInterval   time.Duration
	IdleTimeout    time.Duration
	SweepInterval  time.Duration
	PersistTimeout time.Duration

	DatabaseURL string
	Database    DatabaseConfig

	NATSURL     string
	NATSSubject string

	Events []Event
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// Event is a tournament a round can count toward.
type Event struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
}

type eventsFile struct {
	Events []Event `yaml:"events"`
}

// Load reads .env (if present) and the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

func FromEnv() (Config, error) {
	var err error
	cfg := Config{
		Port:           getEnv("PORT", "10101"),
		AppEnv:         getEnv("APP_ENV", "production"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "https://web.telegram.org")),
		MaxTime:        getEnvAsInt("MAX_TIME", 15),
		TimeBonus:      getEnvAsInt("TIME_BONUS", 2),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", ""),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "lumberjack_user"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "lumberjack_db"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		NATSURL:     os.Getenv("NATS_URL"),
		NATSSubject: getEnv("NATS_SUBJECT", ""),
	}

	durations := []struct {
		key      string
		fallback time.Duration
		dst      *time.Duration
	}{
		{"TICK_INTERVAL", time.Second, &cfg.TickInterval},
		{"IDLE_TIMEOUT", 10 * time.Minute, &cfg.IdleTimeout},
		{"SWEEP_INTERVAL", 10 * time.Minute, &cfg.SweepInterval},
		{"PERSIST_TIMEOUT", 5 * time.Second, &cfg.PersistTimeout},
	}
	for _, d := range durations {
		if *d.dst, err = getEnvAsDuration(d.key, d.fallback); err != nil {
			return Config{}, err
		}
	}

	if path := os.Getenv("EVENTS_FILE"); path != "" {
		if cfg.Events, err = LoadEvents(path); err != nil {
			return Config{}, err
		}
	} else if id := os.Getenv("MAIN_EVENT_ID"); id != "" {
		cfg.Events = []Event{{
			ID:          id,
			Name:        "Main Tournament",
			Description: "Compete for the grand prize in the main event!",
		}}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.MaxTime <= 0 {
		return fmt.Errorf("MAX_TIME must be positive, got %d", c.MaxTime)
	}
	if c.TimeBonus < 0 {
		return fmt.Errorf("TIME_BONUS must not be negative, got %d", c.TimeBonus)
	}
	if c.TickInterval <= 0 || c.SweepInterval <= 0 || c.IdleTimeout <= 0 {
		return errors.New("TICK_INTERVAL, SWEEP_INTERVAL and IDLE_TIMEOUT must be positive")
	}
	return nil
}

func (c Config) Development() bool { return c.AppEnv == "development" }

// DSN returns the Postgres connection URL, or "" when no database is configured.
func (c Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	d := c.Database
	if d.Host == "" {
		return ""
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode,
	)
}

func LoadEvents(path string) ([]Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read events file: %w", err)
	}

	var f eventsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse events file: %w", err)
	}
	for i, e := range f.Events {
		if e.ID == "" {
			return nil, fmt.Errorf("event %d has no id", i)
		}
	}
	return f.Events, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
