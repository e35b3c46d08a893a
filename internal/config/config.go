// Package config loads application configuration from environment
// variables, optionally seeded from a .env file.
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
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable.
type Config struct {
	Env            string // application environment (dev, test, prod)
	Port           string // HTTP port to listen on
	DB             DBConfig
	JWTSecret      string // secret used to sign JWTs
	AccessTTLMin   int    // access token time-to-live in minutes
	RefreshTTLDays int    // refresh token time-to-live in days
	BcryptCost     int    // bcrypt cost for password hashing
	RequestTimeout time.Duration

	Admin AdminConfig

	RabbitURL    string // empty disables event publishing and the audit consumer
	AuditLogPath string

	AvailabilityTTL time.Duration
	Redis           RedisConfig
	Cache           CacheConfig
	RateLimit       RateLimitConfig
}

// DBConfig is the MySQL connection and pool configuration.
type DBConfig struct {
	User, Pass, Host, Port, Name string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// AdminConfig describes the administrator seeded at startup.
type AdminConfig struct {
	Username string
	Email    string
	Password string
	Name     string
	LastName string
}

// IsDev reports whether the app runs in development mode.
func (c Config) IsDev() bool { return c.Env == "dev" }

// LoadDotEnv loads the given .env files (".env" when none) into the process
// environment. Missing files are ignored; variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads configuration values from environment variables. Required
// variables are enforced by must; every missing or malformed one is
// reported in the returned error.
func Load() (Config, error) {
	var l loader
	cfg := Config{
		Env:  l.must("APP_ENV"),
		Port: l.must("APP_PORT"),
		DB: DBConfig{
			User:            l.must("DB_USER"),
			Pass:            os.Getenv("DB_PASS"), // empty allowed
			Host:            l.must("DB_HOST"),
			Port:            l.must("DB_PORT"),
			Name:            l.must("DB_NAME"),
			MaxOpenConns:    envInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime: envDur("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		JWTSecret:      l.must("JWT_SECRET"),
		AccessTTLMin:   l.mustInt("ACCESS_TOKEN_TTL_MIN"),
		RefreshTTLDays: l.mustInt("REFRESH_TOKEN_TTL_DAYS"),
		BcryptCost:     l.mustInt("BCRYPT_COST"),
		RequestTimeout: envDur("REQUEST_TIMEOUT", 5*time.Second),
		Admin: AdminConfig{
			Username: envStr("ADMIN_USERNAME", "admin"),
			Email:    os.Getenv("ADMIN_EMAIL"),
			Password: os.Getenv("ADMIN_PASSWORD"),
			Name:     os.Getenv("ADMIN_NAME"),
			LastName: os.Getenv("ADMIN_LAST_NAME"),
		},
		RabbitURL:       os.Getenv("RABBITMQ_URL"),
		AuditLogPath:    envStr("AUDIT_LOG_PATH", "audit.log"),
		AvailabilityTTL: envDur("AVAILABILITY_CACHE_TTL", time.Minute),
		Redis:           LoadRedisConfig(),
		Cache:           LoadCacheConfig(),
		RateLimit:       LoadRateLimitConfig(),
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	if err := l.err(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loader collects problems with required variables so they can be
// reported together.
type loader struct {
	problems []string
}

// must retrieves the value of a required environment variable.
func (l *loader) must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		l.problems = append(l.problems, "missing required env var: "+key)
	}
	return v
}

// mustInt is like must but converts the value into an integer.
func (l *loader) mustInt(key string) int {
	s := l.must(key)
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		l.problems = append(l.problems, fmt.Sprintf("invalid int for %s: %q", key, s))
	}
	return n
}

func (l *loader) err() error {
	if len(l.problems) == 0 {
		return nil
	}
	return errors.New("config: " + strings.Join(l.problems, "; "))
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}
