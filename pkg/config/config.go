package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// EnvProduction is the ENVIRONMENT value that enables production behaviour
// (rate limiting, opaque 500 responses, mandatory JWT secret).
const EnvProduction = "production"

// devJWTSecret is only used outside production when JWT_SECRET is unset.
const devJWTSecret = "trustdiner-development-secret-do-not-use"

// placeholderAPIKeys are values shipped in example env files that must be
// treated as "no key configured".
var placeholderAPIKeys = []string{
	"your_api_key_here",
	"your_google_places_api_key",
	"changeme",
}

// Config holds all configuration for the TrustDiner API.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"0.0.0.0"`
	Port     string `yaml:"port" env:"PORT" env-default:"5001"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"development"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`                                      // Set at load time, not from config

	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	Places    PlacesConfig    `yaml:"places"`
	Search    SearchConfig    `yaml:"search"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Storage   StorageConfig   `yaml:"storage"`
	Retention RetentionConfig `yaml:"retention"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"trustdiner"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"trustdiner"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"20"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// RedisConfig holds Redis configuration. When neither URL nor Host is set
// the API runs with an in-process cache.
type RedisConfig struct {
	URL      string `yaml:"-" env:"REDIS_URL"` // May embed a password
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// IsConfigured reports whether a Redis server was configured.
func (c *RedisConfig) IsConfigured() bool {
	return c.URL != "" || c.Host != ""
}

// AuthConfig holds token issuing configuration.
type AuthConfig struct {
	JWTSecret       string        `yaml:"-" env:"JWT_SECRET"`
	Issuer          string        `yaml:"issuer" env:"JWT_ISSUER" env-default:"trustdiner"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl" env:"ACCESS_TOKEN_TTL" env-default:"15m"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl" env:"REFRESH_TOKEN_TTL" env-default:"720h"`
}

// PlacesConfig holds configuration for the Google Places provider.
type PlacesConfig struct {
	APIKey        string        `yaml:"-" env:"GOOGLE_PLACES_API_KEY"`
	BaseURL       string        `yaml:"base_url" env:"PLACES_BASE_URL" env-default:"https://places.googleapis.com/v1"`
	CenterLat     float64       `yaml:"center_lat" env:"SEARCH_CENTER_LAT" env-default:"49.2827"`
	CenterLng     float64       `yaml:"center_lng" env:"SEARCH_CENTER_LNG" env-default:"-123.1207"`
	RadiusMeters  float64       `yaml:"radius_meters" env:"SEARCH_RADIUS_METERS" env-default:"50000"`
	Timeout       time.Duration `yaml:"timeout" env:"PLACES_TIMEOUT" env-default:"10s"`
	PhotoMaxWidth int           `yaml:"photo_max_width" env:"PLACES_PHOTO_MAX_WIDTH" env-default:"800"`
}

// IsAvailable returns true if a usable API key is configured.
func (c *PlacesConfig) IsAvailable() bool {
	key := strings.TrimSpace(c.APIKey)
	if key == "" {
		return false
	}
	lower := strings.ToLower(key)
	for _, p := range placeholderAPIKeys {
		if lower == p {
			return false
		}
	}
	return true
}

// SearchConfig holds hybrid search policy.
type SearchConfig struct {
	CacheTTL        time.Duration `yaml:"cache_ttl" env:"SEARCH_CACHE_TTL" env-default:"300s"`
	MinLocalResults int           `yaml:"min_local_results" env:"SEARCH_MIN_LOCAL_RESULTS" env-default:"3"`
	MaxResults      int           `yaml:"max_results" env:"SEARCH_MAX_RESULTS" env-default:"20"`
}

// RateLimitConfig holds the fixed-window limiter settings.
type RateLimitConfig struct {
	Window      time.Duration `yaml:"window" env:"RATE_LIMIT_WINDOW" env-default:"15m"`
	MaxRequests int64         `yaml:"max_requests" env:"RATE_LIMIT_MAX_REQUESTS" env-default:"100"`
}

// StorageConfig holds local file storage settings.
type StorageConfig struct {
	ImageDir string `yaml:"image_dir" env:"IMAGE_DIR" env-default:"uploads/restaurants"`
}

// RetentionConfig holds background cleanup settings.
type RetentionConfig struct {
	PurgeInterval time.Duration `yaml:"purge_interval" env:"ACCOUNT_PURGE_INTERVAL" env-default:"24h"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// A missing config.yaml is not an error; environment variables and defaults apply.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = (&url.URL{
			Scheme: "http",
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

// validate checks cross-field constraints and fills derived defaults.
func (c *Config) validate() error {
	if c.Auth.JWTSecret == "" {
		if c.IsProduction() {
			return errors.New("JWT_SECRET is required in production")
		}
		c.Auth.JWTSecret = devJWTSecret
	}
	if c.Search.MinLocalResults < 0 {
		return fmt.Errorf("search min_local_results must not be negative, got %d", c.Search.MinLocalResults)
	}
	if c.Search.MaxResults <= 0 {
		return fmt.Errorf("search max_results must be positive, got %d", c.Search.MaxResults)
	}
	if c.RateLimit.MaxRequests <= 0 || c.RateLimit.Window <= 0 {
		return errors.New("rate limit window and max_requests must be positive")
	}
	return nil
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// UsesDevJWTSecret reports whether the built-in development secret is in use.
func (c *Config) UsesDevJWTSecret() bool {
	return c.Auth.JWTSecret == devJWTSecret
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// URL returns the connection as a postgres:// URL (required by golang-migrate).
func (c *DatabaseConfig) URL() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + c.SSLMode,
	}
	return u.String()
}
