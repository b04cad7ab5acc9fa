package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete daemon configuration
type Config struct {
	Server  ServerConfig  `yaml:"server" envconfig:"SERVER"`
	License LicenseConfig `yaml:"license" envconfig:"LICENSE"`
	Update  UpdateConfig  `yaml:"update" envconfig:"UPDATE"`
	Logging LoggingConfig `yaml:"logging" envconfig:"LOGGING"`
	Paths   PathsConfig   `yaml:"paths" envconfig:"PATHS"`
}

// ServerConfig contains HTTP server configuration for the local API
type ServerConfig struct {
	Port            int             `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration   `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration   `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration   `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	RateLimit       RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration for the local API
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS"`
	Burst   int     `yaml:"burst" envconfig:"BURST"`
}

// LicenseConfig describes the remote licensing API and the identity this
// installation presents to it.
type LicenseConfig struct {
	APIURL         string        `yaml:"api_url" envconfig:"API_URL" validate:"required,url"`
	ProductSlug    string        `yaml:"product_slug" envconfig:"PRODUCT_SLUG" validate:"required"`
	ProductName    string        `yaml:"product_name" envconfig:"PRODUCT_NAME"`
	SiteURL        string        `yaml:"site_url" envconfig:"SITE_URL" validate:"required,url"`
	RequestTimeout time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT"`
	CacheTTL       time.Duration `yaml:"cache_ttl" envconfig:"CACHE_TTL"`
	FailureTTL     time.Duration `yaml:"failure_ttl" envconfig:"FAILURE_TTL"`
}

// UpdateConfig controls the update-check workflow
type UpdateConfig struct {
	CurrentVersion string        `yaml:"current_version" envconfig:"CURRENT_VERSION" validate:"required"`
	CacheTTL       time.Duration `yaml:"cache_ttl" envconfig:"CACHE_TTL"`
	CheckInterval  time.Duration `yaml:"check_interval" envconfig:"CHECK_INTERVAL"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL"`
	Output   string `yaml:"output" envconfig:"OUTPUT"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// PathsConfig contains file system paths configuration
type PathsConfig struct {
	StoreFile string `yaml:"store_file" envconfig:"STORE_FILE"`
}

// DefaultConfig returns the baseline configuration. File and environment
// values are layered on top of it.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:            8390,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     25,
				Burst:   10,
			},
		},
		License: LicenseConfig{
			ProductSlug:    "licensekit",
			ProductName:    "LicenseKit",
			RequestTimeout: 15 * time.Second,
			CacheTTL:       12 * time.Hour,
			FailureTTL:     time.Hour,
		},
		Update: UpdateConfig{
			CurrentVersion: "0.0.0",
			CacheTTL:       12 * time.Hour,
			CheckInterval:  12 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Output:   "stdout",
			FilePath: "logs/licensed.log",
		},
		Paths: PathsConfig{
			StoreFile: "license.json",
		},
	}
}

// Load loads configuration from the config file and environment variables
func Load() (*Config, error) {
	return LoadFromFile(configFilePath())
}

// LoadFromFile layers the given YAML file (if present) over the defaults,
// then LICENSEKIT_-prefixed environment variables over both, and validates
// the result. Env vars that are unset leave the underlying value untouched.
func LoadFromFile(configFile string) (*Config, error) {
	cfg := DefaultConfig()

	if configFile != "" {
		if _, err := os.Stat(configFile); err == nil {
			data, err := os.ReadFile(configFile)
			if err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	if err := envconfig.Process("LICENSEKIT", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks the configuration for correctness
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return err
	}

	if c.License.RequestTimeout <= 0 {
		return fmt.Errorf("license.request_timeout must be positive, got %s", c.License.RequestTimeout)
	}
	if c.License.CacheTTL <= 0 {
		return fmt.Errorf("license.cache_ttl must be positive, got %s", c.License.CacheTTL)
	}
	if c.License.FailureTTL <= 0 {
		return fmt.Errorf("license.failure_ttl must be positive, got %s", c.License.FailureTTL)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	return nil
}

// APIBase returns the licensing API base URL with a single trailing slash,
// ready for endpoint suffixing.
func (c *LicenseConfig) APIBase() string {
	return strings.TrimRight(c.APIURL, "/") + "/"
}

// SiteHost returns the hostname of the configured site URL. An empty string
// is returned when the URL cannot be parsed.
func (c *LicenseConfig) SiteHost() string {
	u, err := url.Parse(c.SiteURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func configFilePath() string {
	if path := os.Getenv("LICENSEKIT_CONFIG_FILE"); path != "" {
		return path
	}
	return "licensed.yaml"
}
