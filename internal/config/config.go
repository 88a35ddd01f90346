// Package config loads the odoograph service configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ilcreatore32/odoograph"
	"github.com/ilcreatore32/odoograph/projector"
)

// Config holds all configuration for the service.
type Config struct {
	Odoo       OdooConfig       `yaml:"odoo"`
	Server     ServerConfig     `yaml:"server"`
	Projection ProjectionConfig `yaml:"projection"`
	Cache      CacheConfig      `yaml:"cache"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// OdooConfig locates the Odoo instance and the account used to read it.
type OdooConfig struct {
	URL           string `yaml:"url"`
	DB            string `yaml:"db"`
	Username      string `yaml:"username"`
	Password      string `yaml:"password"`
	SkipTLSVerify bool   `yaml:"skip_tls_verify"`
	AuthTimeout   string `yaml:"auth_timeout"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// ProjectionConfig configures the projector.
type ProjectionConfig struct {
	DefaultDepth int `yaml:"default_depth"`
	MaxDepth     int `yaml:"max_depth"`

	// SchemaPath points at a YAML registry. When empty the registry is
	// introspected from Odoo for Models.
	SchemaPath string   `yaml:"schema_path"`
	Models     []string `yaml:"models,omitempty"`

	// Projections holds the default projection per model: relation field to
	// allowed sub-field names. A request's own fields take precedence.
	Projections map[string]map[string][]string `yaml:"projections,omitempty"`
}

// CacheConfig configures the lookup cache.
type CacheConfig struct {
	Disabled bool   `yaml:"disabled"`
	TTL      string `yaml:"ttl"`
}

// LoggingConfig selects the zap preset.
type LoggingConfig struct {
	Env string `yaml:"env"` // development, production
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Odoo: OdooConfig{
			AuthTimeout: "6h",
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Projection: ProjectionConfig{
			DefaultDepth: 1,
			MaxDepth:     4,
		},
		Cache: CacheConfig{
			TTL: "1h",
		},
		Logging: LoggingConfig{
			Env: string(odoograph.EnvProduction),
		},
	}
}

// Load reads path over the defaults and then applies environment overrides.
// A missing file, or an empty path, leaves the defaults in place.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("ODOO_URL"); v != "" {
		c.Odoo.URL = v
	}
	if v := os.Getenv("ODOO_DB"); v != "" {
		c.Odoo.DB = v
	}
	if v := os.Getenv("ODOO_USERNAME"); v != "" {
		c.Odoo.Username = v
	}
	if v := os.Getenv("ODOO_PASSWORD"); v != "" {
		c.Odoo.Password = v
	}
	if v := os.Getenv("ODOO_SKIP_TLS_VERIFY"); v != "" {
		skip, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid ODOO_SKIP_TLS_VERIFY %q: %w", v, err)
		}
		c.Odoo.SkipTLSVerify = skip
	}
	if v := os.Getenv("ODOOGRAPH_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("ODOOGRAPH_LOG_ENV"); v != "" {
		c.Logging.Env = v
	}
	return nil
}

// GetAuthTimeout returns how long an Odoo session is reused.
func (c *Config) GetAuthTimeout() time.Duration {
	return parseDuration(c.Odoo.AuthTimeout, 6*time.Hour)
}

// GetCacheTTL returns the lookup cache TTL.
func (c *Config) GetCacheTTL() time.Duration {
	return parseDuration(c.Cache.TTL, time.Hour)
}

// LoggerEnv returns the zap preset.
func (c *Config) LoggerEnv() odoograph.LoggerEnv {
	return odoograph.LoggerEnv(c.Logging.Env)
}

// DefaultProjection returns the configured projection for model, nil when
// none is configured.
func (c *Config) DefaultProjection(model string) projector.Projection {
	allow, ok := c.Projection.Projections[model]
	if !ok {
		return nil
	}
	return projector.ProjectionFromAllowList(allow)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Odoo.URL == "" {
		errs = append(errs, errors.New("odoo.url is required (or set ODOO_URL)"))
	} else if u, err := url.Parse(c.Odoo.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, fmt.Errorf("odoo.url %q must be an http or https URL", c.Odoo.URL))
	}
	if c.Odoo.DB == "" {
		errs = append(errs, errors.New("odoo.db is required (or set ODOO_DB)"))
	}
	if c.Odoo.Username == "" {
		errs = append(errs, errors.New("odoo.username is required (or set ODOO_USERNAME)"))
	}
	if c.Odoo.Password == "" {
		errs = append(errs, errors.New("odoo.password is required (or set ODOO_PASSWORD)"))
	}
	if c.Odoo.AuthTimeout != "" {
		if _, err := time.ParseDuration(c.Odoo.AuthTimeout); err != nil {
			errs = append(errs, fmt.Errorf("invalid odoo.auth_timeout: %w", err))
		}
	}
	if c.Cache.TTL != "" {
		if _, err := time.ParseDuration(c.Cache.TTL); err != nil {
			errs = append(errs, fmt.Errorf("invalid cache.ttl: %w", err))
		}
	}

	if c.Projection.MaxDepth < 0 {
		errs = append(errs, errors.New("projection.max_depth must not be negative"))
	}
	if c.Projection.DefaultDepth < 0 {
		errs = append(errs, errors.New("projection.default_depth must not be negative"))
	}
	if c.Projection.MaxDepth > 0 && c.Projection.DefaultDepth > c.Projection.MaxDepth {
		errs = append(errs, fmt.Errorf("projection.default_depth %d exceeds max_depth %d",
			c.Projection.DefaultDepth, c.Projection.MaxDepth))
	}
	if c.Projection.SchemaPath == "" && len(c.Projection.Models) == 0 {
		errs = append(errs, errors.New("projection.schema_path or projection.models is required"))
	}

	switch odoograph.LoggerEnv(c.Logging.Env) {
	case odoograph.EnvDevelopment, odoograph.EnvProduction:
	default:
		errs = append(errs, fmt.Errorf("logging.env must be development or production, got %q", c.Logging.Env))
	}

	return errors.Join(errs...)
}
