// Package cfg provides configuration for the treenote server.
package cfg

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"treenote/internal/auth"
)

// Config holds server configuration.
type Config struct {
	// Listen is the address to listen on (e.g., ":3001").
	Listen string `yaml:"listen"`
	// DBURL is the database URL (SQLite path or Postgres URL).
	DBURL string `yaml:"db_url"`
	// JWTSecret is the key used to sign JWTs.
	JWTSecret string `yaml:"jwt_secret"`
	// JWTIssuer is the JWT issuer claim.
	JWTIssuer string `yaml:"jwt_issuer"`
	// TokenTTL is how long issued tokens are valid.
	TokenTTL time.Duration `yaml:"token_ttl"`
	// CORSOrigin is the browser origin allowed to call the API.
	CORSOrigin string `yaml:"cors_origin"`
	// Registration is the admission policy for new accounts.
	Registration string `yaml:"registration"`
	// Compress enables gzip compression of responses.
	Compress bool `yaml:"compress"`
	// LogFormat is "console" or "json".
	LogFormat string `yaml:"log_format"`
	// Debug enables debug logging.
	Debug bool `yaml:"debug"`
	// Version is the server version string.
	Version string `yaml:"version"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Listen:       ":3001",
		DBURL:        "treenote.db",
		JWTSecret:    "treenote-dev-secret",
		JWTIssuer:    "treenote",
		TokenTTL:     7 * 24 * time.Hour,
		CORSOrigin:   "http://localhost:5173",
		Registration: string(auth.AdmitFirstUser),
		Compress:     true,
		LogFormat:    "console",
		Version:      "0.1.0",
	}
}

// FromEnv creates a Config from the defaults and environment variables.
func FromEnv() *Config {
	cfg := Default()
	cfg.applyEnv()
	return cfg
}

// Load reads the YAML file at path (if path is not empty) over the defaults,
// then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Listen = getEnv("TREENOTE_LISTEN", c.Listen)
	c.DBURL = getEnv("TREENOTE_DB_URL", c.DBURL)
	c.JWTSecret = getEnv("TREENOTE_JWT_SECRET", c.JWTSecret)
	c.JWTIssuer = getEnv("TREENOTE_JWT_ISSUER", c.JWTIssuer)
	c.TokenTTL = getEnvDuration("TREENOTE_TOKEN_TTL", c.TokenTTL)
	c.CORSOrigin = getEnv("TREENOTE_CORS_ORIGIN", c.CORSOrigin)
	c.Registration = getEnv("TREENOTE_REGISTRATION", c.Registration)
	c.Compress = getEnvBool("TREENOTE_COMPRESS", c.Compress)
	c.LogFormat = getEnv("TREENOTE_LOG_FORMAT", c.LogFormat)
	c.Debug = getEnvBool("TREENOTE_DEBUG", c.Debug)
	c.Version = getEnv("TREENOTE_VERSION", c.Version)
}

// Validate checks the settings the server cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.Listen == "" {
		errs = append(errs, errors.New("listen address is empty"))
	}
	if c.DBURL == "" {
		errs = append(errs, errors.New("database URL is empty"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT secret is empty"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, fmt.Errorf("token TTL must be positive, got %s", c.TokenTTL))
	}
	if _, err := auth.ParseAdmissionPolicy(c.Registration); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "console" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// AdmissionPolicy returns the parsed registration policy. Call Validate first.
func (c *Config) AdmissionPolicy() auth.AdmissionPolicy {
	p, err := auth.ParseAdmissionPolicy(c.Registration)
	if err != nil {
		return auth.AdmitClosed
	}
	return p
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
