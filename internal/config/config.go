// Package config loads process configuration from AUTHORITY_* environment
// variables and the YAML bootstrap file.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/phantom-auth/authority/internal/auth"
	"github.com/phantom-auth/authority/internal/obs"
)

// Prefix is prepended to every environment variable name.
const Prefix = "AUTHORITY"

// Config is the process configuration.
type Config struct {
	HTTPAddr        string        `envconfig:"HTTP_ADDR" default:":8080"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`

	DBDriver string `envconfig:"DB_DRIVER" default:"memory"`
	DBDSN    string `envconfig:"DB_DSN"`

	BcryptCost int `envconfig:"BCRYPT_COST" default:"12"`

	JWTSecret string        `envconfig:"JWT_SECRET"`
	JWTTTL    time.Duration `envconfig:"JWT_TTL" default:"1h"`

	ConcealReasons     bool          `envconfig:"CONCEAL_REASONS" default:"false"`
	SingleSession      bool          `envconfig:"SINGLE_SESSION" default:"false"`
	SessionIdleTimeout time.Duration `envconfig:"SESSION_IDLE_TIMEOUT" default:"30m"`
	ReapInterval       time.Duration `envconfig:"REAP_INTERVAL" default:"1m"`

	WebhookWorkers int           `envconfig:"WEBHOOK_WORKERS" default:"4"`
	WebhookQueue   int           `envconfig:"WEBHOOK_QUEUE" default:"256"`
	WebhookTimeout time.Duration `envconfig:"WEBHOOK_TIMEOUT" default:"5s"`

	RateBurst  int     `envconfig:"RATE_BURST" default:"20"`
	RatePerSec float64 `envconfig:"RATE_PER_SEC" default:"10"`

	// TrustedProxies are addresses or CIDRs whose X-Forwarded-For is honored.
	TrustedProxies []string `envconfig:"TRUSTED_PROXIES"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	BootstrapFile string `envconfig:"BOOTSTRAP_FILE"`
}

// Load reads the environment and validates the result.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks value ranges and cross-field requirements.
func (c *Config) Validate() error {
	c.DBDriver = strings.ToLower(strings.TrimSpace(c.DBDriver))
	switch c.DBDriver {
	case "memory":
	case "pgx", "postgres", "sqlite":
		if strings.TrimSpace(c.DBDSN) == "" {
			return fmt.Errorf("%s_DB_DSN is required for driver %q", Prefix, c.DBDriver)
		}
	default:
		return fmt.Errorf("unsupported db driver %q", c.DBDriver)
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("bcrypt cost %d out of range [4,31]", c.BcryptCost)
	}
	if c.JWTTTL <= 0 {
		return errors.New("jwt ttl must be positive")
	}
	if c.SessionIdleTimeout < 0 || c.ReapInterval < 0 {
		return errors.New("session timeouts must not be negative")
	}
	if c.RatePerSec <= 0 || c.RateBurst <= 0 {
		return errors.New("rate limit must be positive")
	}
	if c.WebhookWorkers <= 0 || c.WebhookQueue <= 0 {
		return errors.New("webhook workers and queue must be positive")
	}
	if _, err := c.Proxies(); err != nil {
		return err
	}
	return nil
}

// Proxies parses TrustedProxies. A bare address is treated as a single-host
// prefix.
func (c *Config) Proxies() ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(c.TrustedProxies))
	for _, raw := range c.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			p, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", raw, err)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", raw, err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

// Log returns the logging section.
func (c *Config) Log() obs.LogConfig {
	return obs.LogConfig{Level: c.LogLevel, Format: c.LogFormat}
}

// Bootstrap is the YAML document naming the operators seeded at startup.
type Bootstrap struct {
	Operators []auth.Identity `yaml:"operators"`
}

// LoadBootstrap reads the bootstrap file at path.
func LoadBootstrap(path string) (*Bootstrap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bootstrap file: %w", err)
	}
	return ParseBootstrap(data)
}

// ParseBootstrap decodes a bootstrap document. Unknown keys are rejected and
// passwords may be given as ${ENV_VAR} references.
func ParseBootstrap(data []byte) (*Bootstrap, error) {
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	var b Bootstrap
	if err := dec.Decode(&b); err != nil {
		return nil, fmt.Errorf("decode bootstrap file: %w", err)
	}
	for i := range b.Operators {
		op := &b.Operators[i]
		op.Password = os.ExpandEnv(op.Password)
		if op.Role == "" {
			op.Role = auth.RoleUser
		}
	}
	return &b, nil
}
