package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Prefix is the environment variable prefix for all settings.
const Prefix = "CLEANIIT"

// Config holds the operator-supplied settings loaded from environment variables.
// Connection credentials live here and nowhere else.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"production"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Database. DatabaseURL wins over the discrete fields when set.
	DatabaseURL    string        `envconfig:"DATABASE_URL"`
	DBHost         string        `envconfig:"DB_HOST" default:"localhost"`
	DBPort         int           `envconfig:"DB_PORT" default:"5432"`
	DBUser         string        `envconfig:"DB_USER" default:"postgres"`
	DBPassword     string        `envconfig:"DB_PASSWORD"`
	DBName         string        `envconfig:"DB_NAME" default:"postgres"`
	DBSSLMode      string        `envconfig:"DB_SSLMODE" default:"prefer"`
	ConnectTimeout time.Duration `envconfig:"CONNECT_TIMEOUT" default:"10s"`

	// Kill action argv; {pid} is substituted per session.
	KillCommand []string `envconfig:"KILL_COMMAND" default:"sudo,/bin/kill,-TERM,{pid}"`

	// Optional node-exporter textfile for run metrics.
	MetricsTextfile string `envconfig:"METRICS_TEXTFILE"`
}

// IsDevelopment reports whether human-readable console logging should be used.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// DSN returns the connection string handed to pgx.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.DBHost, strconv.Itoa(c.DBPort)),
		Path:   "/" + c.DBName,
	}
	if c.DBPassword != "" {
		u.User = url.UserPassword(c.DBUser, c.DBPassword)
	} else {
		u.User = url.User(c.DBUser)
	}
	q := url.Values{}
	if c.DBSSLMode != "" {
		q.Set("sslmode", c.DBSSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// RedactedDSN is DSN with the password masked, safe for logs.
func (c *Config) RedactedDSN() string {
	u, err := url.Parse(c.DSN())
	if err != nil {
		return "<unparsable dsn>"
	}
	return u.Redacted()
}

// Validate checks settings that envconfig cannot express.
func (c *Config) Validate() error {
	if len(c.KillCommand) == 0 || c.KillCommand[0] == "" {
		return fmt.Errorf("%s_KILL_COMMAND must name an executable", Prefix)
	}
	if c.DBPort <= 0 || c.DBPort > 65535 {
		return fmt.Errorf("%s_DB_PORT out of range: %d", Prefix, c.DBPort)
	}
	if c.ConnectTimeout < 0 {
		return fmt.Errorf("%s_CONNECT_TIMEOUT must not be negative", Prefix)
	}
	return nil
}

// Load reads configuration from CLEANIIT_* environment variables.
func Load() (*Config, error) {
	return LoadWithPrefix(Prefix)
}

// LoadWithPrefix reads configuration with a prefix.
func LoadWithPrefix(prefix string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return nil, fmt.Errorf("loading config with prefix %s: %w", prefix, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
