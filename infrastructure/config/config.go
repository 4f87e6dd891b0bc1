// Package config loads and validates the memory map backend configuration.
//
// Configuration is layered, lowest priority first:
//  1. Default values in code
//  2. base.yaml
//  3. {environment}.yaml
//  4. Environment variables
//
// A .env file, when present, is loaded into the process environment by the
// entry points before the loader runs.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Environment is the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Config holds all application configuration.
type Config struct {
	Environment   Environment   `yaml:"environment" validate:"oneof=development staging production"`
	Server        Server        `yaml:"server"`
	AWS           AWS           `yaml:"aws"`
	Remote        Remote        `yaml:"remote"`
	Budget        Budget        `yaml:"budget"`
	Geocoding     Geocoding     `yaml:"geocoding"`
	Notifications Notifications `yaml:"notifications"`
	Store         Store         `yaml:"store"`
	Session       Session       `yaml:"session"`
	Auth          Auth          `yaml:"auth"`
	Tracing       Tracing       `yaml:"tracing"`
	Metrics       Metrics       `yaml:"metrics"`
	Logging       Logging       `yaml:"logging"`
	CORS          CORS          `yaml:"cors"`

	// LoadedFrom lists the sources applied, in order.
	LoadedFrom []string `yaml:"-"`
}

// Server configures the HTTP listener.
type Server struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" validate:"gt=0"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
}

// Address returns host:port.
func (s Server) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// AWS configures the SDK clients.
type AWS struct {
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

// Remote selects the remote memory collection.
type Remote struct {
	Backend      string        `yaml:"backend" validate:"oneof=memory dynamodb"`
	TableName    string        `yaml:"table_name" validate:"required_if=Backend dynamodb"`
	PollInterval time.Duration `yaml:"poll_interval" validate:"gt=0"`
}

// Budget selects where the anniversary notification budget is persisted.
type Budget struct {
	Backend     string `yaml:"backend" validate:"oneof=memory file postgres dynamodb"`
	KeyPrefix   string `yaml:"key_prefix"`
	FilePath    string `yaml:"file_path" validate:"required_if=Backend file"`
	PostgresDSN string `yaml:"postgres_dsn" validate:"required_if=Backend postgres"`
	TableName   string `yaml:"table_name" validate:"required_if=Backend dynamodb"`
}

// Geocoding configures reverse geocoding.
type Geocoding struct {
	BaseURL          string        `yaml:"base_url" validate:"required,url"`
	UserAgent        string        `yaml:"user_agent" validate:"required"`
	Language         string        `yaml:"language"`
	Timeout          time.Duration `yaml:"timeout" validate:"gt=0"`
	CacheSize        int64         `yaml:"cache_size" validate:"gte=0"`
	CacheTTL         time.Duration `yaml:"cache_ttl"`
	CachePrecision   int           `yaml:"cache_precision" validate:"min=0,max=8"`
	BreakerFailures  uint32        `yaml:"breaker_failures" validate:"gt=0"`
	BreakerOpenDelay time.Duration `yaml:"breaker_open_delay" validate:"gt=0"`
}

// Notifications enables the anniversary notification sinks.
type Notifications struct {
	Log            bool   `yaml:"log"`
	WebSocket      bool   `yaml:"websocket"`
	EventBusName   string `yaml:"event_bus_name"`
	EventSource    string `yaml:"event_source"`
	TelegramToken  string `yaml:"telegram_token"`
	TelegramChatID int64  `yaml:"telegram_chat_id"`
}

// TelegramEnabled reports whether the Telegram sink is configured.
func (n Notifications) TelegramEnabled() bool {
	return n.TelegramToken != "" || n.TelegramChatID != 0
}

// Store tunes the memory store.
type Store struct {
	ResubscribeDelay time.Duration `yaml:"resubscribe_delay" validate:"gt=0"`
	LoadTimeout      time.Duration `yaml:"load_timeout" validate:"gt=0"`
}

// Session tunes per-user session lifetime.
type Session struct {
	IdleTimeout  time.Duration `yaml:"idle_timeout" validate:"gt=0"`
	ReapInterval time.Duration `yaml:"reap_interval" validate:"gt=0"`
	TimeZone     string        `yaml:"time_zone"`
}

// Location resolves TimeZone, defaulting to UTC.
func (s Session) Location() (*time.Location, error) {
	if s.TimeZone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(s.TimeZone)
}

// Auth configures request authentication.
type Auth struct {
	JWTSecret      string `yaml:"jwt_secret"`
	JWTIssuer      string `yaml:"jwt_issuer"`
	AllowDevHeader bool   `yaml:"allow_dev_header"`
}

// Tracing configures OpenTelemetry.
type Tracing struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"service_name"`
	Endpoint    string  `yaml:"endpoint"`
	SampleRate  float64 `yaml:"sample_rate" validate:"gte=0,lte=1"`
}

// Metrics configures Prometheus.
type Metrics struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace" validate:"required"`
	Path      string `yaml:"path"`
}

// Logging configures zap.
type Logging struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
}

// CORS configures cross-origin access.
type CORS struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
	MaxAge         int      `yaml:"max_age"`
}

var validate = validator.New()

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fields validator.ValidationErrors
		if errors.As(err, &fields) {
			msgs := make([]string, 0, len(fields))
			for _, f := range fields {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", f.Namespace(), f.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Notifications.TelegramEnabled() &&
		(c.Notifications.TelegramToken == "" || c.Notifications.TelegramChatID == 0) {
		return fmt.Errorf("telegram notifications need both a token and a chat id")
	}
	if c.IsProduction() && c.Auth.JWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required in production")
	}
	if c.IsProduction() && c.Auth.AllowDevHeader {
		return fmt.Errorf("the development identity header cannot be enabled in production")
	}
	if _, err := c.Session.Location(); err != nil {
		return fmt.Errorf("invalid session time zone %q: %w", c.Session.TimeZone, err)
	}
	return nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}
