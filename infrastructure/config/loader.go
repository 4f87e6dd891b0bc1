package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader handles loading configuration from multiple sources.
type Loader struct {
	// basePath is the directory holding base.yaml and {environment}.yaml
	basePath    string
	environment Environment
	sources     []string
	lookupEnv   func(string) (string, bool)
}

// NewLoader creates a loader reading files from basePath.
func NewLoader(basePath string, env Environment) *Loader {
	if basePath == "" {
		basePath = "config"
	}
	if env == "" {
		env = Development
	}
	return &Loader{
		basePath:    basePath,
		environment: env,
		lookupEnv:   os.LookupEnv,
	}
}

// EnvironmentFromEnv reads ENVIRONMENT, defaulting to development.
func EnvironmentFromEnv() Environment {
	switch strings.ToLower(os.Getenv("ENVIRONMENT")) {
	case "production", "prod":
		return Production
	case "staging":
		return Staging
	default:
		return Development
	}
}

// BasePath returns the configuration directory.
func (l *Loader) BasePath() string {
	return l.basePath
}

// Load builds the configuration: defaults, then base.yaml, then
// {environment}.yaml, then environment variables.
func (l *Loader) Load() (*Config, error) {
	l.sources = nil

	cfg := l.defaultConfig()
	l.sources = append(l.sources, "defaults")

	if err := l.loadFile("base", cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load base config: %w", err)
	}

	envFile := strings.ToLower(string(l.environment))
	if err := l.loadFile(envFile, cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s config: %w", envFile, err)
	}

	if err := l.loadEnvironmentVariables(cfg); err != nil {
		return nil, err
	}
	l.sources = append(l.sources, "environment")

	// The environment is decided by the caller, never by a file.
	cfg.Environment = l.environment
	cfg.LoadedFrom = l.sources

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile overlays {name}.yaml or {name}.yml onto cfg.
func (l *Loader) loadFile(name string, cfg *Config) error {
	for _, ext := range []string{"yaml", "yml"} {
		path := filepath.Join(l.basePath, name+"."+ext)
		file, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		err = decodeYAML(file, cfg)
		file.Close()
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
		l.sources = append(l.sources, path)
		return nil
	}
	return os.ErrNotExist
}

func decodeYAML(r io.Reader, target any) error {
	err := yaml.NewDecoder(r).Decode(target)
	if errors.Is(err, io.EOF) {
		// empty file
		return nil
	}
	return err
}

// loadEnvironmentVariables overlays environment variables on the
// configuration. Malformed numbers and durations are reported rather than
// silently ignored.
func (l *Loader) loadEnvironmentVariables(cfg *Config) error {
	var errs []error
	str := func(key string, dst *string) {
		if val, ok := l.lookupEnv(key); ok && val != "" {
			*dst = val
		}
	}
	integer := func(key string, dst *int) {
		if val, ok := l.lookupEnv(key); ok && val != "" {
			n, err := strconv.Atoi(val)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	int64Val := func(key string, dst *int64) {
		if val, ok := l.lookupEnv(key); ok && val != "" {
			n, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if val, ok := l.lookupEnv(key); ok && val != "" {
			b, err := strconv.ParseBool(val)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	duration := func(key string, dst *time.Duration) {
		if val, ok := l.lookupEnv(key); ok && val != "" {
			d, err := time.ParseDuration(val)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	list := func(key string, dst *[]string) {
		if val, ok := l.lookupEnv(key); ok && val != "" {
			parts := strings.Split(val, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			*dst = parts
		}
	}

	// Server configuration
	str("SERVER_HOST", &cfg.Server.Host)
	integer("SERVER_PORT", &cfg.Server.Port)
	duration("SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	// AWS configuration
	str("AWS_REGION", &cfg.AWS.Region)
	str("AWS_ENDPOINT", &cfg.AWS.Endpoint)

	// Remote collection and budget
	str("REMOTE_BACKEND", &cfg.Remote.Backend)
	str("REMOTE_TABLE_NAME", &cfg.Remote.TableName)
	duration("REMOTE_POLL_INTERVAL", &cfg.Remote.PollInterval)
	str("BUDGET_BACKEND", &cfg.Budget.Backend)
	str("BUDGET_KEY_PREFIX", &cfg.Budget.KeyPrefix)
	str("BUDGET_FILE_PATH", &cfg.Budget.FilePath)
	str("BUDGET_POSTGRES_DSN", &cfg.Budget.PostgresDSN)
	str("BUDGET_TABLE_NAME", &cfg.Budget.TableName)

	// Geocoding
	str("GEOCODING_BASE_URL", &cfg.Geocoding.BaseURL)
	str("GEOCODING_USER_AGENT", &cfg.Geocoding.UserAgent)
	str("GEOCODING_LANGUAGE", &cfg.Geocoding.Language)
	duration("GEOCODING_TIMEOUT", &cfg.Geocoding.Timeout)
	int64Val("GEOCODING_CACHE_SIZE", &cfg.Geocoding.CacheSize)

	// Notifications
	boolean("NOTIFICATIONS_LOG", &cfg.Notifications.Log)
	boolean("NOTIFICATIONS_WEBSOCKET", &cfg.Notifications.WebSocket)
	str("EVENT_BUS_NAME", &cfg.Notifications.EventBusName)
	str("TELEGRAM_BOT_TOKEN", &cfg.Notifications.TelegramToken)
	int64Val("TELEGRAM_CHAT_ID", &cfg.Notifications.TelegramChatID)

	// Engine
	duration("STORE_RESUBSCRIBE_DELAY", &cfg.Store.ResubscribeDelay)
	duration("STORE_LOAD_TIMEOUT", &cfg.Store.LoadTimeout)
	duration("SESSION_IDLE_TIMEOUT", &cfg.Session.IdleTimeout)
	str("SESSION_TIME_ZONE", &cfg.Session.TimeZone)

	// Security
	str("AUTH_JWT_SECRET", &cfg.Auth.JWTSecret)
	str("AUTH_JWT_ISSUER", &cfg.Auth.JWTIssuer)
	boolean("AUTH_ALLOW_DEV_HEADER", &cfg.Auth.AllowDevHeader)

	// Observability
	boolean("TRACING_ENABLED", &cfg.Tracing.Enabled)
	str("OTEL_EXPORTER_OTLP_ENDPOINT", &cfg.Tracing.Endpoint)
	boolean("METRICS_ENABLED", &cfg.Metrics.Enabled)
	str("LOG_LEVEL", &cfg.Logging.Level)
	list("CORS_ALLOWED_ORIGINS", &cfg.CORS.AllowedOrigins)

	return errors.Join(errs...)
}

// defaultConfig returns a configuration the server can run with without
// any file.
func (l *Loader) defaultConfig() *Config {
	return &Config{
		Environment: l.environment,
		Server: Server{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		AWS: AWS{
			Region: "us-east-1",
		},
		Remote: Remote{
			Backend:      "memory",
			PollInterval: 2 * time.Second,
		},
		Budget: Budget{
			Backend:   "memory",
			KeyPrefix: "memorymap:",
		},
		Geocoding: Geocoding{
			BaseURL:          "https://nominatim.openstreetmap.org",
			UserAgent:        "memorymap-backend/1.0",
			Language:         "en",
			Timeout:          5 * time.Second,
			CacheSize:        10000,
			CacheTTL:         24 * time.Hour,
			CachePrecision:   4,
			BreakerFailures:  5,
			BreakerOpenDelay: 30 * time.Second,
		},
		Notifications: Notifications{
			Log:         true,
			WebSocket:   true,
			EventSource: "memorymap.anniversary",
		},
		Store: Store{
			ResubscribeDelay: 5 * time.Second,
			LoadTimeout:      3 * time.Second,
		},
		Session: Session{
			IdleTimeout:  10 * time.Minute,
			ReapInterval: time.Minute,
		},
		Auth: Auth{
			JWTIssuer:      "memorymap",
			AllowDevHeader: l.environment == Development,
		},
		Tracing: Tracing{
			ServiceName: "memorymap-backend",
			SampleRate:  0.1,
		},
		Metrics: Metrics{
			Enabled:   true,
			Namespace: "memorymap",
			Path:      "/metrics",
		},
		Logging: Logging{
			Level: "info",
		},
		CORS: CORS{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-User-ID"},
			MaxAge:         300,
		},
	}
}

// Load loads the configuration for the ENVIRONMENT from CONFIG_DIR
// (default "config").
func Load() (*Config, error) {
	dir := os.Getenv("CONFIG_DIR")
	return NewLoader(dir, EnvironmentFromEnv()).Load()
}
