package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v8"
	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// HTTP Server
	Port            string        `env:"PORT" yaml:"port" toml:"port"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" yaml:"shutdown_timeout" toml:"shutdown_timeout"`
	RateLimitRPM    int           `env:"RATE_LIMIT_RPM" yaml:"rate_limit_rpm" toml:"rate_limit_rpm"`

	// WorkerMetricsPort serves /metrics from gastos-worker. Empty disables it.
	WorkerMetricsPort string `env:"WORKER_METRICS_PORT" yaml:"worker_metrics_port" toml:"worker_metrics_port"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" yaml:"log_level" toml:"log_level"`
	LogFormat string `env:"LOG_FORMAT" yaml:"log_format" toml:"log_format"`

	// Backend selection
	DataBackend    string `env:"DATA_BACKEND" yaml:"data_backend" toml:"data_backend"`
	SQLiteDBPath   string `env:"SQLITE_DB_PATH" yaml:"sqlite_db_path" toml:"sqlite_db_path"`
	SeedFile       string `env:"SEED_FILE" yaml:"seed_file" toml:"seed_file"`
	PreferencesDir string `env:"PREFERENCES_DIR" yaml:"preferences_dir" toml:"preferences_dir"`

	// Auth
	JWTSecret string        `env:"JWT_SECRET" yaml:"jwt_secret" toml:"jwt_secret"`
	TokenTTL  time.Duration `env:"TOKEN_TTL" yaml:"token_ttl" toml:"token_ttl"`

	// Per-user stores
	MaxUsers int           `env:"STORE_MAX_USERS" yaml:"store_max_users" toml:"store_max_users"`
	StoreTTL time.Duration `env:"STORE_TTL" yaml:"store_ttl" toml:"store_ttl"`

	// AMQP
	AMQPURL      string `env:"AMQP_URL" yaml:"amqp_url" toml:"amqp_url"`
	AMQPExchange string `env:"AMQP_EXCHANGE" yaml:"amqp_exchange" toml:"amqp_exchange"`
	AMQPQueue    string `env:"AMQP_QUEUE" yaml:"amqp_queue" toml:"amqp_queue"`

	// Google Sheets mirror
	GoogleSpreadsheetID   string `env:"GOOGLE_SPREADSHEET_ID" yaml:"google_spreadsheet_id" toml:"google_spreadsheet_id"`
	GoogleSheetName       string `env:"GOOGLE_SHEET_NAME" yaml:"google_sheet_name" toml:"google_sheet_name"`
	GoogleCredentialsFile string `env:"GOOGLE_CREDENTIALS_FILE" yaml:"google_credentials_file" toml:"google_credentials_file"`
	GoogleCredentialsJSON string `env:"GOOGLE_CREDENTIALS_JSON" yaml:"-" toml:"-"`

	// Email function
	EmailFunctionURL  string        `env:"EMAIL_FUNCTION_URL" yaml:"email_function_url" toml:"email_function_url"`
	EmailAPIKey       string        `env:"EMAIL_API_KEY" yaml:"-" toml:"-"`
	EmailTimeout      time.Duration `env:"EMAIL_TIMEOUT" yaml:"email_timeout" toml:"email_timeout"`
	EmailPollInterval time.Duration `env:"EMAIL_POLL_INTERVAL" yaml:"email_poll_interval" toml:"email_poll_interval"`
	EmailBatchSize    int           `env:"EMAIL_BATCH_SIZE" yaml:"email_batch_size" toml:"email_batch_size"`
	EmailMaxRetries   int           `env:"EMAIL_MAX_RETRIES" yaml:"email_max_retries" toml:"email_max_retries"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Port:              "8081",
		ShutdownTimeout:   30 * time.Second,
		RateLimitRPM:      120,
		WorkerMetricsPort: "9091",
		LogLevel:          "info",
		LogFormat:         "text",
		DataBackend:       "sqlite",
		SQLiteDBPath:      "./data/gastos.db",
		PreferencesDir:    "",
		TokenTTL:          24 * time.Hour,
		MaxUsers:          256,
		StoreTTL:          30 * time.Minute,
		AMQPExchange:      "gastos",
		AMQPQueue:         "gastos_events",
		GoogleSheetName:   "Gastos",
		EmailTimeout:      10 * time.Second,
		EmailPollInterval: 30 * time.Second,
		EmailBatchSize:    20,
		EmailMaxRetries:   5,
	}
}

// Load builds the configuration from defaults, then the optional file named by
// CONFIG_FILE, then environment variables.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv("CONFIG_FILE"), environ())
}

// LoadFrom is Load with an explicit file path and environment.
func LoadFrom(path string, environment map[string]string) (*Config, error) {
	cfg := Defaults()
	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environment}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("error parsing YAML file: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("error parsing TOML file: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config file format: %s", filepath.Ext(path))
	}
	return nil
}

func environ() map[string]string {
	m := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			m[k] = v
		}
	}
	return m
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}
	if c.WorkerMetricsPort != "" {
		if port, err := strconv.Atoi(c.WorkerMetricsPort); err != nil || port < 1 || port > 65535 {
			errors = append(errors, fmt.Sprintf("invalid worker metrics port '%s'", c.WorkerMetricsPort))
		}
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be text or json", c.LogFormat))
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s'", c.LogLevel))
	}

	validBackends := []string{"memory", "sqlite"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if c.SeedFile != "" {
		if _, err := os.Stat(c.SeedFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("seed file does not exist: %s", c.SeedFile))
		}
	}

	if len(c.JWTSecret) < 16 {
		errors = append(errors, "JWT_SECRET must be at least 16 characters")
	}
	if c.TokenTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid token TTL %v: must be at least 1 minute", c.TokenTTL))
	}

	if c.MaxUsers < 1 {
		errors = append(errors, fmt.Sprintf("invalid store max users %d: must be at least 1", c.MaxUsers))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.GoogleCredentialsFile != "" {
		if _, err := os.Stat(c.GoogleCredentialsFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("Google credentials file does not exist: %s", c.GoogleCredentialsFile))
		}
	}

	if c.EmailFunctionURL != "" {
		if u, err := url.Parse(c.EmailFunctionURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errors = append(errors, fmt.Sprintf("invalid email function URL '%s'", c.EmailFunctionURL))
		}
	}
	if c.EmailBatchSize < 1 || c.EmailBatchSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid email batch size %d: must be between 1 and 1000", c.EmailBatchSize))
	}
	if c.EmailPollInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid email poll interval %v: must be at least 1 second", c.EmailPollInterval))
	} else if c.EmailPollInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid email poll interval %v: must be at most 24 hours", c.EmailPollInterval))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// SheetsEnabled reports whether the spreadsheet mirror is configured.
func (c *Config) SheetsEnabled() bool {
	return c.GoogleSpreadsheetID != ""
}
