package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backends
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StorageDynamoDB = "dynamodb"
)

// Event bus backends
const (
	EventsLog         = "log"
	EventsEventBridge = "eventbridge"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerAddress string `yaml:"server_address"`
	Environment   string `yaml:"environment"`

	// Storage
	StorageBackend string `yaml:"storage_backend"`
	SQLitePath     string `yaml:"sqlite_path"`

	// AWS configuration
	AWSRegion     string `yaml:"aws_region"`
	DynamoDBTable string `yaml:"table_name"`
	EventBusName  string `yaml:"event_bus_name"`
	EventsBackend string `yaml:"events_backend"`

	// Lambda configuration
	IsLambda bool `yaml:"is_lambda"`

	// Logging
	LogLevel string `yaml:"log_level"`

	// Authentication
	JWTSecret   string `yaml:"jwt_secret"`
	JWTIssuer   string `yaml:"jwt_issuer"`
	JWTAudience string `yaml:"jwt_audience"`

	// Graph behavior
	OrphanPolicy string `yaml:"orphan_policy"`

	// Rate limiting, per key per minute
	RateLimitRPM   int `yaml:"rate_limit_rpm"`
	RateLimitBurst int `yaml:"rate_limit_burst"`

	// Store circuit breaker
	BreakerMaxFailures int           `yaml:"breaker_max_failures"`
	BreakerTimeout     time.Duration `yaml:"breaker_timeout"`

	// Feature flags
	EnableMetrics bool     `yaml:"enable_metrics"`
	EnableTracing bool     `yaml:"enable_tracing"`
	OTLPEndpoint  string   `yaml:"otlp_endpoint"`
	EnableCORS    bool     `yaml:"enable_cors"`
	CORSOrigins   []string `yaml:"cors_origins"`

	// ConfigFile is the optional YAML overlay, watched for hot reload
	ConfigFile string `yaml:"-"`
}

// Defaults returns the configuration used when nothing is set
func Defaults() *Config {
	return &Config{
		ServerAddress:      ":8080",
		Environment:        "development",
		StorageBackend:     StorageMemory,
		SQLitePath:         "canvas.db",
		AWSRegion:          "us-west-2",
		DynamoDBTable:      "lifeos-canvas",
		EventBusName:       "lifeos-events",
		EventsBackend:      EventsLog,
		LogLevel:           "info",
		JWTIssuer:          "lifeos",
		OrphanPolicy:       "keep",
		RateLimitRPM:       600,
		RateLimitBurst:     50,
		BreakerMaxFailures: 5,
		BreakerTimeout:     30 * time.Second,
		EnableMetrics:      true,
		OTLPEndpoint:       "localhost:4317",
		EnableCORS:         true,
		CORSOrigins:        []string{"*"},
	}
}

// LoadConfig builds the configuration from defaults, the optional YAML file
// named by CONFIG_FILE, and environment variables, in that order of
// precedence from lowest to highest.
func LoadConfig() (*Config, error) {
	cfg := Defaults()
	cfg.ConfigFile = os.Getenv("CONFIG_FILE")
	if cfg.ConfigFile != "" {
		if err := cfg.overlayFile(cfg.ConfigFile); err != nil {
			return nil, err
		}
	}
	cfg.overlayEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load is an alias for LoadConfig
func Load() (*Config, error) {
	return LoadConfig()
}

func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	file := c.ConfigFile
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	c.ConfigFile = file
	return nil
}

func (c *Config) overlayEnv() {
	c.ServerAddress = getEnv("SERVER_ADDRESS", c.ServerAddress)
	c.Environment = getEnv("ENVIRONMENT", c.Environment)
	c.StorageBackend = getEnv("STORAGE_BACKEND", c.StorageBackend)
	c.SQLitePath = getEnv("SQLITE_PATH", c.SQLitePath)
	c.AWSRegion = getEnv("AWS_REGION", c.AWSRegion)
	c.DynamoDBTable = getEnv("TABLE_NAME", c.DynamoDBTable)
	c.EventBusName = getEnv("EVENT_BUS_NAME", c.EventBusName)
	c.EventsBackend = getEnv("EVENTS_BACKEND", c.EventsBackend)
	c.IsLambda = getEnvBool("IS_LAMBDA", c.IsLambda || os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "")
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)
	c.JWTIssuer = getEnv("JWT_ISSUER", c.JWTIssuer)
	c.JWTAudience = getEnv("JWT_AUDIENCE", c.JWTAudience)
	c.OrphanPolicy = getEnv("ORPHAN_POLICY", c.OrphanPolicy)
	c.RateLimitRPM = getEnvInt("RATE_LIMIT_RPM", c.RateLimitRPM)
	c.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", c.RateLimitBurst)
	c.BreakerMaxFailures = getEnvInt("BREAKER_MAX_FAILURES", c.BreakerMaxFailures)
	c.BreakerTimeout = getEnvDuration("BREAKER_TIMEOUT", c.BreakerTimeout)
	c.EnableMetrics = getEnvBool("ENABLE_METRICS", c.EnableMetrics)
	c.EnableTracing = getEnvBool("ENABLE_TRACING", c.EnableTracing)
	c.OTLPEndpoint = getEnv("OTLP_ENDPOINT", c.OTLPEndpoint)
	c.EnableCORS = getEnvBool("ENABLE_CORS", c.EnableCORS)
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		c.CORSOrigins = splitList(origins)
	}
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case StorageMemory, StorageSQLite, StorageDynamoDB:
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
	}
	switch c.EventsBackend {
	case EventsLog, EventsEventBridge:
	default:
		return fmt.Errorf("unknown EVENTS_BACKEND %q", c.EventsBackend)
	}
	switch c.OrphanPolicy {
	case "", "keep", "reparent", "subtree":
	default:
		return fmt.Errorf("unknown ORPHAN_POLICY %q", c.OrphanPolicy)
	}
	if c.StorageBackend == StorageSQLite && c.SQLitePath == "" {
		return fmt.Errorf("SQLITE_PATH is required for the sqlite backend")
	}
	if c.StorageBackend == StorageDynamoDB && c.DynamoDBTable == "" {
		return fmt.Errorf("TABLE_NAME is required for the dynamodb backend")
	}
	if c.EventsBackend == EventsEventBridge && c.EventBusName == "" {
		return fmt.Errorf("EVENT_BUS_NAME is required")
	}
	if c.RateLimitRPM <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limits must be positive")
	}
	if c.IsProduction() && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required in production")
	}
	return nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
