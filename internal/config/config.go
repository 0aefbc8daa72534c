// Package config provides environment configuration for the operator console.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Event transports.
const (
	TransportWebSocket = "websocket"
	TransportNATS      = "nats"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	AllowedOrigins     []string

	// Backend settings
	BackendURL     string
	BackendTimeout time.Duration
	OperatorToken  string
	OperatorID     string

	// Live events
	EventsTransport string
	EventsURL       string

	// NATS settings
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// JWT settings for the local API
	JWTSecret string

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Sync behaviour
	PersistReadState   bool
	AppendToBackground bool
	MessagePageSize    int
	ClosedPageSize     int
	PollInterval       time.Duration

	// Logging
	LogLevel  string
	LogFormat string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables. Values from a .env
// file in the working directory are used for variables that are not set.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 0),
		AllowedOrigins:     getListEnv("ALLOWED_ORIGINS"),

		// Backend
		BackendURL:     getEnv("BACKEND_URL", "http://localhost:3000/api"),
		BackendTimeout: getDurationEnv("BACKEND_TIMEOUT", 50*time.Second),
		OperatorToken:  getEnv("OPERATOR_TOKEN", ""),
		OperatorID:     getEnv("OPERATOR_ID", ""),

		// Live events
		EventsTransport: strings.ToLower(getEnv("EVENTS_TRANSPORT", TransportWebSocket)),
		EventsURL:       getEnv("EVENTS_URL", "ws://localhost:3000/ws"),

		// NATS
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", ""),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 300),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Sync
		PersistReadState:   getBoolEnv("PERSIST_READ_STATE", false),
		AppendToBackground: getBoolEnv("APPEND_TO_BACKGROUND", true),
		MessagePageSize:    getIntEnv("MESSAGE_PAGE_SIZE", 15),
		ClosedPageSize:     getIntEnv("CLOSED_PAGE_SIZE", 20),
		PollInterval:       getDurationEnv("POLL_INTERVAL", 3*time.Second),

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

// Validate reports configuration the console cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.BackendURL == "" {
		errs = append(errs, errors.New("BACKEND_URL is required"))
	}
	if c.OperatorID == "" && c.OperatorToken == "" {
		errs = append(errs, errors.New("OPERATOR_ID or OPERATOR_TOKEN is required"))
	}
	switch c.EventsTransport {
	case TransportWebSocket, TransportNATS:
	default:
		errs = append(errs, fmt.Errorf("EVENTS_TRANSPORT must be %q or %q, got %q", TransportWebSocket, TransportNATS, c.EventsTransport))
	}
	if c.MessagePageSize <= 0 {
		errs = append(errs, errors.New("MESSAGE_PAGE_SIZE must be positive"))
	}
	if c.ClosedPageSize <= 0 {
		errs = append(errs, errors.New("CLOSED_PAGE_SIZE must be positive"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getListEnv(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
