package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	LogLevel  string
	LogFormat string

	OTelEnabled       bool
	OTLPEndpoint      string
	OTLPProtocol      string
	OTelSamplingRatio float64

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Webhook      WebhookConfig
	Notification NotificationConfig
	Redis        RedisConfig
	SMTP         SMTPConfig
	NATS         NATSConfig
}

type WebhookConfig struct {
	IPNSecret       string
	SignatureHeader string
	MaxBodyBytes    int64
	// RetryTransientFailures answers 500 on retryable processing failures so
	// the provider redelivers. When false every verified request gets 200.
	RetryTransientFailures bool
	ProcessingTimeout      time.Duration
}

type NotificationConfig struct {
	Queue       string
	Workers     int
	QueueSize   int
	RedisKey    string
	Sinks       []string
	RoutingFile string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type NATSConfig struct {
	URL           string
	SubjectPrefix string
}

const (
	QueueMemory = "memory"
	QueueRedis  = "redis"

	SinkLog   = "log"
	SinkEmail = "email"
	SinkNATS  = "nats"

	DefaultSignatureHeader = "x-nowpayments-sig"
	DefaultMaxBodyBytes    = 1 << 20
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "cryptopay"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		LogLevel:          strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogFormat:         strings.ToLower(getenv("LOG_FORMAT", "json")),
		OTelEnabled:       getenvBool("OTEL_ENABLED", false),
		OTLPEndpoint:      getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTLPProtocol:      strings.ToLower(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")),
		OTelSamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 1.0),
		DBType:            strings.ToLower(getenv("DATABASE_TYPE", "postgres")),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "cryptopay"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		Webhook: WebhookConfig{
			IPNSecret:              strings.TrimSpace(os.Getenv("NOWPAYMENTS_IPN_SECRET")),
			SignatureHeader:        strings.ToLower(getenv("NOWPAYMENTS_SIGNATURE_HEADER", DefaultSignatureHeader)),
			MaxBodyBytes:           getenvInt64("WEBHOOK_MAX_BODY_BYTES", DefaultMaxBodyBytes),
			RetryTransientFailures: getenvBool("WEBHOOK_RETRY_TRANSIENT_FAILURES", true),
			ProcessingTimeout:      getenvDuration("WEBHOOK_PROCESSING_TIMEOUT", 10*time.Second),
		},
		Notification: NotificationConfig{
			Queue:       strings.ToLower(getenv("NOTIFICATION_QUEUE", QueueMemory)),
			Workers:     getenvInt("NOTIFICATION_WORKERS", 2),
			QueueSize:   getenvInt("NOTIFICATION_QUEUE_SIZE", 1024),
			RedisKey:    getenv("NOTIFICATION_REDIS_KEY", "cryptopay:notifications"),
			Sinks:       parseList(getenv("NOTIFICATION_SINKS", SinkLog)),
			RoutingFile: strings.TrimSpace(getenv("NOTIFICATION_ROUTING_FILE", "")),
		},
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		SMTP: SMTPConfig{
			Host:     strings.TrimSpace(getenv("SMTP_HOST", "")),
			Port:     getenvInt("SMTP_PORT", 587),
			Username: getenv("SMTP_USERNAME", ""),
			Password: getenv("SMTP_PASSWORD", ""),
			From:     strings.TrimSpace(getenv("SMTP_FROM", "")),
		},
		NATS: NATSConfig{
			URL:           strings.TrimSpace(getenv("NATS_URL", "")),
			SubjectPrefix: strings.TrimSpace(getenv("NATS_SUBJECT_PREFIX", "cryptopay.notifications")),
		},
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

// HasSink reports whether the named notification sink is enabled.
func (c Config) HasSink(name string) bool {
	for _, s := range c.Notification.Sinks {
		if s == name {
			return true
		}
	}
	return false
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt(key string, def int) int {
	return int(getenvInt64(key, int64(def)))
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
