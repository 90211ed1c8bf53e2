package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	ServiceName string `env:"SERVICE_NAME" env-default:"fanoutd"`
	HTTPAddr    string `env:"HTTP_ADDR" env-default:":8080"`
	LogLevel    string `env:"LOG_LEVEL" env-default:"info"`

	TransportDriver     string        `env:"TRANSPORT_DRIVER" env-default:"memory"`
	PublishTimeout      time.Duration `env:"PUBLISH_TIMEOUT" env-default:"2s"`
	NATSURL             string        `env:"NATS_URL" env-default:"nats://127.0.0.1:4222"`
	NATSSubject         string        `env:"NATS_SUBJECT" env-default:"fanout.broadcasts"`
	RedisAddr           string        `env:"REDIS_ADDR"`
	RedisChannel        string        `env:"REDIS_CHANNEL" env-default:"fanout:broadcasts"`
	PusherAppID         string        `env:"PUSHER_APP_ID"`
	PusherKey           string        `env:"PUSHER_APP_KEY"`
	PusherSecret        string        `env:"PUSHER_APP_SECRET"`
	PusherHost          string        `env:"PUSHER_HOST"`
	PusherCluster       string        `env:"PUSHER_APP_CLUSTER"`
	PusherSecure        bool          `env:"PUSHER_SECURE" env-default:"true"`
	PusherChannelPrefix string        `env:"PUSHER_CHANNEL_PREFIX" env-default:"private-"`

	BreakerThreshold   int           `env:"BREAKER_THRESHOLD" env-default:"5"`
	BreakerCooldown    time.Duration `env:"BREAKER_COOLDOWN" env-default:"30s"`
	BreakerHalfOpenMax int           `env:"BREAKER_HALF_OPEN_MAX" env-default:"1"`

	ChannelAdminMonitoring string `env:"CHANNEL_ADMIN_MONITORING" env-default:"admin-monitoring"`
	ChannelEmergencyAlerts string `env:"CHANNEL_EMERGENCY_ALERTS" env-default:"emergency-alerts"`

	DeadLetterDriver string `env:"DEAD_LETTER_DRIVER" env-default:"memory"`
	DatabaseURL      string `env:"DATABASE_URL"`
	S3Region         string `env:"S3_REGION" env-default:"us-east-1"`
	S3Bucket         string `env:"S3_BUCKET"`
	S3Endpoint       string `env:"S3_ENDPOINT"`
	S3Prefix         string `env:"S3_PREFIX" env-default:"dead-letters/"`
	ReplayBatch      int    `env:"REPLAY_BATCH" env-default:"100"`

	AlertEmails []string `env:"ALERT_EMAILS" env-separator:","`
	SMTPFrom    string   `env:"SMTP_FROM"`
	SMTPHost    string   `env:"SMTP_HOST"`
	SMTPPass    string   `env:"SMTP_PASS"`
	SMTPPort    string   `env:"SMTP_PORT" env-default:"587"`
	SMTPUser    string   `env:"SMTP_USER"`

	JWTSecret   string        `env:"JWT_SECRET"`
	JWTIssuer   string        `env:"JWT_ISSUER" env-default:"careplatform"`
	JWTAudience string        `env:"JWT_AUDIENCE" env-default:"fanout"`
	PresenceTTL time.Duration `env:"PRESENCE_TTL" env-default:"60s"`

	OTLPEndpoint string   `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	CORSOrigins  []string `env:"CORS_ORIGINS" env-separator:","`
}

func Load() (*Config, error) {
	var cfg Config

	// Environment only; deployments inject everything as variables.
	err := cleanenv.ReadEnv(&cfg)
	if err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	return &cfg, nil
}

// Validate checks cross-field requirements that struct tags cannot express.
func (c *Config) Validate() error {
	switch strings.ToLower(c.TransportDriver) {
	case "memory":
	case "nats":
		if c.NATSURL == "" {
			return fmt.Errorf("NATS_URL is required for the nats transport")
		}
	case "redis":
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required for the redis transport")
		}
	case "pusher":
		if c.PusherAppID == "" || c.PusherKey == "" || c.PusherSecret == "" {
			return fmt.Errorf("PUSHER_APP_ID, PUSHER_APP_KEY and PUSHER_APP_SECRET are required for the pusher transport")
		}
		if c.PusherHost == "" && c.PusherCluster == "" {
			return fmt.Errorf("PUSHER_HOST or PUSHER_APP_CLUSTER is required for the pusher transport")
		}
	default:
		return fmt.Errorf("unsupported TRANSPORT_DRIVER %q", c.TransportDriver)
	}

	switch strings.ToLower(c.DeadLetterDriver) {
	case "memory":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for postgres dead letters")
		}
	case "s3":
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required for s3 dead letters")
		}
	default:
		return fmt.Errorf("unsupported DEAD_LETTER_DRIVER %q", c.DeadLetterDriver)
	}

	if c.PublishTimeout <= 0 {
		return fmt.Errorf("PUBLISH_TIMEOUT must be positive")
	}
	if c.BreakerThreshold <= 0 || c.BreakerHalfOpenMax <= 0 {
		return fmt.Errorf("BREAKER_THRESHOLD and BREAKER_HALF_OPEN_MAX must be positive")
	}
	if len(c.AlertEmails) > 0 && c.SMTPHost == "" {
		return fmt.Errorf("SMTP_HOST is required when ALERT_EMAILS is set")
	}
	return nil
}
