package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// ----------------------------
	// SMTP
	// ----------------------------
	SMTPHost     string `envconfig:"SMTP_HOST" default:"localhost"`
	SMTPPort     int    `envconfig:"SMTP_PORT" default:"1025"`
	SMTPUser     string `envconfig:"SMTP_USER" default:""`
	SMTPPassword string `envconfig:"SMTP_PASSWORD" default:""`

	// ----------------------------
	// Dispatcher
	// ----------------------------
	WorkerCount          int           `envconfig:"WORKER_COUNT" default:"5"`
	MinDelayBetweenSends time.Duration `envconfig:"MIN_DELAY_BETWEEN_EMAILS" default:"2s"`
	SendAttempts         int           `envconfig:"SEND_ATTEMPTS" default:"3"`
	RetryInitialInterval time.Duration `envconfig:"RETRY_INITIAL_INTERVAL" default:"5s"`

	// ----------------------------
	// Scheduler
	// ----------------------------
	ScheduleBuffer        time.Duration `envconfig:"SCHEDULE_BUFFER" default:"5s"`
	DefaultRecipientDelay time.Duration `envconfig:"DEFAULT_RECIPIENT_DELAY" default:"2s"`
	ReconcileInterval     time.Duration `envconfig:"RECONCILE_INTERVAL" default:"30s"`

	// ----------------------------
	// Rate limiting
	// ----------------------------
	RateLimitEnabled bool `envconfig:"RATE_LIMIT_ENABLED" default:"false"`
	MaxEmailsPerHour int  `envconfig:"MAX_EMAILS_PER_HOUR_PER_SENDER" default:"200"`

	// ----------------------------
	// Delay queue
	// ----------------------------
	QueuePollInterval time.Duration `envconfig:"QUEUE_POLL_INTERVAL" default:"250ms"`

	// ----------------------------
	// HTTP API
	// ----------------------------
	APIPort string `envconfig:"API_PORT" default:"8080"`

	// ----------------------------
	// Metrics
	// ----------------------------
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`

	// ----------------------------
	// Storage
	// ----------------------------
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	RedisURL    string `envconfig:"REDIS_URL" required:"true"`
}

func Load() (*Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return &cfg, err
}
