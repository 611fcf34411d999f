package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

type Env string

const (
	EnvLocal  Env = "local"
	EnvDocker Env = "docker"
)

const (
	SchedulerInline = "inline"
	SchedulerKafka  = "kafka"

	AuditDocstore = "docstore"
	AuditPostgres = "postgres"
)

type Config struct {
	AppEnv      Env    `env:"APP_ENV" envDefault:"local"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"arufkuy-store"`
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8081"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT"`

	// ServiceAccount is the raw JSON blob; parsed lazily by the credential provider.
	ServiceAccount   string `env:"FIREBASE_SERVICE_ACCOUNT"`
	ProjectID        string `env:"FIRESTORE_PROJECT_ID" envDefault:"arufkuy-store"`
	FirestoreBaseURL string `env:"FIRESTORE_BASE_URL" envDefault:"https://firestore.googleapis.com/v1"`
	TokenURL         string `env:"OAUTH_TOKEN_URL" envDefault:"https://oauth2.googleapis.com/token"`
	TokenScope       string `env:"OAUTH_SCOPE" envDefault:"https://www.googleapis.com/auth/datastore"`
	TokenCache       bool   `env:"TOKEN_CACHE" envDefault:"false"`

	MayarBaseURL string `env:"MAYAR_BASE_URL"`
	MayarAPIKey  string `env:"MAYAR_API_KEY"`

	Scheduler   string        `env:"SCHEDULER" envDefault:"inline"`
	Workers     int           `env:"WORKERS" envDefault:"4"`
	QueueSize   int           `env:"QUEUE_SIZE" envDefault:"256"`
	TaskTimeout time.Duration `env:"TASK_TIMEOUT" envDefault:"30s"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaGroup   string   `env:"KAFKA_GROUP" envDefault:"reconciler"`

	RedisAddr         string        `env:"REDIS_ADDR"`
	DedupTTL          time.Duration `env:"DEDUP_TTL" envDefault:"48h"`
	OrderLock         bool          `env:"ORDER_LOCK" envDefault:"false"`
	ConditionalWrites bool          `env:"CONDITIONAL_WRITES" envDefault:"false"`

	AuditBackend string `env:"AUDIT_BACKEND" envDefault:"docstore"`
	PostgresDSN  string `env:"POSTGRES_DSN"`

	PendingLimit int `env:"PENDING_LIMIT" envDefault:"100"`

	DiagRPS   float64 `env:"DIAG_RPS" envDefault:"1"`
	DiagBurst int     `env:"DIAG_BURST" envDefault:"5"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"5s"`
}

// ConfigError reports missing or malformed configuration. It is fatal to the
// invocation that needs the value and is never retried.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.KafkaBrokers = trimAll(cfg.KafkaBrokers)
	cfg.FirestoreBaseURL = strings.TrimRight(cfg.FirestoreBaseURL, "/")
	cfg.MayarBaseURL = strings.TrimRight(cfg.MayarBaseURL, "/")
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks structural settings only. Secrets are checked by the
// component that uses them so the failure surfaces on the right endpoint.
func (c Config) Validate() error {
	if c.AppEnv != EnvLocal && c.AppEnv != EnvDocker {
		return &ConfigError{Field: "APP_ENV", Reason: fmt.Sprintf("%q must be local or docker", c.AppEnv)}
	}
	if c.HTTPAddr == "" {
		return &ConfigError{Field: "HTTP_ADDR", Reason: "required"}
	}
	if c.ProjectID == "" {
		return &ConfigError{Field: "FIRESTORE_PROJECT_ID", Reason: "required"}
	}
	switch c.Scheduler {
	case SchedulerInline:
		if c.Workers <= 0 {
			return &ConfigError{Field: "WORKERS", Reason: "must be positive"}
		}
	case SchedulerKafka:
		if len(c.KafkaBrokers) == 0 {
			return &ConfigError{Field: "KAFKA_BROKERS", Reason: "required when SCHEDULER=kafka"}
		}
	default:
		return &ConfigError{Field: "SCHEDULER", Reason: fmt.Sprintf("%q must be inline or kafka", c.Scheduler)}
	}
	switch c.AuditBackend {
	case AuditDocstore:
	case AuditPostgres:
		if c.PostgresDSN == "" {
			return &ConfigError{Field: "POSTGRES_DSN", Reason: "required when AUDIT_BACKEND=postgres"}
		}
	default:
		return &ConfigError{Field: "AUDIT_BACKEND", Reason: fmt.Sprintf("%q must be docstore or postgres", c.AuditBackend)}
	}
	if c.TaskTimeout <= 0 {
		return &ConfigError{Field: "TASK_TIMEOUT", Reason: "must be positive"}
	}
	if c.PendingLimit <= 0 {
		return &ConfigError{Field: "PENDING_LIMIT", Reason: "must be positive"}
	}
	if c.ShutdownTimeout <= 0 {
		return &ConfigError{Field: "SHUTDOWN_TIMEOUT", Reason: "must be positive"}
	}
	return nil
}

// ProviderConfigured reports whether the payment provider proxy can be used.
func (c Config) ProviderConfigured() error {
	if c.MayarAPIKey == "" {
		return &ConfigError{Field: "MAYAR_API_KEY", Reason: "not set"}
	}
	if c.MayarBaseURL == "" {
		return &ConfigError{Field: "MAYAR_BASE_URL", Reason: "not set"}
	}
	return nil
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
