package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

const (
	BackendNone     = "none"
	BackendRabbitMQ = "rabbitmq"
	BackendPubSub   = "pubsub"
	BackendMinio    = "minio"
	BackendGCS      = "gcs"
)

type Config struct {
	ServerPort   int    `env:"SERVER_PORT" envDefault:"8000"`
	Env          string `env:"ENV" envDefault:"prod"`
	Database     DatabaseConfig
	Redis        RedisConfig
	JWT          JWTConfig
	SessionCache SessionCacheConfig
	RateLimit    RateLimitConfig
	SMTP         SMTPConfig
	Mail         MailConfig
	MQ           MQConfig
	Storage      StorageConfig
	Log          LogConfig
	CORS         CORSConfig
}

type DatabaseConfig struct {
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     int    `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"contactbook"`
	Password string `env:"DB_PASSWORD" envDefault:"password"`
	DBName   string `env:"DB_NAME" envDefault:"contactbook"`
	UseSSL   bool   `env:"DB_USE_SSL" envDefault:"false"`
}

type RedisConfig struct {
	URL string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
}

type JWTConfig struct {
	Secret            string        `env:"JWT_SECRET"`
	RefreshSecret     string        `env:"JWT_SECRET_REFRESH"`
	Algorithm         string        `env:"JWT_ALGORITHM" envDefault:"HS256"`
	AccessTTLSeconds  int           `env:"JWT_EXPIRATION_SECONDS" envDefault:"3600"`
	RefreshTTLSeconds int           `env:"JWT_REFRESH_EXPIRATION_SECONDS" envDefault:"604800"`
	EmailVerifyTTL    time.Duration `env:"JWT_EMAIL_VERIFY_TTL" envDefault:"24h"`
	PasswordResetTTL  time.Duration `env:"JWT_PASSWORD_RESET_TTL" envDefault:"30m"`
}

type SessionCacheConfig struct {
	TTL time.Duration `env:"SESSION_CACHE_TTL" envDefault:"600s"`
}

type RateLimitConfig struct {
	Requests int           `env:"RATE_LIMIT_REQUESTS" envDefault:"10"`
	Window   time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"60s"`
}

type SMTPConfig struct {
	Server   string `env:"SMTP_SERVER" envDefault:"smtp.example.com"`
	Port     int    `env:"SMTP_PORT" envDefault:"2525"`
	Username string `env:"SMTP_USERNAME" envDefault:"your_email@example.com"`
	Password string `env:"SMTP_PASSWORD"`
	From     string `env:"SMTP_FROM"`
}

// MailConfig controls where the links in outgoing emails point.
type MailConfig struct {
	VerifyURL string `env:"MAIL_VERIFY_URL" envDefault:"http://localhost:8000/auth/verify-email"`
	ResetURL  string `env:"MAIL_RESET_URL" envDefault:"http://localhost:3000/reset-password"`
	Queue     string `env:"MAIL_QUEUE" envDefault:"contactbook-mail"`
}

type MQConfig struct {
	Backend  string `env:"MQ_BACKEND" envDefault:"none"`
	RabbitMQ RabbitMQConfig
	PubSub   PubSubConfig
}

type RabbitMQConfig struct {
	URL             string `env:"RABBITMQ_URL"`
	PrefetchCount   int    `env:"RABBITMQ_PREFETCH" envDefault:"8"`
	QueueDurable    bool   `env:"RABBITMQ_QUEUE_DURABLE" envDefault:"true"`
	QueueAutoDelete bool   `env:"RABBITMQ_QUEUE_AUTO_DELETE" envDefault:"false"`
}

type PubSubConfig struct {
	ProjectID          string `env:"PUBSUB_PROJECT_ID"`
	CredentialsFile    string `env:"PUBSUB_CREDENTIALS_FILE"`
	SubscriptionSuffix string `env:"PUBSUB_SUBSCRIPTION_SUFFIX" envDefault:"-sub"`
	MaxOutstanding     int    `env:"PUBSUB_MAX_OUTSTANDING" envDefault:"8"`
}

type StorageConfig struct {
	Backend       string `env:"STORAGE_BACKEND" envDefault:"none"`
	PublicBaseURL string `env:"STORAGE_PUBLIC_BASE_URL"`
	Minio         MinioConfig
	GCS           GCSConfig
}

type MinioConfig struct {
	Endpoint  string `env:"MINIO_ENDPOINT"`
	AccessKey string `env:"MINIO_ACCESS_KEY"`
	SecretKey string `env:"MINIO_SECRET_KEY"`
	Bucket    string `env:"MINIO_BUCKET" envDefault:"avatars"`
	UseSSL    bool   `env:"MINIO_USE_SSL" envDefault:"false"`
}

type GCSConfig struct {
	Bucket          string `env:"GCS_BUCKET"`
	ProjectID       string `env:"GCS_PROJECT_ID"`
	CredentialsFile string `env:"GCS_CREDENTIALS_FILE"`
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

type CORSConfig struct {
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://127.0.0.1:3000"`
}

// LoadConfig reads the configuration from the environment. In dev mode a
// local .env file is loaded first.
func LoadConfig() (Config, error) {
	if os.Getenv("ENV") == "dev" {
		_ = godotenv.Load()
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// Validate checks settings that have no usable default.
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.JWT.Secret) == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if strings.TrimSpace(c.JWT.RefreshSecret) == "" {
		errs = append(errs, errors.New("JWT_SECRET_REFRESH is required"))
	}
	if c.JWT.Secret != "" && c.JWT.Secret == c.JWT.RefreshSecret {
		errs = append(errs, errors.New("JWT_SECRET and JWT_SECRET_REFRESH must differ"))
	}
	if !strings.HasPrefix(strings.ToUpper(c.JWT.Algorithm), "HS") {
		errs = append(errs, fmt.Errorf("unsupported JWT_ALGORITHM %q", c.JWT.Algorithm))
	}
	if c.RateLimit.Requests < 1 || c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("rate limit requests and window must be positive"))
	}

	switch c.MQ.Backend {
	case BackendNone, BackendRabbitMQ, BackendPubSub:
	default:
		errs = append(errs, fmt.Errorf("unknown MQ_BACKEND %q", c.MQ.Backend))
	}
	switch c.Storage.Backend {
	case BackendNone, BackendMinio, BackendGCS:
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_BACKEND %q", c.Storage.Backend))
	}

	return errors.Join(errs...)
}

// AccessTTL returns the access token lifetime.
func (c JWTConfig) AccessTTL() time.Duration {
	return time.Duration(c.AccessTTLSeconds) * time.Second
}

// RefreshTTL returns the refresh token lifetime.
func (c JWTConfig) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshTTLSeconds) * time.Second
}

// Sender returns the From address for outgoing mail.
func (c SMTPConfig) Sender() string {
	if strings.TrimSpace(c.From) != "" {
		return c.From
	}
	return c.Username
}
