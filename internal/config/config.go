package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	env "github.com/caarlos0/env/v7"
	"github.com/joho/godotenv"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort        string   `env:"APP_PORT" envDefault:"3000"`
	AppEnv         string   `env:"APP_ENV" envDefault:"development"`
	LogLevel       string   `env:"LOG_LEVEL" envDefault:"info"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"` // CORS allowed origins
	// Proxies whose X-Forwarded-For and X-Real-Ip headers are believed, as CIDRs or addresses.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`

	AWSRegion      string `env:"AWS_REGION" envDefault:"us-east-1"`
	AWSEndpointURL string `env:"AWS_ENDPOINT_URL"` // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretKey   string `env:"AWS_SECRET_ACCESS_KEY"`
	DynamoTables   DynamoTables

	JWTPrivateKeyPath string `env:"JWT_PRIVATE_KEY_PATH" envDefault:"./private_key.pem"`
	JWTPublicKeyPath  string `env:"JWT_PUBLIC_KEY_PATH" envDefault:"./public_key.pem"`

	SMTPHost     string `env:"SMTP_HOST" envDefault:"localhost"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"1025"`
	SMTPFrom     string `env:"SMTP_FROM" envDefault:"noreply@example.com"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	SNSRegion    string `env:"SNS_REGION" envDefault:"us-east-1"`

	// When set, notifications are published to Kafka instead of being sent directly.
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_NOTIFICATION_TOPIC" envDefault:"notifications"`

	RedisURL       string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	GoogleClientID string `env:"GOOGLE_CLIENT_ID"`

	Session      SessionConfig
	Verification VerificationConfig
	TOTP         TOTPConfig
	Limits       LimitsConfig
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Users                string `env:"DYNAMO_TABLE_USERS" envDefault:"users"`
	Sessions             string `env:"DYNAMO_TABLE_SESSIONS" envDefault:"sessions"`
	VerificationRequests string `env:"DYNAMO_TABLE_VERIFICATION_REQUESTS" envDefault:"verification_requests"`
}

type SessionConfig struct {
	Lifetime     time.Duration `env:"SESSION_LIFETIME" envDefault:"720h"`
	RenewWithin  time.Duration `env:"SESSION_RENEW_WITHIN" envDefault:"360h"`
	CookieSecure bool          `env:"SESSION_COOKIE_SECURE"`
}

type VerificationConfig struct {
	Secret     string        `env:"VERIFICATION_CODE_SECRET"`
	TTL        time.Duration `env:"VERIFICATION_TTL" envDefault:"10m"`
	CodeLength int           `env:"VERIFICATION_CODE_LENGTH" envDefault:"8"`
}

type TOTPConfig struct {
	Issuer string `env:"TOTP_ISSUER" envDefault:"newshub"`
}

// LimitsConfig holds the capacities and windows of every limiter in the auth gate.
type LimitsConfig struct {
	Backend     string `env:"RATE_LIMIT_BACKEND" envDefault:"memory"` // "memory" | "redis"
	RedisPrefix string `env:"RATE_LIMIT_REDIS_PREFIX" envDefault:"rl"`

	GlobalPerSecond float64 `env:"GLOBAL_RATE_PER_SECOND" envDefault:"1"`
	GlobalBurst     int     `env:"GLOBAL_RATE_BURST" envDefault:"100"`

	LoginIPCapacity  int           `env:"LOGIN_IP_CAPACITY" envDefault:"20"`
	LoginIPRefill    time.Duration `env:"LOGIN_IP_REFILL" envDefault:"1s"`
	SignupIPCapacity int           `env:"SIGNUP_IP_CAPACITY" envDefault:"3"`
	SignupIPRefill   time.Duration `env:"SIGNUP_IP_REFILL" envDefault:"10s"`

	LoginThrottleSeconds []int `env:"LOGIN_THROTTLE_SECONDS" envSeparator:"," envDefault:"1,2,4,8,16,30,60,180,300"`

	VerifyCapacity int           `env:"VERIFY_CODE_CAPACITY" envDefault:"5"`
	VerifyWindow   time.Duration `env:"VERIFY_CODE_WINDOW" envDefault:"30m"`
	SendCapacity   int           `env:"SEND_CODE_CAPACITY" envDefault:"3"`
	SendWindow     time.Duration `env:"SEND_CODE_WINDOW" envDefault:"10m"`

	TOTPUpdateCapacity   int           `env:"TOTP_UPDATE_CAPACITY" envDefault:"3"`
	TOTPUpdateRefill     time.Duration `env:"TOTP_UPDATE_REFILL" envDefault:"10m"`
	TOTPVerifyCapacity   int           `env:"TOTP_VERIFY_CAPACITY" envDefault:"5"`
	TOTPVerifyWindow     time.Duration `env:"TOTP_VERIFY_WINDOW" envDefault:"30m"`
	RecoveryCodeCapacity int           `env:"RECOVERY_CODE_CAPACITY" envDefault:"3"`
	RecoveryCodeWindow   time.Duration `env:"RECOVERY_CODE_WINDOW" envDefault:"1h"`

	JanitorInterval time.Duration `env:"RATE_LIMIT_JANITOR_INTERVAL" envDefault:"5m"`
}

// LoginThrottleSchedule converts the configured seconds into durations.
func (l LimitsConfig) LoginThrottleSchedule() []time.Duration {
	out := make([]time.Duration, len(l.LoginThrottleSeconds))
	for i, s := range l.LoginThrottleSeconds {
		out[i] = time.Duration(s) * time.Second
	}
	return out
}

// IsProduction reports whether cookies must be marked Secure.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Load reads an optional .env file and then parses the environment.
func Load(envPath string) (*Config, error) {
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envPath, err)
	}
	var c Config
	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if c.Verification.Secret == "" && c.IsProduction() {
		return nil, errors.New("VERIFICATION_CODE_SECRET is required in production")
	}
	if c.IsProduction() {
		c.Session.CookieSecure = true
	}
	return &c, nil
}
