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

// DefaultJWTSigningKey is only acceptable outside production.
const DefaultJWTSigningKey = "dev-secret-key-change-in-production"

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type StorageConfig struct {
	Backend      string // local, remote or memory
	SQLitePath   string
	DatabaseURL  string
	MaxOpenConns int
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type KafkaConfig struct {
	Brokers string // comma separated
	Topic   string
}

type S3Config struct {
	Bucket    string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
}

type AuthConfig struct {
	JWTSigningKey      string
	JWTIssuer          string
	JWTAudience        string
	SessionTTL         time.Duration
	AdminEmail         string
	AdminPassword      string
	LoginRatePerMinute int
}

type LogConfig struct {
	Level  string
	Format string
}

// Config is the full process configuration.
type Config struct {
	Env         string
	Server      Server
	Storage     StorageConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	S3          S3Config
	Auth        AuthConfig
	Log         LogConfig
	AuditBuffer int
}

// FromEnv builds the config from environment variables, after loading a
// .env file from the working directory when one exists. Values already in
// the environment win over the file.
func FromEnv() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return Load(os.Getenv)
}

// Load builds the config from getenv and validates it.
func Load(getenv func(string) string) (Config, error) {
	r := reader{getenv: getenv}
	cfg := Config{
		Env: r.str("ENV", "dev"),
		Server: Server{
			Addr:            r.str("KYC_ADDR", ":8080"),
			ReadTimeout:     r.duration("HTTP_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    r.duration("HTTP_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: r.duration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Storage: StorageConfig{
			Backend:      strings.ToLower(r.str("KYC_BACKEND", "local")),
			SQLitePath:   r.str("KYC_SQLITE_PATH", "kyc.db"),
			DatabaseURL:  r.str("DATABASE_URL", ""),
			MaxOpenConns: r.int("DATABASE_MAX_OPEN_CONNS", 10),
		},
		Redis: RedisConfig{
			URL:          r.str("REDIS_URL", ""),
			PoolSize:     r.int("REDIS_POOL_SIZE", 10),
			MinIdleConns: r.int("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  r.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  r.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: r.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: r.str("KAFKA_BROKERS", ""),
			Topic:   r.str("KAFKA_AUDIT_TOPIC", "kyc.audit"),
		},
		S3: S3Config{
			Bucket:    r.str("S3_BUCKET", ""),
			Endpoint:  r.str("S3_ENDPOINT", ""),
			Region:    r.str("S3_REGION", "us-east-1"),
			AccessKey: r.str("S3_ACCESS_KEY", ""),
			SecretKey: r.str("S3_SECRET_KEY", ""),
		},
		Auth: AuthConfig{
			JWTSigningKey:      r.str("JWT_SIGNING_KEY", DefaultJWTSigningKey),
			JWTIssuer:          r.str("JWT_ISSUER", "kycflow"),
			JWTAudience:        r.str("JWT_AUDIENCE", "kycflow-api"),
			SessionTTL:         r.duration("SESSION_TTL", 24*time.Hour),
			AdminEmail:         r.str("ADMIN_EMAIL", "admin@kyc.com"),
			AdminPassword:      r.str("ADMIN_PASSWORD", "admin123"),
			LoginRatePerMinute: r.int("LOGIN_RATE_PER_MINUTE", 10),
		},
		Log: LogConfig{
			Level:  r.str("LOG_LEVEL", "info"),
			Format: r.str("LOG_FORMAT", "json"),
		},
		AuditBuffer: r.int("AUDIT_BUFFER", 0),
	}
	if len(r.errs) > 0 {
		return Config{}, errors.Join(r.errs...)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	switch c.Storage.Backend {
	case "local", "memory":
	case "remote":
		if c.Storage.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the remote backend"))
		}
		if c.S3.Bucket == "" {
			errs = append(errs, errors.New("S3_BUCKET is required for the remote backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("KYC_BACKEND must be local or remote, got %q", c.Storage.Backend))
	}
	if c.IsProduction() && c.Auth.JWTSigningKey == DefaultJWTSigningKey {
		errs = append(errs, errors.New("JWT_SIGNING_KEY must be set in production"))
	}
	if c.Auth.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}
	if c.Auth.LoginRatePerMinute < 0 {
		errs = append(errs, errors.New("LOGIN_RATE_PER_MINUTE cannot be negative"))
	}
	if c.AuditBuffer < 0 {
		errs = append(errs, errors.New("AUDIT_BUFFER cannot be negative"))
	}
	if c.Kafka.Brokers != "" && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("KAFKA_AUDIT_TOPIC is required when KAFKA_BROKERS is set"))
	}
	return errors.Join(errs...)
}

func (c Config) IsProduction() bool {
	return c.Env == "prod" || c.Env == "production"
}

type reader struct {
	getenv func(string) string
	errs   []error
}

func (r *reader) str(key, def string) string {
	if v := strings.TrimSpace(r.getenv(key)); v != "" {
		return v
	}
	return def
}

func (r *reader) int(key string, def int) int {
	v := strings.TrimSpace(r.getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %q is not an integer", key, v))
		return def
	}
	return n
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(r.getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %q is not a duration", key, v))
		return def
	}
	return d
}
