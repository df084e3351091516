package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/brothersgym/backoffice/internal/calendar"
	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	MongoDB    MongoDBConfig
	Redis      RedisConfig
	JWT        JWTConfig
	S3         S3Config
	OTEL       OTELConfig
	Email      EmailConfig
	Membership MembershipConfig
	Admin      AdminConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            string
	MaxUploadSizeMB int64
	ClientURL       string // dashboard origin, used for CORS and links in emails
	CookieSecure    bool
}

// MongoDBConfig holds MongoDB connection configuration
type MongoDBConfig struct {
	URI      string
	Database string
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string
	Password string
}

// JWTConfig holds admin token configuration
type JWTConfig struct {
	Secret             string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
}

// S3Config holds the S3-compatible object store used for avatars
type S3Config struct {
	Endpoint  string
	PublicURL string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
}

// OTELConfig holds OpenTelemetry exporter configuration
type OTELConfig struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	Environment    string
	Endpoint       string
	InstanceID     string
	Token          string
	SampleRatio    float64 // fraction of root traces kept
}

// EmailConfig selects and configures the outbound mail provider
type EmailConfig struct {
	Provider     string // resend, smtp or log
	From         string
	FromName     string
	NotifyAdmin  string // receives new-member and renewal notices
	ResendAPIKey string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
}

// MembershipConfig fixes the calendar used for membership arithmetic for the whole deployment
type MembershipConfig struct {
	Calendar calendar.Kind
	Timezone string
}

// AdminConfig holds back-office access rules
type AdminConfig struct {
	// AllowedEmails may sign up in addition to the very first admin. Empty allows nobody else.
	AllowedEmails []string
}

// Location resolves the configured membership timezone
func (m MembershipConfig) Location() (*time.Location, error) {
	return time.LoadLocation(m.Timezone)
}

// Converter builds the calendar converter for the configured calendar and timezone
func (m MembershipConfig) Converter() (calendar.Converter, error) {
	loc, err := m.Location()
	if err != nil {
		return nil, err
	}
	return calendar.New(m.Calendar, loc)
}

// Load reads configuration from environment variables
// It attempts to load from .env file first, then falls back to system env vars
func Load() (*Config, error) {
	// Try to load .env file (ignore error if not found)
	_ = godotenv.Load()

	kind, err := calendar.ParseKind(getEnv("MEMBERSHIP_CALENDAR", string(calendar.Gregorian)))
	if err != nil {
		return nil, fmt.Errorf("config validation failed: MEMBERSHIP_CALENDAR: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			MaxUploadSizeMB: getEnvAsInt64("MAX_UPLOAD_SIZE_MB", 5),
			ClientURL:       getEnv("CLIENT_URL", "http://localhost:3000"),
			CookieSecure:    getEnvAsBool("COOKIE_SECURE", false),
		},
		MongoDB: MongoDBConfig{
			URI:      getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database: getEnv("MONGODB_DATABASE", "brothers_gym"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
		},
		JWT: JWTConfig{
			Secret:             getEnv("JWT_SECRET", ""),
			AccessTokenExpiry:  getEnvAsDuration("JWT_ACCESS_EXPIRY", 24*time.Hour),
			RefreshTokenExpiry: getEnvAsDuration("JWT_REFRESH_EXPIRY", 30*24*time.Hour),
		},
		S3: S3Config{
			Endpoint:  getEnv("S3_ENDPOINT", "http://localhost:8333"),
			PublicURL: getEnv("S3_PUBLIC_URL", ""),
			Region:    getEnv("S3_REGION", "us-east-1"),
			Bucket:    getEnv("S3_BUCKET", "member-avatars"),
			AccessKey: getEnv("S3_ACCESS_KEY", "any"),
			SecretKey: getEnv("S3_SECRET_KEY", "any"),
		},
		OTEL: OTELConfig{
			Enabled:        getEnvAsBool("OTEL_ENABLED", false),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "brothers-gym-backoffice"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
			Environment:    getEnv("OTEL_ENVIRONMENT", "development"),
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			InstanceID:     getEnv("OTEL_INSTANCE_ID", ""),
			Token:          getEnv("OTEL_TOKEN", ""),
			SampleRatio:    getEnvAsFloat("OTEL_SAMPLE_RATIO", 1),
		},
		Email: EmailConfig{
			Provider:     strings.ToLower(getEnv("EMAIL_PROVIDER", "log")),
			From:         getEnv("EMAIL_FROM", "no-reply@brothersgym.local"),
			FromName:     getEnv("EMAIL_FROM_NAME", "Brothers Gym"),
			NotifyAdmin:  getEnv("ADMIN_NOTIFY_EMAIL", ""),
			ResendAPIKey: getEnv("RESEND_API_KEY", ""),
			SMTPHost:     getEnv("SMTP_HOST", ""),
			SMTPPort:     int(getEnvAsInt64("SMTP_PORT", 587)),
			SMTPUsername: getEnv("SMTP_USERNAME", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		},
		Membership: MembershipConfig{
			Calendar: kind,
			Timezone: getEnv("MEMBERSHIP_TIMEZONE", "Africa/Addis_Ababa"),
		},
		Admin: AdminConfig{
			AllowedEmails: getEnvAsList("ALLOWED_ADMIN_EMAILS"),
		},
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if _, err := c.Membership.Converter(); err != nil {
		return fmt.Errorf("invalid membership calendar settings: %w", err)
	}
	if c.OTEL.SampleRatio < 0 || c.OTEL.SampleRatio > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATIO must be between 0 and 1")
	}
	switch c.Email.Provider {
	case "log":
	case "resend":
		if c.Email.ResendAPIKey == "" {
			return fmt.Errorf("RESEND_API_KEY is required when EMAIL_PROVIDER=resend")
		}
	case "smtp":
		if c.Email.SMTPHost == "" {
			return fmt.Errorf("SMTP_HOST is required when EMAIL_PROVIDER=smtp")
		}
	default:
		return fmt.Errorf("unknown EMAIL_PROVIDER %q", c.Email.Provider)
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt64 retrieves an environment variable as int64 or returns a default value
func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration accepts Go durations ("15m", "720h")
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma separated variable, lowercasing entries
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}
