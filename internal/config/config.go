// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the JSON API listens on (e.g. :8000).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the address the gRPC health server listens on (e.g. :9090).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN. When empty the server runs on in-memory stores.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisAddr enables the Redis account locker (host:port). Empty uses an in-process locker.
	RedisAddr string `mapstructure:"REDIS_ADDR"`
	// RedisPassword is the optional Redis AUTH password.
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`

	// JWTSecret is the HS256 signing secret. Used when JWT_PRIVATE_KEY is not set.
	JWTSecret string `mapstructure:"JWT_SECRET"`
	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file; used with JWT_PUBLIC_KEY for RS256/ES256.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; used with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim.
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token lifetime (e.g. "168h").
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// OTPEmailTTL is the lifetime of email codes. "0" means email codes never expire.
	OTPEmailTTL string `mapstructure:"OTP_EMAIL_TTL"`
	// OTPPhoneTTL is the lifetime of SMS codes (e.g. "10m").
	OTPPhoneTTL string `mapstructure:"OTP_PHONE_TTL"`

	// MailFrom is the From address for OTP mails.
	MailFrom string `mapstructure:"SMTP_EMAIL"`

	// GoogleClientID is the OAuth client id ID tokens must be issued for. Empty disables Google sign-in.
	GoogleClientID string `mapstructure:"GOOGLE_CLIENT_ID"`
	// GoogleCertsURL is the JWKS endpoint used to verify Google ID tokens.
	GoogleCertsURL string `mapstructure:"GOOGLE_CERTS_URL"`
	// FacebookClientID, FacebookClientSecret and FacebookRedirectURI configure the Facebook code exchange.
	FacebookClientID     string `mapstructure:"FACEBOOK_CLIENT_ID"`
	FacebookClientSecret string `mapstructure:"FACEBOOK_CLIENT_SECRET"`
	FacebookRedirectURI  string `mapstructure:"FACEBOOK_REDIRECT_URI"`
	// LinkedInClientID, LinkedInClientSecret and LinkedInRedirectURI configure the LinkedIn code exchange.
	LinkedInClientID     string `mapstructure:"LINKEDIN_CLIENT_ID"`
	LinkedInClientSecret string `mapstructure:"LINKEDIN_CLIENT_SECRET"`
	LinkedInRedirectURI  string `mapstructure:"LINKEDIN_REDIRECT_URI"`
	// ProviderTimeout bounds every call to a third-party identity provider (e.g. "10s").
	ProviderTimeout string `mapstructure:"PROVIDER_TIMEOUT"`

	// SMSLocalAPIKey is the API key for SMS Local. Empty falls back to the dev notifier when OTPReturnToClient is set.
	SMSLocalAPIKey string `mapstructure:"SMS_LOCAL_API_KEY"`
	// SMSLocalSender is the optional sender ID for SMS Local.
	SMSLocalSender string `mapstructure:"SMS_LOCAL_SENDER"`
	// SMSLocalBaseURL is the SMS Local API base URL.
	SMSLocalBaseURL string `mapstructure:"SMS_LOCAL_BASE_URL"`

	// KafkaBrokers is a comma-separated list of Kafka broker addresses; when set, OTP mails are published to Kafka.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// NotifyKafkaTopic is the topic OTP mails are published to.
	NotifyKafkaTopic string `mapstructure:"NOTIFY_KAFKA_TOPIC"`
	// KafkaGroupID is the consumer group ID for the notification worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
	// MailRelayURL is the HTTP relay the notification worker hands mails to.
	MailRelayURL string `mapstructure:"MAIL_RELAY_URL"`
	// NotifyTimeout bounds a single email or SMS dispatch (e.g. "5s").
	NotifyTimeout string `mapstructure:"NOTIFY_TIMEOUT"`
	// NotifyEmailRetries is the number of extra attempts for email dispatch; 0 disables retries.
	NotifyEmailRetries int `mapstructure:"NOTIFY_EMAIL_RETRIES"`

	// OTPReturnToClient when true enables dev OTP mode: codes are kept in memory and served by GET /api/v1/users/dev/otp. Must not be true when Env is production.
	OTPReturnToClient bool `mapstructure:"OTP_RETURN_TO_CLIENT"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// OTLPEndpoint is the OTLP gRPC collector endpoint. Empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext to the collector.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// ServiceName is the OTel service.name resource attribute.
	ServiceName string `mapstructure:"OTEL_SERVICE_NAME"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8000")
	v.SetDefault("GRPC_ADDR", ":9090")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "identity-core")
	v.SetDefault("JWT_AUDIENCE", "identity-api")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("JWT_REFRESH_TTL", "168h") // 7d
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("OTP_EMAIL_TTL", "0")
	v.SetDefault("OTP_PHONE_TTL", "10m")
	v.SetDefault("SMTP_EMAIL", "no-reply@localhost")
	v.SetDefault("GOOGLE_CLIENT_ID", "")
	v.SetDefault("GOOGLE_CERTS_URL", "https://www.googleapis.com/oauth2/v3/certs")
	v.SetDefault("FACEBOOK_CLIENT_ID", "")
	v.SetDefault("FACEBOOK_CLIENT_SECRET", "")
	v.SetDefault("FACEBOOK_REDIRECT_URI", "")
	v.SetDefault("LINKEDIN_CLIENT_ID", "")
	v.SetDefault("LINKEDIN_CLIENT_SECRET", "")
	v.SetDefault("LINKEDIN_REDIRECT_URI", "")
	v.SetDefault("PROVIDER_TIMEOUT", "10s")
	v.SetDefault("SMS_LOCAL_API_KEY", "")
	v.SetDefault("SMS_LOCAL_SENDER", "")
	v.SetDefault("SMS_LOCAL_BASE_URL", "https://app.smslocal.in/api/smsapi")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("NOTIFY_KAFKA_TOPIC", "identity-notifications")
	v.SetDefault("KAFKA_GROUP_ID", "identity-notification-worker")
	v.SetDefault("MAIL_RELAY_URL", "")
	v.SetDefault("NOTIFY_TIMEOUT", "5s")
	v.SetDefault("NOTIFY_EMAIL_RETRIES", 0)
	v.SetDefault("OTP_RETURN_TO_CLIENT", false)
	v.SetDefault("APP_ENV", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "identity-core")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}

	if cfg.JWTSecret == "" && (cfg.JWTPrivateKey == "" || cfg.JWTPublicKey == "") {
		return nil, errors.New("config: JWT_SECRET or JWT_PRIVATE_KEY and JWT_PUBLIC_KEY must be set")
	}

	if cfg.OTPReturnToClient && cfg.Env == "production" {
		return nil, errors.New("config: OTP_RETURN_TO_CLIENT must not be true when APP_ENV=production")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	if cfg.NotifyEmailRetries < 0 {
		return nil, errors.New("config: NOTIFY_EMAIL_RETRIES must not be negative")
	}

	return &cfg, nil
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return parseDuration(c.JWTAccessTTL, 15*time.Minute)
}

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 168h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	return parseDuration(c.JWTRefreshTTL, 168*time.Hour)
}

// EmailOTPTTL returns the email code lifetime; 0 means no expiry.
func (c *Config) EmailOTPTTL() time.Duration {
	if strings.TrimSpace(c.OTPEmailTTL) == "0" {
		return 0
	}
	return parseDuration(c.OTPEmailTTL, 0)
}

// PhoneOTPTTL returns the SMS code lifetime. Returns 10m if unset or invalid.
func (c *Config) PhoneOTPTTL() time.Duration {
	return parseDuration(c.OTPPhoneTTL, 10*time.Minute)
}

// ProviderCallTimeout returns the identity provider call bound. Returns 10s if unset or invalid.
func (c *Config) ProviderCallTimeout() time.Duration {
	return parseDuration(c.ProviderTimeout, 10*time.Second)
}

// NotifyCallTimeout returns the notifier dispatch bound. Returns 5s if unset or invalid.
func (c *Config) NotifyCallTimeout() time.Duration {
	return parseDuration(c.NotifyTimeout, 5*time.Second)
}

// IsDevOTP reports whether dev OTP mode is active.
func (c *Config) IsDevOTP() bool {
	return c != nil && c.OTPReturnToClient && c.Env != "production"
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
