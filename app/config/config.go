package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	// this will automatically load your .env file:
	_ "github.com/joho/godotenv/autoload"
)

type Config struct {
	Logs      LogConfig
	HTTP      HTTPConfig
	DB        DBConfig
	Stripe    StripeConfig
	Auth      AuthConfig
	Provider  ProviderConfig
	Mail      MailConfig
	Anonymous AnonymousConfig
}

type LogConfig struct {
	Style string
	Level string
}

type HTTPConfig struct {
	Addr         string
	AllowOrigins []string
	// TrustedProxies lists the proxy addresses or CIDRs whose X-Forwarded-For is believed.
	// Empty means the socket peer is the client.
	TrustedProxies []string
	// TrustedPlatform names a header set by the hosting platform that carries the client
	// address, for example CF-Connecting-IP.
	TrustedPlatform string
}

type DBConfig struct {
	Driver   string // postgres, mongo or memory
	Postgres PostgresConfig
	Mongo    MongoConfig
}

type PostgresConfig struct {
	Username string
	Password string
	URL      string
	Port     string
	Database string
	SSLMode  string
}

type MongoConfig struct {
	URI      string
	Database string
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	FrontendURL   string
	Currency      string
}

type AuthConfig struct {
	JWTSecret string
	Issuer    string
	TokenTTL  time.Duration
}

type ProviderConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type MailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	From         string
	StaffAddress string
	QueueURL     string // when set, mail is queued on SQS instead of sent over SMTP
}

type AnonymousConfig struct {
	CounterSize int
	CounterTTL  time.Duration // 0 keeps counts for the life of the process
}

func LoadConfig() (*Config, error) {
	tokenTTL, err := durationEnv("AUTH_TOKEN_TTL", 24*time.Hour)
	if err != nil {
		return nil, err
	}
	providerTimeout, err := durationEnv("PROVIDER_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}
	anonTTL, err := durationEnv("ANON_COUNTER_TTL", 0)
	if err != nil {
		return nil, err
	}
	smtpPort, err := intEnv("SMTP_PORT", 587)
	if err != nil {
		return nil, err
	}
	anonSize, err := intEnv("ANON_COUNTER_SIZE", 100000)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Logs: LogConfig{
			Style: os.Getenv("LOG_STYLE"),
			Level: os.Getenv("LOG_LEVEL"),
		},
		HTTP: HTTPConfig{
			Addr:            stringEnv("HTTP_ADDR", "0.0.0.0:8080"),
			AllowOrigins:    listEnv("CORS_ALLOW_ORIGINS", []string{"*"}),
			TrustedProxies:  listEnv("TRUSTED_PROXIES", nil),
			TrustedPlatform: os.Getenv("TRUSTED_PLATFORM"),
		},
		DB: DBConfig{
			Driver: strings.ToLower(stringEnv("DB_DRIVER", "postgres")),
			Postgres: PostgresConfig{
				Username: os.Getenv("POSTGRES_USER"),
				Password: os.Getenv("POSTGRES_PWD"),
				URL:      os.Getenv("POSTGRES_URL"),
				Port:     stringEnv("POSTGRES_PORT", "5432"),
				Database: stringEnv("POSTGRES_DB", "regcheck"),
				SSLMode:  os.Getenv("POSTGRES_SSLMODE"),
			},
			Mongo: MongoConfig{
				URI:      os.Getenv("MONGO_URI"),
				Database: stringEnv("MONGO_DB", "regcheck"),
			},
		},
		Stripe: StripeConfig{
			SecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
			WebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
			FrontendURL:   strings.TrimRight(os.Getenv("FRONTEND_URL"), "/"),
			Currency:      strings.ToLower(stringEnv("STRIPE_CURRENCY", "gbp")),
		},
		Auth: AuthConfig{
			JWTSecret: os.Getenv("JWT_SECRET"),
			Issuer:    stringEnv("JWT_ISSUER", "regcheck-api"),
			TokenTTL:  tokenTTL,
		},
		Provider: ProviderConfig{
			BaseURL: strings.TrimRight(os.Getenv("PROVIDER_BASE_URL"), "/"),
			APIKey:  os.Getenv("PROVIDER_API_KEY"),
			Timeout: providerTimeout,
		},
		Mail: MailConfig{
			SMTPHost:     os.Getenv("SMTP_HOST"),
			SMTPPort:     smtpPort,
			SMTPUser:     os.Getenv("SMTP_USER"),
			SMTPPassword: os.Getenv("SMTP_PASSWORD"),
			From:         stringEnv("MAIL_FROM", "no-reply@regcheck.local"),
			StaffAddress: os.Getenv("SUPPORT_STAFF_EMAIL"),
			QueueURL:     os.Getenv("MAIL_QUEUE_URL"),
		},
		Anonymous: AnonymousConfig{
			CounterSize: anonSize,
			CounterTTL:  anonTTL,
		},
	}

	return cfg, nil
}

// Validate reports settings the server cannot start without.
func (c *Config) Validate() error {
	var missing []string
	if c.Auth.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if c.Provider.BaseURL == "" {
		missing = append(missing, "PROVIDER_BASE_URL")
	}
	switch c.DB.Driver {
	case "postgres":
		if c.DB.Postgres.URL == "" {
			missing = append(missing, "POSTGRES_URL")
		}
	case "mongo":
		if c.DB.Mongo.URI == "" {
			missing = append(missing, "MONGO_URI")
		}
	case "memory":
	default:
		return fmt.Errorf("DB_DRIVER %q must be postgres, mongo or memory", c.DB.Driver)
	}
	for _, p := range c.HTTP.TrustedProxies {
		if net.ParseIP(p) != nil {
			continue
		}
		if _, _, err := net.ParseCIDR(p); err != nil {
			return fmt.Errorf("TRUSTED_PROXIES: %q is not an IP or CIDR", p)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

func stringEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("error converting string to int: %s: %w", key, err)
	}
	return n, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("error parsing duration: %s: %w", key, err)
	}
	return d, nil
}

func listEnv(key string, fallback []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
