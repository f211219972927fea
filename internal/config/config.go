// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	Store       StoreConfig
	JWT         JWTConfig
	Auth        AuthConfig
	AWS         AWSConfig
	Payment     PaymentConfig
	Email       EmailConfig
	I18n        I18nConfig
	Frontend    FrontendConfig
	Brand       BrandConfig
	Workflow    WorkflowConfig
	Log         LogConfig
}

type FrontendConfig struct {
	BaseURL string
	// PublicURL is where this service is reachable from an e-mail client.
	PublicURL string
}

type ServerConfig struct {
	Port         string
	Host         string
	ReadTimeout  int
	WriteTimeout int
	IdleTimeout  int
}

type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  int
	LogLevel     string
	AutoMigrate  bool
}

type StoreConfig struct {
	Driver string // postgres or memory
}

type JWTConfig struct {
	SecretKey      string
	AccessTokenTTL int // in hours
}

type AuthConfig struct {
	// Admins maps an admin e-mail to its bcrypt password hash.
	Admins map[string]string
}

type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	S3Bucket        string
	CloudFrontURL   string
}

type PaymentConfig struct {
	StripeSecretKey string
}

type EmailConfig struct {
	Provider       string // smtp, gmail or log
	SMTPHost       string
	SMTPPort       string
	SMTPUsername   string
	SMTPPassword   string
	FromEmail      string
	FromName       string
	ReplyTo        string
	SendTimeout    time.Duration
	GmailClientID  string
	GmailSecret    string
	GmailRefresh   string
	GmailSenderKey string
}

type I18nConfig struct {
	DefaultLocale string
}

// BrandConfig feeds the customer facing e-mails and receipts.
type BrandConfig struct {
	ProductName    string
	CompanyName    string
	SupportEmail   string
	SupportPhone   string
	WebsiteURL     string
	DownloadURL    string
	DashboardURL   string
	CurrencySymbol string
}

// WorkflowConfig holds the engine's tunables.
type WorkflowConfig struct {
	DefaultDurationMonths int
	DeviceLimits          map[string]int
	DefaultDeviceLimit    int
	ApprovalTTL           time.Duration
	RetryAttempts         int
	RetryDelay            time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// MaxDevicesFor resolves the device limit of a package type.
func (w WorkflowConfig) MaxDevicesFor(packageType string) int {
	if n, ok := w.DeviceLimits[strings.ToLower(strings.TrimSpace(packageType))]; ok {
		return n
	}
	if w.DefaultDeviceLimit > 0 {
		return w.DefaultDeviceLimit
	}
	return 1
}

// DurationOrDefault substitutes the default duration for an empty one.
func (w WorkflowConfig) DurationOrDefault(months int) int {
	if months > 0 {
		return months
	}
	if w.DefaultDurationMonths > 0 {
		return w.DefaultDurationMonths
	}
	return 12
}

func DefaultWorkflowConfig() WorkflowConfig {
	return WorkflowConfig{
		DefaultDurationMonths: 12,
		DeviceLimits: map[string]int{
			"school":     50,
			"business":   10,
			"individual": 3,
			"trial":      1,
		},
		DefaultDeviceLimit: 1,
		ApprovalTTL:        7 * 24 * time.Hour,
		RetryAttempts:      3,
		RetryDelay:         time.Second,
	}
}

func DefaultBrandConfig() BrandConfig {
	return BrandConfig{
		ProductName:    "IDLab",
		CompanyName:    "IDLab Studio",
		SupportEmail:   "support@idlab.studio",
		WebsiteURL:     "https://idlab.studio",
		DownloadURL:    "https://idlab.studio/download",
		DashboardURL:   "https://idlab.studio/dashboard",
		CurrencySymbol: "K",
	}
}

func Load() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	workflow := DefaultWorkflowConfig()
	brand := DefaultBrandConfig()

	config := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Host:         getEnv("SERVER_HOST", "localhost"),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 30),
			IdleTimeout:  getEnvAsInt("SERVER_IDLE_TIMEOUT", 60),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", ""),
			Database:     getEnv("DB_NAME", "idlab"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  getEnvAsInt("DB_MAX_LIFETIME", 300),
			LogLevel:     getEnv("DB_LOG_LEVEL", "warn"),
			AutoMigrate:  getEnvAsBool("DB_AUTO_MIGRATE", true),
		},
		Store: StoreConfig{
			Driver: getEnv("STORE_DRIVER", "postgres"),
		},
		JWT: JWTConfig{
			SecretKey:      getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
			AccessTokenTTL: getEnvAsInt("JWT_ACCESS_TTL", 12),
		},
		Auth: AuthConfig{
			Admins: getEnvAsMap("ADMIN_ACCOUNTS", nil),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			S3Bucket:        getEnv("AWS_S3_BUCKET", "idlab-payment-proofs"),
			CloudFrontURL:   getEnv("AWS_CLOUDFRONT_URL", ""),
		},
		Payment: PaymentConfig{
			StripeSecretKey: getEnv("STRIPE_SECRET_KEY", ""),
		},
		Email: EmailConfig{
			Provider:       getEnv("EMAIL_PROVIDER", "smtp"),
			SMTPHost:       getEnv("SMTP_HOST", "smtp.gmail.com"),
			SMTPPort:       getEnv("SMTP_PORT", "587"),
			SMTPUsername:   getEnv("SMTP_USERNAME", ""),
			SMTPPassword:   getEnv("SMTP_PASSWORD", ""),
			FromEmail:      getEnv("FROM_EMAIL", "noreply@idlab.studio"),
			FromName:       getEnv("FROM_NAME", "IDLab"),
			ReplyTo:        getEnv("REPLY_TO_EMAIL", ""),
			SendTimeout:    getEnvAsDuration("EMAIL_SEND_TIMEOUT", 30*time.Second),
			GmailClientID:  getEnv("GMAIL_CLIENT_ID", ""),
			GmailSecret:    getEnv("GMAIL_CLIENT_SECRET", ""),
			GmailRefresh:   getEnv("GMAIL_REFRESH_TOKEN", ""),
			GmailSenderKey: getEnv("GMAIL_SENDER", "me"),
		},
		I18n: I18nConfig{
			DefaultLocale: getEnv("DEFAULT_LOCALE", "en"),
		},
		Frontend: FrontendConfig{
			BaseURL:   getEnv("FRONTEND_URL", "https://idlab.studio"),
			PublicURL: strings.TrimRight(getEnv("PUBLIC_URL", "http://localhost:8080"), "/"),
		},
		Brand: BrandConfig{
			ProductName:    getEnv("BRAND_PRODUCT_NAME", brand.ProductName),
			CompanyName:    getEnv("BRAND_COMPANY_NAME", brand.CompanyName),
			SupportEmail:   getEnv("BRAND_SUPPORT_EMAIL", brand.SupportEmail),
			SupportPhone:   getEnv("BRAND_SUPPORT_PHONE", ""),
			WebsiteURL:     getEnv("BRAND_WEBSITE_URL", brand.WebsiteURL),
			DownloadURL:    getEnv("BRAND_DOWNLOAD_URL", brand.DownloadURL),
			DashboardURL:   getEnv("BRAND_DASHBOARD_URL", brand.DashboardURL),
			CurrencySymbol: getEnv("BRAND_CURRENCY_SYMBOL", brand.CurrencySymbol),
		},
		Workflow: WorkflowConfig{
			DefaultDurationMonths: getEnvAsInt("DEFAULT_DURATION_MONTHS", workflow.DefaultDurationMonths),
			DeviceLimits:          getEnvAsIntMap("DEVICE_LIMITS", workflow.DeviceLimits),
			DefaultDeviceLimit:    getEnvAsInt("DEFAULT_DEVICE_LIMIT", workflow.DefaultDeviceLimit),
			ApprovalTTL:           getEnvAsDuration("APPROVAL_TTL", workflow.ApprovalTTL),
			RetryAttempts:         getEnvAsInt("RETRY_ATTEMPTS", workflow.RetryAttempts),
			RetryDelay:            getEnvAsDuration("RETRY_DELAY", workflow.RetryDelay),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", ""),
		},
	}

	return config, config.Validate()
}

func (c *Config) Validate() error {
	if c.JWT.SecretKey == "your-secret-key-change-in-production" && c.Environment == "production" {
		return fmt.Errorf("JWT secret key must be changed in production")
	}

	if c.Store.Driver != "postgres" && c.Store.Driver != "memory" {
		return fmt.Errorf("unsupported store driver %q", c.Store.Driver)
	}

	if c.Store.Driver == "postgres" && c.Database.Password == "" && c.Environment == "production" {
		return fmt.Errorf("database password is required in production")
	}

	if c.Store.Driver == "memory" && c.Environment == "production" {
		return fmt.Errorf("memory store cannot be used in production")
	}

	switch c.Email.Provider {
	case "smtp", "log":
	case "gmail":
		if c.Email.GmailClientID == "" || c.Email.GmailRefresh == "" {
			return fmt.Errorf("gmail provider requires GMAIL_CLIENT_ID and GMAIL_REFRESH_TOKEN")
		}
	default:
		return fmt.Errorf("unsupported email provider %q", c.Email.Provider)
	}

	if c.Workflow.RetryAttempts < 1 {
		return fmt.Errorf("RETRY_ATTEMPTS must be at least 1")
	}

	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(strings.ToLower(value)); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvAsMap parses "k1:v1,k2:v2".
func getEnvAsMap(key string, defaultValue map[string]string) map[string]string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return parsePairs(value)
}

func getEnvAsIntMap(key string, defaultValue map[string]int) map[string]int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	result := make(map[string]int)
	for k, v := range parsePairs(value) {
		n, err := strconv.Atoi(v)
		if err != nil {
			continue
		}
		result[strings.ToLower(k)] = n
	}
	return result
}

func parsePairs(value string) map[string]string {
	result := make(map[string]string)
	for _, pair := range strings.Split(value, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok || k == "" {
			continue
		}
		result[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return result
}
