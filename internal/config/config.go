package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultBind                    = ":8080"
	DefaultDBDriver                = DriverMySQL
	DefaultMaxRequestBytes   int64 = 64 * 1024 * 1024
	DefaultMaxPixels               = 50_000_000
	DefaultUploadConcurrency       = 4
	DefaultSessionTTL              = 12 * time.Hour
	DefaultFeedPollInterval        = 5 * time.Second
	DefaultTimezone                = "Asia/Seoul"
	DefaultLeadRatePerMinute       = 6
	DefaultLoginRatePerMinute      = 10
	DefaultSMTPPort                = 587
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

type AuthMode string

const (
	AuthNone AuthMode = "none"
	AuthPIN  AuthMode = "pin"
)

type SMTP struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromName  string
	FromEmail string
	NotifyTo  string
}

// Enabled reports whether lead notifications should be mailed.
func (s SMTP) Enabled() bool {
	return s.Host != "" && s.NotifyTo != ""
}

type Config struct {
	Bind               string
	DBDriver           string
	DBDSN              string
	MaxRequestBytes    int64
	MaxPixels          int
	UploadConcurrency  int
	AuthMode           AuthMode
	SessionSecret      string
	SessionTTL         time.Duration
	CookieSecure       bool
	OptionsFile        string
	FeedPollInterval   time.Duration
	Timezone           string
	LeadRatePerMinute  int
	LoginRatePerMinute int
	CORSAllowedOrigins []string
	LogLevel           string
	SwaggerUIPath      string
	OpenAPIPath        string
	SMTP               SMTP
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Bind:               getenv("BANNERDESK_BIND", DefaultBind),
		DBDriver:           strings.ToLower(getenv("BANNERDESK_DB_DRIVER", DefaultDBDriver)),
		MaxRequestBytes:    getInt64("BANNERDESK_MAX_REQUEST_BYTES", DefaultMaxRequestBytes),
		MaxPixels:          getInt("BANNERDESK_MAX_PIXELS", DefaultMaxPixels),
		UploadConcurrency:  getInt("BANNERDESK_UPLOAD_CONCURRENCY", DefaultUploadConcurrency),
		AuthMode:           AuthMode(getenv("BANNERDESK_AUTH_MODE", string(AuthPIN))),
		SessionSecret:      os.Getenv("BANNERDESK_SESSION_SECRET"),
		SessionTTL:         getDuration("BANNERDESK_SESSION_TTL", DefaultSessionTTL),
		CookieSecure:       getBool("BANNERDESK_COOKIE_SECURE", true),
		OptionsFile:        os.Getenv("BANNERDESK_OPTIONS_FILE"),
		FeedPollInterval:   getDuration("BANNERDESK_FEED_POLL_INTERVAL", DefaultFeedPollInterval),
		Timezone:           getenv("BANNERDESK_TIMEZONE", DefaultTimezone),
		LeadRatePerMinute:  getInt("BANNERDESK_LEAD_RATE_PER_MINUTE", DefaultLeadRatePerMinute),
		LoginRatePerMinute: getInt("BANNERDESK_LOGIN_RATE_PER_MINUTE", DefaultLoginRatePerMinute),
		CORSAllowedOrigins: splitAndTrim(os.Getenv("BANNERDESK_CORS_ALLOWED_ORIGINS")),
		LogLevel:           os.Getenv("BANNERDESK_LOG_LEVEL"),
		SwaggerUIPath:      "/swagger",
		OpenAPIPath:        "/openapi.yaml",
		SMTP: SMTP{
			Host:      os.Getenv("BANNERDESK_SMTP_HOST"),
			Port:      getInt("BANNERDESK_SMTP_PORT", DefaultSMTPPort),
			Username:  os.Getenv("BANNERDESK_SMTP_USERNAME"),
			Password:  os.Getenv("BANNERDESK_SMTP_PASSWORD"),
			FromName:  getenv("BANNERDESK_SMTP_FROM_NAME", "bannerdesk"),
			FromEmail: os.Getenv("BANNERDESK_SMTP_FROM_EMAIL"),
			NotifyTo:  os.Getenv("BANNERDESK_NOTIFY_TO"),
		},
	}

	cfg.DBDSN = os.Getenv("BANNERDESK_DB_DSN")
	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("BANNERDESK_DB_DSN is required")
	}

	switch cfg.DBDriver {
	case DriverMySQL, DriverSQLite:
	default:
		return nil, fmt.Errorf("invalid BANNERDESK_DB_DRIVER: %s", cfg.DBDriver)
	}

	switch cfg.AuthMode {
	case AuthNone:
	case AuthPIN:
		if len(cfg.SessionSecret) < 32 {
			return nil, fmt.Errorf("BANNERDESK_SESSION_SECRET must be at least 32 characters when BANNERDESK_AUTH_MODE=pin")
		}
	default:
		return nil, fmt.Errorf("invalid BANNERDESK_AUTH_MODE: %s", cfg.AuthMode)
	}

	if cfg.UploadConcurrency < 1 {
		cfg.UploadConcurrency = 1
	}

	if cfg.SMTP.Enabled() && cfg.SMTP.FromEmail == "" {
		return nil, fmt.Errorf("BANNERDESK_SMTP_FROM_EMAIL is required when BANNERDESK_SMTP_HOST is set")
	}

	return cfg, nil
}

// Location resolves the configured timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

func getInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.ParseInt(v, 10, 64)
		if err == nil {
			return i
		}
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err == nil && d > 0 {
			return d
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(strings.TrimSpace(v))
		return v == "1" || v == "true" || v == "yes" || v == "y"
	}
	return def
}

func splitAndTrim(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
