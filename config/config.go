package config

import (
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	AppName string
	AppPort string
	GinMode string

	DBDriver string // "sqlite" or "mysql"
	DBDSN    string

	JWTSecret       string
	AccessTokenTTL  time.Duration
	RedisAddr       string // empty disables token revocation and catalog caching
	RedisPass       string
	RedisDB         int
	CatalogCacheTTL time.Duration

	OTPExpire      time.Duration
	OTPMaxAttempts int
	ReportTimezone string

	TwilioSID          string
	TwilioAuthToken    string
	TwilioPhoneNumber  string
	DefaultCountryCode string
	NotifyTimeout      time.Duration

	RateLimitRPS   float64
	RateLimitBurst int

	// Seeded at startup when both are set
	AdminUsername string
	AdminPassword string
	AdminName     string

	LogLevel  string
	LogFormat string
}

// Load reads .env (if present) and the process environment
func Load() *Config {
	_ = godotenv.Load()
	return &Config{
		AppName: getEnv("APP_NAME", "Bite Me Buddy"),
		AppPort: getEnv("APP_PORT", "8080"),
		GinMode: getEnv("GIN_MODE", ""),

		DBDriver: getEnv("DB_DRIVER", "sqlite"),
		DBDSN:    getEnv("DB_DSN", "bite_me_buddy.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"),

		JWTSecret:       getEnv("JWT_SECRET", "bite_me_buddy_dev_secret"),
		AccessTokenTTL:  time.Duration(getEnvInt("ACCESS_TOKEN_EXPIRE_MINUTES", 30)) * time.Minute,
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RedisPass:       os.Getenv("REDIS_PASS"),
		RedisDB:         getEnvInt("REDIS_DB", 0),
		CatalogCacheTTL: time.Duration(getEnvInt("CATALOG_CACHE_TTL_SECONDS", 60)) * time.Second,

		OTPExpire:      time.Duration(getEnvInt("OTP_EXPIRE_MINUTES", 5)) * time.Minute,
		OTPMaxAttempts: getEnvInt("OTP_MAX_ATTEMPTS", 3),
		ReportTimezone: getEnv("REPORT_TIMEZONE", "Asia/Kolkata"),

		TwilioSID:          os.Getenv("TWILIO_SID"),
		TwilioAuthToken:    os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioPhoneNumber:  os.Getenv("TWILIO_PHONE_NUMBER"),
		DefaultCountryCode: getEnv("SMS_DEFAULT_COUNTRY_CODE", "+91"),
		NotifyTimeout:      time.Duration(getEnvInt("NOTIFY_TIMEOUT_SECONDS", 5)) * time.Second,

		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 1),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 5),

		AdminUsername: os.Getenv("ADMIN_USERNAME"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
		AdminName:     getEnv("ADMIN_NAME", "Administrator"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}
}

// ReportLocation resolves ReportTimezone, falling back to UTC when unknown
func (c *Config) ReportLocation() *time.Location {
	loc, err := time.LoadLocation(c.ReportTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvFloat(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return fallback
	}
	return v
}
