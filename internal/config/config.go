package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// アプリケーション環境
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// バックエンド種別
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendLog      = "log"
	BackendHTTP     = "http"
)

// ServerWriteTimeout はHTTPサーバーのレスポンス書き込みタイムアウト。
const ServerWriteTimeout = 15 * time.Second

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Environment
	AppEnv      string
	DevEchoCode bool

	// Logging
	LogLevel string

	// Session
	SessionMaxAge  int
	SessionBackend string

	// Student email
	StudentEmailDomain string
	StudentEmailTag    string
	MinAdmissionYear   int

	// Passcode
	PasscodeTTL         time.Duration
	PasscodeCooldown    time.Duration
	SendCodeMaxAttempts int
	SendCodeWindow      time.Duration
	JanitorInterval     time.Duration

	// Rate Limit
	RateLimitBackend string
	RateLimitAuth    int
	RedisAddr        string

	// Mail
	MailBackend     string
	MailAPIURL      string
	MailAPIKey      string
	MailFrom        string
	MailTimeout     time.Duration
	MailMaxAttempts int
	MailSendBudget  time.Duration
	MailFooterHTML  string

	// Server
	ServerPort        string
	BaseURL           string
	TrustProxyHeaders bool // X-Forwarded-For / X-Real-IP を送信元IPとして信頼する

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// IsDevelopment は開発環境かどうかを返す。
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == EnvDevelopment
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合、または設定値の組み合わせが不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.AppEnv = getEnvString("APP_ENV", EnvProduction)
	cfg.DevEchoCode = getEnvBool("DEV_ECHO_CODE", false)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.SessionBackend = getEnvString("SESSION_BACKEND", BackendPostgres)
	cfg.StudentEmailDomain = getEnvString("STUDENT_EMAIL_DOMAIN", "example.edu")
	cfg.StudentEmailTag = getEnvString("STUDENT_EMAIL_TAG", "ORG")
	cfg.MinAdmissionYear = getEnvInt("MIN_ADMISSION_YEAR", 2015)
	cfg.PasscodeTTL = getEnvDuration("PASSCODE_TTL", 10*time.Minute)
	cfg.PasscodeCooldown = getEnvDuration("PASSCODE_COOLDOWN", 60*time.Second)
	cfg.SendCodeMaxAttempts = getEnvInt("SEND_CODE_MAX_ATTEMPTS", 5)
	cfg.SendCodeWindow = getEnvDuration("SEND_CODE_WINDOW", 15*time.Minute)
	cfg.JanitorInterval = getEnvDuration("JANITOR_INTERVAL", 5*time.Minute)
	cfg.RateLimitBackend = getEnvString("RATE_LIMIT_BACKEND", BackendMemory)
	cfg.RateLimitAuth = getEnvInt("RATE_LIMIT_AUTH", 60)
	cfg.RedisAddr = getEnvString("REDIS_ADDR", "localhost:6379")
	cfg.MailBackend = getEnvString("MAIL_BACKEND", BackendLog)
	cfg.MailAPIURL = getEnvString("MAIL_API_URL", "")
	cfg.MailAPIKey = getEnvString("MAIL_API_KEY", "")
	cfg.MailFrom = getEnvString("MAIL_FROM", "")
	cfg.MailTimeout = getEnvDuration("MAIL_TIMEOUT", 10*time.Second)
	cfg.MailMaxAttempts = getEnvInt("MAIL_MAX_ATTEMPTS", 3)
	cfg.MailSendBudget = getEnvDuration("MAIL_SEND_BUDGET", 10*time.Second)
	cfg.MailFooterHTML = getEnvString("MAIL_FOOTER_HTML", "")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.TrustProxyHeaders = getEnvBool("TRUST_PROXY_HEADERS", false)
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate は設定値の組み合わせを検証する。
func (c *Config) validate() error {
	if c.DevEchoCode && !c.IsDevelopment() {
		return fmt.Errorf("DEV_ECHO_CODE is only allowed with APP_ENV=%s (got %q)", EnvDevelopment, c.AppEnv)
	}

	switch c.SessionBackend {
	case BackendPostgres, BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("unknown SESSION_BACKEND: %q", c.SessionBackend)
	}

	switch c.RateLimitBackend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("unknown RATE_LIMIT_BACKEND: %q", c.RateLimitBackend)
	}

	switch c.MailBackend {
	case BackendLog:
	case BackendHTTP:
		var missing []string
		if c.MailAPIURL == "" {
			missing = append(missing, "MAIL_API_URL")
		}
		if c.MailAPIKey == "" {
			missing = append(missing, "MAIL_API_KEY")
		}
		if c.MailFrom == "" {
			missing = append(missing, "MAIL_FROM")
		}
		if len(missing) > 0 {
			return fmt.Errorf("MAIL_BACKEND=http requires: %v", missing)
		}
	default:
		return fmt.Errorf("unknown MAIL_BACKEND: %q", c.MailBackend)
	}

	// 送信失敗をレスポンスとして返せるよう、書き込みタイムアウトより短くする
	if c.MailSendBudget <= 0 || c.MailSendBudget >= ServerWriteTimeout {
		return fmt.Errorf("MAIL_SEND_BUDGET must be between 0 and %s (got %s)", ServerWriteTimeout, c.MailSendBudget)
	}

	if c.SendCodeMaxAttempts < 1 {
		return fmt.Errorf("SEND_CODE_MAX_ATTEMPTS must be positive (got %d)", c.SendCodeMaxAttempts)
	}

	return nil
}

// UsesRedis はRedisクライアントが必要な設定かどうかを返す。
func (c *Config) UsesRedis() bool {
	return c.SessionBackend == BackendRedis || c.RateLimitBackend == BackendRedis
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
