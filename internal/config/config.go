package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

const defaultTokenTTL = 3600 * time.Second

// Config holds every environment-derived setting the service reads. It is
// built once at process start and treated as immutable afterwards; request
// handlers never consult the environment directly.
type Config struct {
	HTTPAddr    string
	DatabaseURL string
	Environment string

	// JWTSecret signs new tokens. JWTSecretFallback, when set, is additionally
	// accepted during verification so the signing secret can rotate without
	// invalidating outstanding sessions.
	JWTSecret         string
	JWTSecretFallback string
	TokenTTL          time.Duration

	OTPTTL        time.Duration
	ResetTokenTTL time.Duration

	// PasswordExpiryCutover suppresses password-expiry enforcement until the
	// date passes. Zero means enforcement is always on.
	PasswordExpiryCutover time.Time

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	RateLimitPerSecond int
	RateLimitBurst     int
	MaxBodyBytes       int64
}

// Load reads the process environment into a Config.
func Load() Config {
	return Config{
		HTTPAddr:    getenv("HRDESK_HTTP_ADDR", ":8080"),
		DatabaseURL: getenv("HRDESK_PG_DSN", ""),
		Environment: getenv("HRDESK_ENV", "development"),

		JWTSecret:         os.Getenv("HRDESK_JWT_SECRET"),
		JWTSecretFallback: os.Getenv("HRDESK_JWT_SECRET_FALLBACK"),
		TokenTTL:          ParseTTL(os.Getenv("HRDESK_TOKEN_TTL")),

		OTPTTL:        getenvDuration("HRDESK_OTP_TTL", 10*time.Minute),
		ResetTokenTTL: getenvDuration("HRDESK_RESET_TOKEN_TTL", time.Hour),

		PasswordExpiryCutover: getenvTime("HRDESK_PASSWORD_EXPIRY_CUTOVER"),

		SMTPHost:     getenv("HRDESK_SMTP_HOST", ""),
		SMTPPort:     getenvInt("HRDESK_SMTP_PORT", 465),
		SMTPUsername: getenv("HRDESK_SMTP_USERNAME", ""),
		SMTPPassword: getenv("HRDESK_SMTP_PASSWORD", ""),
		SMTPFrom:     getenv("HRDESK_SMTP_FROM", "no-reply@hrdesk.org"),

		RateLimitPerSecond: getenvInt("HRDESK_RATE_LIMIT_PER_SECOND", 20),
		RateLimitBurst:     getenvInt("HRDESK_RATE_LIMIT_BURST", 40),
		MaxBodyBytes:       int64(getenvInt("HRDESK_MAX_BODY_BYTES", 1<<20)),
	}
}

// CookieSecure reports whether the access_token cookie should carry the
// Secure flag, derived from the deployment mode.
func (c Config) CookieSecure() bool {
	return strings.EqualFold(c.Environment, "production")
}

// ParseTTL interprets a token lifetime. Accepted forms are a bare integer
// (seconds) and <number><unit> with unit s, m, h or d. Anything else,
// including an empty value, yields the one-hour default.
func ParseTTL(raw string) time.Duration {
	d, err := parseTTL(raw)
	if err != nil {
		return defaultTokenTTL
	}
	return d
}

func parseTTL(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, errors.New("empty ttl")
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		if secs <= 0 {
			return 0, errors.New("ttl must be positive")
		}
		return time.Duration(secs) * time.Second, nil
	}
	unit := raw[len(raw)-1]
	n, err := strconv.Atoi(raw[:len(raw)-1])
	if err != nil || n <= 0 {
		return 0, errors.New("invalid ttl")
	}
	switch unit {
	case 's':
		return time.Duration(n) * time.Second, nil
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	default:
		return 0, errors.New("unknown ttl unit")
	}
}

func getenv(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

func getenvTime(key string) time.Time {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return time.Time{}
	}
	if ts, err := time.Parse(time.RFC3339, val); err == nil {
		return ts
	}
	if ts, err := time.Parse("2006-01-02", val); err == nil {
		return ts
	}
	return time.Time{}
}
