package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/susu3304/gatebot/internal/captcha"
)

type Config struct {
	// Discord Bot
	DiscordToken     string
	WelcomeChannelID string
	RestrictedRoleID string
	RetryURL         string

	// Database
	DatabaseURL string

	// Web Server
	WebBind string

	// Operator tokens
	JWTSecret string

	// Admission
	CaptchaTimer         time.Duration
	GreetingTimer        time.Duration
	TemporaryRestriction time.Duration
	BannedRestriction    time.Duration
	CaptchaAnswers       int
	DispatchWorkers      int
}

func Load() (*Config, error) {
	// Load environment variables from .env if present (non-fatal if missing)
	_ = godotenv.Load()

	cfg := &Config{
		DiscordToken:     os.Getenv("DISCORD_TOKEN"),
		WelcomeChannelID: os.Getenv("WELCOME_CHANNEL_ID"),
		RestrictedRoleID: os.Getenv("RESTRICTED_ROLE_ID"),
		RetryURL:         os.Getenv("RETRY_URL"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		WebBind:          getEnvDefault("WEB_BIND", "0.0.0.0:3000"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
	}

	var err error
	durations := []struct {
		key string
		def time.Duration
		dst *time.Duration
	}{
		{"CAPTCHA_TIMER", 5 * time.Minute, &cfg.CaptchaTimer},
		{"GREETING_TIMER", 10 * time.Minute, &cfg.GreetingTimer},
		{"TEMPORARY_RESTRICTION", 15 * time.Minute, &cfg.TemporaryRestriction},
		{"BANNED_RESTRICTION", 2 * time.Hour, &cfg.BannedRestriction},
	}
	for _, d := range durations {
		if *d.dst, err = getEnvDuration(d.key, d.def); err != nil {
			return nil, err
		}
	}
	if cfg.CaptchaAnswers, err = getEnvInt("CAPTCHA_ANSWERS", 6); err != nil {
		return nil, err
	}
	if cfg.DispatchWorkers, err = getEnvInt("DISPATCH_WORKERS", 4); err != nil {
		return nil, err
	}

	if cfg.DiscordToken == "" {
		return nil, fmt.Errorf("DISCORD_TOKEN is required")
	}
	if cfg.CaptchaAnswers < 1 || cfg.CaptchaAnswers > captcha.MaxAnswers {
		return nil, fmt.Errorf("CAPTCHA_ANSWERS must be between 1 and %d", captcha.MaxAnswers)
	}
	if cfg.DispatchWorkers < 1 {
		return nil, fmt.Errorf("DISPATCH_WORKERS must be positive")
	}
	if cfg.RetryURL != "" {
		if err := checkURL(cfg.RetryURL); err != nil {
			return nil, fmt.Errorf("RETRY_URL: %w", err)
		}
	}

	return cfg, nil
}

func getEnvDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", key, value)
	}
	return d, nil
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, value)
	}
	return n, nil
}

func checkURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" || parsed.Host == "" {
		return fmt.Errorf("%q is not an absolute http(s) url", raw)
	}
	return nil
}
