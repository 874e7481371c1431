package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "token")
	for _, k := range []string{"DATABASE_URL", "WEB_BIND", "JWT_SECRET", "CAPTCHA_TIMER", "GREETING_TIMER",
		"TEMPORARY_RESTRICTION", "BANNED_RESTRICTION", "CAPTCHA_ANSWERS", "DISPATCH_WORKERS", "RETRY_URL"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CaptchaTimer != 5*time.Minute || cfg.GreetingTimer != 10*time.Minute ||
		cfg.TemporaryRestriction != 15*time.Minute || cfg.BannedRestriction != 2*time.Hour {
		t.Errorf("unexpected timers: %+v", cfg)
	}
	if cfg.CaptchaAnswers != 6 {
		t.Errorf("CaptchaAnswers = %d, want 6", cfg.CaptchaAnswers)
	}
	if cfg.WebBind != "0.0.0.0:3000" {
		t.Errorf("WebBind = %q", cfg.WebBind)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "token")
	t.Setenv("CAPTCHA_TIMER", "90s")
	t.Setenv("CAPTCHA_ANSWERS", "4")
	t.Setenv("RETRY_URL", "https://discord.com/users/1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CaptchaTimer != 90*time.Second {
		t.Errorf("CaptchaTimer = %v", cfg.CaptchaTimer)
	}
	if cfg.CaptchaAnswers != 4 {
		t.Errorf("CaptchaAnswers = %d", cfg.CaptchaAnswers)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing token", map[string]string{"DISCORD_TOKEN": ""}},
		{"bad duration", map[string]string{"DISCORD_TOKEN": "t", "GREETING_TIMER": "soon"}},
		{"negative duration", map[string]string{"DISCORD_TOKEN": "t", "BANNED_RESTRICTION": "-1h"}},
		{"too many answers", map[string]string{"DISCORD_TOKEN": "t", "CAPTCHA_ANSWERS": "10"}},
		{"no workers", map[string]string{"DISCORD_TOKEN": "t", "DISPATCH_WORKERS": "0"}},
		{"relative retry url", map[string]string{"DISCORD_TOKEN": "t", "RETRY_URL": "/users/1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
