package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "3000" {
		t.Errorf("Port = %s, want 3000", cfg.Port)
	}
	if cfg.OrgUTCOffsetHours != 3 {
		t.Errorf("OrgUTCOffsetHours = %d, want 3", cfg.OrgUTCOffsetHours)
	}
	if cfg.MonitorInterval != 60*time.Second {
		t.Errorf("MonitorInterval = %s, want 60s", cfg.MonitorInterval)
	}
	if cfg.PersonalDebounce != 5*time.Minute {
		t.Errorf("PersonalDebounce = %s, want 5m", cfg.PersonalDebounce)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ORG_UTC_OFFSET_HOURS", "5")
	t.Setenv("MONITOR_INTERVAL", "30s")
	t.Setenv("TELEGRAM_API_URL", "https://tg.example.com/")

	cfg := Load()
	if cfg.OrgUTCOffsetHours != 5 {
		t.Errorf("OrgUTCOffsetHours = %d, want 5", cfg.OrgUTCOffsetHours)
	}
	if cfg.MonitorInterval != 30*time.Second {
		t.Errorf("MonitorInterval = %s, want 30s", cfg.MonitorInterval)
	}
	if cfg.TelegramAPIURL != "https://tg.example.com" {
		t.Errorf("TelegramAPIURL = %s, trailing slash should be trimmed", cfg.TelegramAPIURL)
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("ORG_UTC_OFFSET_HOURS", "moscow")
	t.Setenv("MONITOR_INTERVAL", "soon")

	cfg := Load()
	if cfg.OrgUTCOffsetHours != 3 {
		t.Errorf("OrgUTCOffsetHours = %d, want default 3", cfg.OrgUTCOffsetHours)
	}
	if cfg.MonitorInterval != 60*time.Second {
		t.Errorf("MonitorInterval = %s, want default 60s", cfg.MonitorInterval)
	}
}
