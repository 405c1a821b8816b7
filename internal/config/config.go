package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port              string
	Env               string
	MongoURI          string
	MongoDB           string
	TelegramAPIURL    string
	TelegramBotToken  string
	AdminGroupChatID  string
	DefaultLocale     string
	OrgUTCOffsetHours int
	MonitorInterval   time.Duration
	PersonalDebounce  time.Duration
	NotifyTimeout     time.Duration
}

func Load() *Config {
	return &Config{
		Port:              getEnv("PORT", "3000"),
		Env:               getEnv("ENV", "development"),
		MongoURI:          getEnv("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDB:           getEnv("MONGODB_DATABASE", "worktime"),
		TelegramAPIURL:    strings.TrimRight(getEnv("TELEGRAM_API_URL", "https://api.telegram.org"), "/"),
		TelegramBotToken:  getEnv("TELEGRAM_BOT_TOKEN", ""),
		AdminGroupChatID:  getEnv("ADMIN_GROUP_CHAT_ID", ""),
		DefaultLocale:     getEnv("DEFAULT_LOCALE", "en"),
		OrgUTCOffsetHours: getEnvInt("ORG_UTC_OFFSET_HOURS", 3),
		MonitorInterval:   getEnvDuration("MONITOR_INTERVAL", 60*time.Second),
		PersonalDebounce:  getEnvDuration("PERSONAL_DEBOUNCE", 5*time.Minute),
		NotifyTimeout:     getEnvDuration("NOTIFY_TIMEOUT", 5*time.Second),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
