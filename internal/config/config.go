// Package config loads the bot settings from the environment. A .env file, when present, is read
// by main before Load runs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	TelegramToken       string
	TelegramAPIEndpoint string // Bot API URL template with two %s verbs, empty for the public API
	PollTimeout         int    // long-poll timeout of getUpdates, seconds

	AuditChatID       int64
	DestinationChatID int64 // zero sends anonymous copies back to the source chat
	RelayWindow       time.Duration

	WebPort         string
	LogLevel        string
	LogHTTP         bool   // log every Bot API call at debug level
	LogServerURL    string // optional HTTP log collector
	DatabaseURL     string
	JournalSize     int
	ShutdownTimeout time.Duration
}

// ConfigError reports a missing or invalid setting.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Key, e.Reason)
}

func Load() (Config, error) {
	token := getFirst([]string{"TELEGRAM_TOKEN", "BOT_TOKEN"})
	if token == "" {
		return Config{}, &ConfigError{Key: "TELEGRAM_TOKEN", Reason: "is not set"}
	}

	if getString("AUDIT_CHANNEL_ID", "") == "" {
		return Config{}, &ConfigError{Key: "AUDIT_CHANNEL_ID", Reason: "is not set"}
	}
	auditChatID, err := getInt64("AUDIT_CHANNEL_ID", 0)
	if err != nil {
		return Config{}, err
	}

	destChatID, err := getInt64("DESTINATION_CHAT_ID", 0)
	if err != nil {
		return Config{}, err
	}

	window, err := getDuration("RELAY_WINDOW", 3*time.Second)
	if err != nil {
		return Config{}, err
	}
	if window <= 0 {
		return Config{}, &ConfigError{Key: "RELAY_WINDOW", Reason: "must be positive"}
	}

	pollTimeout, err := getInt("POLL_TIMEOUT_SECONDS", 30)
	if err != nil {
		return Config{}, err
	}
	if pollTimeout <= 0 {
		pollTimeout = 30
	}

	journalSize, err := getInt("JOURNAL_SIZE", 1000)
	if err != nil {
		return Config{}, err
	}
	if journalSize <= 0 {
		return Config{}, &ConfigError{Key: "JOURNAL_SIZE", Reason: "must be positive"}
	}

	logHTTP, err := getBool("LOG_HTTP", false)
	if err != nil {
		return Config{}, err
	}

	shutdownTimeout, err := getDuration("SHUTDOWN_TIMEOUT", 15*time.Second)
	if err != nil {
		return Config{}, err
	}

	endpoint := getString("TELEGRAM_API_ENDPOINT", "")
	if endpoint != "" && strings.Count(endpoint, "%s") != 2 {
		return Config{}, &ConfigError{Key: "TELEGRAM_API_ENDPOINT", Reason: "must contain two %s verbs for token and method"}
	}

	cfg := Config{
		TelegramToken:       token,
		TelegramAPIEndpoint: endpoint,
		PollTimeout:         pollTimeout,
		AuditChatID:         auditChatID,
		DestinationChatID:   destChatID,
		RelayWindow:         window,
		WebPort:             getString("WEB_PORT", "8080"),
		LogLevel:            strings.ToLower(getString("LOG_LEVEL", "info")),
		LogHTTP:             logHTTP,
		LogServerURL:        strings.TrimRight(getString("LOG_SERVER_URL", ""), "/"),
		DatabaseURL:         getString("DATABASE_URL", ""),
		JournalSize:         journalSize,
		ShutdownTimeout:     shutdownTimeout,
	}

	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return Config{}, &ConfigError{Key: "LOG_LEVEL", Reason: "must be one of debug, info, warn, error"}
	}

	return cfg, nil
}

func getString(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getFirst(keys []string) string {
	for _, key := range keys {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			return value
		}
	}
	return ""
}

func getInt64(key string, fallback int64) (int64, error) {
	raw := getString(key, "")
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, &ConfigError{Key: key, Reason: "must be an integer chat id"}
	}
	return value, nil
}

func getInt(key string, fallback int) (int, error) {
	raw := getString(key, "")
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &ConfigError{Key: key, Reason: "must be an integer"}
	}
	return value, nil
}

func getBool(key string, fallback bool) (bool, error) {
	raw := getString(key, "")
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, &ConfigError{Key: key, Reason: "must be a boolean"}
	}
	return value, nil
}

// getDuration accepts Go durations ("3s", "1500ms") and bare integers as seconds.
func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := getString(key, "")
	if raw == "" {
		return fallback, nil
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d, nil
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return 0, &ConfigError{Key: key, Reason: "must be a duration such as 3s"}
}
