package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendJSONL  = "jsonl"
	BackendSQLite = "sqlite"
)

type Config struct {
	BotToken string
	// AdminChatID == 0 — оператор не настроен: нет пересылки и /leads
	AdminChatID int64

	Leads    LeadsConfig
	Funnel   FunnelConfig
	App      AppConfig
	Log      LogConfig
	MacroCRM MacroCRMConfig
}

type LeadsConfig struct {
	Backend   string
	File      string
	SQLiteDSN string
}

type FunnelConfig struct {
	SQLiteDSN string
}

type AppConfig struct {
	HealthAddr string
	SessionTTL time.Duration
	Workers    int
}

type LogConfig struct {
	Level string
	File  string
}

type MacroCRMConfig struct {
	Domain    string
	AppSecret string
	BaseURL   string
	Action    string
}

func (c MacroCRMConfig) Enabled() bool {
	return strings.TrimSpace(c.Domain) != "" && strings.TrimSpace(c.AppSecret) != ""
}

// Load читает .env (если есть) и переменные окружения.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		slog.Debug("env file not loaded, using process environment", "file", envFile)
	}

	token := getEnv("TELEGRAM_BOT_TOKEN", getEnv("BOT_TOKEN", ""))
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("TELEGRAM_BOT_TOKEN is not set")
	}

	cfg := &Config{
		BotToken:    token,
		AdminChatID: ParseAdminChatID(os.Getenv("ADMIN_CHAT_ID")),
		Leads: LeadsConfig{
			Backend:   strings.ToLower(getEnv("LEADS_BACKEND", BackendJSONL)),
			File:      getEnv("LEADS_FILE", "leads.jsonl"),
			SQLiteDSN: getEnv("LEADS_SQLITE_DSN", "leads.db?_pragma=busy_timeout(5000)"),
		},
		Funnel: FunnelConfig{
			SQLiteDSN: getEnv("FUNNEL_SQLITE_DSN", ""),
		},
		App: AppConfig{
			HealthAddr: getEnv("HEALTH_ADDR", ":8080"),
			SessionTTL: getEnvAsDuration("SESSION_TTL", 0),
			Workers:    getEnvAsInt("WORKERS", 8),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			File:  getEnv("LOG_FILE", ""),
		},
		MacroCRM: MacroCRMConfig{
			Domain:    getEnv("MACROCRM_DOMAIN", ""),
			AppSecret: getEnv("MACROCRM_APP_SECRET", ""),
			BaseURL:   getEnv("MACROCRM_BASE_URL", ""),
			Action:    getEnv("MACROCRM_ACTION", ""),
		},
	}

	switch cfg.Leads.Backend {
	case BackendJSONL, BackendSQLite:
	default:
		return nil, fmt.Errorf("unknown LEADS_BACKEND %q", cfg.Leads.Backend)
	}
	if cfg.App.Workers <= 0 {
		cfg.App.Workers = 1
	}
	return cfg, nil
}

// ParseAdminChatID: пустое, нечисловое или нулевое значение — оператора нет.
func ParseAdminChatID(raw string) int64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return value
	}
	return fallback
}
