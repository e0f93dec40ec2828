package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config centralizes runtime settings for the analytics service.
type Config struct {
	HTTPAddr          string
	SQLiteDSN         string
	RequestTimeoutSec int

	// 行情数据源
	DexScreenerBaseURL string
	PriceTimeoutSec    int

	// 执行监控定时任务
	MonitorEnabled     bool
	MonitorIntervalSec int

	// 定时批量推送（扫描各来源的最新快照重新评估）
	PushEnabled     bool
	PushIntervalSec int
	PushSources     string // 逗号分隔，如 "PORTSUMMARY,VOLUME"

	// 复盘顾问（LLM）
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	// 执行完全退出后自动生成复盘笔记
	AutoReviewEnabled bool
}

func Load() Config {
	// Auto-load .env file if present (won't override existing env vars)
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using system environment variables")
	}

	return Config{
		HTTPAddr:          getEnv("HTTP_ADDR", ":8080"),
		SQLiteDSN:         getEnv("SQLITE_DSN", "file:./smartfolio.db?_pragma=busy_timeout(5000)"),
		RequestTimeoutSec: getEnvInt("REQUEST_TIMEOUT_SEC", 15),

		DexScreenerBaseURL: getEnv("DEXSCREENER_BASE_URL", "https://api.dexscreener.com"),
		PriceTimeoutSec:    getEnvInt("PRICE_TIMEOUT_SEC", 10),

		MonitorEnabled:     getEnvBool("MONITOR_ENABLED", true),
		MonitorIntervalSec: getEnvInt("MONITOR_INTERVAL_SEC", 60),

		PushEnabled:     getEnvBool("PUSH_ENABLED", false),
		PushIntervalSec: getEnvInt("PUSH_INTERVAL_SEC", 300),
		PushSources:     getEnv("PUSH_SOURCES", "PORTSUMMARY,ATTENTION,VOLUME,PUMPFUN"),

		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),

		AutoReviewEnabled: getEnvBool("AUTO_REVIEW_ENABLED", false),
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
		parsed, err := strconv.Atoi(v)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err == nil {
			return parsed
		}
	}
	return fallback
}
