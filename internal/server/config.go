package server

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends.
const (
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// Config holds server configuration from environment variables.
type Config struct {
	Port     string
	GRPCPort string
	Path     string

	Store    string
	RedisURL string
	NatsURL  string

	DefaultQueue          string
	DefaultRecurringQueue string
	TimeZone              string

	GlobalSettingFile string
	WatchSettings     bool

	APIKey              string
	AllowInsecureNoAuth bool

	SchedulerEnabled  bool
	SchedulerInterval time.Duration
	AgentTimeout      time.Duration

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	LogLevel slog.Level
}

// LoadConfig reads configuration from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		Port:     getEnv("HTTPJOB_PORT", "8080"),
		GRPCPort: getEnv("HTTPJOB_GRPC_PORT", "9090"),
		Path:     getEnv("HTTPJOB_PATH", "/httpjob"),

		Store:    strings.ToLower(getEnv("HTTPJOB_STORE", StoreRedis)),
		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),
		NatsURL:  getEnv("NATS_URL", "nats://localhost:4222"),

		DefaultQueue:          getEnv("HTTPJOB_DEFAULT_QUEUE", "default"),
		DefaultRecurringQueue: getEnv("HTTPJOB_DEFAULT_RECURRING_QUEUE", ""),
		TimeZone:              getEnv("HTTPJOB_TIMEZONE", ""),

		GlobalSettingFile: getEnv("HTTPJOB_GLOBAL_SETTING_FILE", "./httpjob.setting.json"),
		WatchSettings:     getEnvBool("HTTPJOB_WATCH_SETTINGS", true),

		APIKey:              getEnv("HTTPJOB_API_KEY", ""),
		AllowInsecureNoAuth: getEnvBool("HTTPJOB_ALLOW_INSECURE_NO_AUTH", false),

		SchedulerEnabled:  getEnvBool("HTTPJOB_SCHEDULER_ENABLED", true),
		SchedulerInterval: getEnvDuration("HTTPJOB_SCHEDULER_INTERVAL", 5*time.Second),
		AgentTimeout:      getEnvDuration("HTTPJOB_AGENT_TIMEOUT", 5*time.Second),

		ReadTimeout:     getEnvDuration("HTTPJOB_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:    getEnvDuration("HTTPJOB_WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:     getEnvDuration("HTTPJOB_IDLE_TIMEOUT", 120*time.Second),
		ShutdownTimeout: getEnvDuration("HTTPJOB_SHUTDOWN_TIMEOUT", 15*time.Second),

		LogLevel: getEnvLevel("HTTPJOB_LOG_LEVEL", slog.LevelInfo),
	}
}

func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvDuration accepts Go durations ("5s") or a bare number of seconds.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if n := getEnvInt(key, -1); n >= 0 {
		return time.Duration(n) * time.Second
	}
	return defaultVal
}

func getEnvLevel(key string, defaultVal slog.Level) slog.Level {
	val, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(val)); err != nil {
		return defaultVal
	}
	return level
}
