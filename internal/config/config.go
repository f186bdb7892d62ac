package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Port           string
	AllowedOrigins []string
	LogLevel       string

	// WebSocket timing
	WSReadTimeout  time.Duration
	WSWriteTimeout time.Duration
	PingPeriod     time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64

	// Operational store
	StoreMode   string // "memory" or "postgres"
	DatabaseURL string

	// Routing
	DrainInterval   time.Duration // how often the queue drainer retries waiting calls
	StatsInterval   time.Duration // how often queue stats and the roster are broadcast
	SLThresholdSecs int           // service level target in seconds

	// Voice provider
	VoiceProviderURL string        // empty disables live transfers
	TransferTimeout  time.Duration // bound on one bridge attempt

	// Alerts
	AlertInterval      time.Duration
	QueueDepthWarning  int
	QueueDepthCritical int
	QueueWaitWarning   time.Duration
	QueueWaitCritical  time.Duration
	AlertCooldown      time.Duration
	SlackWebhookURL    string

	// Analytics rollup (5-field cron expression)
	RollupSchedule string

	MetricsNamespace string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	config := &Config{
		Port:             getEnv("PORT", "8080"),
		AllowedOrigins:   strings.Split(getEnv("ALLOWED_ORIGINS", "http://localhost:5173"), ","),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		StoreMode:        getEnv("STORE_MODE", "memory"),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		VoiceProviderURL: getEnv("VOICE_PROVIDER_URL", ""),
		SlackWebhookURL:  getEnv("SLACK_WEBHOOK_URL", ""),
		RollupSchedule:   getEnv("ROLLUP_SCHEDULE", "0 2 * * *"),
		MetricsNamespace: getEnv("METRICS_NAMESPACE", "switchboard"),
	}

	// Parse WebSocket timeouts
	wsReadTimeout, err := strconv.Atoi(getEnv("WS_READ_TIMEOUT", "60"))
	if err != nil {
		return nil, fmt.Errorf("invalid WS_READ_TIMEOUT: %w", err)
	}
	config.WSReadTimeout = time.Duration(wsReadTimeout) * time.Second

	wsWriteTimeout, err := strconv.Atoi(getEnv("WS_WRITE_TIMEOUT", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid WS_WRITE_TIMEOUT: %w", err)
	}
	config.WSWriteTimeout = time.Duration(wsWriteTimeout) * time.Second

	// Calculate WebSocket constants
	config.PongWait = config.WSReadTimeout
	config.PingPeriod = (config.PongWait * 9) / 10 // Must be less than pongWait
	config.WriteWait = config.WSWriteTimeout
	config.MaxMessageSize = 512

	config.DrainInterval, err = getEnvSeconds("DRAIN_INTERVAL", 5)
	if err != nil {
		return nil, err
	}
	config.StatsInterval, err = getEnvSeconds("STATS_INTERVAL", 5)
	if err != nil {
		return nil, err
	}
	config.TransferTimeout, err = getEnvSeconds("TRANSFER_TIMEOUT", 5)
	if err != nil {
		return nil, err
	}

	config.SLThresholdSecs, err = getEnvInt("SL_THRESHOLD_SECS", 20)
	if err != nil {
		return nil, err
	}

	config.AlertInterval, err = getEnvSeconds("ALERT_INTERVAL", 15)
	if err != nil {
		return nil, err
	}
	config.QueueDepthWarning, err = getEnvInt("QUEUE_DEPTH_WARNING", 5)
	if err != nil {
		return nil, err
	}
	config.QueueDepthCritical, err = getEnvInt("QUEUE_DEPTH_CRITICAL", 15)
	if err != nil {
		return nil, err
	}
	config.QueueWaitWarning, err = getEnvSeconds("QUEUE_WAIT_WARNING", 60)
	if err != nil {
		return nil, err
	}
	config.QueueWaitCritical, err = getEnvSeconds("QUEUE_WAIT_CRITICAL", 180)
	if err != nil {
		return nil, err
	}
	config.AlertCooldown, err = getEnvSeconds("ALERT_COOLDOWN", 300)
	if err != nil {
		return nil, err
	}

	// Trim spaces from allowed origins
	for i, origin := range config.AllowedOrigins {
		config.AllowedOrigins[i] = strings.TrimSpace(origin)
	}

	return config, nil
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt parses an integer environment variable with a fallback default
func getEnvInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

// getEnvSeconds parses a second-granularity duration environment variable
func getEnvSeconds(key string, defaultSecs int) (time.Duration, error) {
	secs, err := getEnvInt(key, defaultSecs)
	if err != nil {
		return 0, err
	}
	return time.Duration(secs) * time.Second, nil
}
