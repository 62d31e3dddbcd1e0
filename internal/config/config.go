package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Notification channel names accepted in NOTIFY_CHANNEL
const (
	ChannelSMTP     = "smtp"
	ChannelTelegram = "telegram"
	ChannelLog      = "log"
)

// Config holds the application configuration
type Config struct {
	Port string

	UseMockDB bool

	// Postgres configuration
	PostgresHost     string
	PostgresPort     int
	PostgresDatabase string
	PostgresUser     string
	PostgresPassword string
	PostgresSSLMode  string

	// Notification delivery
	NotifyChannel    string // smtp, telegram or log
	SMTPHost         string
	SMTPPort         int
	SMTPUser         string
	SMTPPassword     string
	SMTPFrom         string
	TelegramToken    string
	NotifyRetryDelay time.Duration
	NotifyQueueSize  int
	NotifyWorkers    int
	NotifyRate       float64 // sends per second, 0 = unlimited

	// Overdue scan
	ScanHour   int
	ScanMinute int
	RedisAddr  string // optional distributed scan lock
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	config := &Config{}

	config.Port = os.Getenv("PORT")
	if config.Port == "" {
		config.Port = "8080"
	}

	// Use Mock DB (default: false)
	config.UseMockDB = os.Getenv("USE_MOCK_DB") == "true"

	// Postgres configuration (required if not using mock)
	if !config.UseMockDB {
		config.PostgresHost = os.Getenv("POSTGRES_HOST")
		if config.PostgresHost == "" {
			return nil, fmt.Errorf("POSTGRES_HOST is required when USE_MOCK_DB is not set")
		}

		port, err := intEnv("POSTGRES_PORT", 5432)
		if err != nil {
			return nil, err
		}
		config.PostgresPort = port

		config.PostgresDatabase = os.Getenv("POSTGRES_DATABASE")
		if config.PostgresDatabase == "" {
			config.PostgresDatabase = "library"
		}

		config.PostgresUser = os.Getenv("POSTGRES_USER")
		if config.PostgresUser == "" {
			config.PostgresUser = "postgres"
		}

		config.PostgresPassword = os.Getenv("POSTGRES_PASSWORD")
		// Password is optional, can be empty

		config.PostgresSSLMode = os.Getenv("POSTGRES_SSLMODE")
		if config.PostgresSSLMode == "" {
			config.PostgresSSLMode = "disable"
		}
	}

	// Notification channel (default: smtp; log is meant for development)
	config.NotifyChannel = os.Getenv("NOTIFY_CHANNEL")
	if config.NotifyChannel == "" {
		config.NotifyChannel = ChannelSMTP
	}
	switch config.NotifyChannel {
	case ChannelSMTP:
		config.SMTPHost = os.Getenv("SMTP_HOST")
		if config.SMTPHost == "" {
			return nil, fmt.Errorf("SMTP_HOST is required when NOTIFY_CHANNEL is smtp")
		}
		port, err := intEnv("SMTP_PORT", 587)
		if err != nil {
			return nil, err
		}
		config.SMTPPort = port
		config.SMTPUser = os.Getenv("SMTP_USER")
		config.SMTPPassword = os.Getenv("SMTP_PASSWORD")
		config.SMTPFrom = os.Getenv("SMTP_FROM")
		if config.SMTPFrom == "" {
			return nil, fmt.Errorf("SMTP_FROM is required when NOTIFY_CHANNEL is smtp")
		}
	case ChannelTelegram:
		config.TelegramToken = os.Getenv("TELEGRAM_BOT_TOKEN")
		if config.TelegramToken == "" {
			return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required when NOTIFY_CHANNEL is telegram")
		}
	case ChannelLog:
	default:
		return nil, fmt.Errorf("invalid NOTIFY_CHANNEL: %s", config.NotifyChannel)
	}

	retryDelay := os.Getenv("NOTIFY_RETRY_DELAY")
	if retryDelay == "" {
		config.NotifyRetryDelay = 60 * time.Second
	} else {
		d, err := time.ParseDuration(retryDelay)
		if err != nil {
			return nil, fmt.Errorf("invalid NOTIFY_RETRY_DELAY: %w", err)
		}
		config.NotifyRetryDelay = d
	}

	queueSize, err := intEnv("NOTIFY_QUEUE_SIZE", 256)
	if err != nil {
		return nil, err
	}
	config.NotifyQueueSize = queueSize

	workers, err := intEnv("NOTIFY_WORKERS", 4)
	if err != nil {
		return nil, err
	}
	config.NotifyWorkers = workers

	rateStr := os.Getenv("NOTIFY_RATE")
	if rateStr != "" {
		rate, err := strconv.ParseFloat(rateStr, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid NOTIFY_RATE: %w", err)
		}
		config.NotifyRate = rate
	}

	// Overdue scan time of day (default midnight)
	scanAt := os.Getenv("OVERDUE_SCAN_AT")
	if scanAt == "" {
		scanAt = "00:00"
	}
	t, err := time.Parse("15:04", scanAt)
	if err != nil {
		return nil, fmt.Errorf("invalid OVERDUE_SCAN_AT (want HH:MM): %w", err)
	}
	config.ScanHour = t.Hour()
	config.ScanMinute = t.Minute()

	config.RedisAddr = os.Getenv("REDIS_ADDR")

	return config, nil
}

func intEnv(name string, def int) (int, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return v, nil
}
