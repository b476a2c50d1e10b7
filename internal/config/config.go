package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Notification modes. Remote treats the core API's feed as the source of
// truth; derived builds reminders locally from the subscription list.
const (
	ModeRemote  = "remote"
	ModeDerived = "derived"
)

type Config struct {
	Port     int
	LogLevel string
	Env      string

	// Session
	UserID     string
	NotifyMode string

	// Core API (the NextBill backend this gateway fronts)
	CoreAPIURL     string
	CoreAPITimeout time.Duration

	// Refresh loop
	RefreshInterval time.Duration

	// Database (derived mode and the alert scheduler)
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis config
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	// Rate limiting
	RateLimit       int
	RateLimitWindow time.Duration

	// Alert pipeline. Empty queue URL disables the pipeline.
	AlertQueueURL string

	// AWS Services
	AWSRegion    string
	SESFromEmail string
}

// Load reads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := &Config{
		Port:     8080,
		LogLevel: "info",
		Env:      "development",

		UserID:     "1",
		NotifyMode: ModeRemote,

		CoreAPIURL:     "http://localhost:8081",
		CoreAPITimeout: 10 * time.Second,

		RefreshInterval: time.Hour,

		// Local postgres defaults
		DBHost:     "localhost",
		DBPort:     5432,
		DBUser:     "nextbill",
		DBPassword: "",
		DBName:     "nextbill",
		DBSSLMode:  "disable",

		// Redis defaults
		RedisHost:     "localhost",
		RedisPort:     6379,
		RedisPassword: "",
		RedisDB:       0,

		RateLimit:       120,
		RateLimitWindow: time.Minute,

		AWSRegion:    "ap-northeast-2",
		SESFromEmail: "noreply@nextbill.local",
	}

	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		cfg.Port = p
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if env := os.Getenv("ENV"); env != "" {
		cfg.Env = env
	}

	if user := os.Getenv("USER_ID"); user != "" {
		cfg.UserID = user
	}

	if mode := os.Getenv("NOTIFY_MODE"); mode != "" {
		if mode != ModeRemote && mode != ModeDerived {
			return nil, fmt.Errorf("invalid NOTIFY_MODE %q: must be %s or %s", mode, ModeRemote, ModeDerived)
		}
		cfg.NotifyMode = mode
	}

	if url := os.Getenv("CORE_API_URL"); url != "" {
		cfg.CoreAPIURL = url
	}

	if timeout := os.Getenv("CORE_API_TIMEOUT"); timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid CORE_API_TIMEOUT: %w", err)
		}
		cfg.CoreAPITimeout = d
	}

	if interval := os.Getenv("REFRESH_INTERVAL"); interval != "" {
		d, err := time.ParseDuration(interval)
		if err != nil {
			return nil, fmt.Errorf("invalid REFRESH_INTERVAL: %w", err)
		}
		cfg.RefreshInterval = d
	}

	// Database config
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.DBHost = host
	}

	if port := os.Getenv("DB_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid DB_PORT: %w", err)
		}
		cfg.DBPort = p
	}

	if user := os.Getenv("DB_USER"); user != "" {
		cfg.DBUser = user
	}

	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.DBPassword = password
	}

	if dbname := os.Getenv("DB_NAME"); dbname != "" {
		cfg.DBName = dbname
	}

	if sslmode := os.Getenv("DB_SSLMODE"); sslmode != "" {
		cfg.DBSSLMode = sslmode
	}

	// Redis config
	if host := os.Getenv("REDIS_HOST"); host != "" {
		cfg.RedisHost = host
	}

	if port := os.Getenv("REDIS_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_PORT: %w", err)
		}
		cfg.RedisPort = p
	}

	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.RedisPassword = password
	}

	if db := os.Getenv("REDIS_DB"); db != "" {
		d, err := strconv.Atoi(db)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		cfg.RedisDB = d
	}

	if limit := os.Getenv("RATE_LIMIT"); limit != "" {
		l, err := strconv.Atoi(limit)
		if err != nil {
			return nil, fmt.Errorf("invalid RATE_LIMIT: %w", err)
		}
		cfg.RateLimit = l
	}

	if window := os.Getenv("RATE_LIMIT_WINDOW"); window != "" {
		d, err := time.ParseDuration(window)
		if err != nil {
			return nil, fmt.Errorf("invalid RATE_LIMIT_WINDOW: %w", err)
		}
		cfg.RateLimitWindow = d
	}

	if url := os.Getenv("ALERT_QUEUE_URL"); url != "" {
		cfg.AlertQueueURL = url
	}

	if region := os.Getenv("AWS_REGION"); region != "" {
		cfg.AWSRegion = region
	}

	if from := os.Getenv("SES_FROM_EMAIL"); from != "" {
		cfg.SESFromEmail = from
	}

	return cfg, nil
}
