package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	Port     int
	LogLevel string
	Env      string

	// Database
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
	RedisEnabled  bool

	// WhatsApp Cloud API config
	WhatsAppBaseURL       string
	WhatsAppAPIVersion    string
	WhatsAppPhoneNumberID string
	WhatsAppAccessToken   string
	WhatsAppTimeout       int // request timeout in seconds

	// Scheduler config
	Timezone      string // IANA name for the daily cycle clock
	DailyRunHour  int    // local hour the daily cycle fires
	RunLockTTLMin int    // run lock hold time in minutes

	// Rate limit for manual run/batch endpoints
	RateLimitPerMinute int
}

// Load reads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := &Config{
		Port:     8080,
		LogLevel: "info",
		Env:      "development",

		// Local postgres defaults
		DBHost:     "localhost",
		DBPort:     5432,
		DBUser:     "habitora",
		DBPassword: "",
		DBName:     "habitora",
		DBSSLMode:  "disable",

		// Redis defaults
		RedisHost:     "localhost",
		RedisPort:     6379,
		RedisPassword: "",
		RedisDB:       0,

		// WhatsApp defaults
		WhatsAppBaseURL:    "https://graph.facebook.com",
		WhatsAppAPIVersion: "v18.0",
		WhatsAppTimeout:    30,

		Timezone:      "America/Lima",
		DailyRunHour:  8,
		RunLockTTLMin: 5,

		RateLimitPerMinute: 10,
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

	// Redis is optional: without it the run lock and rate limiting are
	// skipped, which is fine for a single instance.
	if enabled := os.Getenv("REDIS_ENABLED"); enabled != "" {
		cfg.RedisEnabled = enabled == "true" || enabled == "1"
	}

	// WhatsApp config
	if url := os.Getenv("WHATSAPP_BASE_URL"); url != "" {
		cfg.WhatsAppBaseURL = url
	}

	if version := os.Getenv("WHATSAPP_API_VERSION"); version != "" {
		cfg.WhatsAppAPIVersion = version
	}

	if id := os.Getenv("WHATSAPP_PHONE_NUMBER_ID"); id != "" {
		cfg.WhatsAppPhoneNumberID = id
	}

	if token := os.Getenv("WHATSAPP_ACCESS_TOKEN"); token != "" {
		cfg.WhatsAppAccessToken = token
	}

	if timeout := os.Getenv("WHATSAPP_TIMEOUT"); timeout != "" {
		t, err := strconv.Atoi(timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid WHATSAPP_TIMEOUT: %w", err)
		}
		cfg.WhatsAppTimeout = t
	}

	// Scheduler config
	if tz := os.Getenv("TIMEZONE"); tz != "" {
		cfg.Timezone = tz
	}

	if hour := os.Getenv("DAILY_RUN_HOUR"); hour != "" {
		h, err := strconv.Atoi(hour)
		if err != nil || h < 0 || h > 23 {
			return nil, fmt.Errorf("invalid DAILY_RUN_HOUR: %q", hour)
		}
		cfg.DailyRunHour = h
	}

	if ttl := os.Getenv("RUN_LOCK_TTL_MINUTES"); ttl != "" {
		m, err := strconv.Atoi(ttl)
		if err != nil {
			return nil, fmt.Errorf("invalid RUN_LOCK_TTL_MINUTES: %w", err)
		}
		cfg.RunLockTTLMin = m
	}

	if limit := os.Getenv("RATE_LIMIT_PER_MINUTE"); limit != "" {
		l, err := strconv.Atoi(limit)
		if err != nil {
			return nil, fmt.Errorf("invalid RATE_LIMIT_PER_MINUTE: %w", err)
		}
		cfg.RateLimitPerMinute = l
	}

	return cfg, nil
}

// WhatsAppConfigured reports whether the Cloud API credentials are set.
// Without them the service falls back to a log-only sender.
func (c *Config) WhatsAppConfigured() bool {
	return c.WhatsAppPhoneNumberID != "" && c.WhatsAppAccessToken != ""
}
