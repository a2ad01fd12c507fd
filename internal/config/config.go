package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	BackendREST = "rest"
	BackendSDK  = "sdk"
)

type Config struct {
	GeminiAPIKey     string
	GeminiBaseURL    string
	GeminiAPIVersion string
	GeminiBackend    string
	GeminiModel      string

	LogLevel string
	Debug    bool

	PreferIPv4     bool
	HTTPTimeout    time.Duration
	AttemptTimeout time.Duration

	WebAddr     string
	MaxSessions int
	CounterSeed int64

	ExportDir string
	S3        S3Config

	NotifyDelay         time.Duration
	DocumentJPEGQuality int

	TelegramToken      string
	MediaGroupDebounce time.Duration
	MaxConcurrent      int
}

// S3Config is set when exports go to an S3-compatible bucket instead of a
// local directory.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

func (s S3Config) Enabled() bool {
	return s.Endpoint != "" && s.Bucket != ""
}

func Load() (Config, error) {
	cfg := Config{
		GeminiBaseURL:       strings.TrimSpace(getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com")),
		GeminiAPIVersion:    strings.TrimSpace(getEnv("GEMINI_API_VERSION", "v1beta")),
		GeminiBackend:       strings.ToLower(getEnv("GEMINI_BACKEND", BackendREST)),
		GeminiModel:         getEnv("GEMINI_IMAGE_MODEL", "gemini-2.5-flash-image"),
		LogLevel:            strings.ToLower(strings.TrimSpace(getEnv("LOG_LEVEL", "info"))),
		Debug:               getEnvBool("DEBUG", false),
		PreferIPv4:          getEnvBool("PREFER_IPV4", true),
		HTTPTimeout:         time.Duration(getEnvInt("HTTP_TIMEOUT_SECONDS", 180)) * time.Second,
		AttemptTimeout:      time.Duration(getEnvInt("ATTEMPT_TIMEOUT_SECONDS", 120)) * time.Second,
		WebAddr:             getEnv("WEB_ADDR", ":8080"),
		MaxSessions:         getEnvInt("MAX_SESSIONS", 256),
		CounterSeed:         int64(getEnvInt("COUNTER_SEED", 1245)),
		ExportDir:           getEnv("EXPORT_DIR", "exports"),
		NotifyDelay:         time.Duration(getEnvInt("NOTIFY_DELAY_MS", 3000)) * time.Millisecond,
		DocumentJPEGQuality: getEnvInt("DOCUMENT_JPEG_QUALITY", 0),
		MediaGroupDebounce:  time.Duration(getEnvInt("MEDIA_GROUP_DEBOUNCE_MS", 1200)) * time.Millisecond,
		MaxConcurrent:       getEnvInt("MAX_CONCURRENT", 4),
		S3: S3Config{
			Endpoint:  getEnv("S3_ENDPOINT", ""),
			AccessKey: getEnv("S3_ACCESS_KEY", ""),
			SecretKey: getEnv("S3_SECRET_KEY", ""),
			Bucket:    getEnv("S3_BUCKET", ""),
			Region:    getEnv("S3_REGION", ""),
			UseSSL:    getEnvBool("S3_USE_SSL", true),
		},
	}

	cfg.TelegramToken = strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN"))
	cfg.GeminiAPIKey = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))

	if cfg.GeminiAPIKey == "" {
		return Config{}, errors.New("GEMINI_API_KEY is required")
	}
	if cfg.GeminiBackend != BackendREST && cfg.GeminiBackend != BackendSDK {
		return Config{}, fmt.Errorf("GEMINI_BACKEND must be %q or %q, got %q", BackendREST, BackendSDK, cfg.GeminiBackend)
	}

	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.MaxSessions < 1 {
		cfg.MaxSessions = 1
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 180 * time.Second
	}
	if cfg.AttemptTimeout < 0 {
		cfg.AttemptTimeout = 0
	}
	if cfg.NotifyDelay < 0 {
		cfg.NotifyDelay = 0
	}
	if cfg.DocumentJPEGQuality < 0 || cfg.DocumentJPEGQuality > 100 {
		cfg.DocumentJPEGQuality = 0
	}

	return cfg, nil
}

// RequireTelegram checks the settings only the bot needs.
func (c Config) RequireTelegram() error {
	if c.TelegramToken == "" {
		return errors.New("TELEGRAM_BOT_TOKEN is required")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
