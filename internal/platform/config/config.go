package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file from the current working directory and sets
// environment variables. If .env does not exist, Load returns an error but
// callers can ignore it and use system env or defaults. Pass one or more paths
// to load from specific files (e.g. ".env"); with no paths, ".env" is used.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// GetEnv returns the value of the environment variable named by key, or fallback
// if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named by key,
// or fallback if the variable is unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

// GetEnvFloat returns the float value of key, or fallback.
func GetEnvFloat(key string, fallback float64) float64 {
	if s := os.Getenv(key); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return fallback
}

// GetEnvDuration parses key with time.ParseDuration ("90s", "3h"), or
// returns fallback if unset or invalid.
func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	if s := os.Getenv(key); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			return d
		}
	}
	return fallback
}

// GetEnvList splits a comma-separated variable, dropping empty items.
func GetEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Settings is the service configuration assembled from the environment.
type Settings struct {
	Port      string
	LogLevel  string
	LogFormat string

	UpstreamBaseURL        string
	UpstreamUserAgent      string
	UpstreamAcceptLanguage string
	UpstreamTimeout        time.Duration
	UpstreamRatePerSec     float64
	UpstreamBurst          int

	StatusCacheTTL     time.Duration
	StatusCacheSize    int
	StatusCacheBackend string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int

	FFmpegPath          string
	VideoDir            string
	AudioDir            string
	VideoExt            string
	AudioExt            string
	CaptureStageTimeout time.Duration
	CaptureRegistrySize int
	EventLogCap         int
	ChatRelayURL        string
	ChatAccounts        []string
}

// FromEnv reads Settings. Zero values for optional fields mean "use the
// component default".
func FromEnv() Settings {
	return Settings{
		Port:      GetEnv("PORT", "8080"),
		LogLevel:  GetEnv("LOG_LEVEL", "info"),
		LogFormat: GetEnv("LOG_FORMAT", "json"),

		UpstreamBaseURL:        GetEnv("UPSTREAM_BASE_URL", ""),
		UpstreamUserAgent:      GetEnv("UPSTREAM_USER_AGENT", ""),
		UpstreamAcceptLanguage: GetEnv("UPSTREAM_ACCEPT_LANGUAGE", ""),
		UpstreamTimeout:        GetEnvDuration("UPSTREAM_TIMEOUT", 15*time.Second),
		UpstreamRatePerSec:     GetEnvFloat("UPSTREAM_RATE_PER_SEC", 2),
		UpstreamBurst:          GetEnvInt("UPSTREAM_BURST", 4),

		StatusCacheTTL:     GetEnvDuration("STATUS_CACHE_TTL", 3*time.Hour),
		StatusCacheSize:    GetEnvInt("STATUS_CACHE_SIZE", 1024),
		StatusCacheBackend: strings.ToLower(GetEnv("STATUS_CACHE_BACKEND", "memory")),
		RedisAddr:          GetEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      GetEnv("REDIS_PASSWORD", ""),
		RedisDB:            GetEnvInt("REDIS_DB", 0),

		FFmpegPath:          GetEnv("FFMPEG_PATH", "ffmpeg"),
		VideoDir:            GetEnv("VIDEO_DIR", "videos"),
		AudioDir:            GetEnv("AUDIO_DIR", "audios"),
		VideoExt:            GetEnv("VIDEO_EXT", "mp4"),
		AudioExt:            GetEnv("AUDIO_EXT", "wav"),
		CaptureStageTimeout: GetEnvDuration("CAPTURE_STAGE_TIMEOUT", 0),
		CaptureRegistrySize: GetEnvInt("CAPTURE_REGISTRY_SIZE", 100),
		EventLogCap:         GetEnvInt("EVENT_LOG_CAP", 10000),
		ChatRelayURL:        GetEnv("CHAT_RELAY_URL", ""),
		ChatAccounts:        GetEnvList("CHAT_ACCOUNTS"),
	}
}
