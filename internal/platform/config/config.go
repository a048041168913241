package config

import (
	"errors"
	"os"
	"strconv"
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

// GetEnvDuration parses the variable with time.ParseDuration ("48h", "500ms").
// Unset, empty or malformed values yield fallback.
func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	if s := os.Getenv(key); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			return d
		}
	}
	return fallback
}

// Relay groups every setting the relay server reads at startup.
type Relay struct {
	Port      string
	LogLevel  string
	LogFormat string

	FeedURL         string
	RefreshInterval time.Duration

	IngestUser      string
	IngestPassword  string
	LiveIdleTimeout time.Duration

	ChunkSize    int
	Bitrate      int
	PollInterval time.Duration
	MaxFailures  int

	ListenerBuffer  int
	AttendanceDBURL string
}

// FromEnv builds a Relay config from the environment, applying defaults.
func FromEnv() Relay {
	return Relay{
		Port:      GetEnv("PORT", "8080"),
		LogLevel:  GetEnv("LOG_LEVEL", "info"),
		LogFormat: GetEnv("LOG_FORMAT", "json"),

		FeedURL:         GetEnv("FEED_URL", ""),
		RefreshInterval: GetEnvDuration("CATALOG_REFRESH_INTERVAL", 48*time.Hour),

		IngestUser:      GetEnv("INGEST_USER", ""),
		IngestPassword:  GetEnv("INGEST_PASSWORD", ""),
		LiveIdleTimeout: GetEnvDuration("LIVE_IDLE_TIMEOUT", 0),

		ChunkSize:    GetEnvInt("AUTODJ_CHUNK_SIZE", 16*1024),
		Bitrate:      GetEnvInt("AUTODJ_BITRATE", 128000),
		PollInterval: GetEnvDuration("AUTODJ_POLL_INTERVAL", time.Second),
		MaxFailures:  GetEnvInt("AUTODJ_MAX_FAILURES", 0),

		ListenerBuffer:  GetEnvInt("LISTENER_BUFFER", 64),
		AttendanceDBURL: GetEnv("ATTENDANCE_DB_URL", ""),
	}
}

// ErrIngestCredentials is returned by Validate when the live ingest
// credentials are not configured.
var ErrIngestCredentials = errors.New("INGEST_USER and INGEST_PASSWORD must be set")

// Validate reports settings the server cannot start without.
func (c Relay) Validate() error {
	if c.IngestUser == "" || c.IngestPassword == "" {
		return ErrIngestCredentials
	}
	return nil
}
