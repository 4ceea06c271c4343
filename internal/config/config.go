package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	SessionStorePostgres = "postgres"
	SessionStoreRedis    = "redis"

	DefaultGoogleMapsBaseURL = "https://maps.googleapis.com/maps/api"
)

// Config holds everything the server needs at startup
type Config struct {
	Port        string
	DatabaseURL string
	JWTSecret   string

	SessionStore string
	RedisURL     string

	GoogleMapsAPIKey  string
	GoogleMapsBaseURL string
	ProviderTimeout   time.Duration

	TrackingSessionTTL    time.Duration
	TrackingCodeRetention time.Duration
	StopServiceTime       time.Duration

	KafkaBrokers []string

	FirebaseCredentialsBase64 string
	FirebaseCredentialsFile   string

	CORSAllowedOrigins []string
}

// Load reads .env (if present) and then the process environment
func Load() (*Config, error) {
	log.Println("📂 Loading environment variables...")
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  Warning: .env file not found, using environment variables from system")
	} else {
		log.Println("✅ .env file loaded successfully")
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function, applying defaults for unset keys
func FromEnv(getenv func(string) string) (*Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := &Config{
		Port:                      get("PORT", "8080"),
		DatabaseURL:               get("DATABASE_URL", ""),
		JWTSecret:                 get("APP_JWT_SECRET", ""),
		SessionStore:              strings.ToLower(get("SESSION_STORE", SessionStorePostgres)),
		RedisURL:                  get("REDIS_URL", ""),
		GoogleMapsAPIKey:          get("GOOGLE_MAPS_API_KEY", ""),
		GoogleMapsBaseURL:         get("GOOGLE_MAPS_BASE_URL", DefaultGoogleMapsBaseURL),
		KafkaBrokers:              splitList(get("KAFKA_BROKERS", "")),
		FirebaseCredentialsBase64: get("FIREBASE_CREDENTIALS_BASE64", ""),
		FirebaseCredentialsFile:   get("FIREBASE_CREDENTIALS_FILE", ""),
		CORSAllowedOrigins:        splitList(get("CORS_ALLOWED_ORIGINS", "*")),
	}

	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"PROVIDER_TIMEOUT", "10s", &cfg.ProviderTimeout},
		{"TRACKING_SESSION_TTL", "24h", &cfg.TrackingSessionTTL},
		{"TRACKING_CODE_RETENTION", "720h", &cfg.TrackingCodeRetention},
		{"STOP_SERVICE_TIME", "300s", &cfg.StopServiceTime},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(get(d.key, d.def))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		if v <= 0 {
			return nil, fmt.Errorf("invalid %s: must be positive", d.key)
		}
		*d.dst = v
	}

	switch cfg.SessionStore {
	case SessionStorePostgres:
	case SessionStoreRedis:
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("REDIS_URL is required when SESSION_STORE=redis")
		}
	default:
		return nil, fmt.Errorf("invalid SESSION_STORE %q: want postgres or redis", cfg.SessionStore)
	}

	return cfg, nil
}

// Validate checks the keys only the HTTP server needs
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("APP_JWT_SECRET environment variable is required")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
