package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the server configuration, read from the environment
type Config struct {
	MongoURI  string
	MongoDB   string
	RedisAddr string
	Port      string

	JWTSecret string
	TokenTTL  time.Duration

	// SnapshotTTL bounds how long an idle assessment snapshot stays cached
	SnapshotTTL time.Duration

	PolicyFile    string
	DefaultLocale string

	// AllowedOrigins is the CORS allow list; empty allows any origin
	AllowedOrigins []string

	// Persistence goes through the asynq queue unless disabled
	QueueEnabled bool

	AI *AIConfig
}

// Load reads .env when present and then the process environment
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[Config] No .env file found, using process environment")
	}

	return &Config{
		MongoURI:       getEnvOrDefault("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:        getEnvOrDefault("MONGO_DB", "symptomcheck"),
		RedisAddr:      redisAddr(getEnvOrDefault("REDIS_URI", "localhost:6379")),
		Port:           getEnvOrDefault("PORT", "8080"),
		JWTSecret:      getEnvOrDefault("JWT_SECRET", "dev-secret-change-in-production"),
		TokenTTL:       getEnvDuration("TOKEN_TTL", 2*time.Hour),
		SnapshotTTL:    getEnvDuration("SNAPSHOT_TTL", 2*time.Hour),
		PolicyFile:     getEnvOrDefault("POLICY_FILE", "policy.yaml"),
		DefaultLocale:  getEnvOrDefault("DEFAULT_LOCALE", "en"),
		AllowedOrigins: splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
		QueueEnabled:   getEnvOrDefault("QUEUE_ENABLED", "true") == "true",
		AI:             DefaultAIConfig(),
	}
}

// redisAddr strips the redis:// scheme go-redis Options.Addr does not accept
func redisAddr(uri string) string {
	return strings.TrimPrefix(uri, "redis://")
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[Config] Ignoring invalid %s=%q: %v", key, v, err)
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[Config] Ignoring invalid %s=%q: %v", key, v, err)
		return defaultValue
	}
	return d
}
