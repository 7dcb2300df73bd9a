// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jason-s-yu/blackjack/internal/game"
	_ "github.com/joho/godotenv/autoload"
)

// Config is the process-wide configuration read from the environment (and .env, if present).
type Config struct {
	Env  string
	Port string

	LogLevel  string
	LogFormat string

	// DBDriver selects the store backend: "postgres" or "sqlite".
	DBDriver    string
	DatabaseURL string
	SQLitePath  string

	// RedisAddr is optional; an empty value disables the historian queue and the logout denylist.
	RedisAddr      string
	RedisDB        int
	HistorianQueue string

	// InactivityTimeout is how long a round may stay active before the historian abandons it.
	HistorianBatchSize int
	HistorianFlush     time.Duration
	InactivityTimeout  time.Duration
	InactivityCheck    time.Duration

	// TokenExpire of 0 means issued tokens never expire.
	TokenExpire    time.Duration
	PrivateKeyPath string
	PublicKeyPath  string
	CookieSecure   bool

	AllowedOrigins []string

	GameIdleTimeout time.Duration
	JanitorInterval time.Duration

	AuthRateLimit float64 // requests per second per client on /login and /register
	AuthRateBurst int

	RulesFile string
	Rules     game.Rules
}

// Load reads the configuration and the table rules file.
func Load() (*Config, error) {
	tokenExpire, err := parseExpire(os.Getenv("TOKEN_EXPIRE_TIME"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token expire time: %w", err)
	}
	idle, err := time.ParseDuration(getEnv("GAME_IDLE_TIMEOUT", "5m"))
	if err != nil {
		return nil, fmt.Errorf("invalid GAME_IDLE_TIMEOUT: %w", err)
	}
	janitor, err := time.ParseDuration(getEnv("JANITOR_INTERVAL", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid JANITOR_INTERVAL: %w", err)
	}

	cfg := &Config{
		Env:             getEnv("BLACKJACK_ENV", "development"),
		Port:            getEnv("PORT", "5000"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "text"),
		DBDriver:        getEnv("DB_DRIVER", "postgres"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		SQLitePath:      getEnv("SQLITE_PATH", "blackjack.db"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RedisDB:         getEnvInt("REDIS_DB", 0),
		HistorianQueue:  getEnv("HISTORIAN_QUEUE_NAME", "blackjack_actions"),

		HistorianBatchSize: getEnvInt("HISTORIAN_BATCH_SIZE", 20),
		HistorianFlush:     time.Duration(getEnvInt("HISTORIAN_FLUSH_MS", 500)) * time.Millisecond,
		InactivityTimeout:  time.Duration(getEnvInt("GAME_INACTIVITY_TIMEOUT_SEC", 600)) * time.Second,
		InactivityCheck:    time.Minute,

		TokenExpire:     tokenExpire,
		PrivateKeyPath:  os.Getenv("JWT_PRIVATE_KEY_PATH"),
		PublicKeyPath:   os.Getenv("JWT_PUBLIC_KEY_PATH"),
		CookieSecure:    getEnv("COOKIE_SECURE", "false") == "true",
		AllowedOrigins:  splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:5173")),
		GameIdleTimeout: idle,
		JanitorInterval: janitor,
		AuthRateLimit:   getEnvFloat("AUTH_RATE_LIMIT", 1),
		AuthRateBurst:   getEnvInt("AUTH_RATE_BURST", 5),
		RulesFile:       os.Getenv("RULES_FILE"),
	}

	if cfg.DatabaseURL == "" && cfg.DBDriver == "postgres" {
		cfg.DatabaseURL = fmt.Sprintf(
			"postgres://%s:%s@%s:%s/%s",
			os.Getenv("POSTGRES_USER"),
			os.Getenv("POSTGRES_PASSWORD"),
			getEnv("PG_HOST", "localhost"),
			getEnv("PG_PORT", "5432"),
			getEnv("PG_DATABASE", "blackjack"),
		)
	}

	cfg.Rules, err = LoadRules(cfg.RulesFile)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsProduction reports whether the service runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// parseExpire treats "", "0" and "never" as no expiry.
func parseExpire(v string) (time.Duration, error) {
	if v == "" || v == "0" || v == "never" {
		return 0, nil
	}
	return time.ParseDuration(v)
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt is a helper to parse an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func getEnvFloat(key string, def float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return v
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
