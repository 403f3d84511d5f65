package config

import (
	"os"
	"strconv"
	"time"

	_ "github.com/joho/godotenv/autoload"
)

// Config carries every knob for both binaries. Values come from the
// environment (or a .env file) with sane local-play defaults.
type Config struct {
	// client
	ServerURL      string        // base URL of the authority's HTTP API
	FeedURL        string        // websocket URL of the push channel
	RequestTimeout time.Duration // client-side bound on place/cash-out calls
	RestartDelay   time.Duration // local fallback countdown after a crash

	// simulator
	ListenAddr    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	BettingWindow time.Duration
	RoundPause    time.Duration
}

func Load() Config {
	return Config{
		ServerURL:      getEnv("AVIATOR_SERVER_URL", "http://localhost:8099"),
		FeedURL:        getEnv("AVIATOR_FEED_URL", "ws://localhost:8099/ws"),
		RequestTimeout: getEnvAsDuration("AVIATOR_REQUEST_TIMEOUT", 5*time.Second),
		RestartDelay:   getEnvAsDuration("AVIATOR_RESTART_DELAY", 5*time.Second),

		ListenAddr:    getEnv("SIM_LISTEN_ADDR", ":8099"),
		RedisAddr:     getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),
		BettingWindow: getEnvAsDuration("SIM_BETTING_WINDOW", 5*time.Second),
		RoundPause:    getEnvAsDuration("SIM_ROUND_PAUSE", 3*time.Second),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
