package config

import (
	"os"
	"strconv"
	"time"

	"mineduel/internal/logger"

	"github.com/joho/godotenv"
)

type Config struct {
	Port    string
	DataDir string

	// Game tuning
	GridSize          int
	DefaultMinesCount int
	TurnTimeLimit     int // seconds
	MinRevealsToPass  int
	RoomCodeLength    int
	RoomIdleTimeout   time.Duration

	// Admin surface
	AdminUsername string
	AdminPassword string
	JWTSecret     string

	// Transport
	AllowedOrigin string

	// Redis-backed HTTP rate limiting (optional)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	APIRateLimit   int
	APIRateWindow  time.Duration
	AuthRateLimit  int
	AuthRateWindow time.Duration

	LogLevel string
	LogJSON  bool
}

// Load reads configuration from the environment (and .env when present).
// Missing secrets are fatal; everything else falls back to defaults.
func Load() *Config {
	_ = godotenv.Load()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		logger.Fatal("JWT_SECRET is not set")
	}

	adminUser := os.Getenv("ADMIN_USERNAME")
	if adminUser == "" {
		adminUser = "admin"
	}

	adminPassword := os.Getenv("ADMIN_PASSWORD")
	if adminPassword == "" {
		logger.Fatal("ADMIN_PASSWORD is not set")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
	}

	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = "data"
	}

	idleTimeout := 30 * time.Minute
	if v := envInt("ROOM_IDLE_TIMEOUT", 0); v > 0 {
		// configured in milliseconds
		idleTimeout = time.Duration(v) * time.Millisecond
	}

	return &Config{
		Port:    port,
		DataDir: dataDir,

		GridSize:          envInt("GRID_SIZE", 10),
		DefaultMinesCount: envInt("DEFAULT_MINES_COUNT", 18),
		TurnTimeLimit:     envInt("TURN_TIME_LIMIT", 30),
		MinRevealsToPass:  envInt("MIN_REVEALS_TO_PASS", 1),
		RoomCodeLength:    envInt("ROOM_CODE_LENGTH", 6),
		RoomIdleTimeout:   idleTimeout,

		AdminUsername: adminUser,
		AdminPassword: adminPassword,
		JWTSecret:     jwtSecret,

		AllowedOrigin: os.Getenv("ALLOWED_ORIGIN"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       envInt("REDIS_DB", 0),

		APIRateLimit:   envInt("API_RATE_LIMIT", 60),
		APIRateWindow:  time.Duration(envInt("API_RATE_WINDOW_SECONDS", 60)) * time.Second,
		AuthRateLimit:  envInt("AUTH_RATE_LIMIT", 5),
		AuthRateWindow: time.Duration(envInt("AUTH_RATE_WINDOW_SECONDS", 60)) * time.Second,

		LogLevel: os.Getenv("LOG_LEVEL"),
		LogJSON:  os.Getenv("LOG_JSON") == "true",
	}
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
