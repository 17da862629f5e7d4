package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/DoyleJ11/math-tennis-backend/internal/difficulty"
	"github.com/DoyleJ11/math-tennis-backend/internal/publish"
	"github.com/DoyleJ11/math-tennis-backend/internal/session"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Addr           string
	ReconnectGrace time.Duration
	HitDelay       time.Duration
	PointDelay     time.Duration
	TimeoutDelay   time.Duration
	GamesToWin     int
	LevelsFile     string
	AllowedOrigins []string
	NATSURL        string
	NATSSubject    string
	LogLevel       string
	LogDevelopment bool
}

// Load reads an optional .env file and then the environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

func FromEnv() (Config, error) {
	cfg := Config{
		Addr:           getEnv("ADDR", ":8080"),
		ReconnectGrace: getEnvAsDuration("RECONNECT_GRACE", session.DefaultGracePeriod),
		HitDelay:       getEnvAsDuration("HIT_DELAY", 800*time.Millisecond),
		PointDelay:     getEnvAsDuration("POINT_DELAY", 500*time.Millisecond),
		TimeoutDelay:   getEnvAsDuration("TIMEOUT_DELAY", 500*time.Millisecond),
		GamesToWin:     getEnvAsInt("GAMES_TO_WIN", 3),
		LevelsFile:     getEnv("LEVELS_FILE", ""),
		AllowedOrigins: getEnvAsList("ALLOWED_ORIGINS", []string{"*"}),
		NATSURL:        getEnv("NATS_URL", ""),
		NATSSubject:    getEnv("NATS_SUBJECT", publish.DefaultSubject),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogDevelopment: getEnvAsBool("LOG_DEVELOPMENT", false),
	}
	if cfg.GamesToWin < 1 {
		return Config{}, fmt.Errorf("GAMES_TO_WIN must be positive, got %d", cfg.GamesToWin)
	}
	if _, err := zapcore.ParseLevel(cfg.LogLevel); err != nil {
		return Config{}, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return cfg, nil
}

// Levels returns the built-in table unless LEVELS_FILE names an override.
func (c Config) Levels() (difficulty.Levels, error) {
	if c.LevelsFile == "" {
		return difficulty.DefaultLevels(), nil
	}
	levels, err := difficulty.LoadLevels(c.LevelsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load levels: %w", err)
	}
	return levels, nil
}

func (c Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if c.LogDevelopment {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d >= 0 {
			return d
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
