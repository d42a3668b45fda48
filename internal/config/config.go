package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Remote service
	APIBaseURL  string
	HTTPTimeout time.Duration

	// Local state
	DataDir string
	DBPath  string
	LogFile string
}

// Load reads configuration from the environment. A .env file in the working
// directory is honored when present but never required.
func Load() Config {
	_ = godotenv.Load()

	dataDir := os.Getenv("LEXDRUM_DATA_DIR")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		dataDir = filepath.Join(home, ".lexdrum")
	}

	return Config{
		APIBaseURL:  getEnv("LEXDRUM_API_URL", "http://localhost:8000"),
		HTTPTimeout: getEnvDuration("LEXDRUM_HTTP_TIMEOUT", 30*time.Second),
		DataDir:     dataDir,
		DBPath:      getEnv("LEXDRUM_DB_PATH", filepath.Join(dataDir, "lexdrum.db")),
		LogFile:     getEnv("LEXDRUM_LOG_FILE", filepath.Join(dataDir, "lexdrum.log")),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
