package config

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	PeerURL     string
	ClientID    string
	AccessToken string

	DeviceID    int
	FrameWidth  int
	FrameHeight int
	JPEGQuality int
	CaptureFPS  int
	HistorySize int

	LogLevel    string
	Environment string
}

func (c *Config) IsDev() bool {
	return c.Environment == "dev"
}

// PeerURLForLog hides the access token while logging the connection target.
func (c *Config) PeerURLForLog() string {
	token := "<none>"
	if c.AccessToken != "" {
		token = "***"
	}
	return fmt.Sprintf("%s (client=%s token=%s)", c.PeerURL, c.ClientID, token)
}

func LoadConfig() *Config {
	// .env is optional; fall back to the process environment
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg := &Config{
		PeerURL:     getEnv("PEER_URL", "ws://localhost:8090/ws"),
		ClientID:    getEnv("CLIENT_ID", ""),
		AccessToken: getEnv("ACCESS_TOKEN", ""),
		DeviceID:    getEnvInt("CAPTURE_DEVICE", 0),
		FrameWidth:  getEnvInt("FRAME_WIDTH", 320),
		FrameHeight: getEnvInt("FRAME_HEIGHT", 240),
		JPEGQuality: getEnvInt("JPEG_QUALITY", 70),
		CaptureFPS:  getEnvInt("CAPTURE_FPS", 10),
		HistorySize: getEnvInt("HISTORY_SIZE", 300),
		LogLevel:    getEnv("LOG_LEVEL", "INFO"),
		Environment: getEnv("ENVIRONMENT", "production"),
	}

	if cfg.AccessToken == "" {
		fmt.Println("WARNING: ACCESS_TOKEN is not set!")
	}
	if cfg.CaptureFPS <= 0 {
		fmt.Println("WARNING: CAPTURE_FPS must be positive, using default: 10")
		cfg.CaptureFPS = 10
	}

	return cfg
}

func getEnv(key string, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if intVal, err := strconv.Atoi(v); err == nil {
			return intVal
		}
	}
	return defaultVal
}
