package config

import (
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port       string
	JWTSecret  string
	APIBaseURL string
	SocketURL  string
	AuthToken  string
	Role       string
	AppEnv     string
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	return &Config{
		Port:       getEnv("PORT", "8080"),
		JWTSecret:  getEnv("JWT_SECRET", ""),
		APIBaseURL: getEnv("CHAT_API_BASE_URL", "http://localhost:8080"),
		SocketURL:  getEnv("CHAT_SOCKET_URL", "ws://localhost:8080/ws/chat"),
		AuthToken:  getEnv("CHAT_AUTH_TOKEN", ""),
		Role:       getEnv("CHAT_ROLE", "patient"),
		AppEnv:     normalizeEnv(getEnv("APP_ENV", "production")),
	}, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func normalizeEnv(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "dev", "develop", "development", "local":
		return "development"
	case "prod", "production":
		return "production"
	case "stage", "staging":
		return "staging"
	case "test", "testing":
		return "test"
	default:
		return strings.ToLower(strings.TrimSpace(value))
	}
}
