package config

import (
	"fmt"
	"os"
)

// Defaults for optional settings.
const (
	DefaultModel        = "gemini-2.5-flash"
	DefaultDatabasePath = "autoplay.db"
)

// Config holds the application configuration.
type Config struct {
	GeminiAPIKey string
	Model        string
	DatabasePath string
}

// LoadConfig loads the configuration from environment variables.
func LoadConfig() (*Config, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is not set")
	}

	model := os.Getenv("AUTOPLAY_MODEL")
	if model == "" {
		model = DefaultModel
	}
	dbPath := os.Getenv("AUTOPLAY_DB")
	if dbPath == "" {
		dbPath = DefaultDatabasePath
	}

	return &Config{
		GeminiAPIKey: apiKey,
		Model:        model,
		DatabasePath: dbPath,
	}, nil
}
