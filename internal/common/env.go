package common

import (
	"log/slog"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads a .env file from the working directory when one exists.
func LoadDotEnv() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found")
	}
}
