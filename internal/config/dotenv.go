package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

// loadDotenv loads ENV_FILE, or .env from the working directory. Existing
// variables are never overridden. NO_DOTENV=1 disables it.
func loadDotenv() {
	if os.Getenv("NO_DOTENV") == "1" {
		return
	}

	path := ".env"
	if f := os.Getenv("ENV_FILE"); f != "" {
		path = f
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("load env file", "path", path, "error", err)
	}
}
