package config

import (
	"os"

	"github.com/joho/godotenv"
)

// loadDotenv loads a .env file into the process environment if one exists.
// Best-effort for local development; a missing file is not an error.
func loadDotenv() {
	if _, err := os.Stat(".env"); err != nil {
		return
	}
	_ = godotenv.Load()
}
