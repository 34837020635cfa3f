package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/pagepress/pagepress/internal/logfields"
)

// envFiles are loaded in order; values never override the process environment.
var envFiles = []string{".env", ".env.local"}

// loadEnvFiles loads every env file that exists and returns the ones it loaded.
func loadEnvFiles() ([]string, error) {
	var loaded []string
	for _, name := range envFiles {
		if _, err := os.Stat(name); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(name); err != nil {
			return loaded, err
		}
		slog.Debug("Loaded environment file", logfields.Path(name))
		loaded = append(loaded, name)
	}
	return loaded, nil
}
