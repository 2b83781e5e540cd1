package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads ./.env (or the given files) and then the
// $HOME/.local/bin/.env fallback. Neither overrides variables that are
// already set. It returns the files that were actually loaded.
func LoadDotEnv(files ...string) []string {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var loaded []string
	for _, f := range files {
		if info, err := os.Stat(f); err != nil || info.IsDir() {
			continue
		}
		if err := godotenv.Load(f); err == nil {
			loaded = append(loaded, f)
		}
	}
	if p := loadLocalBinEnv(); p != "" {
		if _, err := os.Stat(p); err == nil {
			loaded = append(loaded, p)
		}
	}
	return loaded
}

func loadLocalBinEnv() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ""
	}
	envPath := filepath.Join(home, ".local", "bin", ".env")
	if info, statErr := os.Stat(envPath); statErr == nil && !info.IsDir() {
		// godotenv.Load will NOT override variables that are already set.
		_ = godotenv.Load(envPath)
	}
	return envPath
}

// ParseIDList splits a comma separated list of Discord snowflakes. Blank
// entries are skipped; anything non-numeric is an error.
func ParseIDList(raw string) ([]string, error) {
	var ids []string
	for _, part := range strings.Split(raw, ",") {
		id := strings.TrimSpace(part)
		if id == "" {
			continue
		}
		if _, err := strconv.ParseUint(id, 10, 64); err != nil {
			return nil, fmt.Errorf("invalid id %q in list", id)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
