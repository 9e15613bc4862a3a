package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// LoadEnv loads dotenv files into the process environment. Missing files
// are skipped and variables already set are left alone. With no paths it
// tries ".env".
func LoadEnv(paths ...string) ([]string, error) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	loaded := make([]string, 0, len(paths))
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return loaded, fmt.Errorf("env file %s: %w", path, err)
		}
		if err := godotenv.Load(path); err != nil {
			return loaded, fmt.Errorf("env file %s: %w", path, err)
		}
		loaded = append(loaded, path)
	}
	return loaded, nil
}

// EnvAdminToken overrides ServerConfig.AdminToken.
const EnvAdminToken = "GLAP_ADMIN_TOKEN"

// ApplyServerEnv copies environment overrides into cfg.
func ApplyServerEnv(cfg *ServerConfig) {
	if v, ok := os.LookupEnv(EnvAdminToken); ok {
		cfg.AdminToken = strings.TrimSpace(v)
	}
}
