package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

const (
	EnvConfigPath = "CATALOG_CONFIG_PATH"
	EnvHome       = "CATALOG_HOME"
)

// Defaults are the paths used when the config file does not say otherwise.
type Defaults struct {
	ConfigPath string
	BaseDir    string
	LogDir     string
}

// LoadEnv reads KEY=value pairs from the given .env files into the process
// environment. Missing files are skipped and variables that are already set
// win over the file.
func LoadEnv(files ...string) error {
	for _, f := range files {
		err := godotenv.Load(f)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// GetDefaults resolves the default paths. CATALOG_CONFIG_PATH overrides
// ~/.config/catalog.toml and CATALOG_HOME overrides ~/.local/share/catalog.
func GetDefaults() (*Defaults, error) {
	home := ""
	if os.Getenv(EnvConfigPath) == "" || os.Getenv(EnvHome) == "" {
		h, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot determine home directory: %w", err)
		}
		home = h
	}

	d := &Defaults{
		ConfigPath: envOr(EnvConfigPath, filepath.Join(home, ".config", "catalog.toml")),
		BaseDir:    envOr(EnvHome, filepath.Join(home, ".local", "share", "catalog")),
	}
	d.LogDir = filepath.Join(d.BaseDir, "log")
	return d, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
