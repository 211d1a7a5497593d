// Package config loads runtime configuration from the environment. A .env
// file in the working directory is honored when present.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// ErrMissingCredential is returned when an operation needs a credential
// that was not supplied. Checked before any I/O.
var ErrMissingCredential = errors.New("config: missing credential")

// Config is the application configuration.
type Config struct {
	// GeminiAPIKey authenticates the voice extraction service.
	GeminiAPIKey string

	// Project and Dataset locate the remote store.
	Project string
	Dataset string

	// DBPath is the directory for the local store.
	DBPath string

	// Bucket receives exported backup bundles.
	Bucket string

	// ListenAddr is the HTTP API bind address.
	ListenAddr string
}

// Load reads configuration from the environment, after loading .env if one
// exists. Missing values are not an error here; each operation validates
// its own preconditions.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		Project:      os.Getenv("SNAP_LEDGER_PROJECT"),
		Dataset:      os.Getenv("SNAP_LEDGER_DATASET"),
		DBPath:       os.Getenv("SNAP_LEDGER_DB_PATH"),
		Bucket:       os.Getenv("SNAP_LEDGER_BUCKET"),
		ListenAddr:   os.Getenv("SNAP_LEDGER_LISTEN"),
	}
	if cfg.Dataset == "" {
		cfg.Dataset = "snap_ledger"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = defaultDBPath()
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	return cfg
}

// RequireRemote validates the preconditions for any remote-store operation.
func (c Config) RequireRemote() error {
	if c.Project == "" {
		return fmt.Errorf("%w: SNAP_LEDGER_PROJECT is required for remote mode", ErrMissingCredential)
	}
	return nil
}

// RequireGemini validates the precondition for voice extraction.
func (c Config) RequireGemini() error {
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY is required for voice entry", ErrMissingCredential)
	}
	return nil
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".snap-ledger"
	}
	return home + "/.snap-ledger"
}
