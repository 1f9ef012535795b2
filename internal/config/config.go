package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Config holds runtime configuration sourced from env vars.
// Flags in cmd/server override any of these.
type Config struct {
	Port        string
	PrimaryDB   string
	SecondaryDB string
}

// Load reads configuration from the environment and performs minimal
// validation. At least one storage location must be configured.
func Load() (Config, error) {
	cfg := Config{
		Port:        fallback(os.Getenv("PORT"), "8080"),
		PrimaryDB:   strings.TrimSpace(os.Getenv("BEANSERVER_PRIMARY_DB")),
		SecondaryDB: strings.TrimSpace(os.Getenv("BEANSERVER_SECONDARY_DB")),
	}

	if cfg.PrimaryDB == "" && cfg.SecondaryDB == "" {
		return Config{}, errors.New("BEANSERVER_PRIMARY_DB or BEANSERVER_SECONDARY_DB is required")
	}
	return cfg, nil
}

// HTTPAddress returns the host:port pair for the HTTP server to bind to.
func (c Config) HTTPAddress() string {
	return fmt.Sprintf(":%s", c.Port)
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return strings.TrimSpace(value)
}
