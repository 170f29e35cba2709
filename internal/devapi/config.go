package devapi

import (
	"fmt"
	"strings"
)

const (
	defaultListenAddr  = ":8000"
	defaultTokenIssuer = "gonzoadmin"
)

// Config aggregates runtime settings for the development API.
type Config struct {
	ListenAddr  string
	SigningKey  string
	TokenIssuer string
	RequireAuth bool
}

// Validate fills defaults and checks that auth settings are usable.
func (cfg *Config) Validate() error {
	cfg.ListenAddr = defaultIfEmpty(cfg.ListenAddr, defaultListenAddr)
	cfg.TokenIssuer = defaultIfEmpty(cfg.TokenIssuer, defaultTokenIssuer)
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		return fmt.Errorf("listen addr is required")
	}
	if cfg.RequireAuth && len(cfg.SigningKey) == 0 {
		return fmt.Errorf("jwt signing key is required when auth is enabled")
	}
	return nil
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
