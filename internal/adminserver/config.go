package adminserver

import (
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/gonzofleet/internal/fleetapi"
)

const (
	defaultListenAddr     = ":8080"
	defaultAPIBaseURL     = "http://localhost:8000"
	defaultAllowedOrigin  = "http://localhost:3000"
	defaultTokenIssuer    = "gonzoadmin"
	defaultTokenSubject   = "gonzoadmin-console"
	defaultAPITimeout     = 10 * time.Second
	defaultRequestTimeout = 15 * time.Second
	defaultTokenTTL       = 15 * time.Minute
)

// Config aggregates runtime settings for the admin façade and the API client
// it drives.
type Config struct {
	ListenAddr      string
	APIBaseURL      string
	APITimeout      time.Duration
	RequestTimeout  time.Duration
	AllowedOrigins  []string
	TokenSigningKey string
	TokenIssuer     string
	TokenSubject    string
	TokenTTL        time.Duration
}

// Validate ensures the configuration contains sane values.
func (cfg *Config) Validate() error {
	cfg.ListenAddr = defaultIfEmpty(cfg.ListenAddr, defaultListenAddr)
	cfg.APIBaseURL = defaultIfEmpty(cfg.APIBaseURL, defaultAPIBaseURL)
	cfg.TokenIssuer = defaultIfEmpty(cfg.TokenIssuer, defaultTokenIssuer)
	cfg.TokenSubject = defaultIfEmpty(cfg.TokenSubject, defaultTokenSubject)
	if cfg.APITimeout <= 0 {
		cfg.APITimeout = defaultAPITimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaultTokenTTL
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{defaultAllowedOrigin}
	}
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		return fmt.Errorf("listen addr is required")
	}
	if !strings.HasPrefix(cfg.APIBaseURL, "http://") && !strings.HasPrefix(cfg.APIBaseURL, "https://") {
		return fmt.Errorf("api base url must be http or https: %q", cfg.APIBaseURL)
	}
	if cfg.TokenTTL <= time.Minute {
		return fmt.Errorf("token ttl must exceed one minute")
	}
	return nil
}

// NewAPIClient builds the REST client described by cfg. Requests are signed
// with a service token when a signing key is configured.
func (cfg Config) NewAPIClient() (*fleetapi.Client, error) {
	clientConfig := fleetapi.Config{BaseURL: cfg.APIBaseURL, Timeout: cfg.APITimeout}
	if cfg.TokenSigningKey != "" {
		tokens, err := fleetapi.NewTokenSource(fleetapi.TokenConfig{
			SigningKey: cfg.TokenSigningKey,
			Issuer:     cfg.TokenIssuer,
			Subject:    cfg.TokenSubject,
			TTL:        cfg.TokenTTL,
		}, nil)
		if err != nil {
			return nil, fmt.Errorf("service token: %w", err)
		}
		clientConfig.Tokens = tokens
	}
	return fleetapi.NewClient(clientConfig)
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

// ParseAllowedOrigins splits comma-delimited origins into a slice.
func ParseAllowedOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	return normalized
}
