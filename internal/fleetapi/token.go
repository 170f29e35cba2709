package fleetapi

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenRefreshSkew = time.Minute

// TokenProvider supplies the bearer token sent with every API request.
type TokenProvider interface {
	Token() (string, error)
}

// StaticToken is a pre-issued bearer token.
type StaticToken string

// Token returns the static token.
func (token StaticToken) Token() (string, error) {
	return string(token), nil
}

// TokenConfig configures a TokenSource.
type TokenConfig struct {
	SigningKey string
	Issuer     string
	Subject    string
	TTL        time.Duration
}

// TokenSource mints HS256 service tokens and reuses them until shortly
// before expiry.
type TokenSource struct {
	signingKey []byte
	issuer     string
	subject    string
	ttl        time.Duration
	nowFn      func() time.Time

	mu        sync.Mutex
	cached    string
	expiresAt time.Time
}

// NewTokenSource validates cfg and returns a TokenSource.
func NewTokenSource(cfg TokenConfig, now func() time.Time) (*TokenSource, error) {
	if len(cfg.SigningKey) == 0 {
		return nil, errors.New("token signing key is required")
	}
	if strings.TrimSpace(cfg.Subject) == "" {
		return nil, errors.New("token subject is required")
	}
	if cfg.TTL <= tokenRefreshSkew {
		return nil, errors.New("token ttl must exceed one minute")
	}
	if now == nil {
		now = time.Now
	}
	return &TokenSource{
		signingKey: []byte(cfg.SigningKey),
		issuer:     strings.TrimSpace(cfg.Issuer),
		subject:    strings.TrimSpace(cfg.Subject),
		ttl:        cfg.TTL,
		nowFn:      now,
	}, nil
}

// Token returns a cached token or signs a new one.
func (source *TokenSource) Token() (string, error) {
	source.mu.Lock()
	defer source.mu.Unlock()
	now := source.nowFn().UTC()
	if source.cached != "" && now.Add(tokenRefreshSkew).Before(source.expiresAt) {
		return source.cached, nil
	}
	expiresAt := now.Add(source.ttl)
	claims := jwt.RegisteredClaims{
		Issuer:    source.issuer,
		Subject:   source.subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(source.signingKey)
	if err != nil {
		return "", err
	}
	source.cached = signed
	source.expiresAt = expiresAt
	return signed, nil
}
