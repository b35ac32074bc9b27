// Package sso issues and verifies the access tokens of the mock third-party
// SSO API (/v1/authenticate, /v1/userinfo).
//
// Tokens are HS256 JWTs naming the VERSA-ID (sub), the requesting client
// (aud + client_id) and the granted scope.
package sso

import (
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"versaid/cmd/identity/ids"
	"versaid/cmd/security/token"
)

var (
	// ErrInvalidToken is returned when a token fails signature, expiry or claim checks.
	ErrInvalidToken = errors.New("sso: invalid token")

	// ErrInvalidGrant is returned when a grant lacks a VERSA-ID or client id.
	ErrInvalidGrant = errors.New("sso: invalid grant")
)

// Claims are the JWT claims of an SSO access token.
type Claims struct {
	jwt.RegisteredClaims
	VersaID  string `json:"versa_id"`
	ClientID string `json:"client_id"`
	Scope    string `json:"scope,omitempty"`
}

// Grant describes what a client asked for in /v1/authenticate.
type Grant struct {
	VersaID  string
	ClientID string
	Scope    string
}

// Config controls token signing.
type Config struct {
	Issuer string
	TTL    time.Duration
	Key    []byte
}

// LoadConfigFromEnv loads SSO token configuration.
//
// Optional:
//   - VERSA_SSO_ISSUER (default "versa-id")
//   - VERSA_SSO_TOKEN_TTL (default 1h)
//   - VERSA_SSO_SIGNING_KEY (falls back to VERSA_TOKEN_HMAC_KEY / VERSA_SESSION_SECRET,
//     then to a random per-process key)
func LoadConfigFromEnv() (Config, error) {
	cfg := Config{Issuer: "versa-id", TTL: time.Hour}

	if v := strings.TrimSpace(os.Getenv("VERSA_SSO_ISSUER")); v != "" {
		cfg.Issuer = v
	}
	if v := strings.TrimSpace(os.Getenv("VERSA_SSO_TOKEN_TTL")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("VERSA_SSO_TOKEN_TTL: invalid duration %q", v)
		}
		cfg.TTL = d
	}

	if v := strings.TrimSpace(os.Getenv("VERSA_SSO_SIGNING_KEY")); v != "" {
		cfg.Key = []byte(v)
		return cfg, nil
	}
	if key, err := token.HMACKeyFromEnv(0); err == nil {
		cfg.Key = key
	}
	return cfg, nil
}

// Issuer signs and parses SSO tokens.
type Issuer struct {
	cfg Config
}

// NewIssuer returns an Issuer. Without a key, a random 32-byte key is
// generated, so tokens do not survive a restart.
func NewIssuer(cfg Config) (*Issuer, error) {
	if cfg.Issuer == "" {
		cfg.Issuer = "versa-id"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if len(cfg.Key) == 0 {
		cfg.Key = make([]byte, 32)
		if _, err := rand.Read(cfg.Key); err != nil {
			return nil, fmt.Errorf("sso: generate key: %w", err)
		}
	}
	return &Issuer{cfg: cfg}, nil
}

// Issue signs a token for g, valid for the configured TTL from now.
func (i *Issuer) Issue(now time.Time, g Grant) (string, time.Time, error) {
	g.VersaID = strings.TrimSpace(g.VersaID)
	g.ClientID = strings.TrimSpace(g.ClientID)
	if g.VersaID == "" || g.ClientID == "" {
		return "", time.Time{}, ErrInvalidGrant
	}

	jti, err := ids.NewULID(now)
	if err != nil {
		return "", time.Time{}, err
	}

	exp := now.Add(i.cfg.TTL)
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.cfg.Issuer,
			Subject:   g.VersaID,
			Audience:  jwt.ClaimStrings{g.ClientID},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        jti,
		},
		VersaID:  g.VersaID,
		ClientID: g.ClientID,
		Scope:    g.Scope,
	})

	s, err := t.SignedString(i.cfg.Key)
	if err != nil {
		return "", time.Time{}, err
	}
	return s, exp, nil
}

// Parse verifies tokenString at now and returns its claims.
func (i *Issuer) Parse(tokenString string, now time.Time) (Claims, error) {
	claims := &Claims{}

	t, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) {
			return i.cfg.Key, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !t.Valid || claims.VersaID == "" {
		return Claims{}, ErrInvalidToken
	}
	// Every token we mint carries a ULID jti.
	if _, err := ids.ParseULID(claims.ID); err != nil {
		return Claims{}, fmt.Errorf("%w: bad jti", ErrInvalidToken)
	}
	return *claims, nil
}
