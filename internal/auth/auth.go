// Package auth verifies bearer tokens issued by the identity provider and
// turns them into a caller identity.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tbourn/rent-share-backend/internal/config"
)

// ErrBadToken is returned for any token that fails verification.
var ErrBadToken = errors.New("invalid token")

// Claims are the token claims the service reads. Identity providers put the
// uid in "sub"; some also repeat it as "user_id".
type Claims struct {
	UserID string `json:"user_id,omitempty"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Identity is the authenticated caller.
type Identity struct {
	UserID string
	Name   string
	Email  string
}

// Verifier checks HMAC-signed tokens.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewVerifier builds a verifier from cfg. Issuer and audience are checked only
// when configured.
func NewVerifier(cfg config.AuthConfig) *Verifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	return &Verifier{secret: []byte(cfg.Secret), parser: jwt.NewParser(opts...)}
}

// Verify parses raw and returns the caller identity.
func (v *Verifier) Verify(raw string) (*Identity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrBadToken
	}
	tok, err := v.parser.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		// block alg confusion
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadToken, err)
	}
	c, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, ErrBadToken
	}
	uid := c.Subject
	if uid == "" {
		uid = c.UserID
	}
	if uid == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrBadToken)
	}
	return &Identity{UserID: uid, Name: c.Name, Email: c.Email}, nil
}

// Sign issues an HS256 token for uid. It backs local tooling and tests; in
// production tokens come from the identity provider.
func Sign(cfg config.AuthConfig, uid, name, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	c := Claims{
		Name:  name,
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uid,
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if cfg.Audience != "" {
		c.Audience = jwt.ClaimStrings{cfg.Audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(cfg.Secret))
}
