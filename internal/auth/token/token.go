// Package token issues the bearer credential returned after a BankID login.
package token

import (
	"errors"
	"fmt"
	"time"

	"bankid-auth/internal/utils"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrRefreshExpired = errors.New("refresh window has passed")
)

// Claims carried by every issued token.
type Claims struct {
	jwt.RegisteredClaims
	ExternalKey  string `json:"external_key"`
	ProviderType string `json:"provider_type"`
	Email        string `json:"email,omitempty"`
	FullName     string `json:"full_name"`
	IsComplete   bool   `json:"is_complete"`
	// OrigIssuedAt is the issue time of the first token in a refresh chain.
	OrigIssuedAt int64 `json:"orig_iat"`
}

// Subject is the identity data a token is issued for.
type Subject struct {
	ID           string
	ExternalKey  string
	ProviderType string
	Email        string
	FullName     string
	IsComplete   bool
}

type Config struct {
	Secret        string
	Issuer        string
	TTL           time.Duration
	RefreshWindow time.Duration
}

type Issuer struct {
	secret        []byte
	issuer        string
	ttl           time.Duration
	refreshWindow time.Duration
	now           func() time.Time
}

func NewIssuer(cfg Config) *Issuer {
	return &Issuer{
		secret:        []byte(cfg.Secret),
		issuer:        cfg.Issuer,
		ttl:           cfg.TTL,
		refreshWindow: cfg.RefreshWindow,
		now:           time.Now,
	}
}

// Issue signs a new token for s.
func (i *Issuer) Issue(s Subject) (string, error) {
	now := i.now()
	return i.sign(Claims{
		ExternalKey:  s.ExternalKey,
		ProviderType: s.ProviderType,
		Email:        s.Email,
		FullName:     s.FullName,
		IsComplete:   s.IsComplete,
		OrigIssuedAt: now.Unix(),
	}, s.ID, now)
}

// Verify parses raw and checks its signature, issuer and expiry.
func (i *Issuer) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return claims, nil
}

// Refresh re-signs a valid token with a fresh expiry as long as the first
// token of its chain was issued within the refresh window.
func (i *Issuer) Refresh(raw string) (string, error) {
	claims, err := i.Verify(raw)
	if err != nil {
		return "", err
	}

	now := i.now()
	orig := time.Unix(claims.OrigIssuedAt, 0)
	if claims.OrigIssuedAt == 0 || now.Sub(orig) > i.refreshWindow {
		return "", ErrRefreshExpired
	}

	return i.sign(*claims, claims.Subject, now)
}

func (i *Issuer) sign(c Claims, subject string, now time.Time) (string, error) {
	jti, err := utils.RandomString(16)
	if err != nil {
		return "", err
	}

	c.RegisteredClaims = jwt.RegisteredClaims{
		ID:        jti,
		Subject:   subject,
		Issuer:    i.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("token: sign: %w", err)
	}
	return signed, nil
}
