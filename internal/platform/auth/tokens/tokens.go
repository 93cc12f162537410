// Package tokens issues and verifies the HS256 access and refresh tokens used by the API.
package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	clockport "github.com/wingz-dispatch/ride-records-api/internal/ports/out/clock"
)

var ErrInvalidToken = errors.New("invalid token")

type Type string

const (
	TypeAccess  Type = "access"
	TypeRefresh Type = "refresh"
)

type Config struct {
	Secret     []byte
	Issuer     string
	Audience   string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	ClockSkew  time.Duration
}

type claims struct {
	Type Type `json:"typ"`
	jwt.RegisteredClaims
}

type Issuer struct {
	cfg Config
	clk clockport.Clock
}

func NewIssuer(cfg Config, clk clockport.Clock) *Issuer {
	return &Issuer{cfg: cfg, clk: clk}
}

// Pair is the response of a successful login.
type Pair struct {
	Access  string
	Refresh string
}

func (i *Issuer) IssuePair(subject string) (Pair, error) {
	access, err := i.IssueAccess(subject)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := i.issue(subject, TypeRefresh, i.cfg.RefreshTTL)
	if err != nil {
		return Pair{}, err
	}
	return Pair{Access: access, Refresh: refresh}, nil
}

func (i *Issuer) IssueAccess(subject string) (string, error) {
	return i.issue(subject, TypeAccess, i.cfg.AccessTTL)
}

func (i *Issuer) issue(subject string, typ Type, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", fmt.Errorf("token subject is required")
	}
	now := i.clk.Now()
	c := claims{
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Issuer:    i.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if i.cfg.Audience != "" {
		c.Audience = jwt.ClaimStrings{i.cfg.Audience}
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(i.cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", typ, err)
	}
	return signed, nil
}

// Verify checks signature, issuer, audience, expiry (with clock skew) and the token type, and
// returns the subject. Every failure wraps ErrInvalidToken.
func (i *Issuer) Verify(raw string, want Type) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(i.cfg.ClockSkew),
		jwt.WithTimeFunc(i.clk.Now),
		jwt.WithExpirationRequired(),
	}
	if i.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.cfg.Issuer))
	}
	if i.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(i.cfg.Audience))
	}

	var c claims
	_, err := jwt.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) {
		return i.cfg.Secret, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if c.Type != want {
		return "", fmt.Errorf("%w: expected %s token, got %q", ErrInvalidToken, want, c.Type)
	}
	if c.Subject == "" {
		return "", fmt.Errorf("%w: missing sub", ErrInvalidToken)
	}
	return c.Subject, nil
}
