package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const defaultTokenTTL = 15 * time.Minute

// ErrInvalidToken indicates the token failed verification for any reason:
// malformed, tampered, expired, or signed with a different secret.
var ErrInvalidToken = fmt.Errorf("%w: invalid token", ErrUnauthenticated)

// Claims are the signed contents of an access token. The account binding is
// fixed at issuance; refreshing a token never changes it.
type Claims struct {
	AccountID string `json:"account_id"`
	jwt.RegisteredClaims
}

// Codec signs and verifies opaque access tokens using HS256.
type Codec struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// CodecOption configures a Codec.
type CodecOption func(*Codec)

// WithTokenTTL overrides the token lifetime.
func WithTokenTTL(ttl time.Duration) CodecOption {
	return func(c *Codec) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock overrides the time source (used in tests).
func WithClock(fn func() time.Time) CodecOption {
	return func(c *Codec) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewCodec builds a Codec. The secret must be non-empty; the issuer names
// this deployment in the iss claim.
func NewCodec(secret, issuer string, opts ...CodecOption) (*Codec, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	c := &Codec{
		secret: []byte(secret),
		issuer: strings.TrimSpace(issuer),
		ttl:    defaultTokenTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// TTL returns the configured token lifetime.
func (c *Codec) TTL() time.Duration { return c.ttl }

// Sign mints a token binding userID to accountID for the configured TTL.
func (c *Codec) Sign(userID, accountID string) (string, time.Time, error) {
	userID = strings.TrimSpace(userID)
	accountID = strings.TrimSpace(accountID)
	if userID == "" || accountID == "" {
		return "", time.Time{}, errors.New("auth: user and account ids are required")
	}

	now := c.now().UTC()
	exp := now.Add(c.ttl)
	claims := Claims{
		AccountID: accountID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Verify checks the signature and required claims and returns the decoded
// claims. Any failure is ErrInvalidToken; callers never learn which check
// tripped.
func (c *Codec) Verify(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return c.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return c.now().UTC() }))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if err := c.validateClaims(claims); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (c *Codec) validateClaims(claims *Claims) error {
	if claims.Issuer != c.issuer {
		return fmt.Errorf("unexpected issuer: %s", claims.Issuer)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return errors.New("subject missing")
	}
	if strings.TrimSpace(claims.AccountID) == "" {
		return errors.New("account binding missing")
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return errors.New("timestamps missing")
	}
	now := c.now().UTC()
	if now.After(claims.ExpiresAt.Time) {
		return errors.New("token expired")
	}
	// Allow a small clock skew of 5 seconds when validating issued-at.
	if claims.IssuedAt.Time.After(now.Add(5 * time.Second)) {
		return errors.New("token issued in the future")
	}
	if claims.ExpiresAt.Time.Before(claims.IssuedAt.Time) {
		return errors.New("token expiry precedes issued-at")
	}
	return nil
}
