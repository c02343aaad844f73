package auth

import (
	"errors"
	"fmt"
	"time"

	"identity-audit/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrMalformed        = errors.New("auth: malformed token")
	ErrExpired          = errors.New("auth: token expired")
	ErrInvalidSignature = errors.New("auth: invalid signature")
)

// Codec issues and verifies HS256 claim tokens. It holds no state beyond the
// shared secret and TTLs, so one instance is safe for concurrent use.
type Codec struct {
	secret     []byte
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	clock      func() time.Time
}

type CodecOption func(*Codec)

// WithClock replaces the codec clock used for issued-at, expiry and verification.
func WithClock(clock func() time.Time) CodecOption {
	return func(c *Codec) { c.clock = clock }
}

func NewCodec(cfg config.AuthConfig, opts ...CodecOption) (*Codec, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.AccessTokenTTL <= 0 || cfg.RefreshTokenTTL <= 0 {
		return nil, errors.New("token TTLs must be positive")
	}

	c := &Codec{
		secret:     []byte(cfg.JWTSecret),
		issuer:     cfg.JWTIssuer,
		audience:   cfg.JWTAudience,
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issued is a freshly signed token together with the claims a caller needs
// to book it in the credential store.
type Issued struct {
	Token     string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TTL is the remaining lifetime of the token relative to its issue time.
func (i Issued) TTL() time.Duration {
	return i.ExpiresAt.Sub(i.IssuedAt)
}

type TokenPair struct {
	Access  Issued
	Refresh Issued
}

/* ===================== ISSUE TOKENS ===================== */

func (c *Codec) IssuePair(userID int64, role string) (TokenPair, error) {
	access, err := c.Issue(userID, role, TokenTypeAccess)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := c.Issue(userID, role, TokenTypeRefresh)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{Access: access, Refresh: refresh}, nil
}

func (c *Codec) Issue(userID int64, role string, tokenType TokenType) (Issued, error) {
	if userID <= 0 {
		return Issued{}, errors.New("auth: user id must be positive")
	}

	ttl := c.accessTTL
	if tokenType == TokenTypeRefresh {
		ttl = c.refreshTTL
	} else if tokenType != TokenTypeAccess {
		return Issued{}, fmt.Errorf("auth: unknown token type %q", tokenType)
	}

	// NumericDate has second precision; truncate so the returned times match the signed ones.
	now := c.clock().UTC().Truncate(time.Second)
	exp := now.Add(ttl)
	jti := uuid.NewString()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Audience:  audienceOrNil(c.audience),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        jti,
		},
		UserID:    userID,
		Role:      role,
		TokenType: tokenType,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return Issued{}, err
	}
	return Issued{Token: signed, ID: jti, IssuedAt: now, ExpiresAt: exp}, nil
}

/* ===================== VERIFY TOKEN ===================== */

// Verify checks signature, expiry and token type against the codec clock.
// It never consults the credential store.
func (c *Codec) Verify(tokenString string, expected TokenType) (Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.clock),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}
	if c.audience != "" {
		opts = append(opts, jwt.WithAudience(c.audience))
	}

	var claims Claims
	_, err := jwt.NewParser(opts...).ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		return Claims{}, classify(err)
	}

	if claims.TokenType != expected {
		return Claims{}, fmt.Errorf("%w: token_type mismatch", ErrMalformed)
	}
	if claims.UserID <= 0 {
		return Claims{}, fmt.Errorf("%w: id missing", ErrMalformed)
	}
	if claims.ID == "" {
		return Claims{}, fmt.Errorf("%w: jti missing", ErrMalformed)
	}
	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}

func audienceOrNil(aud string) jwt.ClaimStrings {
	if aud == "" {
		return nil
	}
	return jwt.ClaimStrings{aud}
}
