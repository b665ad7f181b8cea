// Package auth issues and validates the bearer tokens that guard the ops endpoints.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	RoleOps   = "ops"
	RoleAdmin = "admin"

	issuer    = "freelancer-bot"
	jtiPrefix = "ops:jti:"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrRevoked      = errors.New("token revoked or expired")
	ErrWeakSecret   = errors.New("OPS_JWT_SECRET must be at least 32 characters")
)

type Claims struct {
	Subject string `json:"sub_name"`
	Role    string `json:"role"`
	jwt.RegisteredClaims
}

// IssuedToken is a signed ops token and its expiry.
type IssuedToken struct {
	Token     string    `json:"token"`
	ID        string    `json:"jti"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Issuer signs HS256 ops tokens. When a Redis client is present every
// token's JTI is registered there and validation requires it, which makes
// tokens revocable.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	rdb    *redis.Client
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration, rdb *redis.Client) (*Issuer, error) {
	if len(secret) < 32 {
		return nil, ErrWeakSecret
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, rdb: rdb, now: time.Now}, nil
}

func (i *Issuer) Issue(ctx context.Context, subject, role string) (*IssuedToken, error) {
	if role != RoleOps && role != RoleAdmin {
		return nil, fmt.Errorf("unsupported role %q", role)
	}

	now := i.now()
	jti := uuid.NewString()
	exp := now.Add(i.ttl)
	claims := Claims{
		Subject: subject,
		Role:    role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return nil, err
	}

	if i.rdb != nil {
		if err := i.rdb.Set(ctx, jtiPrefix+jti, subject, i.ttl).Err(); err != nil {
			return nil, fmt.Errorf("register token: %w", err)
		}
	}

	return &IssuedToken{Token: signed, ID: jti, ExpiresAt: exp}, nil
}

func (i *Issuer) Validate(ctx context.Context, tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// Prevent algorithm confusion attacks
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return i.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(i.now))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	if i.rdb != nil {
		exists, err := i.rdb.Exists(ctx, jtiPrefix+claims.ID).Result()
		if err != nil || exists != 1 {
			return nil, ErrRevoked
		}
	}

	return claims, nil
}

// Revoke invalidates a token by its JTI.
func (i *Issuer) Revoke(ctx context.Context, jti string) error {
	if i.rdb == nil {
		return errors.New("revocation requires redis")
	}
	return i.rdb.Del(ctx, jtiPrefix+jti).Err()
}
