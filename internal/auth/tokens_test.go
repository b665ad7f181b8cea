package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func setupTestRedis(t *testing.T) *redis.Client {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client
}

func TestIssueAndValidate(t *testing.T) {
	ctx := context.Background()
	issuer, err := NewIssuer(testSecret, time.Hour, setupTestRedis(t))
	require.NoError(t, err)

	tok, err := issuer.Issue(ctx, "oncall", RoleOps)
	require.NoError(t, err)

	claims, err := issuer.Validate(ctx, tok.Token)
	require.NoError(t, err)
	assert.Equal(t, RoleOps, claims.Role)
	assert.Equal(t, "oncall", claims.Subject)

	require.NoError(t, issuer.Revoke(ctx, tok.ID))
	_, err = issuer.Validate(ctx, tok.Token)
	assert.ErrorIs(t, err, ErrRevoked)
}

func TestValidateRejectsForeignAndExpiredTokens(t *testing.T) {
	ctx := context.Background()
	issuer, err := NewIssuer(testSecret, time.Minute, nil)
	require.NoError(t, err)

	other, err := NewIssuer("ffffffffffffffffffffffffffffffff", time.Minute, nil)
	require.NoError(t, err)
	foreign, err := other.Issue(ctx, "x", RoleAdmin)
	require.NoError(t, err)

	_, err = issuer.Validate(ctx, foreign.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	tok, err := issuer.Issue(ctx, "x", RoleOps)
	require.NoError(t, err)
	issuer.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = issuer.Validate(ctx, tok.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIssuerGuards(t *testing.T) {
	_, err := NewIssuer("short", time.Hour, nil)
	assert.ErrorIs(t, err, ErrWeakSecret)

	issuer, err := NewIssuer(testSecret, time.Hour, nil)
	require.NoError(t, err)
	_, err = issuer.Issue(context.Background(), "x", "client")
	assert.Error(t, err)
}
