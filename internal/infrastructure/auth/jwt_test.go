package auth

import (
	"testing"
	"time"

	"github.com/erp/stockledger/internal/infrastructure/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJWTService() *JWTService {
	return NewJWTService(config.JWTConfig{
		Secret:          "test-secret-key-for-jwt-testing-only",
		Issuer:          "stockledger-test",
		TokenExpiration: 15 * time.Minute,
	})
}

func TestJWTService_GenerateAndValidate(t *testing.T) {
	svc := newTestJWTService()

	token, expiresAt, err := svc.GenerateToken("refund-worker", "ledger:reverse")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), expiresAt, 5*time.Second)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "refund-worker", claims.Subject)
	assert.True(t, claims.HasRole("ledger:reverse"))
	assert.False(t, claims.HasRole("ledger:admin"))
	assert.True(t, claims.HasAnyRole("ledger:admin", "ledger:reverse"))
	assert.False(t, claims.HasAnyRole())
	assert.WithinDuration(t, expiresAt, claims.GetExpiresAtTime(), time.Second)
}

func TestJWTService_GenerateToken_RequiresSubject(t *testing.T) {
	_, _, err := newTestJWTService().GenerateToken("")
	assert.ErrorIs(t, err, ErrMissingSubject)
}

func TestJWTService_ValidateToken_Rejects(t *testing.T) {
	svc := newTestJWTService()

	t.Run("garbage", func(t *testing.T) {
		_, err := svc.ValidateToken("not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewJWTService(config.JWTConfig{Secret: "another-secret", Issuer: "stockledger-test"})
		token, _, err := other.GenerateToken("svc")
		require.NoError(t, err)
		_, err = svc.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := NewJWTService(config.JWTConfig{Secret: "test-secret-key-for-jwt-testing-only", Issuer: "someone-else"})
		token, _, err := other.GenerateToken("svc")
		require.NoError(t, err)
		_, err = svc.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "svc",
			Issuer:    "stockledger-test",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		}}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(svc.secret)
		require.NoError(t, err)
		_, err = svc.ValidateToken(token)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("not yet valid", func(t *testing.T) {
		claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "svc",
			Issuer:    "stockledger-test",
			NotBefore: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(svc.secret)
		require.NoError(t, err)
		_, err = svc.ValidateToken(token)
		assert.ErrorIs(t, err, ErrTokenNotYetValid)
	})

	t.Run("no subject", func(t *testing.T) {
		claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{Issuer: "stockledger-test"}}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(svc.secret)
		require.NoError(t, err)
		_, err = svc.ValidateToken(token)
		assert.ErrorIs(t, err, ErrMissingSubject)
	})
}
