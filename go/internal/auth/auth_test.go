package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

func TestJWTManager(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour)

	t.Run("bidder token round trip", func(t *testing.T) {
		id := uuid.New()
		token, err := m.GenerateBidder(id, "Mumbai")
		assert.NoError(t, err)

		claims, err := m.Validate(token)
		assert.NoError(t, err)
		check.Equal(t, RoleBidder, claims.Role)
		check.Equal(t, "Mumbai", claims.Name)

		got, err := claims.BidderID()
		assert.NoError(t, err)
		check.Equal(t, id, got)
	})

	t.Run("operator token has no bidder id", func(t *testing.T) {
		token, err := m.GenerateOperator("admin")
		assert.NoError(t, err)
		claims, err := m.Validate(token)
		assert.NoError(t, err)
		check.Equal(t, RoleOperator, claims.Role)

		_, err = claims.BidderID()
		check.True(t, errors.Is(err, ErrInvalidToken))
	})

	t.Run("wrong secret", func(t *testing.T) {
		token, err := NewJWTManager("other", time.Hour).GenerateOperator("admin")
		assert.NoError(t, err)
		_, err = m.Validate(token)
		check.True(t, errors.Is(err, ErrInvalidToken))
	})

	t.Run("expired token", func(t *testing.T) {
		expired := NewJWTManager("test-secret", time.Minute)
		expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
		token, err := expired.GenerateOperator("admin")
		assert.NoError(t, err)
		_, err = m.Validate(token)
		check.True(t, errors.Is(err, ErrInvalidToken))
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := m.Validate("not.a.token")
		check.True(t, errors.Is(err, ErrInvalidToken))
	})
}

func TestOperatorAuthenticator(t *testing.T) {
	_, err := HashPassword("short")
	check.True(t, errors.Is(err, ErrWeakPassword))

	hash, err := HashPassword("correct horse")
	assert.NoError(t, err)

	a := NewOperatorAuthenticator("admin", hash)
	check.True(t, a.Enabled())
	check.NoError(t, a.Authenticate("admin", "correct horse"))
	check.True(t, errors.Is(a.Authenticate("admin", "wrong password"), ErrInvalidCredentials))
	check.True(t, errors.Is(a.Authenticate("someone", "correct horse"), ErrInvalidCredentials))

	disabled := NewOperatorAuthenticator("admin", "")
	check.False(t, disabled.Enabled())
	check.True(t, errors.Is(disabled.Authenticate("admin", "correct horse"), ErrInvalidCredentials))
}

func TestClaimsContext(t *testing.T) {
	ctx := context.Background()
	check.Nil(t, ClaimsFrom(ctx))
	check.Equal(t, "", Subject(ctx))

	claims := &Claims{Role: RoleOperator}
	claims.Subject = "admin"
	ctx = WithClaims(ctx, claims)
	check.Equal(t, "admin", Subject(ctx))
	check.Equal(t, RoleOperator, ClaimsFrom(ctx).Role)
}
