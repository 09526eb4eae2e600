package auth

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func TestJWTVerifier_Valid(t *testing.T) {
	tok, err := Sign(testSecret, Identity{UserID: "u-1", Username: "alice"}, time.Hour)
	require.NoError(t, err)

	id, err := NewJWTVerifier(testSecret).Verify(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: "u-1", Username: "alice"}, id)
}

func TestJWTVerifier_UserIDClaimVariants(t *testing.T) {
	for _, claims := range []jwt.MapClaims{
		{"userId": "u-2", "exp": time.Now().Add(time.Hour).Unix()},
		{"user_id": "u-2", "exp": time.Now().Add(time.Hour).Unix()},
	} {
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
		require.NoError(t, err)

		id, err := NewJWTVerifier(testSecret).Verify(context.Background(), tok)
		require.NoError(t, err)
		assert.Equal(t, "u-2", id.UserID)
	}
}

func TestJWTVerifier_Rejects(t *testing.T) {
	v := NewJWTVerifier(testSecret)

	wrongKey, _ := Sign("other-secret", Identity{UserID: "u-1"}, time.Hour)
	expired, _ := Sign(testSecret, Identity{UserID: "u-1"}, -time.Hour)
	noUser, _ := Sign(testSecret, Identity{}, time.Hour)

	for name, tok := range map[string]string{
		"wrong key": wrongKey,
		"expired":   expired,
		"no user":   noUser,
		"garbage":   "not.a.jwt",
		"empty":     "",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), tok)
			assert.Error(t, err)
		})
	}
}

func TestParseBearerToken(t *testing.T) {
	tok, err := ParseBearerToken("Bearer abc.def")
	require.NoError(t, err)
	assert.Equal(t, "abc.def", tok)

	tok, err = ParseBearerToken("bearer xyz")
	require.NoError(t, err)
	assert.Equal(t, "xyz", tok)

	_, err = ParseBearerToken("")
	assert.ErrorIs(t, err, ErrNoCredential)
	_, err = ParseBearerToken("Basic dXNlcg==")
	assert.ErrorIs(t, err, ErrMalformedHeader)
	_, err = ParseBearerToken("Bearer ")
	assert.ErrorIs(t, err, ErrMalformedHeader)
}

func TestCredentialFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws?token=from-query", nil)
	tok, err := CredentialFromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, "from-query", tok)

	r.Header.Set("Authorization", "Bearer from-header")
	tok, err = CredentialFromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, "from-header", tok)

	_, err = CredentialFromRequest(httptest.NewRequest("GET", "/ws", nil))
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestIdentityContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	ctx := WithIdentity(context.Background(), Identity{UserID: "u-9"})
	id, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "u-9", id.UserID)
}
