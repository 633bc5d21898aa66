package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	return s
}

func TestBearer(t *testing.T) {
	assert.Equal(t, "Bearer abc", Bearer("abc"))
	assert.Equal(t, "Bearer abc", Bearer("Bearer abc"))
	assert.Equal(t, "abc", Raw("Bearer abc"))
	assert.Equal(t, "abc", Raw("abc"))
}

func TestExpired(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	past := signed(t, jwt.MapClaims{"sub": "7", "exp": now.Add(-time.Minute).Unix()})
	future := signed(t, jwt.MapClaims{"sub": "7", "exp": now.Add(time.Hour).Unix()})
	noExp := signed(t, jwt.MapClaims{"sub": "7"})

	assert.True(t, Expired(past, now))
	assert.True(t, Expired(Bearer(past), now))
	assert.False(t, Expired(future, now))
	assert.False(t, Expired(noExp, now))
	assert.False(t, Expired("not-a-jwt", now))
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "user-7", Subject(signed(t, jwt.MapClaims{"sub": "user-7"})))
	assert.Equal(t, "", Subject("garbage"))
}
