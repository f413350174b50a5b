package connect

import (
	"errors"
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"

	"github.com/go-playground/assert/v2"
)

func testToken(t *testing.T, claims gojwt.MapClaims) string {
	token := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString([]byte("test"))
	assert.Equal(t, err, nil)
	return tokenStr
}

func TestParseBearerTokenUnverified(t *testing.T) {
	expiresAt := time.Now().Add(time.Hour).Truncate(time.Second)
	tokenStr := testToken(t, gojwt.MapClaims{
		"sub": "operator",
		"exp": expiresAt.Unix(),
	})

	bearerToken, err := ParseBearerTokenUnverified(tokenStr)
	assert.Equal(t, err, nil)
	assert.Equal(t, bearerToken.Subject, "operator")
	assert.Equal(t, bearerToken.ExpiresAt.Equal(expiresAt), true)

	assert.Equal(t, CheckBearerToken(tokenStr, time.Now()), nil)

	_, err = ParseBearerTokenUnverified("not a token")
	assert.NotEqual(t, err, nil)
}

func TestCheckBearerTokenExpired(t *testing.T) {
	tokenStr := testToken(t, gojwt.MapClaims{
		"exp": time.Now().Add(-time.Minute).Unix(),
	})
	err := CheckBearerToken(tokenStr, time.Now())
	assert.Equal(t, errors.Is(err, ErrTokenExpired), true)

	// no expiry
	tokenStr = testToken(t, gojwt.MapClaims{
		"sub": "operator",
	})
	assert.Equal(t, CheckBearerToken(tokenStr, time.Now()), nil)
}
