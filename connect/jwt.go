package connect

import (
	"errors"
	"fmt"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
)

// The controller verifies the token. The client only reads the claims
// to fail early on a token that cannot work.

var ErrTokenExpired = errors.New("Token is expired.")

type BearerToken struct {
	Subject   string
	ExpiresAt *time.Time
	Claims    gojwt.MapClaims
}

func ParseBearerTokenUnverified(token string) (*BearerToken, error) {
	parser := gojwt.NewParser()
	parsedToken, _, err := parser.ParseUnverified(token, gojwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("Bad token: %w", err)
	}

	claims := parsedToken.Claims.(gojwt.MapClaims)

	bearerToken := &BearerToken{
		Claims: claims,
	}
	if subject, err := claims.GetSubject(); err == nil {
		bearerToken.Subject = subject
	}
	if expiresAt, err := claims.GetExpirationTime(); err == nil && expiresAt != nil {
		bearerToken.ExpiresAt = &expiresAt.Time
	}
	return bearerToken, nil
}

func CheckBearerToken(token string, now time.Time) error {
	bearerToken, err := ParseBearerTokenUnverified(token)
	if err != nil {
		return err
	}
	if bearerToken.ExpiresAt != nil && !now.Before(*bearerToken.ExpiresAt) {
		return fmt.Errorf("%w (%s)", ErrTokenExpired, bearerToken.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}
