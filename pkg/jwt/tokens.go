package jwt

import (
	"errors"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

const issuer = "healthmatters"

// ErrEmptySession is returned when a token is requested for an empty session id.
var ErrEmptySession = errors.New("jwt: empty session id")

// Claims is the payload carried by the session cookie.
type Claims struct {
	SessionID string `json:"sid"`
	jwtlib.RegisteredClaims
}

// GenerateToken signs a cookie value binding the session id, valid for ttl.
func GenerateToken(sessionID, secret string, ttl time.Duration) (string, error) {
	if sessionID == "" {
		return "", ErrEmptySession
	}
	now := time.Now()
	claims := Claims{
		SessionID: sessionID,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    issuer,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// Parse validates the signature, issuer and expiry of token and returns its claims.
func Parse(token, secret string) (*Claims, error) {
	parsed, err := jwtlib.ParseWithClaims(token, &Claims{}, func(t *jwtlib.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Name}), jwtlib.WithIssuer(issuer))
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.SessionID == "" {
		return nil, jwtlib.ErrTokenInvalidClaims
	}
	return claims, nil
}
