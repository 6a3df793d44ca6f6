// Package auth is the boundary to the external credential collaborator.
// This core only verifies bearer tokens; issuance, passwords and
// registration are not its business.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"chat-relay/errors"
)

// CustomClaims defines the structure of the data stored inside the JWT.
type CustomClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Verifier validates bearer tokens signed with a shared HMAC secret.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses and validates the signature and expiration of a JWT string
// and returns the user identity it carries. All parse failures collapse to
// ErrTokenInvalid: callers refuse the connection, they do not diagnose.
func (v *Verifier) Verify(tokenString string) (string, error) {
	if tokenString == "" {
		return "", errors.ErrTokenRequired
	}

	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		return "", errors.ErrTokenInvalid
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return "", errors.ErrTokenInvalid
	}
	return claims.UserID, nil
}

// GenerateToken creates a signed JWT for a specific user. The server itself
// never issues tokens in production; this exists for tooling and tests.
func GenerateToken(secret, userID string, ttl time.Duration) (string, error) {
	claims := &CustomClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "chat-relay",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
