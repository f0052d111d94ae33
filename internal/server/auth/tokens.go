// Package auth implements the credential primitives of the server: HMAC
// token codecs for access and refresh tokens, verification of Apple-issued
// identity tokens, and one-time-code generation and hashing.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/avdeyev/authcore/internal/apperr"
)

// Claims are the assertions carried by access and refresh tokens.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"uid"`
	Email  string `json:"email"`
}

// TokenCodec signs and verifies one class of bearer token with its own
// secret and validity window. Access and refresh codecs hold independent
// secrets, so a token issued by one never verifies under the other.
type TokenCodec struct {
	secret   []byte
	validity time.Duration
	now      func() time.Time
}

// NewTokenCodec builds a codec for one token class. An empty secret is
// allowed here and rejected per-operation, so a half-configured deployment
// fails loudly at the call site instead of at startup of unrelated flows.
func NewTokenCodec(secret string, validity time.Duration) *TokenCodec {
	return &TokenCodec{secret: []byte(secret), validity: validity, now: time.Now}
}

// Issue mints a signed token for the given subject. Pure function of the
// input, secret, and clock.
func (c *TokenCodec) Issue(userID, email string) (string, error) {
	if len(c.secret) == 0 {
		return "", apperr.New(apperr.KindConfiguration, "token signing secret is not configured")
	}

	now := c.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			// The jti makes every mint unique, so rotating a refresh
			// token within the same second still yields a new token.
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.validity)),
		},
		UserID: userID,
		Email:  email,
	})

	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "signing token", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry and returns the decoded claims.
// Expiry of a well-signed token reports KindTokenExpired; every other
// failure, including a token signed by the other codec, reports
// KindInvalidToken.
func (c *TokenCodec) Verify(tokenString string) (*Claims, error) {
	if len(c.secret) == 0 {
		return nil, apperr.New(apperr.KindConfiguration, "token signing secret is not configured")
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperr.Wrap(apperr.KindTokenExpired, "token has expired", err)
		}
		return nil, apperr.Wrap(apperr.KindInvalidToken, "invalid token", err)
	}

	return claims, nil
}
