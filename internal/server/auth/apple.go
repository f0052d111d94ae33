package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/avdeyev/authcore/internal/apperr"
	"github.com/avdeyev/authcore/internal/logging"
)

const (
	appleKeysURL = "https://appleid.apple.com/auth/keys"
	appleIssuer  = "https://appleid.apple.com"
)

// IdentityInfo is the normalized result of a verified identity token.
// FirstName and LastName stay empty: Apple only supplies profile names
// out-of-band on first authorization, and that merge belongs to the caller.
type IdentityInfo struct {
	Email      string
	FirstName  string
	LastName   string
	ExternalID string
}

type appleClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// AppleVerifier validates Apple-issued identity tokens against Apple's
// published key set, fixed issuer, and this application's client identifier.
type AppleVerifier struct {
	clientID string
	keyfunc  jwt.Keyfunc
	log      logging.Logger
	now      func() time.Time
}

// NewAppleVerifier builds a verifier backed by Apple's remote JWKS endpoint.
// The key set is fetched, cached, and refreshed on rotation by keyfunc; the
// given ctx bounds the background refresh goroutine.
func NewAppleVerifier(ctx context.Context, clientID string, log logging.Logger) (*AppleVerifier, error) {
	kf, err := keyfunc.NewDefaultCtx(ctx, []string{appleKeysURL})
	if err != nil {
		return nil, fmt.Errorf("initializing apple key set: %w", err)
	}
	return newAppleVerifier(clientID, kf.Keyfunc, log), nil
}

// newAppleVerifier wires an explicit keyfunc; tests sign with local keys.
func newAppleVerifier(clientID string, kf jwt.Keyfunc, log logging.Logger) *AppleVerifier {
	return &AppleVerifier{clientID: clientID, keyfunc: kf, log: log, now: time.Now}
}

// VerifyIdentityToken checks the token's signature against Apple's current
// keys, its issuer, its audience, and its expiry, then returns the
// normalized identity. Failure causes are logged for diagnostics; the token
// itself is never logged.
func (v *AppleVerifier) VerifyIdentityToken(ctx context.Context, idToken string) (*IdentityInfo, error) {
	if v.clientID == "" {
		return nil, apperr.New(apperr.KindConfiguration, "apple client id is not configured")
	}

	claims := &appleClaims{}
	_, err := jwt.ParseWithClaims(idToken, claims, v.keyfunc,
		jwt.WithIssuer(appleIssuer),
		jwt.WithAudience(v.clientID),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg(), jwt.SigningMethodES256.Alg()}),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, v.reject(ctx, err)
	}

	if claims.Subject == "" || claims.Email == "" {
		err := apperr.New(apperr.KindInvalidToken, "identity token missing required claims (sub, email)")
		v.log.Warn(ctx, "identity token rejected", "reason", err.Message)
		return nil, err
	}

	return &IdentityInfo{Email: claims.Email, ExternalID: claims.Subject}, nil
}

// reject maps a verification failure onto the error taxonomy. Expiry is
// checked first: an expired token must never degrade to KindInvalidToken.
func (v *AppleVerifier) reject(ctx context.Context, cause error) error {
	var err *apperr.Error
	switch {
	case errors.Is(cause, jwt.ErrTokenExpired):
		err = apperr.Wrap(apperr.KindTokenExpired, "identity token has expired", cause)
	case errors.Is(cause, jwt.ErrTokenInvalidAudience):
		err = apperr.Wrap(apperr.KindAudienceMismatch, "identity token audience mismatch", cause)
	case errors.Is(cause, jwt.ErrTokenInvalidIssuer):
		err = apperr.Wrap(apperr.KindIssuerMismatch, "identity token issuer mismatch", cause)
	default:
		err = apperr.Wrap(apperr.KindInvalidToken, "failed to verify identity token", cause)
	}
	v.log.Warn(ctx, "identity token rejected", "kind", err.Kind.String(), "cause", cause.Error())
	return err
}
