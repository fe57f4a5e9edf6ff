// Package token mints and checks the rotating proof-of-presence tokens a
// presenter displays during a session. A token binds one occurrence key to an
// issue timestamp under a keyed HS256 signature; it carries no attendee
// identity and is never persisted.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Rejection reasons, one per verification step. They are stable message keys
// consumed by the transport layer.
var (
	ErrBadSignature = errors.New("bad_signature")
	ErrExpired      = errors.New("expired")
	ErrMismatch     = errors.New("mismatch")
)

// Claims is the signed token payload. The occurrence key travels in the
// subject so the verifier can string-compare it against the claim.
type Claims struct {
	jwt.RegisteredClaims
}

// Issued describes a freshly minted token.
type Issued struct {
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Issuer mints signed, time-boxed presence tokens. Pure given the secret and
// the clock: re-issuing before expiry just yields another valid token.
type Issuer struct {
	secret   []byte
	validFor time.Duration
	clock    func() time.Time
}

// NewIssuer creates an issuer. validFor is the single validity window shared
// with verification; it is configuration, not a constant buried here.
func NewIssuer(secret string, validFor time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), validFor: validFor, clock: time.Now}
}

// WithClock overrides the issuer's time source, for deterministic tests.
func (i *Issuer) WithClock(clock func() time.Time) *Issuer {
	i.clock = clock
	return i
}

// Issue returns a signed token bound to the given occurrence key.
func (i *Issuer) Issue(occurrenceKey string) (Issued, error) {
	now := i.clock().Truncate(time.Second)
	exp := now.Add(i.validFor)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   occurrenceKey,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return Issued{}, err
	}
	return Issued{Token: signed, IssuedAt: now, ExpiresAt: exp}, nil
}

// Verifier checks presence tokens against the shared secret. No side effects;
// a Verify call is purely a function of its inputs and the secret.
type Verifier struct {
	secret   []byte
	validFor time.Duration
}

// NewVerifier creates a verifier using the same secret and window as issuance.
func NewVerifier(secret string, validFor time.Duration) *Verifier {
	return &Verifier{secret: []byte(secret), validFor: validFor}
}

// Verify checks signature, freshness and occurrence identity, in that order,
// evaluated at the supplied instant. It returns nil on acceptance or exactly
// one of ErrBadSignature, ErrExpired, ErrMismatch.
func (v *Verifier) Verify(tokenStr, claimedOccurrenceKey string, now time.Time) error {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return now }))
	if err != nil {
		// Expiry is only meaningful once the signature held up.
		if errors.Is(err, jwt.ErrTokenExpired) && !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return ErrExpired
		}
		return ErrBadSignature
	}
	if !parsed.Valid || claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return ErrBadSignature
	}
	// Freshness is measured from iat against the configured window; the
	// embedded exp alone is not trusted.
	if now.Sub(claims.IssuedAt.Time) > v.validFor {
		return ErrExpired
	}
	if claims.Subject != claimedOccurrenceKey {
		return ErrMismatch
	}
	return nil
}
