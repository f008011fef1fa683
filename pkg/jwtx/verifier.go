package jwtx

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier validates a compact JWT and returns its claims when legitimate.
type Verifier interface {
	Verify(token string) (Claims, error)
}

// EdDSAVerifier validates EdDSA-signed tokens against a set of public keys
// indexed by kid.
type EdDSAVerifier struct {
	keys   map[string]ed25519.PublicKey
	issuer string
	aud    []string
}

// NewVerifierEdDSA builds a verifier. issuer and aud are enforced when
// non-empty.
func NewVerifierEdDSA(keys map[string]ed25519.PublicKey, issuer string, aud []string) *EdDSAVerifier {
	return &EdDSAVerifier{keys: keys, issuer: issuer, aud: aud}
}

// VerifierForSigner is a convenience for single-key deployments.
func VerifierForSigner(s Signer, issuer string, aud []string) *EdDSAVerifier {
	return NewVerifierEdDSA(map[string]ed25519.PublicKey{s.KID(): s.PublicKey()}, issuer, aud)
}

func (v *EdDSAVerifier) Verify(tokenStr string) (Claims, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}))

	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("jwtx: missing kid")
		}
		pub, ok := v.keys[kid]
		if !ok {
			return nil, fmt.Errorf("jwtx: unknown kid %q", kid)
		}
		return pub, nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("jwtx: parse or verify: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Claims{}, errors.New("jwtx: invalid token claims")
	}

	if err := claims.ValidateIssuer(v.issuer); err != nil {
		return Claims{}, err
	}
	if err := claims.ValidateAudience(v.aud); err != nil {
		return Claims{}, err
	}
	if err := claims.ValidateExpiry(); err != nil {
		return Claims{}, err
	}

	return *claims, nil
}
