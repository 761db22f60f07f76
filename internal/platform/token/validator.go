// Package token implements JWT validation against the shared signing key.
// Token issuance belongs to the external identity service; this package only
// verifies what it produced.
package token

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"complyd/internal/platform/middleware"
)

// Validator verifies HMAC-signed tokens issued by the identity service.
type Validator struct {
	signingKey []byte
}

func NewValidator(signingKey string) *Validator {
	return &Validator{signingKey: []byte(signingKey)}
}

type claims struct {
	jwt.RegisteredClaims
	OrgID string `json:"org_id"`
	Role  string `json:"role"`
}

// ValidateToken parses and verifies tokenString, returning the claims the
// middleware layer cares about.
func (v *Validator) ValidateToken(tokenString string) (*middleware.JWTClaims, error) {
	var c claims
	token, err := jwt.ParseWithClaims(tokenString, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return v.signingKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("token is not valid")
	}

	return &middleware.JWTClaims{
		ActorID: c.Subject,
		OrgID:   c.OrgID,
		Role:    c.Role,
	}, nil
}
