package reqcontext

import (
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the opaque-but-typed identity carried by a bearer token. Custom
// namespaces ride in Extensions rather than as dynamic top-level fields, per
// the REDESIGN FLAGS note on dynamic JWT claim objects.
type Claims struct {
	Subject        string         `json:"sub"`
	ExpiresAt      time.Time      `json:"exp"`
	IssuedAt       time.Time      `json:"iat"`
	TenantID       string         `json:"tenantId,omitempty"`
	OrganizationID string         `json:"organizationId,omitempty"`
	Roles          []string       `json:"roles,omitempty"`
	Permissions    []string       `json:"permissions,omitempty"`
	Extensions     map[string]any `json:"extensions,omitempty"`
}

// ClaimsExtractor turns a raw bearer token into Claims. The core consumes
// this interface only; concrete signature verification is out of scope
// (spec.md §1) and left to the caller's chosen implementation.
type ClaimsExtractor interface {
	Extract(token string) (*Claims, error)
}

// jwtClaims is the on-wire shape a JWTExtractor parses, adapted from the
// teacher's ServiceClaims (service-to-service only) into flowrt's tenant +
// principal + permission claims.
type jwtClaims struct {
	TenantID       string   `json:"tenantId"`
	OrganizationID string   `json:"organizationId"`
	Roles          []string `json:"roles"`
	Permissions    []string `json:"permissions"`
	jwt.RegisteredClaims
}

// JWTExtractor verifies RS256-signed tokens against a fixed RSA public key
// and maps the result onto Claims.
type JWTExtractor struct {
	publicKey *rsa.PublicKey
}

// NewJWTExtractor builds an extractor that verifies tokens with publicKey.
func NewJWTExtractor(publicKey *rsa.PublicKey) *JWTExtractor {
	return &JWTExtractor{publicKey: publicKey}
}

// Extract parses and verifies token, returning its Claims.
func (e *JWTExtractor) Extract(token string) (*Claims, error) {
	parsed := &jwtClaims{}
	_, err := jwt.ParseWithClaims(token, parsed, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Method.Alg())
		}
		return e.publicKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}

	claims := &Claims{
		Subject:        parsed.Subject,
		TenantID:       parsed.TenantID,
		OrganizationID: parsed.OrganizationID,
		Roles:          parsed.Roles,
		Permissions:    parsed.Permissions,
	}
	if parsed.ExpiresAt != nil {
		claims.ExpiresAt = parsed.ExpiresAt.Time
	}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time
	}
	return claims, nil
}
