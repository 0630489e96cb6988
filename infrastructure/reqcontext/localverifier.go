package reqcontext

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// LocalVerifier is a development-only ClaimsExtractor: it checks a bearer
// token against a bcrypt-hashed API key and manufactures Claims from a
// fixed principal/tenant/role table keyed by the key's identity. It never
// verifies a real token signature and must not be wired in production —
// concrete signature verification is out of scope per spec.md §1, and this
// exists only so local development and tests have something to extract
// claims from without standing up a JWT issuer.
type LocalVerifier struct {
	entries map[string]localEntry
}

type localEntry struct {
	hash   []byte
	claims Claims
}

// NewLocalVerifier builds an empty LocalVerifier; register API keys with
// Register before use.
func NewLocalVerifier() *LocalVerifier {
	return &LocalVerifier{entries: make(map[string]localEntry)}
}

// Register associates identity with a bcrypt hash of apiKey and the Claims
// to return when that key is presented as a bearer token.
func (v *LocalVerifier) Register(identity, apiKey string, claims Claims) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(apiKey), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash api key: %w", err)
	}
	v.entries[identity] = localEntry{hash: hash, claims: claims}
	return nil
}

// Extract treats token as "<identity>:<apiKey>" and returns the registered
// Claims for identity if apiKey matches its stored hash.
func (v *LocalVerifier) Extract(token string) (*Claims, error) {
	identity, apiKey, ok := splitToken(token)
	if !ok {
		return nil, fmt.Errorf("local verifier: malformed token")
	}
	entry, ok := v.entries[identity]
	if !ok {
		return nil, fmt.Errorf("local verifier: unknown identity %q", identity)
	}
	if err := bcrypt.CompareHashAndPassword(entry.hash, []byte(apiKey)); err != nil {
		return nil, fmt.Errorf("local verifier: %w", err)
	}
	claims := entry.claims
	return &claims, nil
}

func splitToken(token string) (identity, apiKey string, ok bool) {
	for i := 0; i < len(token); i++ {
		if token[i] == ':' {
			return token[:i], token[i+1:], true
		}
	}
	return "", "", false
}
