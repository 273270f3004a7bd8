package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

const (
	// pkceVerifierBytes is the number of random bytes for the PKCE code
	// verifier. 32 bytes gives 256 bits of entropy.
	pkceVerifierBytes = 32

	// stateBytes is the number of random bytes for the state parameter.
	// 32 bytes encodes to 43 base64url characters, which satisfies
	// servers that require a minimum state length of 32.
	stateBytes = 32
)

// PKCEChallenge holds a PKCE code verifier and its derived challenge.
type PKCEChallenge struct {
	// CodeVerifier is the random secret. Never transmitted to the
	// browser; only sent to the token endpoint during code exchange.
	CodeVerifier string

	// CodeChallenge is base64url(SHA-256(verifier)) without padding.
	CodeChallenge string

	// CodeChallengeMethod is always "S256"; the plain method is not
	// supported.
	CodeChallengeMethod string
}

// GeneratePKCE generates a fresh PKCE code verifier and S256 challenge.
func GeneratePKCE() (*PKCEChallenge, error) {
	verifierBytes := make([]byte, pkceVerifierBytes)
	if _, err := rand.Read(verifierBytes); err != nil {
		return nil, fmt.Errorf("failed to generate PKCE verifier: %w", err)
	}

	verifier := base64.RawURLEncoding.EncodeToString(verifierBytes)
	return &PKCEChallenge{
		CodeVerifier:        verifier,
		CodeChallenge:       DeriveChallenge(verifier),
		CodeChallengeMethod: "S256",
	}, nil
}

// DeriveChallenge computes the S256 challenge for a code verifier:
// base64url(SHA-256(verifier)) with the trailing padding stripped.
func DeriveChallenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// GenerateState generates a random state parameter used to correlate an
// authorization response with its request and to prevent CSRF.
func GenerateState() (string, error) {
	buf := make([]byte, stateBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// GenerateNonce generates a random nonce bound into the ID token to
// prevent replay. Same construction as the state parameter.
func GenerateNonce() (string, error) {
	return GenerateState()
}
