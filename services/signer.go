package services

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidKeyID = errors.New("invalid key id")

// DefaultKeyID names the signing key used when callers pass an empty key id.
const DefaultKeyID = "default"

type TokenSignerFunc func(claims jwt.Claims) (string, error)

// TokenSigner holds the server-side signing keys. Keys are registered once
// at startup; the verification side asks for the matching key by id.
type TokenSigner struct {
	signers    map[string]TokenSignerFunc
	verifyKeys map[string][]byte
}

// NewTokenSigner creates a new TokenSigner instance.
func NewTokenSigner() *TokenSigner {
	return &TokenSigner{
		signers:    make(map[string]TokenSignerFunc),
		verifyKeys: make(map[string][]byte),
	}
}

// AddHS256Key registers a symmetric key for both signing and verification.
func (s *TokenSigner) AddHS256Key(keyID, secretKey string) {
	if keyID == "" {
		keyID = DefaultKeyID
	}
	secret := []byte(secretKey)

	s.verifyKeys[keyID] = secret
	s.signers[keyID] = func(claims jwt.Claims) (string, error) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

		tokenString, err := token.SignedString(secret)
		if err != nil {
			return "", fmt.Errorf("failed to sign token: %w", err)
		}

		return tokenString, nil
	}
}

// Sign signs claims with the named key, or the default key when keyID is empty.
func (s *TokenSigner) Sign(claims jwt.Claims, keyID string) (string, error) {
	if keyID == "" {
		keyID = DefaultKeyID
	}

	if signer, ok := s.signers[keyID]; ok {
		return signer(claims)
	}

	return "", ErrInvalidKeyID
}

// VerificationKey returns the key material used to check signatures made
// with the named key.
func (s *TokenSigner) VerificationKey(keyID string) ([]byte, error) {
	if keyID == "" {
		keyID = DefaultKeyID
	}

	if key, ok := s.verifyKeys[keyID]; ok {
		return key, nil
	}

	return nil, ErrInvalidKeyID
}
