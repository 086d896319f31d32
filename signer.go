package psso

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidKeyID = errors.New("invalid key id")

// TokenSigner signs and verifies RS256 tokens with the platform keys.
type TokenSigner struct {
	keys *JWKSService
}

// NewTokenSigner creates a new Signer instance
func NewTokenSigner(keys *JWKSService) *TokenSigner {
	return &TokenSigner{keys: keys}
}

// Sign signs claims with the current key and stamps its kid in the header.
func (s *TokenSigner) Sign(claims jwt.Claims) (string, error) {
	kid, key := s.keys.GetSigningKey()
	if key == nil {
		return "", ErrInvalidKeyID
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid

	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies a token signed by Sign and fills claims.
func (s *TokenSigner) Parse(tokenString string, claims jwt.Claims) (*jwt.Token, error) {
	return jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		key, ok := s.keys.PublicKey(kid)
		if !ok {
			return nil, ErrInvalidKeyID
		}
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
}
