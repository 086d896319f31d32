package psso

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"math/big"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// JWKSOptions configures the platform's signing keys.
type JWKSOptions struct {
	// Rotation is the key rotation period. Zero disables rotation.
	Rotation time.Duration
	// PrivateKeyFile is an optional PEM file with the initial key. The Partner
	// usually has the matching public key registered, so it gets a stable kid.
	PrivateKeyFile string
	// KeyID for the key loaded from PrivateKeyFile.
	KeyID string
}

// JWKSService holds the platform's signing keys: the current one and the one it replaced.
type JWKSService struct {
	mu            sync.RWMutex
	keys          map[string]*rsa.PrivateKey
	currentKeyID  string
	previousKeyID string
	keyRotation   time.Duration
}

// NewJWKSService creates the key holder and, when rotation is enabled, starts
// the rotation loop which ends with ctx.
func NewJWKSService(ctx context.Context, opts JWKSOptions) (*JWKSService, error) {
	service := &JWKSService{
		keys:        make(map[string]*rsa.PrivateKey),
		keyRotation: opts.Rotation,
	}

	if opts.PrivateKeyFile != "" {
		data, err := os.ReadFile(opts.PrivateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read signing key: %w", err)
		}
		key, err := ParseRSAPrivateKeyPEM(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse signing key: %w", err)
		}
		kid := opts.KeyID
		if kid == "" {
			kid = "platform-key"
		}
		service.install(kid, key)
	} else if err := service.rotateKeys(); err != nil {
		return nil, err
	}

	if service.keyRotation > 0 {
		go service.startKeyRotation(ctx)
	}

	return service, nil
}

// NewStaticJWKSService wraps a single key; it never rotates.
func NewStaticJWKSService(kid string, key *rsa.PrivateKey) *JWKSService {
	service := &JWKSService{keys: make(map[string]*rsa.PrivateKey)}
	service.install(kid, key)
	return service
}

// GetJWKS returns the public keys, current key first.
func (s *JWKSService) GetJWKS() JSONWebKeySet {
	s.mu.RLock()
	defer s.mu.RUnlock()

	kids := make([]string, 0, len(s.keys))
	for kid := range s.keys {
		kids = append(kids, kid)
	}
	sort.Slice(kids, func(i, j int) bool {
		return kids[i] == s.currentKeyID || (kids[j] != s.currentKeyID && kids[i] < kids[j])
	})

	keys := make([]JSONWebKey, 0, len(kids))
	for _, kid := range kids {
		publicKey := s.keys[kid].Public().(*rsa.PublicKey)

		keys = append(keys, JSONWebKey{
			Kid: kid,
			Kty: "RSA",
			Alg: "RS256",
			Use: "sig",
			N:   base64.RawURLEncoding.EncodeToString(publicKey.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(publicKey.E)).Bytes()),
		})
	}

	return JSONWebKeySet{Keys: keys}
}

// GetSigningKey returns the current key and its id.
func (s *JWKSService) GetSigningKey() (string, *rsa.PrivateKey) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentKeyID, s.keys[s.currentKeyID]
}

// PublicKey returns the public key for kid, if it is still held.
func (s *JWKSService) PublicKey(kid string) (*rsa.PublicKey, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.keys[kid]
	if !ok {
		return nil, false
	}
	return &key.PublicKey, true
}

func (s *JWKSService) install(kid string, key *rsa.PrivateKey) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Only the key being replaced is kept, so tokens it signed still verify.
	if s.previousKeyID != "" {
		delete(s.keys, s.previousKeyID)
	}
	s.previousKeyID = s.currentKeyID
	s.keys[kid] = key
	s.currentKeyID = kid
}

func (s *JWKSService) rotateKeys() error {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return fmt.Errorf("failed to generate RSA key: %w", err)
	}

	s.install(uuid.NewString(), privateKey)
	return nil
}

func (s *JWKSService) startKeyRotation(ctx context.Context) {
	ticker := time.NewTicker(s.keyRotation)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.rotateKeys(); err != nil {
				log.Error().Err(err).Msg("failed to rotate JWKS keys")
				continue
			}
			log.Info().Msg("rotated platform signing key")
		}
	}
}
