package session

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

// Sealer encrypts backend credentials before they are written to the session
// store, so a database leak does not expose live bearer credentials.
type Sealer struct {
	key [32]byte
}

// NewSealer creates a sealer from a hex-encoded 32-byte key
func NewSealer(hexKey string) (*Sealer, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode seal key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("seal key must be 32 bytes, got %d", len(raw))
	}

	s := &Sealer{}
	copy(s.key[:], raw)
	return s, nil
}

// Seal encrypts a credential and returns it base64-encoded with the nonce
// prepended.
func (s *Sealer) Seal(credential string) (string, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := secretbox.Seal(nonce[:], []byte(credential), &nonce, &s.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a sealed credential
func (s *Sealer) Open(sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("failed to decode sealed credential: %w", err)
	}
	if len(raw) < 24 {
		return "", fmt.Errorf("sealed credential is too short")
	}

	var nonce [24]byte
	copy(nonce[:], raw[:24])

	plain, ok := secretbox.Open(nil, raw[24:], &nonce, &s.key)
	if !ok {
		return "", fmt.Errorf("failed to open sealed credential")
	}
	return string(plain), nil
}

// HashToken returns the SHA-256 lookup hash of a session token. Only the
// hash is stored; the token itself travels with the client.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
