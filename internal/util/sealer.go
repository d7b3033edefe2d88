package util

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
)

// Sealer encrypts stored provider tokens with AES-256-GCM. A Sealer built
// from an empty key passes values through unchanged.
type Sealer struct {
	gcm cipher.AEAD
}

// NewSealer takes a hex-encoded 32 byte key.
func NewSealer(hexKey string) (*Sealer, error) {
	if hexKey == "" {
		return &Sealer{}, nil
	}

	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode encryption key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes (64 hex chars)")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return &Sealer{gcm: gcm}, nil
}

func (s *Sealer) Enabled() bool {
	return s.gcm != nil
}

func (s *Sealer) Seal(plaintext string) (string, error) {
	if s.gcm == nil {
		return plaintext, nil
	}

	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := s.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (s *Sealer) Open(encoded string) (string, error) {
	if s.gcm == nil {
		return encoded, nil
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	n := s.gcm.NonceSize()
	if len(data) < n {
		return "", fmt.Errorf("ciphertext too short")
	}
	plaintext, err := s.gcm.Open(nil, data[:n], data[n:], nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}

// SealOptional leaves nil as nil.
func (s *Sealer) SealOptional(plaintext *string) (*string, error) {
	if plaintext == nil {
		return nil, nil
	}
	sealed, err := s.Seal(*plaintext)
	if err != nil {
		return nil, err
	}
	return &sealed, nil
}
