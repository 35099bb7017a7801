package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keySize        = 32 // AES-256
	kdfIterations  = 100_000
	kdfSalt        = "polyglot-config-salt"
	keyFilePerm    = 0o600
)

// Cipher encrypts and decrypts sensitive configuration fields with
// AES-256-GCM. On disk values are base64(nonce||ciphertext); in memory they
// are always plaintext.
type Cipher struct {
	aead cipher.AEAD
}

// LoadOrCreateKey reads the key file at keyPath, or creates it when absent.
// A non-empty passphrase derives the key via PBKDF2; otherwise the key is
// random. The file is written with owner-only permissions.
func LoadOrCreateKey(keyPath, passphrase string) ([]byte, error) {
	if raw, err := os.ReadFile(keyPath); err == nil {
		if len(raw) != keySize {
			return nil, fmt.Errorf("encryption key must be %d bytes, got %d", keySize, len(raw))
		}
		return raw, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	var key []byte
	if passphrase != "" {
		key = pbkdf2.Key([]byte(passphrase), []byte(kdfSalt), kdfIterations, keySize, sha256.New)
	} else {
		key = make([]byte, keySize)
		if _, err := io.ReadFull(rand.Reader, key); err != nil {
			return nil, fmt.Errorf("failed to generate key: %w", err)
		}
	}

	if err := os.WriteFile(keyPath, key, keyFilePerm); err != nil {
		return nil, fmt.Errorf("failed to write key file: %w", err)
	}
	return key, nil
}

// NewCipher builds a cipher from a 32-byte key.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", keySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt returns the base64 ciphertext for a plaintext value. Empty values
// pass through unchanged.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Empty values pass through unchanged.
func (c *Cipher) Decrypt(encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("invalid ciphertext encoding: %w", err)
	}
	nonceSize := c.aead.NonceSize()
	if len(raw) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}
