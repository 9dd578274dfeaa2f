// Package vault seals credentials at rest with AES-256-GCM under a
// passphrase-derived key, so the gateway API key never sits in plaintext in
// the database.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for key derivation. Changing any of these invalidates
// every credential sealed under the old derivation.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	keyLen       = 32
)

type Vault struct {
	aead cipher.AEAD
}

// New derives an AES-256 key from the passphrase via Argon2id. The salt is
// deterministic (SHA-256 of the passphrase) so the same passphrase reopens
// the same vault across restarts.
func New(passphrase string) (*Vault, error) {
	salt := sha256.Sum256([]byte(passphrase))
	key := argon2.IDKey([]byte(passphrase), salt[:16], argonTime, argonMemory, argonThreads, keyLen)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return &Vault{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random nonce.
func (v *Vault) Encrypt(plaintext []byte) (ciphertext, nonce []byte, err error) {
	nonce = make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("generate nonce: %w", err)
	}
	return v.aead.Seal(nil, nonce, plaintext, nil), nonce, nil
}

// Decrypt opens ciphertext sealed with the given nonce. A wrong passphrase
// surfaces here as an authentication failure.
func (v *Vault) Decrypt(ciphertext, nonce []byte) ([]byte, error) {
	plaintext, err := v.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}
