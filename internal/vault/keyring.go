package vault

import (
	"fmt"

	"github.com/skarlatos/foliograph/internal/store"
)

// Credential names the engine looks up at startup.
const (
	CredGatewayKey = "gateway_api_key"
	CredWebAuth    = "web_auth_token"
)

// Keyring persists named credentials sealed by a Vault in the store's
// credentials table.
type Keyring struct {
	vault *Vault
	store *store.Store
}

func NewKeyring(st *store.Store, passphrase string) (*Keyring, error) {
	v, err := New(passphrase)
	if err != nil {
		return nil, err
	}
	return &Keyring{vault: v, store: st}, nil
}

// Put seals one credential and stores it, replacing any previous value.
func (k *Keyring) Put(name, value string) error {
	ciphertext, nonce, err := k.vault.Encrypt([]byte(value))
	if err != nil {
		return fmt.Errorf("seal credential %s: %w", name, err)
	}
	return k.store.SaveCredential(&store.Credential{Name: name, Value: ciphertext, Nonce: nonce})
}

// Get opens the named credential. Absent credentials return "" without error;
// a credential sealed under a different passphrase returns an error.
func (k *Keyring) Get(name string) (string, error) {
	c, err := k.store.GetCredential(name)
	if err != nil {
		return "", err
	}
	if c == nil {
		return "", nil
	}
	plaintext, err := k.vault.Decrypt(c.Value, c.Nonce)
	if err != nil {
		return "", fmt.Errorf("open credential %s: %w", name, err)
	}
	return string(plaintext), nil
}

func (k *Keyring) Delete(name string) error {
	return k.store.DeleteCredential(name)
}
