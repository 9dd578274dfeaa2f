package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Credential is an encrypted secret at rest. Value holds the AES-GCM
// ciphertext, Nonce the nonce it was sealed with.
type Credential struct {
	Name      string    `json:"name"`
	Value     []byte    `json:"-"`
	Nonce     []byte    `json:"-"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Store) SaveCredential(c *Credential) error {
	_, err := s.db.Exec(`
		INSERT INTO credentials (name, value, nonce)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			value = excluded.value,
			nonce = excluded.nonce,
			updated_at = CURRENT_TIMESTAMP`,
		c.Name, c.Value, c.Nonce)
	if err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

func (s *Store) GetCredential(name string) (*Credential, error) {
	row := s.db.QueryRow(`
		SELECT name, value, nonce, updated_at FROM credentials WHERE name = ?`, name)
	c := &Credential{}
	err := row.Scan(&c.Name, &c.Value, &c.Nonce, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}
	return c, nil
}

func (s *Store) DeleteCredential(name string) error {
	_, err := s.db.Exec(`DELETE FROM credentials WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}
