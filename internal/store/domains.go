package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/skarlatos/foliograph/internal/packet"
)

type Domain struct {
	DocumentID  string    `json:"document_id"`
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Sensitivity string    `json:"sensitivity"`
	DefinedBy   string    `json:"defined_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func (s *Store) SaveDomain(documentID string, d *packet.Domain) error {
	sensitivity := d.Sensitivity
	if sensitivity == "" {
		sensitivity = packet.SensitivityMedium
	}
	_, err := s.db.Exec(`
		INSERT INTO domains (document_id, id, name, description, sensitivity, defined_by)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(document_id, id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			sensitivity = excluded.sensitivity,
			defined_by = excluded.defined_by`,
		documentID, d.ID, d.Name, d.Description, sensitivity, d.DefinedBy)
	if err != nil {
		return fmt.Errorf("save domain: %w", err)
	}
	return nil
}

func (s *Store) ListDomains(documentID string) ([]Domain, error) {
	rows, err := s.db.Query(`
		SELECT document_id, id, name, description, sensitivity, defined_by, created_at
		FROM domains WHERE document_id = ? ORDER BY created_at, id`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list domains: %w", err)
	}
	defer rows.Close()

	var domains []Domain
	for rows.Next() {
		var d Domain
		var desc, definedBy sql.NullString
		if err := rows.Scan(&d.DocumentID, &d.ID, &d.Name, &desc,
			&d.Sensitivity, &definedBy, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan domain: %w", err)
		}
		d.Description = desc.String
		d.DefinedBy = definedBy.String
		domains = append(domains, d)
	}
	return domains, rows.Err()
}

type Prior struct {
	DocumentID string    `json:"document_id"`
	ID         string    `json:"id"`
	Axiom      string    `json:"axiom"`
	Weight     float64   `json:"weight"`
	CreatedAt  time.Time `json:"created_at"`
}

func (s *Store) SavePrior(documentID string, p *packet.Prior) error {
	_, err := s.db.Exec(`
		INSERT INTO priors (document_id, id, axiom, weight)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(document_id, id) DO UPDATE SET
			axiom = excluded.axiom,
			weight = excluded.weight`,
		documentID, p.ID, p.Axiom, p.Weight)
	if err != nil {
		return fmt.Errorf("save prior: %w", err)
	}
	return nil
}

func (s *Store) ListPriors(documentID string) ([]Prior, error) {
	rows, err := s.db.Query(`
		SELECT document_id, id, axiom, weight, created_at
		FROM priors WHERE document_id = ? ORDER BY created_at, id`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list priors: %w", err)
	}
	defer rows.Close()

	var priors []Prior
	for rows.Next() {
		var p Prior
		if err := rows.Scan(&p.DocumentID, &p.ID, &p.Axiom, &p.Weight, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan prior: %w", err)
		}
		priors = append(priors, p)
	}
	return priors, rows.Err()
}
