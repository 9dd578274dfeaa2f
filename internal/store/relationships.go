package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/skarlatos/foliograph/internal/packet"
)

type Relationship struct {
	ID         int64     `json:"id"`
	DocumentID string    `json:"document_id"`
	SourceID   string    `json:"source_id"`
	TargetID   string    `json:"target_id"`
	Predicate  string    `json:"predicate"`
	Kind       string    `json:"kind"`
	Weight     float64   `json:"weight"`
	CreatedBy  string    `json:"created_by,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// SaveRelationship upserts a predicate edge. Re-announcing the same edge
// refreshes its kind and weight instead of duplicating it.
func (s *Store) SaveRelationship(documentID string, r *packet.Relationship) error {
	kind := r.Type
	if kind == "" {
		kind = packet.RelationshipSemantic
	}
	_, err := s.db.Exec(`
		INSERT INTO relationships (document_id, source_id, target_id, predicate, kind, weight, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(document_id, source_id, target_id, predicate) DO UPDATE SET
			kind = excluded.kind,
			weight = excluded.weight,
			created_by = excluded.created_by`,
		documentID, r.Source, r.Target, r.Predicate, kind, r.Weight, r.CreatedBy)
	if err != nil {
		return fmt.Errorf("save relationship: %w", err)
	}
	return nil
}

func (s *Store) ListRelationships(documentID string) ([]Relationship, error) {
	rows, err := s.db.Query(`
		SELECT id, document_id, source_id, target_id, predicate, kind, weight, created_by, created_at
		FROM relationships WHERE document_id = ? ORDER BY id`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list relationships: %w", err)
	}
	defer rows.Close()

	var rels []Relationship
	for rows.Next() {
		var r Relationship
		var createdBy sql.NullString
		if err := rows.Scan(&r.ID, &r.DocumentID, &r.SourceID, &r.TargetID,
			&r.Predicate, &r.Kind, &r.Weight, &createdBy, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan relationship: %w", err)
		}
		r.CreatedBy = createdBy.String
		rels = append(rels, r)
	}
	return rels, rows.Err()
}

type Taxonomy struct {
	ID         int64     `json:"id"`
	DocumentID string    `json:"document_id"`
	Parent     string    `json:"parent"`
	Child      string    `json:"child"`
	Kind       string    `json:"kind"`
	CreatedBy  string    `json:"created_by,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func (s *Store) SaveTaxonomy(documentID string, t *packet.Taxonomy) error {
	kind := t.Type
	if kind == "" {
		kind = packet.TaxonomyIsA
	}
	_, err := s.db.Exec(`
		INSERT INTO taxonomies (document_id, parent, child, kind, created_by)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(document_id, parent, child, kind) DO UPDATE SET
			created_by = excluded.created_by`,
		documentID, t.Parent, t.Child, kind, t.CreatedBy)
	if err != nil {
		return fmt.Errorf("save taxonomy: %w", err)
	}
	return nil
}

func (s *Store) ListTaxonomies(documentID string) ([]Taxonomy, error) {
	rows, err := s.db.Query(`
		SELECT id, document_id, parent, child, kind, created_by, created_at
		FROM taxonomies WHERE document_id = ? ORDER BY id`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list taxonomies: %w", err)
	}
	defer rows.Close()

	var links []Taxonomy
	for rows.Next() {
		var t Taxonomy
		var createdBy sql.NullString
		if err := rows.Scan(&t.ID, &t.DocumentID, &t.Parent, &t.Child,
			&t.Kind, &createdBy, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan taxonomy: %w", err)
		}
		t.CreatedBy = createdBy.String
		links = append(links, t)
	}
	return links, rows.Err()
}
