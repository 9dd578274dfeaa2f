package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/skarlatos/foliograph/internal/packet"
)

type Concept struct {
	DocumentID  string    `json:"document_id"`
	ID          string    `json:"id"`
	Term        string    `json:"term"`
	Kind        string    `json:"kind"`
	DataType    string    `json:"data_type,omitempty"`
	Category    string    `json:"category,omitempty"`
	Explanation string    `json:"explanation,omitempty"`
	Confidence  float64   `json:"confidence"`
	BoundingBox []float64 `json:"bounding_box,omitempty"`
	UIGroup     string    `json:"ui_group"`
	ExtractedBy string    `json:"extracted_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func scanConcept(sc scanner) (*Concept, error) {
	c := &Concept{}
	var dataType, category, explanation, box, extractedBy sql.NullString
	err := sc.Scan(&c.DocumentID, &c.ID, &c.Term, &c.Kind, &dataType, &category,
		&explanation, &c.Confidence, &box, &c.UIGroup, &extractedBy,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.DataType = dataType.String
	c.Category = category.String
	c.Explanation = explanation.String
	c.ExtractedBy = extractedBy.String
	if box.Valid && box.String != "" {
		if err := json.Unmarshal([]byte(box.String), &c.BoundingBox); err != nil {
			return nil, fmt.Errorf("decode bounding box: %w", err)
		}
	}
	return c, nil
}

// SaveConcept upserts an extracted concept under a document. Concept ids are
// only unique within one document's stream, so the row key is (document, id).
func (s *Store) SaveConcept(documentID string, c *packet.Concept) error {
	var box any
	if len(c.BoundingBox) > 0 {
		b, err := json.Marshal(c.BoundingBox)
		if err != nil {
			return fmt.Errorf("encode bounding box: %w", err)
		}
		box = string(b)
	}

	uiGroup := c.UIGroup
	if uiGroup == "" {
		uiGroup = packet.DefaultUIGroup
	}
	kind := c.Type
	if kind == "" {
		kind = packet.ConceptKindConcept
	}

	_, err := s.db.Exec(`
		INSERT INTO concepts (document_id, id, term, kind, data_type, category,
			explanation, confidence, bounding_box, ui_group, extracted_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(document_id, id) DO UPDATE SET
			term = excluded.term,
			kind = excluded.kind,
			data_type = excluded.data_type,
			category = excluded.category,
			explanation = excluded.explanation,
			confidence = excluded.confidence,
			bounding_box = excluded.bounding_box,
			ui_group = excluded.ui_group,
			extracted_by = excluded.extracted_by,
			updated_at = CURRENT_TIMESTAMP`,
		documentID, c.ID, c.Term, kind, c.DataType, c.Category,
		c.Explanation, c.Confidence, box, uiGroup, c.ExtractedBy)
	if err != nil {
		return fmt.Errorf("save concept: %w", err)
	}
	return nil
}

func (s *Store) GetConcept(documentID, id string) (*Concept, error) {
	row := s.db.QueryRow(`
		SELECT document_id, id, term, kind, data_type, category, explanation,
		       confidence, bounding_box, ui_group, extracted_by, created_at, updated_at
		FROM concepts WHERE document_id = ? AND id = ?`, documentID, id)
	c, err := scanConcept(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get concept: %w", err)
	}
	return c, nil
}

func (s *Store) ListConcepts(documentID string) ([]Concept, error) {
	rows, err := s.db.Query(`
		SELECT document_id, id, term, kind, data_type, category, explanation,
		       confidence, bounding_box, ui_group, extracted_by, created_at, updated_at
		FROM concepts WHERE document_id = ?
		ORDER BY created_at, rowid`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list concepts: %w", err)
	}
	defer rows.Close()

	var concepts []Concept
	for rows.Next() {
		c, err := scanConcept(rows)
		if err != nil {
			return nil, fmt.Errorf("scan concept: %w", err)
		}
		concepts = append(concepts, *c)
	}
	return concepts, rows.Err()
}

// ConceptTerms returns the surfaced terms for a document in arrival order,
// used to seed the exclusion list of follow-up extraction batches.
func (s *Store) ConceptTerms(documentID string) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT term FROM concepts WHERE document_id = ?
		ORDER BY created_at, rowid`, documentID)
	if err != nil {
		return nil, fmt.Errorf("concept terms: %w", err)
	}
	defer rows.Close()

	var terms []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		terms = append(terms, t)
	}
	return terms, rows.Err()
}

func (s *Store) CountConcepts(documentID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM concepts WHERE document_id = ?`, documentID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count concepts: %w", err)
	}
	return n, nil
}
