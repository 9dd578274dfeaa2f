package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/skarlatos/foliograph/internal/packet"
)

type Hypothesis struct {
	DocumentID      string    `json:"document_id"`
	ID              string    `json:"id"`
	TargetConceptID string    `json:"target_concept_id"`
	Claim           string    `json:"claim"`
	Evidence        string    `json:"evidence,omitempty"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// SaveHypothesis upserts a hypothesis. The critic re-announces a hypothesis
// with a new status when it accepts or rejects the claim.
func (s *Store) SaveHypothesis(documentID string, h *packet.Hypothesis) error {
	status := h.Status
	if status == "" {
		status = packet.HypothesisProposed
	}
	_, err := s.db.Exec(`
		INSERT INTO hypotheses (document_id, id, target_concept_id, claim, evidence, status)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(document_id, id) DO UPDATE SET
			target_concept_id = excluded.target_concept_id,
			claim = excluded.claim,
			evidence = excluded.evidence,
			status = excluded.status,
			updated_at = CURRENT_TIMESTAMP`,
		documentID, h.ID, h.TargetConceptID, h.Claim, h.Evidence, status)
	if err != nil {
		return fmt.Errorf("save hypothesis: %w", err)
	}
	return nil
}

func (s *Store) GetHypothesis(documentID, id string) (*Hypothesis, error) {
	row := s.db.QueryRow(`
		SELECT document_id, id, target_concept_id, claim, evidence, status, created_at, updated_at
		FROM hypotheses WHERE document_id = ? AND id = ?`, documentID, id)
	h, err := scanHypothesis(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get hypothesis: %w", err)
	}
	return h, nil
}

func (s *Store) ListHypotheses(documentID string) ([]Hypothesis, error) {
	rows, err := s.db.Query(`
		SELECT document_id, id, target_concept_id, claim, evidence, status, created_at, updated_at
		FROM hypotheses WHERE document_id = ? ORDER BY created_at, id`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list hypotheses: %w", err)
	}
	defer rows.Close()

	var hyps []Hypothesis
	for rows.Next() {
		h, err := scanHypothesis(rows)
		if err != nil {
			return nil, fmt.Errorf("scan hypothesis: %w", err)
		}
		hyps = append(hyps, *h)
	}
	return hyps, rows.Err()
}

func scanHypothesis(sc scanner) (*Hypothesis, error) {
	h := &Hypothesis{}
	var evidence sql.NullString
	err := sc.Scan(&h.DocumentID, &h.ID, &h.TargetConceptID, &h.Claim,
		&evidence, &h.Status, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return nil, err
	}
	h.Evidence = evidence.String
	return h, nil
}
