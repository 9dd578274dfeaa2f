package store

import (
	"database/sql"
	"fmt"
	"time"
)

type Round struct {
	DocumentID  string     `json:"document_id"`
	ID          int        `json:"id"`
	Name        string     `json:"name"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationMs  int64      `json:"duration_ms"`
}

func scanRound(sc scanner) (*Round, error) {
	r := &Round{}
	err := sc.Scan(&r.DocumentID, &r.ID, &r.Name, &r.Status,
		&r.StartedAt, &r.CompletedAt, &r.DurationMs)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Store) SaveRound(r *Round) error {
	_, err := s.db.Exec(`
		INSERT INTO rounds (document_id, id, name, status, started_at, completed_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(document_id, id) DO UPDATE SET
			name = excluded.name,
			status = excluded.status,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			duration_ms = excluded.duration_ms`,
		r.DocumentID, r.ID, r.Name, r.Status, r.StartedAt.UTC(), completedAtUTC(r.CompletedAt), r.DurationMs)
	if err != nil {
		return fmt.Errorf("save round: %w", err)
	}
	return nil
}

func (s *Store) GetRound(documentID string, id int) (*Round, error) {
	row := s.db.QueryRow(`
		SELECT document_id, id, name, status, started_at, completed_at, duration_ms
		FROM rounds WHERE document_id = ? AND id = ?`, documentID, id)
	r, err := scanRound(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get round: %w", err)
	}
	return r, nil
}

func (s *Store) ListRounds(documentID string) ([]Round, error) {
	rows, err := s.db.Query(`
		SELECT document_id, id, name, status, started_at, completed_at, duration_ms
		FROM rounds WHERE document_id = ? ORDER BY id`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list rounds: %w", err)
	}
	defer rows.Close()

	var rounds []Round
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, fmt.Errorf("scan round: %w", err)
		}
		rounds = append(rounds, *r)
	}
	return rounds, rows.Err()
}

// DeleteRoundsBefore prunes finished rounds completed before the cutoff.
// Rounds still marked active are kept.
func (s *Store) DeleteRoundsBefore(cutoff time.Time) (int, error) {
	res, err := s.db.Exec(`
		DELETE FROM rounds WHERE completed_at IS NOT NULL AND completed_at < ?`,
		cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired rounds: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func completedAtUTC(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
