package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Document lifecycle statuses.
const (
	DocPending    = "pending"
	DocProcessing = "processing"
	DocCompleted  = "completed"
	DocError      = "error"
)

type Document struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	FilePath  string    `json:"file_path,omitempty"`
	FileSize  int64     `json:"file_size"`
	PageCount int       `json:"page_count"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func scanDocument(sc scanner) (*Document, error) {
	d := &Document{}
	var path sql.NullString
	err := sc.Scan(&d.ID, &d.Filename, &path, &d.FileSize, &d.PageCount,
		&d.Status, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.FilePath = path.String
	return d, nil
}

func (s *Store) SaveDocument(d *Document) error {
	if d.Status == "" {
		d.Status = DocPending
	}
	_, err := s.db.Exec(`
		INSERT INTO documents (id, filename, file_path, file_size, page_count, status)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			filename = excluded.filename,
			file_path = excluded.file_path,
			file_size = excluded.file_size,
			page_count = excluded.page_count,
			status = excluded.status,
			updated_at = CURRENT_TIMESTAMP`,
		d.ID, d.Filename, d.FilePath, d.FileSize, d.PageCount, d.Status)
	if err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	return nil
}

func (s *Store) GetDocument(id string) (*Document, error) {
	row := s.db.QueryRow(`
		SELECT id, filename, file_path, file_size, page_count, status, created_at, updated_at
		FROM documents WHERE id = ?`, id)
	d, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return d, nil
}

func (s *Store) ListDocuments() ([]Document, error) {
	rows, err := s.db.Query(`
		SELECT id, filename, file_path, file_size, page_count, status, created_at, updated_at
		FROM documents ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, *d)
	}
	return docs, rows.Err()
}

func (s *Store) UpdateDocumentStatus(id string, status string) error {
	_, err := s.db.Exec(`
		UPDATE documents SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status, id)
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	return nil
}

// DeleteDocument removes a document and every graph row extracted from it.
func (s *Store) DeleteDocument(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	tables := []string{"concepts", "relationships", "domains", "taxonomies", "priors", "hypotheses", "rounds"}
	for _, tbl := range tables {
		if _, err := tx.Exec(`DELETE FROM `+tbl+` WHERE document_id = ?`, id); err != nil {
			return fmt.Errorf("delete %s: %w", tbl, err)
		}
	}
	if _, err := tx.Exec(`DELETE FROM documents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}

	return tx.Commit()
}

// DeleteDocumentsBefore removes finished documents whose last update is older
// than the cutoff, cascading to their graph rows. Pending and processing
// documents are never touched.
func (s *Store) DeleteDocumentsBefore(cutoff time.Time) (int, error) {
	rows, err := s.db.Query(`
		SELECT id FROM documents
		WHERE status IN (?, ?) AND updated_at < ?`,
		DocCompleted, DocError, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("select expired documents: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return 0, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, id := range ids {
		if err := s.DeleteDocument(id); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}
