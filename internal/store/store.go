// Package store persists documents and their extracted knowledge graph
// in sqlite. One row set per document: concepts, relationships, domains,
// taxonomy links, priors, hypotheses and analysis rounds.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/skarlatos/foliograph/internal/config"
	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(cfg config.StoreConfig) (*Store, error) {
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// Enable WAL mode for concurrent read/write access and set a busy
	// timeout so writers retry instead of immediately returning SQLITE_BUSY.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("exec %s: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id          TEXT PRIMARY KEY,
			filename    TEXT NOT NULL,
			file_path   TEXT,
			file_size   INTEGER DEFAULT 0,
			page_count  INTEGER DEFAULT 0,
			status      TEXT DEFAULT 'pending',
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS concepts (
			document_id  TEXT NOT NULL REFERENCES documents(id),
			id           TEXT NOT NULL,
			term         TEXT NOT NULL,
			kind         TEXT NOT NULL DEFAULT 'concept',
			data_type    TEXT,
			category     TEXT,
			explanation  TEXT,
			confidence   REAL NOT NULL DEFAULT 0,
			bounding_box TEXT,
			ui_group     TEXT DEFAULT 'General',
			extracted_by TEXT,
			created_at   DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at   DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (document_id, id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_concepts_document ON concepts(document_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS relationships (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			document_id TEXT NOT NULL REFERENCES documents(id),
			source_id   TEXT NOT NULL,
			target_id   TEXT NOT NULL,
			predicate   TEXT NOT NULL,
			kind        TEXT DEFAULT 'semantic',
			weight      REAL DEFAULT 0,
			created_by  TEXT,
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_relationships_edge
			ON relationships(document_id, source_id, target_id, predicate)`,
		`CREATE TABLE IF NOT EXISTS domains (
			document_id TEXT NOT NULL REFERENCES documents(id),
			id          TEXT NOT NULL,
			name        TEXT NOT NULL,
			description TEXT,
			sensitivity TEXT DEFAULT 'MEDIUM',
			defined_by  TEXT,
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (document_id, id)
		)`,
		`CREATE TABLE IF NOT EXISTS taxonomies (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			document_id TEXT NOT NULL REFERENCES documents(id),
			parent      TEXT NOT NULL,
			child       TEXT NOT NULL,
			kind        TEXT DEFAULT 'is_a',
			created_by  TEXT,
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_taxonomies_link
			ON taxonomies(document_id, parent, child, kind)`,
		`CREATE TABLE IF NOT EXISTS priors (
			document_id TEXT NOT NULL REFERENCES documents(id),
			id          TEXT NOT NULL,
			axiom       TEXT NOT NULL,
			weight      REAL DEFAULT 0,
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (document_id, id)
		)`,
		`CREATE TABLE IF NOT EXISTS hypotheses (
			document_id       TEXT NOT NULL REFERENCES documents(id),
			id                TEXT NOT NULL,
			target_concept_id TEXT NOT NULL,
			claim             TEXT NOT NULL,
			evidence          TEXT,
			status            TEXT DEFAULT 'PROPOSED',
			created_at        DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at        DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (document_id, id)
		)`,
		`CREATE TABLE IF NOT EXISTS rounds (
			document_id  TEXT NOT NULL REFERENCES documents(id),
			id           INTEGER NOT NULL,
			name         TEXT NOT NULL,
			status       TEXT DEFAULT 'active',
			started_at   DATETIME NOT NULL,
			completed_at DATETIME,
			duration_ms  INTEGER DEFAULT 0,
			PRIMARY KEY (document_id, id)
		)`,
		`CREATE TABLE IF NOT EXISTS credentials (
			name       TEXT PRIMARY KEY,
			value      BLOB NOT NULL,
			nonce      BLOB NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}
